package util

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

const actionIssuer = "medvive-settlement"

var ErrInvalidActionToken = errors.New("invalid action token")

func GenerateVerificationCode() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// ActionClaims binds one decision action to one approval token.
type ActionClaims struct {
	jwt.Claims
	TokenID string `json:"tid"`
	Action  string `json:"act"`
}

type ActionSigner struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewActionSigner derives an HS256 key from secret. An empty secret yields a
// random process-local key, so links signed before a restart stop verifying.
func NewActionSigner(secret string, ttl time.Duration) *ActionSigner {
	if secret == "" {
		secret = GenerateVerificationCode() + GenerateVerificationCode()
	}
	key := sha256.Sum256([]byte(secret))
	return &ActionSigner{key: key[:], ttl: ttl, now: time.Now}
}

func (s *ActionSigner) Sign(tokenID, action string) (string, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: s.key},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", err
	}

	now := s.now()
	claims := ActionClaims{
		Claims: jwt.Claims{
			Issuer:   actionIssuer,
			Subject:  tokenID,
			IssuedAt: jwt.NewNumericDate(now),
		},
		TokenID: tokenID,
		Action:  action,
	}
	if s.ttl > 0 {
		claims.Expiry = jwt.NewNumericDate(now.Add(s.ttl))
	}

	return jwt.Signed(signer).Claims(claims).Serialize()
}

func (s *ActionSigner) Verify(raw string) (*ActionClaims, error) {
	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return nil, errors.Join(ErrInvalidActionToken, err)
	}

	var claims ActionClaims
	if err := tok.Claims(s.key, &claims); err != nil {
		return nil, errors.Join(ErrInvalidActionToken, err)
	}

	if err := claims.ValidateWithLeeway(jwt.Expected{Issuer: actionIssuer, Time: s.now()}, 0); err != nil {
		return nil, errors.Join(ErrInvalidActionToken, err)
	}

	if claims.TokenID == "" || claims.Action == "" {
		return nil, ErrInvalidActionToken
	}

	return &claims, nil
}
