package approval

import (
	"context"
	"encoding/json"

	"medvive-settlement/pkg/errutil"
	"medvive-settlement/pkg/logger"
	"medvive-settlement/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Issuer creates tokens and surfaces them on the decision channel.
type Issuer struct {
	node    *snowflake.Node
	channel Channel
	tokens  repository.Repository[Token]
}

type IssuerParams struct {
	fx.In
	DB      *gorm.DB
	Node    *snowflake.Node
	Channel Channel
}

func NewIssuer(p IssuerParams) *Issuer {
	return &Issuer{
		node:    p.Node,
		channel: p.Channel,
		tokens:  repository.ProvideStore[Token](p.DB),
	}
}

func (i *Issuer) CreateToken(ctx context.Context, payload Payload) (*Token, error) {
	if payload == nil {
		return nil, errutil.ValidationFailed("payload is required", nil)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errutil.Internal("failed to encode payload", err)
	}

	token := &Token{
		ID:      i.node.Generate().String(),
		Kind:    payload.Kind(),
		Payload: raw,
		Status:  StatusPending,
	}
	if err := i.tokens.Create(ctx, token); err != nil {
		return nil, err
	}
	return token, nil
}

// Request creates a token and presents it. A presentation failure is logged
// and leaves the token PENDING so it can be presented again.
func (i *Issuer) Request(ctx context.Context, payload Payload, prompt Prompt) (*Token, error) {
	token, err := i.CreateToken(ctx, payload)
	if err != nil {
		return nil, err
	}

	i.present(ctx, token, prompt)
	return token, nil
}

func (i *Issuer) present(ctx context.Context, token *Token, prompt Prompt) {
	log := logger.FromContext(ctx).With(zap.String("token_id", token.ID), zap.String("kind", string(token.Kind)))

	ref, err := i.channel.Present(ctx, token, prompt)
	if err != nil {
		log.Warn("failed to present approval token", zap.Error(err))
		return
	}

	token.ChannelID = ref.ChannelID
	token.MessageID = ref.MessageID
	if err := i.tokens.Update(ctx, token.ID, map[string]any{
		"channel_id": ref.ChannelID,
		"message_id": ref.MessageID,
	}); err != nil {
		log.Warn("failed to store presentation reference", zap.Error(err))
	}
}
