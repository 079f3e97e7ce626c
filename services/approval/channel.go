package approval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"medvive-settlement/pkg/config"
	"medvive-settlement/pkg/util"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// Channel is where humans see decision prompts. It eventually calls back into
// Service.ResolveDecision.
type Channel interface {
	Present(ctx context.Context, token *Token, prompt Prompt) (*PresentationRef, error)
	Report(ctx context.Context, token *Token, outcome Outcome) error
}

func NewChannel(cfg *config.Config, signer *util.ActionSigner) Channel {
	if cfg.Decision.WebhookURL == "" {
		return LogChannel{}
	}
	return NewWebhookChannel(cfg.Decision.WebhookURL, cfg.Decision.ChannelID, signer)
}

type actionLink struct {
	Action Action `json:"action"`
	Token  string `json:"token"`
}

type presentBody struct {
	Event     string       `json:"event"`
	ChannelID string       `json:"channel_id"`
	TokenID   string       `json:"token_id"`
	Kind      Kind         `json:"kind"`
	Prompt    Prompt       `json:"prompt"`
	Actions   []actionLink `json:"actions"`
}

type reportBody struct {
	Event     string  `json:"event"`
	ChannelID string  `json:"channel_id"`
	MessageID string  `json:"message_id"`
	TokenID   string  `json:"token_id"`
	Outcome   Outcome `json:"outcome"`
}

// WebhookChannel posts prompts to a chat relay. Each action carries a signed
// token that the relay hands back on POST /v1/decisions.
type WebhookChannel struct {
	url       string
	channelID string
	signer    *util.ActionSigner
	http      *http.Client
}

func NewWebhookChannel(url, channelID string, signer *util.ActionSigner) *WebhookChannel {
	return &WebhookChannel{
		url:       url,
		channelID: channelID,
		signer:    signer,
		http: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (w *WebhookChannel) Present(ctx context.Context, token *Token, prompt Prompt) (*PresentationRef, error) {
	body := presentBody{
		Event:     "prompt",
		ChannelID: w.channelID,
		TokenID:   token.ID,
		Kind:      token.Kind,
		Prompt:    prompt,
	}
	for _, action := range []Action{ActionApprove, ActionReject} {
		signed, err := w.signer.Sign(token.ID, string(action))
		if err != nil {
			return nil, err
		}
		body.Actions = append(body.Actions, actionLink{Action: action, Token: signed})
	}

	var resp struct {
		MessageID string `json:"message_id"`
	}
	if err := w.post(ctx, body, &resp); err != nil {
		return nil, err
	}
	return &PresentationRef{ChannelID: w.channelID, MessageID: resp.MessageID}, nil
}

func (w *WebhookChannel) Report(ctx context.Context, token *Token, outcome Outcome) error {
	return w.post(ctx, reportBody{
		Event:     "outcome",
		ChannelID: token.ChannelID,
		MessageID: token.MessageID,
		TokenID:   token.ID,
		Outcome:   outcome,
	}, nil)
}

func (w *WebhookChannel) post(ctx context.Context, body any, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("decision relay responded %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// LogChannel only logs. Decisions then arrive through the HTTP API directly.
type LogChannel struct{}

func (LogChannel) Present(ctx context.Context, token *Token, prompt Prompt) (*PresentationRef, error) {
	fields := make([]zap.Field, 0, len(prompt.Fields)+2)
	fields = append(fields, zap.String("token_id", token.ID), zap.String("title", prompt.Title))
	for _, f := range prompt.Fields {
		fields = append(fields, zap.String(f.Label, f.Value))
	}
	zap.L().Info("approval requested", fields...)
	return &PresentationRef{ChannelID: "log", MessageID: token.ID}, nil
}

func (LogChannel) Report(ctx context.Context, token *Token, outcome Outcome) error {
	zap.L().Info("approval resolved",
		zap.String("token_id", token.ID),
		zap.String("reason", outcome.Reason),
		zap.String("message", outcome.Message),
	)
	return nil
}
