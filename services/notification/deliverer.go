package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"medvive-settlement/pkg/config"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// Deliverer hands a rendered request to the mail transport.
type Deliverer interface {
	Deliver(ctx context.Context, msg Message) error
}

func NewDeliverer(cfg *config.Config) Deliverer {
	if cfg.Notification.RelayURL == "" {
		return LogDeliverer{}
	}
	return NewRelayDeliverer(cfg.Notification.RelayURL)
}

// RelayDeliverer posts messages to a mail relay that owns template rendering.
type RelayDeliverer struct {
	url  string
	http *http.Client
}

func NewRelayDeliverer(url string) *RelayDeliverer {
	return &RelayDeliverer{
		url: url,
		http: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (d *RelayDeliverer) Deliver(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("mail relay responded %s", resp.Status)
	}
	return nil
}

type LogDeliverer struct{}

func (LogDeliverer) Deliver(ctx context.Context, msg Message) error {
	zap.L().Info("notification delivered to log",
		zap.String("template", msg.Template),
		zap.String("to", msg.To.Email),
		zap.String("subject", msg.Subject),
	)
	return nil
}
