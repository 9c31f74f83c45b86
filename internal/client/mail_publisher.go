package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/fundflow/be-fund-requests/internal/repository"
)

// MailPublisher pushes drained outbox messages to NATS for the platform mail
// sender. Delivery to the recipient is that service's concern; this side only
// guarantees the message left the outbox.
type MailPublisher struct {
	conn    *nats.Conn
	subject string
	log     zerolog.Logger
}

// mailEvent is the JSON schema published to NATS.
type mailEvent struct {
	MessageID string  `json:"message_id"`
	To        string  `json:"to"`
	CC        *string `json:"cc,omitempty"`
	Subject   string  `json:"subject"`
	HTMLBody  string  `json:"html_body"`
}

// NewMailPublisher connects to NATS and returns a publisher for the given
// subject.
func NewMailPublisher(url, subject string, log zerolog.Logger) (*MailPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("be-fund-requests"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	return &MailPublisher{conn: conn, subject: subject, log: log}, nil
}

// Publish sends one outbox message to the mail subject.
func (p *MailPublisher) Publish(ctx context.Context, msg *repository.OutboxMessage) error {
	event := &mailEvent{
		MessageID: msg.ID,
		To:        msg.ToAddress,
		CC:        msg.CC,
		Subject:   msg.Subject,
		HTMLBody:  msg.HTMLBody,
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal mail event: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish mail event: %w", err)
	}

	p.log.Debug().
		Str("subject", p.subject).
		Str("message_id", msg.ID).
		Msg("Mail event published")
	return nil
}

// Close drains and closes the NATS connection.
func (p *MailPublisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}
