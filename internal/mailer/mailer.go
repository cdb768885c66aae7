package mailer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"gopkg.in/gomail.v2"

	"github.com/Vicktor007/WisePrice/internal/config"
	"github.com/Vicktor007/WisePrice/internal/models"
)

type Consumer interface {
	Consume(ctx context.Context, handler func(ctx context.Context, body []byte) error) error
}

// Mailer drains the notifications queue and delivers each message over SMTP.
type Mailer struct {
	dialer *gomail.Dialer
	from   string
	log    *slog.Logger
}

func New(cfg config.SMTP, log *slog.Logger) *Mailer {
	return &Mailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password),
		from:   cfg.From,
		log:    log,
	}
}

func (m *Mailer) Run(ctx context.Context, consumer Consumer) error {
	return consumer.Consume(ctx, m.handleMessage)
}

func (m *Mailer) handleMessage(_ context.Context, body []byte) error {
	const op = "mailer.handleMessage"

	var msg models.EmailMessage

	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%s: invalid message format: %w", op, err)
	}

	if len(msg.To) == 0 {
		return fmt.Errorf("%s: message has no recipients", op)
	}

	mail := gomail.NewMessage()
	mail.SetHeader("From", m.from)
	mail.SetHeader("To", msg.To...)
	mail.SetHeader("Subject", msg.Subject)
	mail.SetBody("text/html", msg.Body)

	if err := m.dialer.DialAndSend(mail); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	m.log.Info("email sent",
		slog.Int("recipients", len(msg.To)),
		slog.String("subject", msg.Subject),
	)

	return nil
}
