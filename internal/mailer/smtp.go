package mailer

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"github.com/wneessen/go-mail"

	"github.com/sells-group/printlog-cli/internal/model"
	"github.com/sells-group/printlog-cli/internal/resilience"
)

// SMTPConfig holds SMTP server settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// TLS is "mandatory", "opportunistic" or "none".
	TLS     string
	Timeout time.Duration
}

// SMTPSender delivers envelopes over SMTP.
type SMTPSender struct {
	client *mail.Client
}

// NewSMTP builds an SMTP sender. No connection is made until Send.
func NewSMTP(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, eris.New("mailer: smtp host is required")
	}

	opts := []mail.Option{mail.WithTLSPortPolicy(tlsPolicy(cfg.TLS))}
	if cfg.Port > 0 {
		opts = append(opts, mail.WithPort(cfg.Port))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(cfg.Timeout))
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthAutoDiscover),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, eris.Wrap(err, "mailer: new smtp client")
	}
	return &SMTPSender{client: client}, nil
}

func (s *SMTPSender) Send(ctx context.Context, env model.Envelope) error {
	msg, err := buildMessage(env)
	if err != nil {
		return err
	}
	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return classifySMTPError(err)
	}
	return nil
}

func buildMessage(env model.Envelope) (*mail.Msg, error) {
	if env.FromAddress == "" {
		return nil, eris.New("mailer: from address is required")
	}
	msg := mail.NewMsg()
	if err := msg.FromFormat(env.FromName, env.FromAddress); err != nil {
		return nil, eris.Wrapf(err, "mailer: from %q", env.FromAddress)
	}
	if err := msg.To(env.To); err != nil {
		return nil, eris.Wrapf(err, "mailer: to %q", env.To)
	}
	msg.Subject(env.Subject)
	msg.SetBodyString(mail.TypeTextHTML, env.HTMLBody)
	return msg, nil
}

func classifySMTPError(err error) error {
	var sendErr *mail.SendError
	if errors.As(err, &sendErr) && (sendErr.IsTemp() || resilience.IsTransientSMTPCode(sendErr.ErrorCode())) {
		return resilience.NewTransientError(eris.Wrap(err, "mailer: smtp send"), sendErr.ErrorCode())
	}
	return eris.Wrap(err, "mailer: smtp send")
}

func tlsPolicy(name string) mail.TLSPolicy {
	switch name {
	case "none":
		return mail.NoTLS
	case "opportunistic":
		return mail.TLSOpportunistic
	default:
		return mail.TLSMandatory
	}
}
