package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"opsalert/internal/config"
	"opsalert/internal/domain"
)

// EmailSender delivers alerts by SMTP submission.
// Params: server address, sender identity, and recipient list.
// Returns: email channel implementation.
type EmailSender struct {
	cfg  config.EmailNotifier
	addr string
	send func(ctx context.Context, addr string, auth smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailSender creates the email channel sender.
// Params: email notifier config.
// Returns: initialized sender.
func NewEmailSender(cfg config.EmailNotifier) *EmailSender {
	return &EmailSender{
		cfg:  cfg,
		addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		send: sendMail,
	}
}

// Channel returns the sender channel identity.
// Params: none.
// Returns: email channel key.
func (s *EmailSender) Channel() domain.AlertChannel {
	return domain.ChannelEmail
}

// Deliver submits one alert message to all configured recipients over a
// context-bounded SMTP conversation.
// Params: context bounding dial and submission, and alert to deliver.
// Returns: submission error.
func (s *EmailSender) Deliver(ctx context.Context, alert domain.Alert) error {
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	var msg strings.Builder
	msg.WriteString("From: " + s.cfg.From + "\r\n")
	msg.WriteString("To: " + strings.Join(s.cfg.To, ", ") + "\r\n")
	msg.WriteString("Subject: " + Subject(alert) + "\r\n")
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(RenderText(alert))

	if err := s.send(ctx, s.addr, auth, s.cfg.From, s.cfg.To, []byte(msg.String())); err != nil {
		return fmt.Errorf("email send: %w", err)
	}
	return nil
}

// sendMail runs one SMTP submission with the context deadline applied
// to the connection, so a hung server cannot block past the caller's
// per-send timeout.
// Params: context, server address, optional auth, envelope, and message bytes.
// Returns: dial, protocol, or submission error.
func sendMail(ctx context.Context, addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp server: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	client, err := smtp.NewClient(conn, host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	if auth != nil {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(auth); err != nil {
				return fmt.Errorf("smtp auth: %w", err)
			}
		}
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp rcpt %s: %w", rcpt, err)
		}
	}
	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := writer.Write(msg); err != nil {
		_ = writer.Close()
		return fmt.Errorf("smtp write body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("smtp close body: %w", err)
	}
	return client.Quit()
}
