// Package notify delivers operator alarms raised by the scan engine.
//
// Delivery is best effort: the engine logs a failed notification and
// carries on terminating.
package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"time"
)

// DefaultSendTimeout bounds a mail delivery when the context has no deadline.
const DefaultSendTimeout = 10 * time.Second

// Log writes notifications to a logger at error level.
type Log struct {
	Logger *slog.Logger
}

// Notify implements engine.Notifier.
func (n Log) Notify(ctx context.Context, message string) error {
	n.Logger.ErrorContext(ctx, "operator notification", "message", message)
	return nil
}

// SendMailFunc delivers one message. It has the shape of net/smtp.SendMail
// plus a context carrying the delivery deadline.
type SendMailFunc func(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPConfig configures the SMTP notifier.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
	Subject  string
}

// Validate checks that mail can be addressed.
func (c SMTPConfig) Validate() error {
	if c.Host == "" {
		return errors.New("smtp: host is required")
	}
	if c.From == "" {
		return errors.New("smtp: sender is required")
	}
	if len(c.To) == 0 {
		return errors.New("smtp: at least one recipient is required")
	}
	return nil
}

// Addr returns host:port, defaulting the port to 587.
func (c SMTPConfig) Addr() string {
	port := c.Port
	if port == 0 {
		port = 587
	}
	return fmt.Sprintf("%s:%d", c.Host, port)
}

// SMTP emails each notification.
type SMTP struct {
	cfg  SMTPConfig
	send SendMailFunc
}

// NewSMTP creates an SMTP notifier. A nil send uses SendMail.
func NewSMTP(cfg SMTPConfig, send SendMailFunc) (*SMTP, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Subject == "" {
		cfg.Subject = "PLC alarm"
	}
	if send == nil {
		send = SendMail
	}
	return &SMTP{cfg: cfg, send: send}, nil
}

// Notify implements engine.Notifier. It returns when the mail was sent or
// ctx is done, whichever comes first.
func (n *SMTP) Notify(ctx context.Context, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultSendTimeout)
		defer cancel()
	}

	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}

	done := make(chan error, 1)
	go func() {
		done <- n.send(ctx, n.cfg.Addr(), auth, n.cfg.From, n.cfg.To, n.compose(message))
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp: send to %s: %w", n.cfg.Addr(), err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("smtp: send to %s: %w", n.cfg.Addr(), ctx.Err())
	}
}

// SendMail is smtp.SendMail with the dial and every read and write bounded
// by the context deadline.
func SendMail(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			conn.Close()
			return err
		}
	}

	c, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return err
		}
	}
	if a != nil {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(a); err != nil {
				return err
			}
		}
	}
	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}

	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func (n *SMTP) compose(message string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", n.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(n.cfg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", n.cfg.Subject)
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(message)
	b.WriteString("\r\n")
	return []byte(b.String())
}

// Notifier is the subset of engine.Notifier used by Multi.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Multi fans a notification out to every notifier. All notifiers are
// attempted; their errors are joined.
type Multi []Notifier

// Notify implements engine.Notifier.
func (m Multi) Notify(ctx context.Context, message string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
