package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// DefaultSubject is used for every portal email.
const DefaultSubject = "Image Processing Portal"

// EmailChannel relays plain text mail through an SMTP server without authentication.
type EmailChannel struct {
	Addr string
	From string

	// SendMail defaults to smtp.SendMail.
	SendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// Notify sends message to the address in destination.
func (e *EmailChannel) Notify(ctx context.Context, destination, message string) error {
	if strings.ContainsAny(destination, "\r\n") {
		return fmt.Errorf("invalid recipient %q", destination)
	}
	send := e.SendMail
	if send == nil {
		send = smtp.SendMail
	}

	done := make(chan error, 1)
	go func() {
		done <- send(e.Addr, nil, e.From, []string{destination}, e.compose(destination, message))
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *EmailChannel) compose(to, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", e.From)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", DefaultSubject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}
