package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/yuin/goldmark"

	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/config"
)

// smtpDialTimeout is the maximum time to establish an SMTP connection.
const smtpDialTimeout = 30 * time.Second

type sendFunc func(ctx context.Context, cfg config.EmailConfig, from string, recipients []string, msg []byte) error

// Email delivers notifications as multipart (plain + HTML) mail.
type Email struct {
	cfg  config.EmailConfig
	send sendFunc
}

// NewEmail creates an email channel.
func NewEmail(cfg config.EmailConfig) *Email {
	return &Email{cfg: cfg, send: SendMail}
}

func (e *Email) Name() string { return "email" }

// Send composes msg and delivers it to every configured recipient.
func (e *Email) Send(ctx context.Context, msg Message) error {
	subject := msg.Title
	if subject == "" {
		subject = "Sidekick notification"
	}
	body := msg.Body
	if msg.URL != "" {
		body += "\n\n" + msg.URL
	}

	raw, err := ComposeMessage(e.cfg.From, e.cfg.To, subject, body)
	if err != nil {
		return err
	}
	return e.send(ctx, e.cfg, extractAddress(e.cfg.From), collectRecipients(e.cfg.To), raw)
}

// ComposeMessage builds an RFC 5322 message. The markdown body becomes
// text/plain and text/html parts in a multipart/alternative.
func ComposeMessage(from string, to []string, subject, body string) ([]byte, error) {
	var buf bytes.Buffer

	var h mail.Header
	h.SetDate(time.Now())
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("generate message-id: %w", err)
	}
	h.SetSubject(subject)

	fromAddr, err := mail.ParseAddress(from)
	if err != nil {
		return nil, fmt.Errorf("parse from address %q: %w", from, err)
	}
	h.SetAddressList("From", []*mail.Address{fromAddr})

	toAddrs, err := parseAddressList(to)
	if err != nil {
		return nil, fmt.Errorf("parse to addresses: %w", err)
	}
	h.SetAddressList("To", toAddrs)

	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create mail writer: %w", err)
	}
	tw, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("create inline writer: %w", err)
	}

	htmlContent, err := markdownToHTML(body)
	if err != nil {
		return nil, fmt.Errorf("render markdown to HTML: %w", err)
	}

	parts := []struct{ contentType, content string }{
		{"text/plain; charset=utf-8", markdownToPlain(body)},
		{"text/html; charset=utf-8", htmlContent},
	}
	for _, p := range parts {
		var ih mail.InlineHeader
		ih.Set("Content-Type", p.contentType)
		pw, err := tw.CreatePart(ih)
		if err != nil {
			return nil, fmt.Errorf("create %s part: %w", p.contentType, err)
		}
		if _, err := io.WriteString(pw, p.content); err != nil {
			return nil, fmt.Errorf("write %s part: %w", p.contentType, err)
		}
		if err := pw.Close(); err != nil {
			return nil, fmt.Errorf("close %s part: %w", p.contentType, err)
		}
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close inline writer: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close mail writer: %w", err)
	}
	return buf.Bytes(), nil
}

func parseAddressList(addrs []string) ([]*mail.Address, error) {
	result := make([]*mail.Address, 0, len(addrs))
	for _, a := range addrs {
		parsed, err := mail.ParseAddress(a)
		if err != nil {
			return nil, fmt.Errorf("parse address %q: %w", a, err)
		}
		result = append(result, parsed)
	}
	return result, nil
}

func markdownToHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	return fmt.Sprintf(`<!DOCTYPE html>
<html><head><meta charset="utf-8"></head>
<body style="font-family: sans-serif; font-size: 14px; line-height: 1.5;">
%s
</body></html>`, buf.String()), nil
}

var (
	mdBold       = regexp.MustCompile(`\*\*(.+?)\*\*`)
	mdItalic     = regexp.MustCompile(`\*(.+?)\*`)
	mdLink       = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	mdImage      = regexp.MustCompile(`!\[([^\]]*)\]\([^)]+\)`)
	mdHeading    = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	mdCodeBlock  = regexp.MustCompile("(?s)```[a-zA-Z]*\n?(.*?)```")
	mdInlineCode = regexp.MustCompile("`([^`]+)`")
)

// markdownToPlain strips markdown formatting, keeping list markers.
func markdownToPlain(md string) string {
	s := mdCodeBlock.ReplaceAllString(md, "$1")
	s = mdImage.ReplaceAllString(s, "$1")
	s = mdLink.ReplaceAllString(s, "$1 ($2)")
	s = mdBold.ReplaceAllString(s, "$1")
	s = mdItalic.ReplaceAllString(s, "$1")
	s = mdInlineCode.ReplaceAllString(s, "$1")
	s = mdHeading.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// SendMail connects to the SMTP server, authenticates, and delivers msg.
// Each call uses its own connection. With StartTLS false the connection
// is implicit TLS (port 465).
func SendMail(ctx context.Context, cfg config.EmailConfig, from string, recipients []string, msg []byte) error {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	dialTimeout := smtpDialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < dialTimeout {
			dialTimeout = remaining
		}
	}
	dialer := &net.Dialer{Timeout: dialTimeout}

	var conn net.Conn
	var err error
	if cfg.StartTLS {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: cfg.Host})
	}
	if err != nil {
		return fmt.Errorf("dial SMTP %s: %w", addr, err)
	}
	client, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("create SMTP client on %s: %w", addr, err)
	}
	defer client.Close()

	if err := client.Hello("localhost"); err != nil {
		return fmt.Errorf("EHLO: %w", err)
	}
	if cfg.StartTLS {
		if err := client.StartTLS(&tls.Config{ServerName: cfg.Host}); err != nil {
			return fmt.Errorf("STARTTLS: %w", err)
		}
	}
	if cfg.Username != "" && cfg.Password != "" {
		if err := client.Auth(smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)); err != nil {
			return fmt.Errorf("AUTH: %w", err)
		}
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	for _, rcpt := range recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("RCPT TO %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close DATA: %w", err)
	}
	return client.Quit()
}

// extractAddress extracts the bare address from "Name <addr>" or "addr".
func extractAddress(s string) string {
	if idx := len(s) - 1; idx > 0 && s[idx] == '>' {
		if start := strings.LastIndexByte(s, '<'); start >= 0 {
			return s[start+1 : idx]
		}
	}
	return s
}

// collectRecipients returns the unique bare addresses for RCPT TO.
func collectRecipients(lists ...[]string) []string {
	seen := make(map[string]bool)
	var result []string
	for _, list := range lists {
		for _, addr := range list {
			bare := extractAddress(addr)
			if bare != "" && !seen[bare] {
				seen[bare] = true
				result = append(result, bare)
			}
		}
	}
	return result
}
