package email

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"mime"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/petchat/internal/config"
	"github.com/petchat/internal/model"
)

// Message — письмо канала email. HTML обязателен, текстовая версия — по желанию.
type Message struct {
	To       string
	ToName   string
	Subject  string
	HTML     string
	Text     string
	Metadata map[string]string
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type Sender struct {
	cfg      *config.SMTPConfig
	sendMail sendMailFunc
	now      func() time.Time
}

func NewSender(cfg *config.SMTPConfig) *Sender {
	return &Sender{cfg: cfg, sendMail: smtp.SendMail, now: time.Now}
}

func (s *Sender) from() string {
	if s.cfg.FromEmail != "" {
		return s.cfg.FromEmail
	}
	return s.cfg.Username
}

// Send отправляет письмо и возвращает его Message-ID.
func (s *Sender) Send(ctx context.Context, m Message) (string, error) {
	if s.cfg.Host == "" || s.cfg.Username == "" || s.cfg.Password == "" {
		return "", errors.New("email: SMTP не настроен")
	}
	if m.To == "" {
		return "", errors.New("email: recipient is empty")
	}
	msgID := "<" + uuid.New().String() + "@" + s.cfg.Host + ">"
	raw := s.build(m, msgID)
	addr := s.cfg.Host + ":" + strconv.Itoa(s.cfg.Port)
	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	done := make(chan error, 1)
	go func() { done <- s.sendMail(addr, auth, s.from(), []string{m.To}, raw) }()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case err := <-done:
		if err != nil {
			return "", fmt.Errorf("email: %w", err)
		}
		return msgID, nil
	}
}

func address(name, email string) string {
	if name == "" {
		return email
	}
	return mime.QEncoding.Encode("utf-8", name) + " <" + email + ">"
}

// build собирает multipart/alternative письмо: text/plain и text/html.
func (s *Sender) build(m Message, msgID string) []byte {
	text := m.Text
	if text == "" {
		text = stripTags(m.HTML)
	}
	boundary := "petchat-" + strings.ReplaceAll(uuid.New().String(), "-", "")
	var buf bytes.Buffer
	buf.WriteString("From: " + address(s.cfg.FromName, s.from()) + "\r\n")
	buf.WriteString("To: " + address(m.ToName, m.To) + "\r\n")
	buf.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", m.Subject) + "\r\n")
	buf.WriteString("Date: " + s.now().Format(time.RFC1123Z) + "\r\n")
	buf.WriteString("Message-ID: " + msgID + "\r\n")
	for k, v := range m.Metadata {
		buf.WriteString("X-Petchat-" + k + ": " + v + "\r\n")
	}
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: multipart/alternative; boundary=" + boundary + "\r\n\r\n")
	buf.WriteString("--" + boundary + "\r\n")
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	buf.WriteString(text + "\r\n")
	buf.WriteString("--" + boundary + "\r\n")
	buf.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
	buf.WriteString(m.HTML + "\r\n")
	buf.WriteString("--" + boundary + "--\r\n")
	return buf.Bytes()
}

func stripTags(s string) string {
	var b strings.Builder
	in := false
	for _, r := range s {
		switch {
		case r == '<':
			in = true
		case r == '>':
			in = false
		case !in:
			b.WriteRune(r)
		}
	}
	return html.UnescapeString(strings.TrimSpace(b.String()))
}

// Channel — адаптер Sender к каналу уведомлений.
type Channel struct {
	sender *Sender
}

func NewChannel(s *Sender) *Channel { return &Channel{sender: s} }

func (c *Channel) Channel() model.Channel { return model.ChannelEmail }

func (c *Channel) Send(ctx context.Context, to model.Identity, n *model.Notification) (string, error) {
	return c.sender.Send(ctx, NotificationMessage(to, n))
}

// NotificationMessage — письмо для уведомления.
func NotificationMessage(to model.Identity, n *model.Notification) Message {
	body := "<p>" + strings.ReplaceAll(html.EscapeString(n.Message), "\n", "<br>") + "</p>"
	return Message{
		To:      to.Email,
		ToName:  to.DisplayName,
		Subject: n.Title,
		HTML:    "<h3>" + html.EscapeString(n.Title) + "</h3>" + body,
		Text:    n.Title + "\n\n" + n.Message,
		Metadata: map[string]string{
			"Notification-Id": n.ID,
			"Type":            string(n.Type),
		},
	}
}
