package email

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petchat/internal/config"
	"github.com/petchat/internal/model"
)

type sent struct {
	addr string
	from string
	to   []string
	raw  string
}

func testSender(t *testing.T, fail error) (*Sender, *[]sent) {
	t.Helper()
	var calls []sent
	s := NewSender(&config.SMTPConfig{
		Host:      "smtp.example.org",
		Port:      587,
		Username:  "mailer",
		Password:  "secret",
		FromEmail: "no-reply@petchat.example",
		FromName:  "PetChat",
	})
	s.sendMail = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		calls = append(calls, sent{addr: addr, from: from, to: to, raw: string(msg)})
		return fail
	}
	s.now = func() time.Time { return time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC) }
	return s, &calls
}

func TestSender_Send(t *testing.T) {
	s, calls := testSender(t, nil)

	id, err := s.Send(context.Background(), Message{
		To:       "alice@example.com",
		ToName:   "Alice",
		Subject:  "Новое сообщение",
		HTML:     "<p>Hello &amp; welcome</p>",
		Metadata: map[string]string{"Type": "message_received"},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "<") && strings.HasSuffix(id, "@smtp.example.org>"))

	require.Len(t, *calls, 1)
	c := (*calls)[0]
	assert.Equal(t, "smtp.example.org:587", c.addr)
	assert.Equal(t, "no-reply@petchat.example", c.from)
	assert.Equal(t, []string{"alice@example.com"}, c.to)
	assert.Contains(t, c.raw, "Message-ID: "+id)
	assert.Contains(t, c.raw, "To: Alice <alice@example.com>")
	assert.Contains(t, c.raw, "Subject: =?utf-8?q?")
	assert.Contains(t, c.raw, "X-Petchat-Type: message_received")
	assert.Contains(t, c.raw, "Content-Type: multipart/alternative; boundary=petchat-")
	assert.Contains(t, c.raw, "Hello & welcome\r\n", "plain part is derived from html")
}

func TestSender_Errors(t *testing.T) {
	s, _ := testSender(t, errors.New("421 try later"))
	_, err := s.Send(context.Background(), Message{To: "alice@example.com", HTML: "<p>x</p>"})
	assert.ErrorContains(t, err, "421 try later")

	_, err = s.Send(context.Background(), Message{HTML: "<p>x</p>"})
	assert.Error(t, err)

	unconfigured := NewSender(&config.SMTPConfig{Host: "smtp.example.org"})
	_, err = unconfigured.Send(context.Background(), Message{To: "alice@example.com"})
	assert.Error(t, err)
}

func TestSender_ContextCancelled(t *testing.T) {
	s, _ := testSender(t, nil)
	block := make(chan struct{})
	defer close(block)
	s.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		<-block
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Send(ctx, Message{To: "alice@example.com", HTML: "<p>x</p>"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStripTags(t *testing.T) {
	assert.Equal(t, "Biscuit & Co", stripTags("  <h3>Biscuit &amp; Co</h3> "))
	assert.Equal(t, "plain", stripTags("plain"))
}

func TestNotificationMessage(t *testing.T) {
	n := &model.Notification{ID: "n1", Type: model.TypeAdoptionApproved, Title: "Approved <3", Message: "See you\nSaturday"}
	m := NotificationMessage(model.Identity{Email: "alice@example.com", DisplayName: "Alice"}, n)

	assert.Equal(t, "alice@example.com", m.To)
	assert.Equal(t, "Approved <3", m.Subject)
	assert.Equal(t, "<h3>Approved &lt;3</h3><p>See you<br>Saturday</p>", m.HTML)
	assert.Equal(t, "n1", m.Metadata["Notification-Id"])
	assert.Equal(t, "adoption_approved", m.Metadata["Type"])
}
