package model

import (
	"path/filepath"
	"strings"
	"time"
)

// Содержимое, которым перезаписывается сообщение при модерации/удалении.
const (
	ModeratedContent = "[Message moderated]"
	DeletedContent   = "[Message deleted]"
)

type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeFile  MessageType = "file"
)

type ContentFormat string

const (
	ContentFormatPlain    ContentFormat = "plain"
	ContentFormatMarkdown ContentFormat = "markdown"
	ContentFormatHTML     ContentFormat = "html"
)

// Valid сообщает, поддерживается ли формат.
func (f ContentFormat) Valid() bool {
	switch f {
	case ContentFormatPlain, ContentFormatMarkdown, ContentFormatHTML:
		return true
	}
	return false
}

type Attachment struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
	URL      string `json:"url"`
}

type Message struct {
	ID            string        `json:"id"`
	ChatID        string        `json:"chat_id"`
	SenderID      string        `json:"sender_id"`
	Content       string        `json:"content"`
	ContentFormat ContentFormat `json:"content_format"`
	Type          MessageType   `json:"type"`
	Attachments   []Attachment  `json:"attachments"`
	Reactions     []Reaction    `json:"reactions,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// IsOverwritten — содержимое заменено модерацией или удалением.
func (m *Message) IsOverwritten() bool {
	return m.Content == ModeratedContent || m.Content == DeletedContent
}

type Reaction struct {
	MessageID string    `json:"message_id"`
	UserID    string    `json:"user_id"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

var imageExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {}, ".bmp": {}, ".svg": {}, ".heic": {},
}

// InferMessageType определяет тип сообщения по вложениям:
// без вложений — text, хотя бы одно изображение — image, иначе file.
func InferMessageType(attachments []Attachment) MessageType {
	if len(attachments) == 0 {
		return MessageTypeText
	}
	for _, a := range attachments {
		if strings.HasPrefix(strings.ToLower(a.MimeType), "image/") {
			return MessageTypeImage
		}
		if _, ok := imageExtensions[strings.ToLower(filepath.Ext(a.Filename))]; ok {
			return MessageTypeImage
		}
	}
	return MessageTypeFile
}
