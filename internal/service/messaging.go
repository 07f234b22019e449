package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/petchat/internal/audit"
	"github.com/petchat/internal/logger"
	"github.com/petchat/internal/model"
	"github.com/petchat/internal/repository"
)

const (
	defaultRateLimitCount  = 10
	defaultRateLimitWindow = time.Minute
	defaultMaxContent      = 10000
	defaultPageSize        = 50
	maxPageSize            = 100
	maxSearchResults       = 50
)

type MessagingConfig struct {
	RateLimitCount   int
	RateLimitWindow  time.Duration
	MaxContentLength int
}

// Messaging — операции над чатами, участниками и сообщениями.
type Messaging struct {
	store  Store
	events EventPublisher
	audit  audit.Logger
	cfg    MessagingConfig
	now    func() time.Time
}

func NewMessaging(store Store, events EventPublisher, auditLog audit.Logger, cfg MessagingConfig) *Messaging {
	if events == nil {
		events = nopPublisher{}
	}
	if auditLog == nil {
		auditLog = audit.Nop{}
	}
	if cfg.RateLimitCount <= 0 {
		cfg.RateLimitCount = defaultRateLimitCount
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = defaultRateLimitWindow
	}
	if cfg.MaxContentLength <= 0 {
		cfg.MaxContentLength = defaultMaxContent
	}
	return &Messaging{
		store:  store,
		events: events,
		audit:  auditLog,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

type CreateChatInput struct {
	RescueID      string
	CreatorID     string
	PetID         *string
	ApplicationID *string
	// ParticipantIDs — короткая форма: создатель получает роль user, остальные rescue.
	ParticipantIDs []string
	// Participants — явные роли; если заданы, ParticipantIDs игнорируется.
	Participants   []model.ParticipantSpec
	InitialMessage string
}

// resolveParticipants нормализует участников: пустые id отбрасываются, дубликаты схлопываются
// (побеждает первое вхождение), создатель добавляется всегда.
func resolveParticipants(in CreateChatInput) ([]model.ParticipantSpec, error) {
	var specs []model.ParticipantSpec
	if len(in.Participants) > 0 {
		for _, p := range in.Participants {
			id := strings.TrimSpace(p.ParticipantID)
			if id == "" {
				continue
			}
			if !p.Role.Valid() {
				return nil, validationf("Invalid participant role %q", p.Role)
			}
			specs = append(specs, model.ParticipantSpec{ParticipantID: id, Role: p.Role})
		}
	} else {
		for _, raw := range in.ParticipantIDs {
			id := strings.TrimSpace(raw)
			if id == "" {
				continue
			}
			role := model.RoleRescue
			if id == in.CreatorID {
				role = model.RoleUser
			}
			specs = append(specs, model.ParticipantSpec{ParticipantID: id, Role: role})
		}
	}
	specs = append(specs, model.ParticipantSpec{ParticipantID: in.CreatorID, Role: model.RoleUser})

	seen := make(map[string]struct{}, len(specs))
	out := specs[:0]
	for _, s := range specs {
		if _, dup := seen[s.ParticipantID]; dup {
			continue
		}
		seen[s.ParticipantID] = struct{}{}
		out = append(out, s)
	}
	return out, nil
}

func (s *Messaging) validateContent(content string, attachments []model.Attachment) error {
	if strings.TrimSpace(content) == "" && len(attachments) == 0 {
		return ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > s.cfg.MaxContentLength {
		return validationf("Message content cannot exceed %d characters", s.cfg.MaxContentLength)
	}
	return nil
}

// CreateChat создаёт чат, участников и (опционально) первое сообщение создателя в одной транзакции.
func (s *Messaging) CreateChat(ctx context.Context, in CreateChatInput) (*model.Chat, error) {
	defer logger.DeferLogDuration("messaging.CreateChat", time.Now())()
	in.RescueID = strings.TrimSpace(in.RescueID)
	in.CreatorID = strings.TrimSpace(in.CreatorID)
	if in.RescueID == "" {
		return nil, ErrRescueRequired
	}
	if in.CreatorID == "" {
		return nil, ErrCreatorRequired
	}
	specs, err := resolveParticipants(in)
	if err != nil {
		return nil, err
	}
	if in.InitialMessage != "" {
		if err := s.validateContent(in.InitialMessage, nil); err != nil {
			return nil, err
		}
	}

	now := s.now()
	chat := &model.Chat{
		ID:            uuid.New().String(),
		RescueID:      in.RescueID,
		PetID:         in.PetID,
		ApplicationID: in.ApplicationID,
		Status:        model.ChatStatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	var initial *model.Message
	err = s.store.InTx(ctx, func(tx Tx) error {
		if err := tx.Chats().Create(ctx, chat); err != nil {
			return err
		}
		for _, sp := range specs {
			p := model.Participant{ChatID: chat.ID, ParticipantID: sp.ParticipantID, Role: sp.Role, JoinedAt: now}
			if _, err := tx.Chats().AddParticipant(ctx, &p); err != nil {
				return err
			}
			chat.Participants = append(chat.Participants, p)
		}
		if in.InitialMessage != "" {
			initial = &model.Message{
				ID:            uuid.New().String(),
				ChatID:        chat.ID,
				SenderID:      in.CreatorID,
				Content:       in.InitialMessage,
				ContentFormat: model.ContentFormatPlain,
				Type:          model.MessageTypeText,
				Attachments:   []model.Attachment{},
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			return tx.Messages().Create(ctx, initial)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Log(audit.Record{
		Action:   audit.ActionCreate,
		Entity:   "Chat",
		EntityID: chat.ID,
		UserID:   in.CreatorID,
		Details: map[string]any{
			"rescue_id":         chat.RescueID,
			"participant_count": len(chat.Participants),
			"initial_message":   initial != nil,
		},
	})
	if initial != nil {
		s.afterSend(ctx, initial)
	}
	return chat, nil
}

type SendMessageInput struct {
	ChatID        string
	SenderID      string
	Content       string
	ContentFormat model.ContentFormat
	Attachments   []model.Attachment
	// RequestedType заявляет клиент. Не используется, расхождение только логируется.
	RequestedType model.MessageType
}

// SendMessage сохраняет сообщение участника. Чат и участие проверяются одним запросом,
// превышение лимита отклоняется до записи. Рассылка уведомлений идёт после коммита.
func (s *Messaging) SendMessage(ctx context.Context, in SendMessageInput) (*model.Message, error) {
	defer logger.DeferLogDuration("messaging.SendMessage", time.Now())()
	if !validID(in.ChatID) {
		return nil, ErrChatNotFoundOrNotParticipant
	}
	if err := s.validateContent(in.Content, in.Attachments); err != nil {
		return nil, err
	}
	format := in.ContentFormat
	if format == "" {
		format = model.ContentFormatPlain
	}
	if !format.Valid() {
		return nil, validationf("Invalid content format %q", format)
	}
	msgType := model.InferMessageType(in.Attachments)
	if in.RequestedType != "" && in.RequestedType != msgType {
		logger.Infof("messaging: requested type %s differs from inferred %s (chat=%s sender=%s)",
			in.RequestedType, msgType, in.ChatID, in.SenderID)
	}
	attachments := in.Attachments
	if attachments == nil {
		attachments = []model.Attachment{}
	}
	for i := range attachments {
		if attachments[i].ID == "" {
			attachments[i].ID = uuid.New().String()
		}
	}

	now := s.now()
	msg := &model.Message{
		ID:            uuid.New().String(),
		ChatID:        in.ChatID,
		SenderID:      in.SenderID,
		Content:       in.Content,
		ContentFormat: format,
		Type:          msgType,
		Attachments:   attachments,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err := s.store.InTx(ctx, func(tx Tx) error {
		chat, err := tx.Chats().GetForParticipant(ctx, in.ChatID, in.SenderID)
		if err != nil {
			return notFound(err, ErrChatNotFoundOrNotParticipant)
		}
		if chat.Status == model.ChatStatusArchived {
			return ErrChatArchived
		}
		recent, err := tx.Messages().CountSince(ctx, in.ChatID, in.SenderID, now.Add(-s.cfg.RateLimitWindow))
		if err != nil {
			return err
		}
		if recent >= s.cfg.RateLimitCount {
			return ErrRateLimitExceeded
		}
		if err := tx.Messages().Create(ctx, msg); err != nil {
			return err
		}
		return tx.Chats().Touch(ctx, in.ChatID, now)
	})
	if err != nil {
		return nil, err
	}
	s.afterSend(ctx, msg)
	return msg, nil
}

// afterSend выполняет побочные эффекты после коммита. Ошибки только логируются: сообщение уже сохранено.
func (s *Messaging) afterSend(ctx context.Context, msg *model.Message) {
	ev := MessageSentEvent{ChatID: msg.ChatID, MessageID: msg.ID, SenderID: msg.SenderID}
	if err := s.events.MessageSent(context.WithoutCancel(ctx), ev); err != nil {
		logger.Errorf("messaging: publish message_sent chat=%s msg=%s: %v", msg.ChatID, msg.ID, err)
	}
	s.audit.Log(audit.Record{
		Action:   audit.ActionMessageSent,
		Entity:   "Message",
		EntityID: msg.ID,
		UserID:   msg.SenderID,
		Details:  map[string]any{"chat_id": msg.ChatID, "type": string(msg.Type), "attachments": len(msg.Attachments)},
	})
}

type MessagePage struct {
	Messages []model.Message `json:"messages"`
	Total    int             `json:"total"`
	Page     int             `json:"page"`
	Limit    int             `json:"limit"`
}

func validatePage(page, limit int) error {
	if page < 1 {
		return ErrInvalidPage
	}
	if limit < 1 || limit > maxPageSize {
		return ErrInvalidLimit
	}
	return nil
}

// GetMessages возвращает страницу сообщений (новые первыми) с реакциями.
func (s *Messaging) GetMessages(ctx context.Context, chatID, userID string, page, limit int) (*MessagePage, error) {
	defer logger.DeferLogDuration("messaging.GetMessages", time.Now())()
	if err := validatePage(page, limit); err != nil {
		return nil, err
	}
	if err := s.requireParticipant(ctx, chatID, userID); err != nil {
		return nil, err
	}
	msgs, total, err := s.store.Messages().ListByChat(ctx, chatID, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	if err := s.attachReactions(ctx, msgs); err != nil {
		return nil, err
	}
	return &MessagePage{Messages: msgs, Total: total, Page: page, Limit: limit}, nil
}

func (s *Messaging) attachReactions(ctx context.Context, msgs []model.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	ids := make([]string, len(msgs))
	for i := range msgs {
		ids[i] = msgs[i].ID
	}
	byMsg, err := s.store.Reactions().ListByMessages(ctx, ids)
	if err != nil {
		return err
	}
	for i := range msgs {
		msgs[i].Reactions = byMsg[msgs[i].ID]
	}
	return nil
}

func (s *Messaging) requireParticipant(ctx context.Context, chatID, userID string) error {
	if !validID(chatID) {
		return ErrChatNotFoundOrNotParticipant
	}
	if _, err := s.store.Chats().GetForParticipant(ctx, chatID, userID); err != nil {
		return notFound(err, ErrChatNotFoundOrNotParticipant)
	}
	return nil
}

// GetChat возвращает чат с участниками.
func (s *Messaging) GetChat(ctx context.Context, chatID, userID string) (*model.Chat, error) {
	defer logger.DeferLogDuration("messaging.GetChat", time.Now())()
	if !validID(chatID) {
		return nil, ErrChatNotFoundOrNotParticipant
	}
	chat, err := s.store.Chats().GetForParticipant(ctx, chatID, userID)
	if err != nil {
		return nil, notFound(err, ErrChatNotFoundOrNotParticipant)
	}
	chat.Participants, err = s.store.Chats().ListParticipants(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return chat, nil
}

type ChatPage struct {
	Chats []model.ChatSummary `json:"chats"`
	Total int                 `json:"total"`
	Page  int                 `json:"page"`
	Limit int                 `json:"limit"`
}

// ListUserChats — чаты пользователя с участниками, последним сообщением и числом непрочитанных.
func (s *Messaging) ListUserChats(ctx context.Context, userID string, status model.ChatStatus, page, limit int) (*ChatPage, error) {
	defer logger.DeferLogDuration("messaging.ListUserChats", time.Now())()
	if err := validatePage(page, limit); err != nil {
		return nil, err
	}
	if status != "" && status != model.ChatStatusActive && status != model.ChatStatusArchived {
		return nil, validationf("Invalid chat status %q", status)
	}
	chats, total, err := s.store.Chats().ListForUser(ctx, userID, status, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	out := &ChatPage{Chats: make([]model.ChatSummary, 0, len(chats)), Total: total, Page: page, Limit: limit}
	for _, c := range chats {
		sum := model.ChatSummary{Chat: c}
		if sum.Chat.Participants, err = s.store.Chats().ListParticipants(ctx, c.ID); err != nil {
			return nil, err
		}
		last, err := s.store.Messages().Latest(ctx, c.ID)
		if err == nil {
			sum.LastMessage = last
		} else if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		if sum.UnreadCount, err = s.store.Reads().CountUnread(ctx, c.ID, userID); err != nil {
			return nil, err
		}
		out.Chats = append(out.Chats, sum)
	}
	return out, nil
}

// requireRescue проверяет, что actor — участник чата с ролью rescue.
func (s *Messaging) requireRescue(ctx context.Context, tx Tx, chatID, actorID string, denied error) error {
	p, err := tx.Chats().GetParticipant(ctx, chatID, actorID)
	if err != nil {
		return notFound(err, denied)
	}
	if p.Role != model.RoleRescue {
		return denied
	}
	return nil
}

// ArchiveChat: только active -> archived. Повторная архивация ничего не меняет.
func (s *Messaging) ArchiveChat(ctx context.Context, chatID, actorID string) (*model.Chat, error) {
	defer logger.DeferLogDuration("messaging.ArchiveChat", time.Now())()
	if !validID(chatID) {
		return nil, ErrChatNotFound
	}
	var chat *model.Chat
	changed := false
	err := s.store.InTx(ctx, func(tx Tx) error {
		var err error
		chat, err = tx.Chats().GetByID(ctx, chatID)
		if err != nil {
			return notFound(err, ErrChatNotFound)
		}
		if err := s.requireRescue(ctx, tx, chatID, actorID, ErrOnlyRescueCanManage); err != nil {
			return err
		}
		if !chat.CanTransitionTo(model.ChatStatusArchived) {
			return nil
		}
		now := s.now()
		if err := tx.Chats().UpdateStatus(ctx, chatID, model.ChatStatusArchived, now); err != nil {
			return err
		}
		chat.Status = model.ChatStatusArchived
		chat.UpdatedAt = now
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.audit.Log(audit.Record{Action: audit.ActionChatArchived, Entity: "Chat", EntityID: chatID, UserID: actorID})
	}
	return chat, nil
}

// DeleteChat — явное разрушающее действие администратора приюта: чат удаляется физически.
func (s *Messaging) DeleteChat(ctx context.Context, chatID, actorID string) error {
	defer logger.DeferLogDuration("messaging.DeleteChat", time.Now())()
	if !validID(chatID) {
		return ErrChatNotFound
	}
	err := s.store.InTx(ctx, func(tx Tx) error {
		if _, err := tx.Chats().GetByID(ctx, chatID); err != nil {
			return notFound(err, ErrChatNotFound)
		}
		if err := s.requireRescue(ctx, tx, chatID, actorID, ErrOnlyRescueCanManage); err != nil {
			return err
		}
		return tx.Chats().Delete(ctx, chatID)
	})
	if err != nil {
		return err
	}
	s.audit.Log(audit.Record{Action: audit.ActionChatDeleted, Entity: "Chat", EntityID: chatID, UserID: actorID})
	return nil
}

// AddParticipant добавляет участника. Вызывающий должен быть участником с ролью rescue.
func (s *Messaging) AddParticipant(ctx context.Context, chatID, actorID, userID string, role model.ParticipantRole) (*model.Participant, error) {
	defer logger.DeferLogDuration("messaging.AddParticipant", time.Now())()
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, validationf("Participant id is required")
	}
	if role == "" {
		role = model.RoleUser
	}
	if !role.Valid() {
		return nil, validationf("Invalid participant role %q", role)
	}
	if !validID(chatID) {
		return nil, ErrChatNotFound
	}
	p := &model.Participant{ChatID: chatID, ParticipantID: userID, Role: role, JoinedAt: s.now()}
	err := s.store.InTx(ctx, func(tx Tx) error {
		if _, err := tx.Chats().GetByID(ctx, chatID); err != nil {
			return notFound(err, ErrChatNotFound)
		}
		if err := s.requireRescue(ctx, tx, chatID, actorID, ErrOnlyRescueCanAdd); err != nil {
			return err
		}
		added, err := tx.Chats().AddParticipant(ctx, p)
		if err != nil {
			return err
		}
		if !added {
			return ErrAlreadyParticipant
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.audit.Log(audit.Record{
		Action:   audit.ActionParticipantAdded,
		Entity:   "Chat",
		EntityID: chatID,
		UserID:   actorID,
		Details:  map[string]any{"addedUserId": userID, "role": string(role)},
	})
	return p, nil
}

// RemoveParticipant: участник может удалить себя, rescue — кого угодно. Удаление физическое.
func (s *Messaging) RemoveParticipant(ctx context.Context, chatID, actorID, userID string) error {
	defer logger.DeferLogDuration("messaging.RemoveParticipant", time.Now())()
	if !validID(chatID) {
		return ErrChatNotFound
	}
	err := s.store.InTx(ctx, func(tx Tx) error {
		if _, err := tx.Chats().GetByID(ctx, chatID); err != nil {
			return notFound(err, ErrChatNotFound)
		}
		if actorID != userID {
			if err := s.requireRescue(ctx, tx, chatID, actorID, ErrOnlyRescueCanRemove); err != nil {
				return err
			}
		}
		removed, err := tx.Chats().RemoveParticipant(ctx, chatID, userID)
		if err != nil {
			return err
		}
		if !removed {
			return ErrParticipantNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.audit.Log(audit.Record{
		Action:   audit.ActionParticipantRemoved,
		Entity:   "Chat",
		EntityID: chatID,
		UserID:   actorID,
		Details:  map[string]any{"removedUserId": userID},
	})
	return nil
}

// messageForParticipant загружает сообщение и проверяет участие userID в его чате.
func (s *Messaging) messageForParticipant(ctx context.Context, messageID, userID string) (*model.Message, error) {
	if !validID(messageID) {
		return nil, ErrMessageNotFound
	}
	msg, err := s.store.Messages().GetByID(ctx, messageID)
	if err != nil {
		return nil, notFound(err, ErrMessageNotFound)
	}
	if _, err := s.store.Chats().GetParticipant(ctx, msg.ChatID, userID); err != nil {
		return nil, notFound(err, ErrNotParticipant)
	}
	return msg, nil
}

func (s *Messaging) AddReaction(ctx context.Context, messageID, userID, emoji string) error {
	defer logger.DeferLogDuration("messaging.AddReaction", time.Now())()
	emoji = strings.TrimSpace(emoji)
	if emoji == "" || utf8.RuneCountInString(emoji) > 16 {
		return validationf("Invalid emoji")
	}
	if _, err := s.messageForParticipant(ctx, messageID, userID); err != nil {
		return err
	}
	r := &model.Reaction{MessageID: messageID, UserID: userID, Emoji: emoji, CreatedAt: s.now()}
	if err := s.store.Reactions().Add(ctx, r); err != nil {
		return err
	}
	s.audit.Log(audit.Record{
		Action: audit.ActionReactionAdded, Entity: "Message", EntityID: messageID, UserID: userID,
		Details: map[string]any{"emoji": emoji},
	})
	return nil
}

// RemoveReaction не считает ошибкой отсутствие реакции или сообщения.
func (s *Messaging) RemoveReaction(ctx context.Context, messageID, userID, emoji string) error {
	defer logger.DeferLogDuration("messaging.RemoveReaction", time.Now())()
	if !validID(messageID) {
		return nil
	}
	emoji = strings.TrimSpace(emoji)
	removed, err := s.store.Reactions().Remove(ctx, messageID, userID, emoji)
	if err != nil || !removed {
		return err
	}
	s.audit.Log(audit.Record{
		Action: audit.ActionReactionRemoved, Entity: "Message", EntityID: messageID, UserID: userID,
		Details: map[string]any{"emoji": emoji},
	})
	return nil
}

// ModerateMessage заменяет содержимое на ModeratedContent. Модератор должен быть участником чата.
func (s *Messaging) ModerateMessage(ctx context.Context, moderatorID, messageID, reason string) (*model.Message, error) {
	defer logger.DeferLogDuration("messaging.ModerateMessage", time.Now())()
	msg, err := s.messageForParticipant(ctx, messageID, moderatorID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := s.store.Messages().OverwriteContent(ctx, messageID, model.ModeratedContent, now); err != nil {
		return nil, notFound(err, ErrMessageNotFound)
	}
	msg.Content = model.ModeratedContent
	msg.ContentFormat = model.ContentFormatPlain
	msg.UpdatedAt = now
	s.audit.Log(audit.Record{
		Action: audit.ActionMessageModerated, Entity: "Message", EntityID: messageID, UserID: moderatorID,
		Details: map[string]any{"chat_id": msg.ChatID, "reason": reason},
	})
	return msg, nil
}

// DeleteMessage заменяет содержимое на DeletedContent. Удалять может только участник чата.
func (s *Messaging) DeleteMessage(ctx context.Context, messageID, actorID, reason string) error {
	defer logger.DeferLogDuration("messaging.DeleteMessage", time.Now())()
	msg, err := s.messageForParticipant(ctx, messageID, actorID)
	if err != nil {
		return err
	}
	if err := s.store.Messages().OverwriteContent(ctx, messageID, model.DeletedContent, s.now()); err != nil {
		return notFound(err, ErrMessageNotFound)
	}
	if strings.TrimSpace(reason) == "" {
		reason = "No reason provided"
	}
	s.audit.Log(audit.Record{
		Action: audit.ActionMessageDeleted, Entity: "Message", EntityID: messageID, UserID: actorID,
		Details: map[string]any{"chat_id": msg.ChatID, "reason": reason},
	})
	return nil
}

// ReportMessage фиксирует жалобу участника на сообщение.
func (s *Messaging) ReportMessage(ctx context.Context, messageID, reporterID, reason string) error {
	defer logger.DeferLogDuration("messaging.ReportMessage", time.Now())()
	if strings.TrimSpace(reason) == "" {
		return validationf("Report reason is required")
	}
	msg, err := s.messageForParticipant(ctx, messageID, reporterID)
	if err != nil {
		return err
	}
	s.audit.Log(audit.Record{
		Action: audit.ActionMessageReported, Entity: "Message", EntityID: messageID, UserID: reporterID,
		Details: map[string]any{"chat_id": msg.ChatID, "sender_id": msg.SenderID, "reason": reason},
	})
	return nil
}

// SearchMessages ищет по тексту в чатах пользователя.
func (s *Messaging) SearchMessages(ctx context.Context, userID, query, chatID string, limit int) ([]model.Message, error) {
	defer logger.DeferLogDuration("messaging.SearchMessages", time.Now())()
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 || limit > maxSearchResults {
		limit = maxSearchResults
	}
	if chatID != "" {
		if err := s.requireParticipant(ctx, chatID, userID); err != nil {
			return nil, err
		}
	}
	return s.store.Messages().Search(ctx, userID, query, chatID, limit)
}

// GetUnreadMessageCount считает чужие сообщения чата без отметки пользователя.
func (s *Messaging) GetUnreadMessageCount(ctx context.Context, chatID, userID string) (int, error) {
	defer logger.DeferLogDuration("messaging.GetUnreadMessageCount", time.Now())()
	if err := s.requireParticipant(ctx, chatID, userID); err != nil {
		return 0, err
	}
	return s.store.Reads().CountUnread(ctx, chatID, userID)
}
