package service

import (
	"errors"
	"fmt"

	"github.com/petchat/internal/repository"
)

// Виды ошибок. Конкретные ошибки ниже сопоставляются с видом через errors.Is.
var (
	ErrValidation  = errors.New("validation error")
	ErrNotFound    = errors.New("not found")
	ErrForbidden   = errors.New("forbidden")
	ErrRateLimited = errors.New("rate limited")
	ErrConflict    = errors.New("conflict")
)

// Error — ошибка с текстом для клиента и видом для маппинга в HTTP-статус.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Is(target error) bool { return target == e.Kind }

// NewError создаёт ошибку вида kind с текстом для клиента.
func NewError(kind error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func validationf(format string, args ...any) error {
	return NewError(ErrValidation, fmt.Sprintf(format, args...))
}

var (
	// ErrChatNotFoundOrNotParticipant намеренно не различает «чата нет» и «не участник».
	ErrChatNotFoundOrNotParticipant = NewError(ErrNotFound, "Chat not found or user is not a participant")

	ErrRateLimitExceeded   = NewError(ErrRateLimited, "Rate limit exceeded. Please wait before sending more messages.")
	ErrAlreadyParticipant  = NewError(ErrConflict, "User is already a participant")
	ErrOnlyRescueCanAdd    = NewError(ErrForbidden, "Only rescue staff can add participants")
	ErrOnlyRescueCanRemove = NewError(ErrForbidden, "Only rescue staff can remove other participants")
	ErrOnlyRescueCanManage = NewError(ErrForbidden, "Only rescue staff can manage this chat")
	ErrNotParticipant      = NewError(ErrForbidden, "User is not a participant in this chat")
	ErrChatNotFound        = NewError(ErrNotFound, "Chat not found")
	ErrMessageNotFound     = NewError(ErrNotFound, "Message not found")
	ErrParticipantNotFound = NewError(ErrNotFound, "Participant not found")
	ErrInvalidPage         = NewError(ErrValidation, "Page must be greater than 0")
	ErrInvalidLimit        = NewError(ErrValidation, "Limit must be between 1 and 100")
	ErrEmptyContent        = NewError(ErrValidation, "Message content cannot be empty")
	ErrChatArchived        = NewError(ErrValidation, "Chat is archived")
	ErrRescueRequired      = NewError(ErrValidation, "Rescue id is required")
	ErrCreatorRequired     = NewError(ErrValidation, "Creator id is required")
	ErrEmptyQuery          = NewError(ErrValidation, "Search query cannot be empty")
)

// notFound переводит repository.ErrNotFound в переданную ошибку сервиса.
func notFound(err, as error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return as
	}
	return err
}
