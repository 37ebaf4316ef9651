package usecase

import (
	"context"
	"errors"
	"net/http"
	"time"

	"genai-chatbot/internal/domain"
)

type LLMClient interface {
	Chat(ctx context.Context, messages []domain.ChatMessage) (string, error)
}

type HistoryStore interface {
	GetHistory(ctx context.Context, userID string) ([]domain.ChatMessage, error)
	AppendTurn(ctx context.Context, turn domain.Turn) error
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// ChatService runs one inference round per call: load history, ask the LLM,
// then record the question and the answer.
type ChatService struct {
	llm     LLMClient
	history HistoryStore
	locks   *userLocks
	now     func() time.Time
}

type ChatInput struct {
	UserID   string
	Question string
}

type ChatOutput struct {
	Response string
}

func NewChatService(llm LLMClient, history HistoryStore) (*ChatService, error) {
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if history == nil {
		return nil, errors.New("usecase: history store must not be nil")
	}
	return &ChatService{
		llm:     llm,
		history: history,
		locks:   newUserLocks(),
		now:     time.Now,
	}, nil
}

// Chat answers in.Question with the user's history as context. Rounds for the
// same user ID are serialized. Nothing is written when the LLM call fails; a
// failed assistant write after a successful user write is not rolled back.
func (s *ChatService) Chat(ctx context.Context, in ChatInput) (ChatOutput, error) {
	unlock := s.locks.Lock(in.UserID)
	defer unlock()

	history, err := s.history.GetHistory(ctx, in.UserID)
	if err != nil {
		return ChatOutput{}, newError(ErrorInternal, "history_read_error", err)
	}

	answer, err := s.llm.Chat(ctx, buildPromptMessages(in.Question, history))
	if err != nil {
		if status, ok := upstreamStatusCode(err); ok && status == http.StatusTooManyRequests {
			return ChatOutput{}, newError(ErrorRateLimited, "llm_rate_limited", err)
		}
		return ChatOutput{}, newError(ErrorUpstream, "llm_error", err)
	}

	askedAt := s.now()
	if err := s.history.AppendTurn(ctx, domain.Turn{
		UserID:    in.UserID,
		Role:      domain.RoleUser,
		Message:   in.Question,
		Timestamp: askedAt,
	}); err != nil {
		return ChatOutput{}, newError(ErrorInternal, "history_write_error", err)
	}

	// The answer must sort after the question even on a coarse clock.
	answeredAt := s.now()
	if !answeredAt.After(askedAt) {
		answeredAt = askedAt.Add(time.Nanosecond)
	}
	if err := s.history.AppendTurn(ctx, domain.Turn{
		UserID:    in.UserID,
		Role:      domain.RoleAssistant,
		Message:   answer,
		Timestamp: answeredAt,
	}); err != nil {
		return ChatOutput{}, newError(ErrorInternal, "history_write_error", err)
	}

	return ChatOutput{Response: answer}, nil
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}
