package usecase

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"genai-chatbot/internal/domain"
	"genai-chatbot/internal/integrations/groq"
	"genai-chatbot/internal/repository"
)

type mockLLM struct {
	mu       sync.Mutex
	answers  []string
	err      error
	captured [][]domain.ChatMessage
}

func (m *mockLLM) Chat(_ context.Context, msgs []domain.ChatMessage) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.captured = append(m.captured, msgs)
	if m.err != nil {
		return "", m.err
	}
	if len(m.answers) == 0 {
		return "answer", nil
	}
	idx := len(m.captured) - 1
	if idx >= len(m.answers) {
		idx = len(m.answers) - 1
	}
	return m.answers[idx], nil
}

// userStore mimics a persistent store: per-user, ordered by timestamp.
type userStore struct {
	mu          sync.Mutex
	turns       []domain.Turn
	historyErr  error
	appendErr   error
	failOnWrite int
	writes      int
}

func (s *userStore) GetHistory(_ context.Context, userID string) ([]domain.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.historyErr != nil {
		return nil, s.historyErr
	}
	var out []domain.ChatMessage
	for _, t := range s.turns {
		if t.UserID == userID {
			out = append(out, t.ChatMessage())
		}
	}
	return out, nil
}

func (s *userStore) AppendTurn(_ context.Context, turn domain.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	if s.appendErr != nil && (s.failOnWrite == 0 || s.writes == s.failOnWrite) {
		return s.appendErr
	}
	s.turns = append(s.turns, turn)
	return nil
}

func newTestService(t *testing.T, llm LLMClient, store HistoryStore) *ChatService {
	t.Helper()
	svc, err := NewChatService(llm, store)
	require.NoError(t, err)
	return svc
}

func expectChatError(t *testing.T, err error, code ErrorCode, reason string) {
	t.Helper()
	var usecaseErr *Error
	require.ErrorAs(t, err, &usecaseErr)
	require.Equal(t, code, usecaseErr.Code)
	require.Equal(t, reason, usecaseErr.Reason)
}

func TestNewChatService_ValidatesDependencies(t *testing.T) {
	_, err := NewChatService(nil, &userStore{})
	require.Error(t, err)

	_, err = NewChatService(&mockLLM{}, nil)
	require.Error(t, err)
}

func TestChat_HappyPath(t *testing.T) {
	store := &userStore{}
	llm := &mockLLM{answers: []string{"Introduction to Algorithms"}}
	svc := newTestService(t, llm, store)

	out, err := svc.Chat(context.Background(), ChatInput{UserID: "u1", Question: "best books on algorithms"})
	require.NoError(t, err)
	require.Equal(t, "Introduction to Algorithms", out.Response)

	require.Len(t, store.turns, 2)
	require.Equal(t, domain.Turn{UserID: "u1", Role: domain.RoleUser, Message: "best books on algorithms", Timestamp: store.turns[0].Timestamp}, store.turns[0])
	require.Equal(t, domain.RoleAssistant, store.turns[1].Role)
	require.Equal(t, "Introduction to Algorithms", store.turns[1].Message)
	require.True(t, store.turns[1].Timestamp.After(store.turns[0].Timestamp))
}

func TestChat_PromptHasSystemHistoryAndQuestion(t *testing.T) {
	store := &userStore{turns: []domain.Turn{
		{UserID: "u1", Role: domain.RoleUser, Message: "earlier question"},
		{UserID: "u1", Role: domain.RoleAssistant, Message: "earlier answer"},
		{UserID: "u2", Role: domain.RoleUser, Message: "someone else"},
	}}
	llm := &mockLLM{}
	svc := newTestService(t, llm, store)

	_, err := svc.Chat(context.Background(), ChatInput{UserID: "u1", Question: "what next?"})
	require.NoError(t, err)

	require.Len(t, llm.captured, 1)
	msgs := llm.captured[0]
	require.Len(t, msgs, 4)
	require.Equal(t, domain.RoleSystem, msgs[0].Role)
	require.Contains(t, msgs[0].Content, "book recommendation assistant")
	require.Equal(t, domain.ChatMessage{Role: domain.RoleUser, Content: "earlier question"}, msgs[1])
	require.Equal(t, domain.ChatMessage{Role: domain.RoleAssistant, Content: "earlier answer"}, msgs[2])
	require.Equal(t, domain.ChatMessage{Role: domain.RoleUser, Content: "what next?"}, msgs[3])
}

func TestChat_HistoryGrowsInWriteOrder(t *testing.T) {
	store := &userStore{}
	llm := &mockLLM{answers: []string{"a1", "a2", "a3"}}
	svc := newTestService(t, llm, store)
	ctx := context.Background()

	for _, q := range []string{"q1", "q2", "q3"} {
		_, err := svc.Chat(ctx, ChatInput{UserID: "u1", Question: q})
		require.NoError(t, err)
	}

	hist, err := store.GetHistory(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []domain.ChatMessage{
		{Role: domain.RoleUser, Content: "q1"},
		{Role: domain.RoleAssistant, Content: "a1"},
		{Role: domain.RoleUser, Content: "q2"},
		{Role: domain.RoleAssistant, Content: "a2"},
		{Role: domain.RoleUser, Content: "q3"},
		{Role: domain.RoleAssistant, Content: "a3"},
	}, hist)
}

func TestChat_RepeatedRequestsAreNotDeduplicated(t *testing.T) {
	store := &userStore{}
	svc := newTestService(t, &mockLLM{}, store)

	for i := 0; i < 2; i++ {
		_, err := svc.Chat(context.Background(), ChatInput{UserID: "u1", Question: "same"})
		require.NoError(t, err)
	}
	require.Len(t, store.turns, 4)
}

func TestChat_EmptyStringsPassThrough(t *testing.T) {
	store := &userStore{}
	llm := &mockLLM{}
	svc := newTestService(t, llm, store)

	_, err := svc.Chat(context.Background(), ChatInput{UserID: "", Question: ""})
	require.NoError(t, err)
	require.Len(t, store.turns, 2)
	require.Equal(t, "", store.turns[0].UserID)
	require.Equal(t, "", store.turns[0].Message)
}

func TestChat_FallbackScenario_SameUserTwice(t *testing.T) {
	store := repository.NewMemoryStore()
	llm := &mockLLM{answers: []string{"first answer", "second answer"}}
	svc := newTestService(t, llm, store)
	ctx := context.Background()

	_, err := svc.Chat(ctx, ChatInput{UserID: "u1", Question: "best books on algorithms"})
	require.NoError(t, err)
	_, err = svc.Chat(ctx, ChatInput{UserID: "u1", Question: "best books on algorithms"})
	require.NoError(t, err)

	second := llm.captured[1]
	require.Len(t, second, 4)
	require.Equal(t, domain.ChatMessage{Role: domain.RoleUser, Content: "best books on algorithms"}, second[1])
	require.Equal(t, domain.ChatMessage{Role: domain.RoleAssistant, Content: "first answer"}, second[2])
	require.Equal(t, 4, store.Len())
}

func TestChat_FallbackLeaksAcrossUsers(t *testing.T) {
	store := repository.NewMemoryStore()
	llm := &mockLLM{answers: []string{"for A", "for B"}}
	svc := newTestService(t, llm, store)
	ctx := context.Background()

	_, err := svc.Chat(ctx, ChatInput{UserID: "A", Question: "from A"})
	require.NoError(t, err)
	_, err = svc.Chat(ctx, ChatInput{UserID: "B", Question: "from B"})
	require.NoError(t, err)

	// B's prompt already carried A's round.
	require.Equal(t, "from A", llm.captured[1][1].Content)

	hist, err := store.GetHistory(ctx, "B")
	require.NoError(t, err)
	require.Len(t, hist, 4)
	require.Equal(t, "from A", hist[0].Content)
	require.Equal(t, "for A", hist[1].Content)
}

func TestChat_LLMErrors_NoWrites(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		code   ErrorCode
		reason string
	}{
		{name: "rate limited", err: &groq.HTTPStatusError{StatusCode: http.StatusTooManyRequests}, code: ErrorRateLimited, reason: "llm_rate_limited"},
		{name: "auth", err: &groq.HTTPStatusError{StatusCode: http.StatusUnauthorized}, code: ErrorUpstream, reason: "llm_error"},
		{name: "network", err: errors.New("connection reset"), code: ErrorUpstream, reason: "llm_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &userStore{}
			svc := newTestService(t, &mockLLM{err: tc.err}, store)

			_, err := svc.Chat(context.Background(), ChatInput{UserID: "u1", Question: "q"})
			expectChatError(t, err, tc.code, tc.reason)
			require.ErrorIs(t, err, tc.err)
			require.Zero(t, store.writes)
		})
	}
}

func TestChat_HistoryReadError(t *testing.T) {
	llm := &mockLLM{}
	store := &userStore{historyErr: errors.New("connection refused")}
	svc := newTestService(t, llm, store)

	_, err := svc.Chat(context.Background(), ChatInput{UserID: "u1", Question: "q"})
	expectChatError(t, err, ErrorInternal, "history_read_error")
	require.Empty(t, llm.captured)
	require.Zero(t, store.writes)
}

func TestChat_HistoryWriteErrors(t *testing.T) {
	store := &userStore{appendErr: errors.New("write failed"), failOnWrite: 1}
	svc := newTestService(t, &mockLLM{}, store)
	_, err := svc.Chat(context.Background(), ChatInput{UserID: "u1", Question: "q"})
	expectChatError(t, err, ErrorInternal, "history_write_error")
	require.Equal(t, 1, store.writes)

	// The user turn stays when only the assistant write fails.
	store = &userStore{appendErr: errors.New("write failed"), failOnWrite: 2}
	svc = newTestService(t, &mockLLM{}, store)
	_, err = svc.Chat(context.Background(), ChatInput{UserID: "u1", Question: "q"})
	expectChatError(t, err, ErrorInternal, "history_write_error")
	require.Len(t, store.turns, 1)
	require.Equal(t, domain.RoleUser, store.turns[0].Role)
}

func TestChat_AnswerTimestampAfterQuestionOnFrozenClock(t *testing.T) {
	store := &userStore{}
	svc := newTestService(t, &mockLLM{}, store)
	frozen := time.Date(2026, 2, 25, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return frozen }

	_, err := svc.Chat(context.Background(), ChatInput{UserID: "u1", Question: "q"})
	require.NoError(t, err)
	require.Equal(t, frozen, store.turns[0].Timestamp)
	require.True(t, store.turns[1].Timestamp.After(frozen))
}

// blockingLLM parks every call until release is closed.
type blockingLLM struct {
	mu       sync.Mutex
	inFlight int
	maxSeen  int
	entered  chan struct{}
	release  chan struct{}
}

func (b *blockingLLM) Chat(_ context.Context, _ []domain.ChatMessage) (string, error) {
	b.mu.Lock()
	b.inFlight++
	if b.inFlight > b.maxSeen {
		b.maxSeen = b.inFlight
	}
	b.mu.Unlock()

	b.entered <- struct{}{}
	<-b.release

	b.mu.Lock()
	b.inFlight--
	b.mu.Unlock()
	return "ok", nil
}

func TestChat_SerializesSameUser(t *testing.T) {
	llm := &blockingLLM{entered: make(chan struct{}, 2), release: make(chan struct{})}
	store := &userStore{}
	svc := newTestService(t, llm, store)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Chat(context.Background(), ChatInput{UserID: "u1", Question: "q"})
		}()
	}

	<-llm.entered
	select {
	case <-llm.entered:
		t.Fatal("second request for the same user entered the LLM call concurrently")
	case <-time.After(50 * time.Millisecond):
	}
	close(llm.release)
	<-llm.entered
	wg.Wait()

	require.Equal(t, 1, llm.maxSeen)
	require.Len(t, store.turns, 4)
	require.Zero(t, svc.locks.size())
}

func TestChat_DifferentUsersRunConcurrently(t *testing.T) {
	llm := &blockingLLM{entered: make(chan struct{}, 2), release: make(chan struct{})}
	svc := newTestService(t, llm, &userStore{})

	var wg sync.WaitGroup
	for _, u := range []string{"A", "B"} {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			_, _ = svc.Chat(context.Background(), ChatInput{UserID: user, Question: "q"})
		}(u)
	}

	for i := 0; i < 2; i++ {
		select {
		case <-llm.entered:
		case <-time.After(time.Second):
			t.Fatal("requests for different users should not block each other")
		}
	}
	close(llm.release)
	wg.Wait()
	require.Equal(t, 2, llm.maxSeen)
}
