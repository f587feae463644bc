package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"github.com/comigor/writer-chat/internal/config"
	"github.com/comigor/writer-chat/internal/llm"
)

const persona = "You are a writer agent."

type mockLLM struct {
	mu       sync.Mutex
	calls    []openai.ChatCompletionResponse
	err      error
	requests []openai.ChatCompletionRequest
}

func (m *mockLLM) CreateChatCompletion(ctx context.Context, r openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, r)
	if m.err != nil {
		return openai.ChatCompletionResponse{}, m.err
	}
	if len(m.calls) == 0 {
		panic("mockLLM: no more responses configured for request: " + r.Messages[len(r.Messages)-1].Content)
	}
	resp := m.calls[0]
	m.calls = m.calls[1:]
	return resp, nil
}

func (m *mockLLM) requestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func reply(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: content}}},
	}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) Publish(_ string, ev Event) {
	n.mu.Lock()
	n.events = append(n.events, ev)
	n.mu.Unlock()
}

func (n *recordingNotifier) types() []EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]EventType, 0, len(n.events))
	for _, ev := range n.events {
		out = append(out, ev.Type)
	}
	return out
}

func newTestController(m *mockLLM, n Notifier) (*Controller, *Conversation) {
	store := NewConversation()
	completer := llm.NewCompleter(m, config.LLMConfig{Model: "deepseek/deepseek-chat", Temperature: 0.7, MaxTokens: 1000})
	return NewController("s1", store, completer, persona, n), store
}

func TestSubmit_HaikuScenario(t *testing.T) {
	haiku := "Leaves fall softly down / Golden hues paint the cold air / Autumn's quiet song"
	m := &mockLLM{calls: []openai.ChatCompletionResponse{reply(haiku)}}
	c, store := newTestController(m, nil)

	snap, err := c.Submit(context.Background(), "Write a haiku about autumn")
	require.NoError(t, err)
	require.Equal(t, StateIdle, snap.State)
	require.Empty(t, snap.Banner)

	turns, err := store.All()
	require.NoError(t, err)
	require.Len(t, turns, 2)
	require.Equal(t, RoleUser, turns[0].Role)
	require.Equal(t, "Write a haiku about autumn", turns[0].Content)
	require.Equal(t, RoleAssistant, turns[1].Role)
	require.Equal(t, haiku, turns[1].Content)
	require.False(t, turns[1].Diagnostic)
	require.Equal(t, turns, snap.Turns)
}

func TestSubmit_WhitespacePromptIsRejected(t *testing.T) {
	m := &mockLLM{}
	c, store := newTestController(m, nil)

	for _, prompt := range []string{"", "   ", "\n\t "} {
		_, err := c.Submit(context.Background(), prompt)
		require.ErrorIs(t, err, ErrEmptyPrompt)
	}

	empty, err := store.IsEmpty()
	require.NoError(t, err)
	require.True(t, empty)
	require.Zero(t, m.requestCount(), "no client call should be recorded")
}

func TestSubmit_RateLimitIsRecordedAndRecoverable(t *testing.T) {
	m := &mockLLM{err: errors.New("rate limit exceeded")}
	c, store := newTestController(m, nil)

	snap, err := c.Submit(context.Background(), "Write an email")
	require.NoError(t, err, "completion failures are recovered, not returned")
	require.Equal(t, StateIdle, snap.State)
	require.Equal(t, "Error generating response: rate limit exceeded", snap.Banner)

	turns, err := store.All()
	require.NoError(t, err)
	require.Len(t, turns, 2)
	require.Equal(t, RoleAssistant, turns[1].Role)
	require.Equal(t, "Error: rate limit exceeded", turns[1].Content)
	require.True(t, turns[1].Diagnostic)

	// The session keeps accepting prompts.
	m.mu.Lock()
	m.err = nil
	m.calls = []openai.ChatCompletionResponse{reply("Dear team,")}
	m.mu.Unlock()

	snap, err = c.Submit(context.Background(), "Try again")
	require.NoError(t, err)
	require.Empty(t, snap.Banner, "a new cycle clears the banner")
	require.Len(t, snap.Turns, 4)
	require.Equal(t, "Dear team,", snap.Turns[3].Content)
}

func TestSubmit_EmptyProviderContentIsAnError(t *testing.T) {
	m := &mockLLM{calls: []openai.ChatCompletionResponse{{}}}
	c, _ := newTestController(m, nil)

	snap, err := c.Submit(context.Background(), "Write a poem")
	require.NoError(t, err)
	require.Len(t, snap.Turns, 2)
	require.True(t, snap.Turns[1].Diagnostic)
	require.Contains(t, snap.Turns[1].Content, "Error: empty response from provider")
	require.NotEmpty(t, snap.Banner)
}

func TestSubmit_RequestCarriesPersonaThenHistory(t *testing.T) {
	m := &mockLLM{calls: []openai.ChatCompletionResponse{reply("first answer"), reply("second answer")}}
	c, _ := newTestController(m, nil)

	_, err := c.Submit(context.Background(), "first prompt")
	require.NoError(t, err)
	_, err = c.Submit(context.Background(), "second prompt")
	require.NoError(t, err)

	require.Len(t, m.requests, 2)
	require.Equal(t, []openai.ChatCompletionMessage{
		{Role: "system", Content: persona},
		{Role: "user", Content: "first prompt"},
	}, m.requests[0].Messages)
	require.Equal(t, []openai.ChatCompletionMessage{
		{Role: "system", Content: persona},
		{Role: "user", Content: "first prompt"},
		{Role: "assistant", Content: "first answer"},
		{Role: "user", Content: "second prompt"},
	}, m.requests[1].Messages)
	require.InDelta(t, 0.7, float64(m.requests[1].Temperature), 1e-6)
	require.Equal(t, 1000, m.requests[1].MaxTokens)
}

func TestSubmit_TurnCountGrowsByTwoPerCycle(t *testing.T) {
	prompts := []string{"essay on rivers", "a limerick", "a cover letter", "a short story"}
	m := &mockLLM{}
	for i := range prompts {
		if i == 2 {
			continue
		}
		m.calls = append(m.calls, reply("answer"))
	}
	c, store := newTestController(m, nil)

	for i, p := range prompts {
		m.mu.Lock()
		if i == 2 {
			m.err = errors.New("upstream unavailable")
		} else {
			m.err = nil
		}
		m.mu.Unlock()

		before, err := store.All()
		require.NoError(t, err)
		_, err = c.Submit(context.Background(), p)
		require.NoError(t, err)
		after, err := store.All()
		require.NoError(t, err)

		require.Len(t, after, len(before)+2)
		require.Equal(t, before, after[:len(before)], "existing turns keep their order")
		require.Equal(t, p, after[len(after)-2].Content)
	}
}

type blockingCompleter struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingCompleter) Complete(ctx context.Context, msgs []llm.Message) (string, error) {
	close(b.started)
	<-b.release
	return "done", nil
}

func TestSubmit_SecondPromptWhileBusyIsRejected(t *testing.T) {
	bc := &blockingCompleter{started: make(chan struct{}), release: make(chan struct{})}
	store := NewConversation()
	c := NewController("s1", store, bc, persona, nil)

	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background(), "long essay")
		done <- err
	}()

	select {
	case <-bc.started:
	case <-time.After(5 * time.Second):
		t.Fatal("completion never started")
	}

	snap, err := c.Snapshot()
	require.NoError(t, err)
	require.True(t, snap.Busy())
	require.Len(t, snap.Turns, 1)

	_, err = c.Submit(context.Background(), "impatient follow-up")
	require.ErrorIs(t, err, ErrBusy)

	close(bc.release)
	require.NoError(t, <-done)

	turns, err := store.All()
	require.NoError(t, err)
	require.Len(t, turns, 2)
	require.Equal(t, "long essay", turns[0].Content)
	require.Equal(t, "done", turns[1].Content)

	snap, err = c.Snapshot()
	require.NoError(t, err)
	require.Equal(t, StateIdle, snap.State)
}

func TestSubmit_CanceledCallerDoesNotAbortCycle(t *testing.T) {
	m := &mockLLM{calls: []openai.ChatCompletionResponse{reply("still here")}}
	c, _ := newTestController(m, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	snap, err := c.Submit(ctx, "hello")
	require.NoError(t, err)
	require.Equal(t, "still here", snap.Turns[1].Content)
}

func TestSubmit_PublishesEvents(t *testing.T) {
	n := &recordingNotifier{}
	m := &mockLLM{calls: []openai.ChatCompletionResponse{reply("ok")}}
	c, _ := newTestController(m, n)

	_, err := c.Submit(context.Background(), "hi")
	require.NoError(t, err)

	m.mu.Lock()
	m.err = errors.New("boom")
	m.mu.Unlock()
	_, err = c.Submit(context.Background(), "again")
	require.NoError(t, err)

	c.DismissBanner()

	require.Equal(t, []EventType{EventPending, EventCompleted, EventPending, EventFailed, EventDismissed}, n.types())

	n.mu.Lock()
	defer n.mu.Unlock()
	pending := n.events[0].Snapshot
	require.Equal(t, StateAwaitingResponse, pending.State)
	require.Len(t, pending.Turns, 1)

	failed := n.events[3].Snapshot
	require.Equal(t, StateIdle, failed.State)
	require.Equal(t, "Error generating response: boom", failed.Banner)

	require.Empty(t, n.events[4].Snapshot.Banner)
}

func TestDismissBanner_KeepsDiagnosticTurn(t *testing.T) {
	m := &mockLLM{err: errors.New("invalid model")}
	c, _ := newTestController(m, nil)

	_, err := c.Submit(context.Background(), "hi")
	require.NoError(t, err)
	c.DismissBanner()

	snap, err := c.Snapshot()
	require.NoError(t, err)
	require.Empty(t, snap.Banner)
	require.Len(t, snap.Turns, 2)
	require.Equal(t, "Error: invalid model", snap.Turns[1].Content)
}

type failingStore struct{ Conversation }

func (f *failingStore) Append(Turn) error { return errors.New("disk on fire") }

func TestSubmit_StoreFailureReturnsToIdle(t *testing.T) {
	m := &mockLLM{calls: []openai.ChatCompletionResponse{reply("x")}}
	completer := llm.NewCompleter(m, config.LLMConfig{Model: "m"})
	c := NewController("s1", &failingStore{}, completer, persona, nil)

	_, err := c.Submit(context.Background(), "hi")
	require.Error(t, err)
	require.Zero(t, m.requestCount(), "nothing is sent when the user turn cannot be stored")

	snap, err := c.Snapshot()
	require.NoError(t, err)
	require.Equal(t, StateIdle, snap.State)
}

func TestDescribeFailure(t *testing.T) {
	content, banner := describeFailure(&llm.CompletionError{Err: errors.New("auth failed")})
	require.Equal(t, "Error: auth failed", content)
	require.Equal(t, "Error generating response: auth failed", banner)

	content, banner = describeFailure(errors.New("reading conversation: boom"))
	require.Equal(t, "Unexpected error: reading conversation: boom", content)
	require.Equal(t, "An unexpected error occurred: reading conversation: boom", banner)
}

func TestClose_DiscardsInFlightReply(t *testing.T) {
	bc := &blockingCompleter{started: make(chan struct{}), release: make(chan struct{})}
	store := NewConversation()
	c := NewController("s1", store, bc, persona, nil)

	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background(), "long essay")
		done <- err
	}()

	select {
	case <-bc.started:
	case <-time.After(5 * time.Second):
		t.Fatal("completion never started")
	}

	c.Close()
	close(bc.release)
	require.NoError(t, <-done)

	turns, err := store.All()
	require.NoError(t, err)
	require.Len(t, turns, 1, "only the user turn stored before Close")
	require.Equal(t, RoleUser, turns[0].Role)

	snap, err := c.Snapshot()
	require.NoError(t, err)
	require.Equal(t, StateIdle, snap.State)
}

func TestClose_RejectsNewPrompts(t *testing.T) {
	m := &mockLLM{}
	c, store := newTestController(m, nil)
	c.Close()

	_, err := c.Submit(context.Background(), "hello")
	require.ErrorIs(t, err, ErrClosed)
	require.Zero(t, m.requestCount())

	empty, err := store.IsEmpty()
	require.NoError(t, err)
	require.True(t, empty)

	snap, err := c.Snapshot()
	require.NoError(t, err)
	require.Equal(t, StateIdle, snap.State)
}
