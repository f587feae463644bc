package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/qmuntal/stateless"

	"github.com/comigor/writer-chat/internal/llm"
	"github.com/comigor/writer-chat/internal/logger"
)

// State of a session's controller.
type State string

const (
	StateIdle             State = "Idle"
	StateAwaitingResponse State = "AwaitingResponse"
)

// Trigger moves the controller between states.
type Trigger string

const (
	TriggerSubmit    Trigger = "Submit"
	TriggerCompleted Trigger = "Completed"
	TriggerFailed    Trigger = "Failed"
	TriggerAbort     Trigger = "Abort" // user turn could not be stored; nothing was sent
)

var (
	// ErrEmptyPrompt rejects prompts that are empty or whitespace only.
	ErrEmptyPrompt = errors.New("prompt is empty")
	// ErrBusy rejects a prompt while the session is waiting on a response.
	ErrBusy = errors.New("a response is already being generated for this session")
	// ErrClosed rejects a prompt for a session that has ended.
	ErrClosed = errors.New("session has ended")
)

// Completer produces the assistant reply for a message list that starts with
// the system message.
type Completer interface {
	Complete(ctx context.Context, msgs []llm.Message) (string, error)
}

// Snapshot is a point-in-time view of a session, handed to the presentation layer.
type Snapshot struct {
	SessionID string `json:"session_id"`
	State     State  `json:"state"`
	Turns     []Turn `json:"turns"`
	// Banner is the prominent, dismissible error from the last failed cycle.
	Banner string `json:"banner,omitempty"`
}

// Busy reports whether a cycle is in flight.
func (s Snapshot) Busy() bool { return s.State == StateAwaitingResponse }

// Controller runs prompt/response cycles for one session, one at a time.
type Controller struct {
	sessionID string
	store     Store
	completer Completer
	persona   string
	notifier  Notifier
	now       func() time.Time

	cycle sync.Mutex // held for a whole cycle

	// writes guards closed and every store append.
	writes sync.Mutex
	closed bool

	mu     sync.RWMutex
	state  State
	banner string

	fsm *stateless.StateMachine
}

// NewController wires a controller for sessionID. notifier may be nil.
func NewController(sessionID string, store Store, completer Completer, persona string, notifier Notifier) *Controller {
	c := &Controller{
		sessionID: sessionID,
		store:     store,
		completer: completer,
		persona:   persona,
		notifier:  notifier,
		now:       time.Now,
		state:     StateIdle,
	}

	c.fsm = stateless.NewStateMachineWithExternalStorage(
		func(context.Context) (stateless.State, error) {
			c.mu.RLock()
			defer c.mu.RUnlock()
			return c.state, nil
		},
		func(_ context.Context, s stateless.State) error {
			c.mu.Lock()
			c.state = s.(State)
			c.mu.Unlock()
			return nil
		},
		stateless.FiringImmediate,
	)

	// Idle: waiting for a prompt. Entered again at the end of every cycle.
	c.fsm.Configure(StateIdle).
		Permit(TriggerSubmit, StateAwaitingResponse).
		OnEntryFrom(TriggerCompleted, c.onCompleted).
		OnEntryFrom(TriggerFailed, c.onFailed)

	// AwaitingResponse: the user turn is stored and the completion is in flight.
	c.fsm.Configure(StateAwaitingResponse).
		OnEntryFrom(TriggerSubmit, c.onSubmit).
		Permit(TriggerCompleted, StateIdle).
		Permit(TriggerFailed, StateIdle).
		Permit(TriggerAbort, StateIdle)

	return c
}

// SessionID returns the id of the session this controller serves.
func (c *Controller) SessionID() string { return c.sessionID }

// Submit runs one cycle for prompt. Completion failures do not surface as
// errors: they are recorded as a diagnostic turn and a banner in the returned
// snapshot. Errors are returned only for rejected input (ErrEmptyPrompt,
// ErrBusy) or a failing store.
func (c *Controller) Submit(ctx context.Context, prompt string) (Snapshot, error) {
	if strings.TrimSpace(prompt) == "" {
		return Snapshot{}, ErrEmptyPrompt
	}
	if !c.cycle.TryLock() {
		return Snapshot{}, ErrBusy
	}
	defer c.cycle.Unlock()

	// The cycle runs to completion even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	if err := c.fsm.FireCtx(ctx, TriggerSubmit, prompt); err != nil {
		if abortErr := c.fsm.FireCtx(ctx, TriggerAbort); abortErr != nil {
			logger.L.Warn("FSM abort failed", "session", c.sessionID, "error", abortErr)
		}
		if errors.Is(err, ErrClosed) {
			return Snapshot{}, ErrClosed
		}
		return Snapshot{}, fmt.Errorf("starting cycle: %w", err)
	}
	c.publish(EventPending)

	text, err := c.complete(ctx)
	if err != nil {
		fireErr := c.fsm.FireCtx(ctx, TriggerFailed, err)
		c.publish(EventFailed)
		if fireErr != nil {
			return Snapshot{}, fmt.Errorf("recording failure: %w", fireErr)
		}
	} else {
		fireErr := c.fsm.FireCtx(ctx, TriggerCompleted, text)
		c.publish(EventCompleted)
		if fireErr != nil {
			return Snapshot{}, fmt.Errorf("recording response: %w", fireErr)
		}
	}

	return c.Snapshot()
}

// Snapshot returns the current state, turns and banner. It does not wait for
// an in-flight cycle.
func (c *Controller) Snapshot() (Snapshot, error) {
	turns, err := c.store.All()
	if err != nil {
		return Snapshot{}, fmt.Errorf("reading conversation: %w", err)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		SessionID: c.sessionID,
		State:     c.state,
		Turns:     turns,
		Banner:    c.banner,
	}, nil
}

// Close ends the controller. Once it returns no turn is appended to the store,
// including the reply of a cycle that is still in flight.
func (c *Controller) Close() {
	c.writes.Lock()
	c.closed = true
	c.writes.Unlock()
}

// DismissBanner clears the error banner. The diagnostic turn stays in history.
func (c *Controller) DismissBanner() {
	c.mu.Lock()
	c.banner = ""
	c.mu.Unlock()
	c.publish(EventDismissed)
}

// complete builds the request from the persona and the stored history, which
// already ends with the newest user turn.
func (c *Controller) complete(ctx context.Context) (string, error) {
	turns, err := c.store.All()
	if err != nil {
		return "", fmt.Errorf("reading conversation: %w", err)
	}

	msgs := make([]llm.Message, 0, len(turns)+1)
	msgs = append(msgs, llm.Message{Role: string(RoleSystem), Content: c.persona})
	for _, t := range turns {
		msgs = append(msgs, llm.Message{Role: string(t.Role), Content: t.Content})
	}

	start := c.now()
	text, err := c.completer.Complete(ctx, msgs)
	logger.L.Info("completion cycle", "session", c.sessionID, "messages", len(msgs), "elapsed", c.now().Sub(start), "ok", err == nil)
	return text, err
}

// appendTurn stores turn unless the controller is closed.
func (c *Controller) appendTurn(turn Turn) error {
	c.writes.Lock()
	defer c.writes.Unlock()
	if c.closed {
		return ErrClosed
	}
	return c.store.Append(turn)
}

func (c *Controller) onSubmit(_ context.Context, args ...any) error {
	prompt, _ := args[0].(string)
	if err := c.appendTurn(Turn{Role: RoleUser, Content: prompt, CreatedAt: c.now()}); err != nil {
		return err
	}
	c.mu.Lock()
	c.banner = ""
	c.mu.Unlock()
	return nil
}

func (c *Controller) onCompleted(_ context.Context, args ...any) error {
	text, _ := args[0].(string)
	err := c.appendTurn(Turn{Role: RoleAssistant, Content: text, CreatedAt: c.now()})
	if errors.Is(err, ErrClosed) {
		logger.L.Debug("reply discarded for ended session", "session", c.sessionID)
		return nil
	}
	return err
}

func (c *Controller) onFailed(_ context.Context, args ...any) error {
	cause, _ := args[0].(error)
	content, banner := describeFailure(cause)

	logger.L.Warn("completion cycle failed", "session", c.sessionID, "error", cause)
	err := c.appendTurn(Turn{Role: RoleAssistant, Content: content, Diagnostic: true, CreatedAt: c.now()})
	if errors.Is(err, ErrClosed) {
		return nil
	}

	c.mu.Lock()
	c.banner = banner
	c.mu.Unlock()
	return err
}

// describeFailure returns the diagnostic turn content and the banner text.
// Completion and empty-response errors are expected provider outcomes; anything
// else is reported as unexpected.
func describeFailure(err error) (string, string) {
	if err == nil {
		err = errors.New("unknown failure")
	}
	msg := err.Error()

	var completionErr *llm.CompletionError
	var emptyErr *llm.EmptyResponseError
	if errors.As(err, &completionErr) || errors.As(err, &emptyErr) {
		return "Error: " + msg, "Error generating response: " + msg
	}
	return "Unexpected error: " + msg, "An unexpected error occurred: " + msg
}

func (c *Controller) publish(kind EventType) {
	if c.notifier == nil {
		return
	}
	snap, err := c.Snapshot()
	if err != nil {
		logger.L.Warn("snapshot for event failed", "session", c.sessionID, "error", err)
		return
	}
	c.notifier.Publish(c.sessionID, Event{Type: kind, Snapshot: snap})
}
