package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/loftlabs/loft/internal/changes"
	"github.com/loftlabs/loft/internal/history"
	"github.com/loftlabs/loft/internal/llm"
	"github.com/loftlabs/loft/internal/tools"
)

// Options configures a Service for one project.
type Options struct {
	ProjectPath string
	DataDir     string
	Provider    llm.Provider
	MaxSteps    int
	Shell       tools.ShellConfig
	Limits      tools.OutputLimits
	Log         *zap.SugaredLogger
}

// Service ties one project to a provider, a tool registry, a change
// tracker, and a conversation store. At most one submission runs at a
// time; a new submission aborts the previous one first.
type Service struct {
	projectPath string
	provider    llm.Provider
	registry    *tools.Registry
	tracker     *changes.Tracker
	store       *history.Store
	controller  *Controller
	log         *zap.SugaredLogger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewService builds the service and its dependencies rooted at the
// project path. Change backups live under <project>/.loft/backups.
func NewService(opts Options) (*Service, error) {
	if opts.Provider == nil {
		return nil, errors.New("session: provider is required")
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	projectPath, err := filepath.Abs(opts.ProjectPath)
	if err != nil {
		return nil, fmt.Errorf("resolving project path: %w", err)
	}

	tracker := changes.NewTracker(filepath.Join(projectPath, ".loft", "backups"), log)

	registry, err := tools.NewRegistry(tools.Options{
		Root:    projectPath,
		Tracker: tracker,
		Shell:   opts.Shell,
		Limits:  opts.Limits,
		Log:     log,
	})
	if err != nil {
		return nil, err
	}

	store, err := history.NewStore(opts.DataDir, projectPath)
	if err != nil {
		return nil, err
	}

	return &Service{
		projectPath: projectPath,
		provider:    opts.Provider,
		registry:    registry,
		tracker:     tracker,
		store:       store,
		controller:  NewController(opts.Provider, registry, opts.MaxSteps, log),
		log:         log,
	}, nil
}

// ProjectPath returns the resolved project root.
func (s *Service) ProjectPath() string { return s.projectPath }

// SetChangePublisher registers fn to receive the pending change list
// after every tracker transition.
func (s *Service) SetChangePublisher(fn changes.Publisher) {
	s.tracker.SetPublisher(fn)
}

// SubmitMessage starts a turn for the given conversation, creating it
// when conversationID is empty. Any in-flight turn is aborted and
// drained first. It returns the conversation ID and a channel of
// stream chunks that closes after exactly one terminal chunk (done or
// error).
func (s *Service) SubmitMessage(ctx context.Context, message, conversationID string) (string, <-chan StreamChunk, error) {
	if message == "" {
		return "", nil, errors.New("session: message is empty")
	}

	conv, err := s.loadOrCreate(conversationID)
	if err != nil {
		return "", nil, err
	}

	messages := []llm.Message{llm.SystemText(systemPrompt(s.projectPath))}
	for _, m := range conv.Messages {
		switch m.Role {
		case "user":
			messages = append(messages, llm.UserText(m.Content))
		case "assistant":
			messages = append(messages, llm.AssistantText(m.Content))
		}
	}
	messages = append(messages, llm.UserText(message))

	s.mu.Lock()
	if s.cancel != nil {
		cancel, done := s.cancel, s.done
		s.mu.Unlock()
		cancel()
		<-done
		s.mu.Lock()
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	ch := make(chan StreamChunk, 64)

	go func() {
		defer close(ch)
		defer close(done)
		defer func() {
			cancel()
			s.mu.Lock()
			if s.done == done {
				s.cancel = nil
				s.done = nil
			}
			s.mu.Unlock()
		}()

		emit := func(chunk StreamChunk) {
			select {
			case ch <- chunk:
			case <-runCtx.Done():
			}
		}

		result, err := s.controller.RunTurn(runCtx, messages, emit)
		if err != nil {
			s.log.Errorw("turn failed", "conversation", conv.ID, "error", err)
			emit(StreamChunk{Type: ChunkError, Content: err.Error()})
			return
		}

		now := time.Now().UTC()
		conv.Messages = append(conv.Messages,
			history.ChatMessage{Role: "user", Content: message, CreatedAt: now},
			history.ChatMessage{Role: "assistant", Content: result.Text, Reasoning: result.Reasoning, CreatedAt: now},
		)
		if conv.Title == "" {
			if result.Aborted {
				conv.Title = history.DefaultTitle
			} else {
				conv.Title = history.GenerateTitle(context.Background(), s.provider, "", message)
			}
		}
		if err := s.store.Save(conv); err != nil {
			s.log.Errorw("saving conversation", "conversation", conv.ID, "error", err)
			emit(StreamChunk{Type: ChunkError, Content: fmt.Sprintf("saving conversation: %v", err)})
			return
		}

		// The turn is persisted at this point; if the consumer is gone
		// and the context cancelled, dropping the chunk is safe.
		emit(StreamChunk{Type: ChunkDone})
	}()

	return conv.ID, ch, nil
}

// AbortSession cancels the in-flight turn, if any. The turn still
// persists whatever it produced before stopping.
func (s *Service) AbortSession() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the in-flight turn, if any, has finished.
func (s *Service) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (s *Service) loadOrCreate(conversationID string) (*history.Conversation, error) {
	if conversationID == "" {
		return &history.Conversation{ID: uuid.NewString()}, nil
	}
	conv, err := s.store.Load(conversationID)
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// PendingChanges lists tracked file mutations in recording order.
func (s *Service) PendingChanges() []changes.PendingChange { return s.tracker.List() }

// ChangeDiff renders a unified diff for one pending change.
func (s *Service) ChangeDiff(id string) (string, error) { return s.tracker.Diff(id) }

// AcceptChange keeps the file as-is and discards its backup.
func (s *Service) AcceptChange(id string) error { return s.tracker.Accept(id) }

// RejectChange restores the file to its pre-change state.
func (s *Service) RejectChange(id string) error { return s.tracker.Reject(id) }

// DismissChange drops the entry without touching the file.
func (s *Service) DismissChange(id string) error { return s.tracker.Dismiss(id) }

// AcceptAllChanges resolves every pending change as accepted.
func (s *Service) AcceptAllChanges() changes.BulkResult { return s.tracker.AcceptAll() }

// RejectAllChanges restores every pending change.
func (s *Service) RejectAllChanges() changes.BulkResult { return s.tracker.RejectAll() }

// DismissAllChanges drops every entry without touching files.
func (s *Service) DismissAllChanges() changes.BulkResult { return s.tracker.DismissAll() }

// ListConversations returns summaries newest first.
func (s *Service) ListConversations() ([]history.Summary, error) { return s.store.List() }

// GetConversation loads a full conversation.
func (s *Service) GetConversation(id string) (*history.Conversation, error) {
	return s.store.Load(id)
}

// DeleteConversation removes a conversation file.
func (s *Service) DeleteConversation(id string) error { return s.store.Delete(id) }
