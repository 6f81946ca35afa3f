package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/loftlabs/loft/internal/llm"
	"github.com/loftlabs/loft/internal/tools"
)

// scriptProvider returns a canned event sequence per call. The script
// function receives the call index and the request and returns the
// events for that stream; a nil slice means fail the Stream call.
type scriptProvider struct {
	script func(call int, req llm.Request) []llm.Event
	calls  int
}

func (p *scriptProvider) Name() string { return "script" }

func (p *scriptProvider) Stream(ctx context.Context, req llm.Request) (llm.Stream, error) {
	call := p.calls
	p.calls++
	events := p.script(call, req)
	if events == nil {
		return nil, errors.New("provider unavailable")
	}
	return &sliceStream{ctx: ctx, events: events}, nil
}

type sliceStream struct {
	ctx    context.Context
	events []llm.Event
	pos    int
}

func (s *sliceStream) Recv() (llm.Event, error) {
	if err := s.ctx.Err(); err != nil {
		return llm.Event{}, err
	}
	if s.pos >= len(s.events) {
		return llm.Event{}, io.EOF
	}
	event := s.events[s.pos]
	s.pos++
	return event, nil
}

func (s *sliceStream) Close() error { return nil }

func textEvents(text string) []llm.Event {
	return []llm.Event{
		{Type: llm.EventTextDelta, Text: text},
		{Type: llm.EventDone},
	}
}

func toolCallEvent(id, name string, args any) llm.Event {
	raw, err := json.Marshal(args)
	if err != nil {
		panic(err)
	}
	return llm.Event{Type: llm.EventToolCall, Tool: &llm.ToolCall{ID: id, Name: name, Arguments: raw}}
}

func newTestService(t *testing.T, script func(call int, req llm.Request) []llm.Event) (*Service, *scriptProvider, string) {
	t.Helper()
	root := t.TempDir()
	provider := &scriptProvider{script: script}
	svc, err := NewService(Options{
		ProjectPath: root,
		DataDir:     t.TempDir(),
		Provider:    provider,
		Shell:       tools.ShellConfig{TimeoutSeconds: 10},
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, provider, root
}

func collect(t *testing.T, ch <-chan StreamChunk) []StreamChunk {
	t.Helper()
	var chunks []StreamChunk
	timeout := time.After(10 * time.Second)
	for {
		select {
		case chunk, ok := <-ch:
			if !ok {
				return chunks
			}
			chunks = append(chunks, chunk)
		case <-timeout:
			t.Fatalf("stream did not close; got %d chunks", len(chunks))
		}
	}
}

func lastChunk(t *testing.T, chunks []StreamChunk) StreamChunk {
	t.Helper()
	if len(chunks) == 0 {
		t.Fatal("no chunks received")
	}
	return chunks[len(chunks)-1]
}

func TestNaturalStopEmitsTextThenDone(t *testing.T) {
	svc, provider, _ := newTestService(t, func(call int, req llm.Request) []llm.Event {
		return []llm.Event{
			{Type: llm.EventTextDelta, Text: "Hello "},
			{Type: llm.EventTextDelta, Text: "there."},
			{Type: llm.EventDone},
		}
	})

	id, ch, err := svc.SubmitMessage(context.Background(), "hi", "")
	if err != nil {
		t.Fatalf("SubmitMessage: %v", err)
	}
	if id == "" {
		t.Fatal("expected a conversation ID")
	}

	chunks := collect(t, ch)
	// One chat turn plus one title generation call.
	if provider.calls != 2 {
		t.Errorf("provider called %d times, want 2", provider.calls)
	}
	if last := lastChunk(t, chunks); last.Type != ChunkDone {
		t.Fatalf("terminal chunk = %q, want %q", last.Type, ChunkDone)
	}

	var text strings.Builder
	for _, c := range chunks {
		if c.Type == ChunkText {
			text.WriteString(c.Content)
		}
	}
	if text.String() != "Hello there." {
		t.Errorf("streamed text = %q", text.String())
	}

	conv, err := svc.GetConversation(id)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if len(conv.Messages) != 2 {
		t.Fatalf("persisted %d messages, want 2", len(conv.Messages))
	}
	if conv.Messages[1].Content != "Hello there." {
		t.Errorf("assistant content = %q", conv.Messages[1].Content)
	}
}

func TestToolLoopFeedsResultsBack(t *testing.T) {
	svc, _, root := newTestService(t, func(call int, req llm.Request) []llm.Event {
		switch call {
		case 0:
			return []llm.Event{
				toolCallEvent("call-1", "read_file", map[string]string{"file_path": "greeting.txt"}),
				{Type: llm.EventDone},
			}
		default:
			// The tool result must be in the request for the second step.
			last := req.Messages[len(req.Messages)-1]
			if len(last.Parts) == 0 || last.Parts[0].Type != llm.PartToolResult {
				return textEvents("missing tool result")
			}
			if !strings.Contains(last.Parts[0].ToolResult.Content, "hello from disk") {
				return textEvents("wrong tool result")
			}
			return textEvents("The file says hello.")
		}
	})

	if err := os.WriteFile(filepath.Join(root, "greeting.txt"), []byte("hello from disk\n"), 0644); err != nil {
		t.Fatal(err)
	}

	_, ch, err := svc.SubmitMessage(context.Background(), "read greeting.txt", "")
	if err != nil {
		t.Fatalf("SubmitMessage: %v", err)
	}
	chunks := collect(t, ch)

	var sawCall, sawResult bool
	var final strings.Builder
	for _, c := range chunks {
		switch c.Type {
		case ChunkToolCall:
			sawCall = true
			if c.ToolName != "read_file" {
				t.Errorf("tool call name = %q", c.ToolName)
			}
		case ChunkToolResult:
			sawResult = true
			if c.IsError {
				t.Errorf("tool result errored: %s", c.ToolOutput)
			}
		case ChunkText:
			final.WriteString(c.Content)
		}
	}
	if !sawCall || !sawResult {
		t.Fatalf("sawCall=%v sawResult=%v", sawCall, sawResult)
	}
	if final.String() != "The file says hello." {
		t.Errorf("final text = %q", final.String())
	}
	if last := lastChunk(t, chunks); last.Type != ChunkDone {
		t.Errorf("terminal chunk = %q", last.Type)
	}
}

func TestStepCeilingForcesTermination(t *testing.T) {
	root := t.TempDir()
	provider := &scriptProvider{script: func(call int, req llm.Request) []llm.Event {
		// Always ask for another tool call.
		return []llm.Event{
			toolCallEvent(fmt.Sprintf("call-%d", call), "list_files", map[string]string{}),
			{Type: llm.EventDone},
		}
	}}
	svc, err := NewService(Options{
		ProjectPath: root,
		DataDir:     t.TempDir(),
		Provider:    provider,
		MaxSteps:    3,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	_, ch, err := svc.SubmitMessage(context.Background(), "loop forever", "")
	if err != nil {
		t.Fatalf("SubmitMessage: %v", err)
	}
	chunks := collect(t, ch)

	// Three chat turns at the ceiling plus one title generation call.
	if provider.calls != 4 {
		t.Errorf("provider called %d times, want 4", provider.calls)
	}
	if last := lastChunk(t, chunks); last.Type != ChunkDone {
		t.Errorf("terminal chunk = %q, want clean done at the ceiling", last.Type)
	}
}

func TestProviderErrorEmitsErrorAndDiscardsTurn(t *testing.T) {
	svc, _, _ := newTestService(t, func(call int, req llm.Request) []llm.Event {
		return nil // Stream fails
	})

	id, ch, err := svc.SubmitMessage(context.Background(), "hi", "")
	if err != nil {
		t.Fatalf("SubmitMessage: %v", err)
	}
	chunks := collect(t, ch)

	last := lastChunk(t, chunks)
	if last.Type != ChunkError {
		t.Fatalf("terminal chunk = %q, want %q", last.Type, ChunkError)
	}
	if !strings.Contains(last.Content, "provider unavailable") {
		t.Errorf("error text = %q", last.Content)
	}

	if _, err := svc.GetConversation(id); err == nil {
		t.Error("failed turn should not be persisted")
	}
}

func TestReasoningIsBracketed(t *testing.T) {
	svc, _, _ := newTestService(t, func(call int, req llm.Request) []llm.Event {
		return []llm.Event{
			{Type: llm.EventReasoningDelta, Text: "thinking "},
			{Type: llm.EventReasoningDelta, Text: "hard"},
			{Type: llm.EventTextDelta, Text: "answer"},
			{Type: llm.EventDone},
		}
	})

	id, ch, err := svc.SubmitMessage(context.Background(), "hi", "")
	if err != nil {
		t.Fatalf("SubmitMessage: %v", err)
	}
	chunks := collect(t, ch)

	var types []ChunkType
	for _, c := range chunks {
		types = append(types, c.Type)
	}
	want := []ChunkType{ChunkReasoningStart, ChunkReasoning, ChunkReasoning, ChunkReasoningEnd, ChunkText, ChunkDone}
	if len(types) != len(want) {
		t.Fatalf("chunk types = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("chunk[%d] = %q, want %q (all: %v)", i, types[i], want[i], types)
		}
	}

	conv, err := svc.GetConversation(id)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if conv.Messages[1].Reasoning != "thinking hard" {
		t.Errorf("persisted reasoning = %q", conv.Messages[1].Reasoning)
	}
}

func TestAbortPersistsPartialOutput(t *testing.T) {
	release := make(chan struct{})
	svc, err := NewService(Options{
		ProjectPath: t.TempDir(),
		DataDir:     t.TempDir(),
		Provider:    blockingProvider{release: release},
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	id, ch, err := svc.SubmitMessage(context.Background(), "hi", "")
	if err != nil {
		t.Fatalf("SubmitMessage: %v", err)
	}

	// Read the first text chunk, then abort mid-stream.
	var sawText bool
	timeout := time.After(10 * time.Second)
	for !sawText {
		select {
		case chunk, ok := <-ch:
			if !ok {
				t.Fatal("stream closed before any text")
			}
			if chunk.Type == ChunkText {
				sawText = true
			}
		case <-timeout:
			t.Fatal("no text chunk arrived")
		}
	}
	svc.AbortSession()
	close(release)
	for range ch {
	}
	svc.Wait()

	conv, err := svc.GetConversation(id)
	if err != nil {
		t.Fatalf("aborted turn should still be persisted: %v", err)
	}
	if len(conv.Messages) != 2 {
		t.Fatalf("persisted %d messages, want 2", len(conv.Messages))
	}
	if conv.Messages[1].Content != "partial" {
		t.Errorf("assistant content = %q, want the partial text", conv.Messages[1].Content)
	}
}

// blockingProvider emits one text delta, then blocks until released or
// the context is cancelled.
type blockingProvider struct {
	release chan struct{}
}

func (p blockingProvider) Name() string { return "blocking" }

func (p blockingProvider) Stream(ctx context.Context, req llm.Request) (llm.Stream, error) {
	return &blockingStream{ctx: ctx, release: p.release}, nil
}

type blockingStream struct {
	ctx     context.Context
	release chan struct{}
	pos     int
}

func (s *blockingStream) Recv() (llm.Event, error) {
	if s.pos == 0 {
		s.pos++
		return llm.Event{Type: llm.EventTextDelta, Text: "partial"}, nil
	}
	select {
	case <-s.ctx.Done():
		return llm.Event{}, s.ctx.Err()
	case <-s.release:
		return llm.Event{}, io.EOF
	}
}

func (s *blockingStream) Close() error { return nil }

func TestSecondSubmitAbortsFirst(t *testing.T) {
	release := make(chan struct{})
	root := t.TempDir()
	dataDir := t.TempDir()
	svc, err := NewService(Options{
		ProjectPath: root,
		DataDir:     dataDir,
		Provider:    blockingProvider{release: release},
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	_, ch1, err := svc.SubmitMessage(context.Background(), "first", "")
	if err != nil {
		t.Fatalf("first SubmitMessage: %v", err)
	}
	// Wait for the first turn to produce its text chunk so it is
	// definitely in flight.
	select {
	case <-ch1:
	case <-time.After(10 * time.Second):
		t.Fatal("first turn never started streaming")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, ch2, err := svc.SubmitMessage(context.Background(), "second", "")
		if err != nil {
			t.Errorf("second SubmitMessage: %v", err)
			return
		}
		svc.AbortSession()
		for range ch2 {
		}
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("second submission never completed; abort-then-replace is stuck")
	}
	for range ch1 {
	}
}

func TestFirstTurnGetsATitle(t *testing.T) {
	svc, _, _ := newTestService(t, func(call int, req llm.Request) []llm.Event {
		// The title request has no tools; the chat turn does.
		if len(req.Tools) == 0 {
			return textEvents("Fix login bug")
		}
		return textEvents("Sure.")
	})

	id, ch, err := svc.SubmitMessage(context.Background(), "please fix the login bug", "")
	if err != nil {
		t.Fatalf("SubmitMessage: %v", err)
	}
	collect(t, ch)

	conv, err := svc.GetConversation(id)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if conv.Title != "Fix login bug" {
		t.Errorf("title = %q", conv.Title)
	}
}

func TestSubmitToUnknownConversationFails(t *testing.T) {
	svc, _, _ := newTestService(t, func(call int, req llm.Request) []llm.Event {
		return textEvents("hi")
	})
	if _, _, err := svc.SubmitMessage(context.Background(), "hi", "no-such-id"); err == nil {
		t.Fatal("expected an error for an unknown conversation ID")
	}
}

func TestEmptyMessageRejected(t *testing.T) {
	svc, _, _ := newTestService(t, func(call int, req llm.Request) []llm.Event {
		return textEvents("hi")
	})
	if _, _, err := svc.SubmitMessage(context.Background(), "", ""); err == nil {
		t.Fatal("expected an error for an empty message")
	}
}

func TestAbandonedConsumerDoesNotBlockNextSubmit(t *testing.T) {
	svc, _, _ := newTestService(t, func(call int, req llm.Request) []llm.Event {
		if call == 0 {
			// Enough text deltas to overflow the chunk buffer of a
			// consumer that never reads.
			events := make([]llm.Event, 0, 101)
			for i := 0; i < 100; i++ {
				events = append(events, llm.Event{Type: llm.EventTextDelta, Text: "x"})
			}
			return append(events, llm.Event{Type: llm.EventDone})
		}
		return textEvents("second answer")
	})

	// The first submission's channel is deliberately never drained.
	if _, _, err := svc.SubmitMessage(context.Background(), "first", ""); err != nil {
		t.Fatalf("first SubmitMessage: %v", err)
	}

	type submitResult struct {
		ch  <-chan StreamChunk
		err error
	}
	results := make(chan submitResult, 1)
	go func() {
		_, ch, err := svc.SubmitMessage(context.Background(), "second", "")
		results <- submitResult{ch: ch, err: err}
	}()

	select {
	case r := <-results:
		if r.err != nil {
			t.Fatalf("second SubmitMessage: %v", r.err)
		}
		chunks := collect(t, r.ch)
		if last := lastChunk(t, chunks); last.Type != ChunkDone {
			t.Errorf("terminal chunk = %q", last.Type)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("second SubmitMessage blocked; abandoning a stream channel must not wedge the service")
	}
}

func TestBulkResolveIsSafeDuringRunningTurn(t *testing.T) {
	const steps = 5
	svc, _, _ := newTestService(t, func(call int, req llm.Request) []llm.Event {
		if call < steps {
			return []llm.Event{
				toolCallEvent(fmt.Sprintf("w-%d", call), "write_file", map[string]string{
					"file_path": fmt.Sprintf("gen-%d.txt", call),
					"content":   "generated\n",
				}),
				{Type: llm.EventDone},
			}
		}
		return textEvents("wrote the files")
	})

	_, ch, err := svc.SubmitMessage(context.Background(), "generate files", "")
	if err != nil {
		t.Fatalf("SubmitMessage: %v", err)
	}

	// Resolve pending changes from another goroutine while the turn is
	// still mutating files.
	stop := make(chan struct{})
	resolved := make(chan struct{})
	go func() {
		defer close(resolved)
		for {
			select {
			case <-stop:
				return
			default:
			}
			svc.AcceptAllChanges()
			svc.PendingChanges()
		}
	}()

	chunks := collect(t, ch)
	close(stop)
	<-resolved

	if last := lastChunk(t, chunks); last.Type != ChunkDone {
		t.Fatalf("terminal chunk = %q: %s", last.Type, last.Content)
	}
	svc.AcceptAllChanges()
	if got := len(svc.PendingChanges()); got != 0 {
		t.Errorf("%d changes left pending after final accept", got)
	}
}
