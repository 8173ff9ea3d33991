package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"github.com/ollama/ollama/api"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/stemforge/stem-forge/backend/internal/config"
	"github.com/stemforge/stem-forge/backend/internal/model/chat"
	"github.com/stemforge/stem-forge/backend/internal/model/subject"
)

var (
	ErrPromptRequired    = errors.New("prompt is required")
	ErrMalformedStream   = errors.New("ollama stream contained no decodable payloads")
	ErrStreamInterrupted = errors.New("stream ended without a terminal event")
)

const (
	// eventBuffer is how many undelivered events the producer may run ahead of the consumer.
	eventBuffer = 16
	// maxLineSize bounds a single NDJSON frame from the backend.
	maxLineSize = 1 << 20
)

// EventType distinguishes incremental chunks from the terminal events.
type EventType string

const (
	EventChunk EventType = "chunk"
	EventDone  EventType = "done"
	EventError EventType = "error"
)

// Event is one element of a streaming call. A call yields zero or more
// EventChunk values followed by exactly one EventDone or EventError, unless
// the consumer cancels first.
type Event struct {
	Type         EventType
	Chunk        string
	FullResponse string
	Err          error
}

// Turn is a prior exchange supplied by the caller.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Stream is the consumer side of a streaming call.
type Stream struct {
	reader *schema.StreamReader[Event]
	cancel context.CancelFunc
}

// Recv returns the next event, or io.EOF once the call has finished.
func (s *Stream) Recv() (Event, error) {
	return s.reader.Recv()
}

// Close abandons the call: the producer stops forwarding and releases the
// backend connection. Safe to call after the stream has finished.
func (s *Stream) Close() {
	s.cancel()
	s.reader.Close()
}

// Service drives tutoring conversations against the inference backend.
type Service struct {
	backend      *Backend
	prompts      *TutorPromptManager
	template     *prompt.DefaultChatTemplate
	system       string
	historyLimit int
}

// NewService creates a new tutor service instance.
func NewService(backend *Backend, subjects subject.Store, cfg config.OllamaConfig) *Service {
	prompts := NewTutorPromptManager(subjects)

	return &Service{
		backend: backend,
		prompts: prompts,
		template: prompt.FromMessages(
			schema.FString,
			schema.SystemMessage("{system}"),
			schema.MessagesPlaceholder("history", true),
			schema.UserMessage("{query}"),
		),
		system:       prompts.BuildSystemPrompt(),
		historyLimit: cfg.HistoryLimit,
	}
}

// Model returns the backend model name.
func (s *Service) Model() string {
	return s.backend.Model()
}

// Stream starts a streaming tutor call. Validation faults are returned
// directly and no backend request is made; everything after that is reported
// through the returned Stream.
func (s *Service) Stream(ctx context.Context, userPrompt string, history []Turn) (*Stream, error) {
	if strings.TrimSpace(userPrompt) == "" {
		return nil, ErrPromptRequired
	}

	messages, err := s.buildMessages(ctx, userPrompt, history)
	if err != nil {
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(ctx)
	reader, writer := schema.Pipe[Event](eventBuffer)
	go s.produce(streamCtx, cancel, writer, messages)

	return &Stream{reader: reader, cancel: cancel}, nil
}

// Complete drains a streaming call and returns the full text.
func (s *Service) Complete(ctx context.Context, userPrompt string, history []Turn) (string, error) {
	stream, err := s.Stream(ctx, userPrompt, history)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	return Collect(stream)
}

// Ask is the non-streaming variant of Stream. Failures come back as
// "Error: ..." text rather than an error.
func (s *Service) Ask(ctx context.Context, userPrompt string, history []Turn) string {
	text, err := s.Complete(ctx, userPrompt, history)
	if err != nil {
		return ErrorText(err)
	}
	return text
}

// Collect drains stream and returns the terminal outcome.
func Collect(stream *Stream) (string, error) {
	var partial strings.Builder
	for {
		event, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return partial.String(), ErrStreamInterrupted
		}
		if err != nil {
			return "", err
		}

		switch event.Type {
		case EventChunk:
			partial.WriteString(event.Chunk)
		case EventDone:
			return event.FullResponse, nil
		case EventError:
			return "", event.Err
		}
	}
}

// ErrorText renders err the way Ask reports failures.
func ErrorText(err error) string {
	return "Error: " + err.Error()
}

// produce owns the backend connection for one call.
func (s *Service) produce(ctx context.Context, cancel context.CancelFunc, w *schema.StreamWriter[Event], messages []api.Message) {
	defer w.Close()
	defer cancel()

	body, err := s.backend.openChatStream(ctx, messages)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn().Err(err).Str("model", s.backend.Model()).Msg("ai: chat request failed")
			w.Send(Event{Type: EventError, Err: err}, nil)
		}
		return
	}
	defer body.Close()

	full, abandoned, err := relay(ctx, body, w)
	if abandoned {
		log.Debug().Msg("ai: consumer left, stream abandoned")
		return
	}
	if err != nil {
		log.Warn().Err(err).Str("model", s.backend.Model()).Msg("ai: stream failed")
		w.Send(Event{Type: EventError, Err: err}, nil)
		return
	}

	log.Debug().Int("length", len(full)).Str("model", s.backend.Model()).Msg("ai: stream completed")
	w.Send(Event{Type: EventDone, FullResponse: full}, nil)
}

// chatFrame is one NDJSON line of an Ollama chat stream.
type chatFrame struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error"`
}

// relay forwards content fragments in arrival order and accumulates them.
// abandoned is true when the consumer went away; no terminal event is due then.
func relay(ctx context.Context, body io.Reader, w *schema.StreamWriter[Event]) (full string, abandoned bool, err error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLineSize)

	var (
		acc       strings.Builder
		decoded   int
		malformed int
	)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var frame chatFrame
		if err := json.Unmarshal(line, &frame); err != nil {
			malformed++
			log.Debug().Err(err).Int("bytes", len(line)).Msg("ai: skipping undecodable stream line")
			continue
		}
		decoded++

		if frame.Error != "" {
			return "", false, errors.Errorf("ollama stream error: %s", frame.Error)
		}
		if content := frame.Message.Content; content != "" {
			acc.WriteString(content)
			if closed := w.Send(Event{Type: EventChunk, Chunk: content}, nil); closed {
				return "", true, nil
			}
		}
		if frame.Done {
			return acc.String(), false, nil
		}
	}

	if ctx.Err() != nil {
		return "", true, nil
	}
	if err := scanner.Err(); err != nil {
		return "", false, errors.Wrap(err, "read ollama stream")
	}
	if decoded == 0 && malformed > 0 {
		return "", false, ErrMalformedStream
	}
	return acc.String(), false, nil
}

// buildMessages renders system frame + history + prompt into backend messages.
func (s *Service) buildMessages(ctx context.Context, userPrompt string, history []Turn) ([]api.Message, error) {
	rendered, err := s.template.Format(ctx, map[string]any{
		"system":  s.system,
		"history": s.buildHistoryMessages(history),
		"query":   userPrompt,
	})
	if err != nil {
		return nil, errors.Wrap(err, "render tutor prompt")
	}

	messages := make([]api.Message, 0, len(rendered))
	for _, msg := range rendered {
		messages = append(messages, api.Message{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}
	return messages, nil
}

func (s *Service) buildHistoryMessages(turns []Turn) []*schema.Message {
	if len(turns) == 0 {
		return nil
	}

	startIdx := 0
	if s.historyLimit > 0 && len(turns) > s.historyLimit {
		startIdx = len(turns) - s.historyLimit
	}

	history := make([]*schema.Message, 0, len(turns)-startIdx)
	for _, turn := range turns[startIdx:] {
		if turn.Content == "" {
			continue
		}
		role, ok := chat.ParseRole(turn.Role)
		if !ok {
			continue
		}
		switch role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(turn.Content))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(turn.Content, nil))
		case chat.RoleSystem:
			history = append(history, schema.SystemMessage(turn.Content))
		}
	}
	return history
}

// TurnsFromMessages converts a stored transcript into history turns.
func TurnsFromMessages(messages []chat.Message) []Turn {
	turns := make([]Turn, 0, len(messages))
	for _, msg := range messages {
		turns = append(turns, Turn{Role: string(msg.Role), Content: msg.Content})
	}
	return turns
}
