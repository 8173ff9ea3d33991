package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/stemforge/stem-forge/backend/internal/model/chat"
)

var (
	ErrIDRequired      = errors.New("session id is required")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already exists")
	ErrInvalidMessage  = errors.New("invalid message")
	ErrPersist         = errors.New("session store unavailable")
)

// Service owns the persisted collection of chat sessions.
//
// Every public operation runs its load→mutate→save cycle under one mutex, so
// concurrent callers inside a process never lose each other's writes. Writers
// in other processes sharing the same document still race with last-writer-wins.
type Service struct {
	mu  sync.Mutex
	doc Document
	now func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the time source used for createdAt/updatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService returns a store persisting into doc.
func NewService(doc Document, opts ...Option) *Service {
	s := &Service{
		doc: doc,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Location describes where the collection is persisted.
func (s *Service) Location() string {
	return s.doc.Location()
}

// LoadAll returns every stored session. A missing document is initialized
// empty; an unreadable or malformed one reads as an empty collection.
func (s *Service) LoadAll(ctx context.Context) []chat.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions, err := s.load(ctx)
	if err != nil {
		log.Error().Err(err).Str("location", s.doc.Location()).Msg("chat store: read failed, serving empty collection")
		return []chat.Session{}
	}
	return sessions
}

// List is LoadAll under the name used by the HTTP layer.
func (s *Service) List(ctx context.Context) []chat.Session {
	return s.LoadAll(ctx)
}

// SaveAll replaces the persisted collection with sessions.
func (s *Service) SaveAll(ctx context.Context, sessions []chat.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.save(ctx, sessions)
}

// Get looks a session up by id.
func (s *Service) Get(ctx context.Context, id string) (chat.Session, error) {
	for _, session := range s.LoadAll(ctx) {
		if session.ID == id {
			return session, nil
		}
	}
	return chat.Session{}, ErrSessionNotFound
}

// Create stores a new session. createdAt and updatedAt are assigned here,
// whatever the caller supplied.
func (s *Service) Create(ctx context.Context, session chat.Session) (chat.Session, error) {
	session.ID = strings.TrimSpace(session.ID)
	if session.ID == "" {
		return chat.Session{}, ErrIDRequired
	}

	now := s.timestamp()
	messages, err := s.normalizeMessages(session.Messages, now)
	if err != nil {
		return chat.Session{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sessions, err := s.loadForWrite(ctx)
	if err != nil {
		return chat.Session{}, err
	}
	if indexOf(sessions, session.ID) >= 0 {
		return chat.Session{}, ErrSessionExists
	}

	created := chat.Session{
		ID:        session.ID,
		Name:      session.Name,
		Messages:  messages,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if strings.TrimSpace(created.Name) == "" {
		created.Name = chat.DefaultSessionName
	}

	if err := s.save(ctx, append(sessions, created)); err != nil {
		return chat.Session{}, err
	}
	return created.Clone(), nil
}

// Update replaces the name and/or messages of a session.
func (s *Service) Update(ctx context.Context, id string, patch chat.Patch) (chat.Session, error) {
	now := s.timestamp()

	var messages []chat.Message
	if patch.Messages != nil {
		normalized, err := s.normalizeMessages(*patch.Messages, now)
		if err != nil {
			return chat.Session{}, err
		}
		messages = normalized
	}

	return s.mutate(ctx, id, now, func(session *chat.Session) {
		if patch.Name != nil && strings.TrimSpace(*patch.Name) != "" {
			session.Name = *patch.Name
		}
		if patch.Messages != nil {
			session.Messages = messages
		}
	})
}

// AppendMessage adds message to the end of a session transcript.
func (s *Service) AppendMessage(ctx context.Context, id string, message chat.Message) (chat.Session, error) {
	now := s.timestamp()
	normalized, err := s.normalizeMessages([]chat.Message{message}, now)
	if err != nil {
		return chat.Session{}, err
	}

	return s.mutate(ctx, id, now, func(session *chat.Session) {
		session.Messages = append(session.Messages, normalized[0])
	})
}

// AppendMessages adds messages in order within a single load/save cycle, so
// either all of them land contiguously or none do.
func (s *Service) AppendMessages(ctx context.Context, id string, messages ...chat.Message) (chat.Session, error) {
	now := s.timestamp()
	normalized, err := s.normalizeMessages(messages, now)
	if err != nil {
		return chat.Session{}, err
	}

	return s.mutate(ctx, id, now, func(session *chat.Session) {
		session.Messages = append(session.Messages, normalized...)
	})
}

// Delete removes a session and reports whether one was removed. An unknown id
// leaves the document untouched.
func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions, err := s.loadForWrite(ctx)
	if err != nil {
		return false, err
	}

	idx := indexOf(sessions, id)
	if idx < 0 {
		return false, nil
	}

	remaining := append(sessions[:idx:idx], sessions[idx+1:]...)
	if err := s.save(ctx, remaining); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) mutate(ctx context.Context, id string, now time.Time, apply func(*chat.Session)) (chat.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions, err := s.loadForWrite(ctx)
	if err != nil {
		return chat.Session{}, err
	}

	idx := indexOf(sessions, id)
	if idx < 0 {
		return chat.Session{}, ErrSessionNotFound
	}

	session := &sessions[idx]
	apply(session)
	if now.After(session.UpdatedAt) {
		session.UpdatedAt = now
	}

	if err := s.save(ctx, sessions); err != nil {
		return chat.Session{}, err
	}
	return session.Clone(), nil
}

// load reads the collection. Missing documents are initialized; malformed
// ones are reported empty. Only medium failures return an error.
func (s *Service) load(ctx context.Context) ([]chat.Session, error) {
	data, err := s.doc.Read(ctx)
	if errors.Is(err, ErrDocumentMissing) {
		if err := s.save(ctx, nil); err != nil {
			log.Warn().Err(err).Str("location", s.doc.Location()).Msg("chat store: could not initialize empty collection")
		}
		return []chat.Session{}, nil
	}
	if err != nil {
		return nil, err
	}

	sessions, err := decodeSessions(data)
	if err != nil {
		log.Warn().Err(err).Str("location", s.doc.Location()).Msg("chat store: malformed collection treated as empty")
		return []chat.Session{}, nil
	}
	return sessions, nil
}

// loadForWrite refuses to continue a mutation when the medium could not be
// read, so a transient fault never rewrites the collection from scratch.
func (s *Service) loadForWrite(ctx context.Context) ([]chat.Session, error) {
	sessions, err := s.load(ctx)
	if err != nil {
		return nil, errors.Wrapf(ErrPersist, "load: %v", err)
	}
	return sessions, nil
}

func (s *Service) save(ctx context.Context, sessions []chat.Session) error {
	data, err := encodeSessions(sessions)
	if err != nil {
		return errors.Wrapf(ErrPersist, "encode: %v", err)
	}
	if err := s.doc.Write(ctx, data); err != nil {
		log.Error().Err(err).Str("location", s.doc.Location()).Msg("chat store: save failed")
		return errors.Wrapf(ErrPersist, "save: %v", err)
	}
	return nil
}

func (s *Service) normalizeMessages(messages []chat.Message, now time.Time) ([]chat.Message, error) {
	out := make([]chat.Message, 0, len(messages))
	for _, msg := range messages {
		if !msg.Role.Valid() {
			return nil, errors.Wrapf(ErrInvalidMessage, "unsupported role %q", msg.Role)
		}
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		if msg.Timestamp.IsZero() {
			msg.Timestamp = now
		} else {
			msg.Timestamp = msg.Timestamp.UTC()
		}
		out = append(out, msg)
	}
	return out, nil
}

func (s *Service) timestamp() time.Time {
	return s.now().UTC()
}

func indexOf(sessions []chat.Session, id string) int {
	for i := range sessions {
		if sessions[i].ID == id {
			return i
		}
	}
	return -1
}
