package chat_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemforge/stem-forge/backend/internal/model/chat"
	chatservice "github.com/stemforge/stem-forge/backend/internal/service/chat"
)

func newFileService(t *testing.T, opts ...chatservice.Option) (*chatservice.Service, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "chats.json")
	return chatservice.NewService(chatservice.NewFileDocument(path), opts...), path
}

// steppingClock returns strictly increasing times one millisecond apart.
func steppingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Millisecond)
		return current
	}
}

func TestLoadAllInitializesMissingDocument(t *testing.T) {
	svc, path := newFileService(t)

	sessions := svc.LoadAll(context.Background())
	require.Empty(t, sessions)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.JSONEq(t, `[]`, string(data))
}

func TestLoadAllTreatsCorruptDocumentAsEmpty(t *testing.T) {
	svc, path := newFileService(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(`{"not": "a list"`), 0o644))

	require.Empty(t, svc.LoadAll(context.Background()))
}

func TestLoadAllReadsForeignTimestampLayouts(t *testing.T) {
	svc, path := newFileService(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	doc := `[
  {
    "id": "legacy",
    "name": "Legacy",
    "messages": [
      {"type": "user", "content": "hi", "timestamp": "2024-05-01T10:00:00.250000"},
      {"role": "assistant", "content": "hello", "timestamp": "2024-05-01T12:00:01.5+02:00"}
    ],
    "createdAt": "2024-05-01T10:00:00+00:00",
    "updatedAt": "2024-05-01T10:00:01.5Z"
  }
]`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	sessions := svc.LoadAll(context.Background())
	require.Len(t, sessions, 1)
	got := sessions[0]
	require.Equal(t, chat.RoleUser, got.Messages[0].Role)
	require.Equal(t, chat.RoleAssistant, got.Messages[1].Role)
	require.True(t, time.Date(2024, 5, 1, 10, 0, 0, 250000000, time.UTC).Equal(got.Messages[0].Timestamp))
	require.True(t, time.Date(2024, 5, 1, 10, 0, 1, 500000000, time.UTC).Equal(got.Messages[1].Timestamp))
	require.Equal(t, time.UTC, got.CreatedAt.Location())
}

func TestSaveAllLoadAllRoundTrip(t *testing.T) {
	svc, path := newFileService(t)
	ctx := context.Background()

	zone := time.FixedZone("CET", 3600)
	sessions := []chat.Session{
		{
			ID:   "alpha",
			Name: "Kinematics",
			Messages: []chat.Message{
				{ID: "m1", Role: chat.RoleUser, Content: "What is velocity?", Timestamp: time.Date(2025, 1, 2, 3, 4, 5, 123456789, zone)},
				{ID: "m2", Role: chat.RoleAssistant, Content: "Rate of change of position.", Timestamp: time.Date(2025, 1, 2, 3, 4, 6, 987654321, time.UTC)},
			},
			CreatedAt: time.Date(2025, 1, 2, 3, 4, 0, 0, time.UTC),
			UpdatedAt: time.Date(2025, 1, 2, 3, 4, 7, 1000, time.UTC),
		},
		{ID: "beta", Name: "Empty", Messages: []chat.Message{}, CreatedAt: time.Unix(0, 0).UTC(), UpdatedAt: time.Unix(1, 0).UTC()},
	}
	require.NoError(t, svc.SaveAll(ctx, sessions))

	loaded := svc.LoadAll(ctx)
	require.Len(t, loaded, 2)
	for i := range sessions {
		require.Equal(t, sessions[i].ID, loaded[i].ID)
		require.Equal(t, sessions[i].Name, loaded[i].Name)
		require.True(t, sessions[i].CreatedAt.Equal(loaded[i].CreatedAt))
		require.True(t, sessions[i].UpdatedAt.Equal(loaded[i].UpdatedAt))
		require.Len(t, loaded[i].Messages, len(sessions[i].Messages))
		for j := range sessions[i].Messages {
			require.Equal(t, sessions[i].Messages[j].Content, loaded[i].Messages[j].Content)
			require.Equal(t, sessions[i].Messages[j].Role, loaded[i].Messages[j].Role)
			require.True(t, sessions[i].Messages[j].Timestamp.Equal(loaded[i].Messages[j].Timestamp))
		}
	}

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(raw), "\n  {", "document should be indented")
	require.Contains(t, string(raw), `"timestamp": "2025-01-02T02:04:05.123456789Z"`)
}

func TestLoadAllIsIdempotent(t *testing.T) {
	svc, _ := newFileService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, chat.Session{ID: "one", Messages: []chat.Message{{Role: chat.RoleUser, Content: "x"}}})
	require.NoError(t, err)

	require.Equal(t, svc.LoadAll(ctx), svc.LoadAll(ctx))
}

func TestCreateAssignsTimestampsAndDefaults(t *testing.T) {
	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	svc, _ := newFileService(t, chatservice.WithClock(steppingClock(start)))
	ctx := context.Background()

	created, err := svc.Create(ctx, chat.Session{
		ID:        "s1",
		CreatedAt: time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC),
		Messages: []chat.Message{
			{Role: chat.RoleUser, Content: "hi"},
			{Role: chat.RoleAssistant, Content: "hey", Timestamp: time.Date(2025, 5, 31, 23, 0, 0, 0, time.FixedZone("X", -3600))},
		},
	})
	require.NoError(t, err)
	require.Equal(t, chat.DefaultSessionName, created.Name)
	require.Equal(t, created.CreatedAt, created.UpdatedAt)
	require.True(t, created.CreatedAt.After(start))
	require.NotEmpty(t, created.Messages[0].ID)
	require.Equal(t, created.CreatedAt, created.Messages[0].Timestamp)
	require.Equal(t, time.UTC, created.Messages[1].Timestamp.Location())

	got, err := svc.Get(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, created.ID, got.ID)
	require.True(t, created.CreatedAt.Equal(got.CreatedAt))
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newFileService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, chat.Session{ID: "  "})
	require.ErrorIs(t, err, chatservice.ErrIDRequired)

	_, err = svc.Create(ctx, chat.Session{ID: "dup"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, chat.Session{ID: "dup"})
	require.ErrorIs(t, err, chatservice.ErrSessionExists)

	_, err = svc.Create(ctx, chat.Session{ID: "bad", Messages: []chat.Message{{Role: "narrator", Content: "x"}}})
	require.ErrorIs(t, err, chatservice.ErrInvalidMessage)
	require.Len(t, svc.LoadAll(ctx), 1)
}

func TestAppendMessagePreservesOrder(t *testing.T) {
	svc, _ := newFileService(t, chatservice.WithClock(steppingClock(time.Now().UTC())))
	ctx := context.Background()

	created, err := svc.Create(ctx, chat.Session{ID: "ordered"})
	require.NoError(t, err)

	previous := created.UpdatedAt
	const n = 12
	for i := 0; i < n; i++ {
		role := chat.RoleUser
		if i%2 == 1 {
			role = chat.RoleAssistant
		}
		updated, err := svc.AppendMessage(ctx, "ordered", chat.Message{Role: role, Content: fmt.Sprintf("msg-%d", i)})
		require.NoError(t, err)
		require.Len(t, updated.Messages, i+1)
		require.False(t, updated.UpdatedAt.Before(previous))
		require.False(t, updated.UpdatedAt.Before(updated.CreatedAt))
		previous = updated.UpdatedAt
	}

	got, err := svc.Get(ctx, "ordered")
	require.NoError(t, err)
	require.Len(t, got.Messages, n)
	for i, msg := range got.Messages {
		require.Equal(t, fmt.Sprintf("msg-%d", i), msg.Content)
	}
}

func TestAppendMessagesKeepsBatchContiguous(t *testing.T) {
	svc, _ := newFileService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, chat.Session{ID: "pairs"})
	require.NoError(t, err)

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.AppendMessages(ctx, "pairs",
				chat.Message{Role: chat.RoleUser, Content: fmt.Sprintf("q-%d", i)},
				chat.Message{Role: chat.RoleAssistant, Content: fmt.Sprintf("a-%d", i)},
			)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := svc.Get(ctx, "pairs")
	require.NoError(t, err)
	require.Len(t, got.Messages, 2*writers)
	for i := 0; i < len(got.Messages); i += 2 {
		q, a := got.Messages[i], got.Messages[i+1]
		require.Equal(t, chat.RoleUser, q.Role)
		require.Equal(t, chat.RoleAssistant, a.Role)
		require.Equal(t, strings.TrimPrefix(q.Content, "q-"), strings.TrimPrefix(a.Content, "a-"))
	}
}

func TestAppendMessagesRejectsWholeBatch(t *testing.T) {
	svc, _ := newFileService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, chat.Session{ID: "atomic"})
	require.NoError(t, err)

	_, err = svc.AppendMessages(ctx, "atomic",
		chat.Message{Role: chat.RoleUser, Content: "ok"},
		chat.Message{Role: "narrator", Content: "bad"},
	)
	require.ErrorIs(t, err, chatservice.ErrInvalidMessage)

	got, err := svc.Get(ctx, "atomic")
	require.NoError(t, err)
	require.Empty(t, got.Messages)

	_, err = svc.AppendMessages(ctx, "ghost", chat.Message{Role: chat.RoleUser, Content: "x"})
	require.ErrorIs(t, err, chatservice.ErrSessionNotFound)
}

func TestUpdateReplacesSuppliedFieldsOnly(t *testing.T) {
	svc, _ := newFileService(t, chatservice.WithClock(steppingClock(time.Now().UTC())))
	ctx := context.Background()

	created, err := svc.Create(ctx, chat.Session{ID: "u", Name: "Old", Messages: []chat.Message{{Role: chat.RoleUser, Content: "keep"}}})
	require.NoError(t, err)

	name := "Renamed"
	renamed, err := svc.Update(ctx, "u", chat.Patch{Name: &name})
	require.NoError(t, err)
	require.Equal(t, "Renamed", renamed.Name)
	require.Len(t, renamed.Messages, 1)
	require.True(t, renamed.UpdatedAt.After(created.UpdatedAt))
	require.True(t, renamed.CreatedAt.Equal(created.CreatedAt))

	replacement := []chat.Message{{Role: chat.RoleSystem, Content: "fresh"}}
	replaced, err := svc.Update(ctx, "u", chat.Patch{Messages: &replacement})
	require.NoError(t, err)
	require.Equal(t, "Renamed", replaced.Name)
	require.Len(t, replaced.Messages, 1)
	require.Equal(t, "fresh", replaced.Messages[0].Content)

	cleared, err := svc.Update(ctx, "u", chat.Patch{Messages: &[]chat.Message{}})
	require.NoError(t, err)
	require.Empty(t, cleared.Messages)
}

func TestUnknownIDDoesNotMutateDocument(t *testing.T) {
	svc, path := newFileService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, chat.Session{ID: "known"})
	require.NoError(t, err)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	_, err = svc.Get(ctx, "ghost")
	require.ErrorIs(t, err, chatservice.ErrSessionNotFound)

	name := "x"
	_, err = svc.Update(ctx, "ghost", chat.Patch{Name: &name})
	require.ErrorIs(t, err, chatservice.ErrSessionNotFound)

	_, err = svc.AppendMessage(ctx, "ghost", chat.Message{Role: chat.RoleUser, Content: "x"})
	require.ErrorIs(t, err, chatservice.ErrSessionNotFound)

	removed, err := svc.Delete(ctx, "ghost")
	require.NoError(t, err)
	require.False(t, removed)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, string(before), string(after))
}

func TestDeleteRemovesExactlyOne(t *testing.T) {
	svc, _ := newFileService(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_, err := svc.Create(ctx, chat.Session{ID: id})
		require.NoError(t, err)
	}

	removed, err := svc.Delete(ctx, "b")
	require.NoError(t, err)
	require.True(t, removed)

	remaining := svc.LoadAll(ctx)
	require.Len(t, remaining, 2)
	require.Equal(t, "a", remaining[0].ID)
	require.Equal(t, "c", remaining[1].ID)
}

func TestConcurrentAppendsAreNotLost(t *testing.T) {
	svc, _ := newFileService(t)
	ctx := context.Background()

	ids := []string{"left", "right"}
	for _, id := range ids {
		_, err := svc.Create(ctx, chat.Session{ID: id})
		require.NoError(t, err)
	}

	const perSession = 20
	var wg sync.WaitGroup
	errs := make(chan error, perSession*len(ids))
	for _, id := range ids {
		for i := 0; i < perSession; i++ {
			wg.Add(1)
			go func(id string, i int) {
				defer wg.Done()
				_, err := svc.AppendMessage(ctx, id, chat.Message{Role: chat.RoleUser, Content: fmt.Sprintf("%s-%d", id, i)})
				errs <- err
			}(id, i)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	for _, session := range svc.LoadAll(ctx) {
		require.Len(t, session.Messages, perSession, "session %s lost messages", session.ID)
	}
}

func TestSaveFailureIsReported(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("file, not dir"), 0o644))

	svc := chatservice.NewService(chatservice.NewFileDocument(filepath.Join(blocker, "chats.json")))
	ctx := context.Background()

	err := svc.SaveAll(ctx, []chat.Session{{ID: "x"}})
	require.ErrorIs(t, err, chatservice.ErrPersist)

	require.Empty(t, svc.LoadAll(ctx))
}
