package chat

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/stemforge/stem-forge/backend/internal/model/chat"
)

// storedSession is the persisted shape of a session. Timestamps are kept as
// text so documents written by other clocks and layouts can still be read.
type storedSession struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Messages  []storedMessage `json:"messages"`
	CreatedAt string          `json:"createdAt"`
	UpdatedAt string          `json:"updatedAt"`
}

type storedMessage struct {
	ID        string `json:"id,omitempty"`
	Role      string `json:"role,omitempty"`
	Type      string `json:"type,omitempty"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// encodeSessions renders the canonical indented document.
func encodeSessions(sessions []chat.Session) ([]byte, error) {
	stored := make([]storedSession, 0, len(sessions))
	for _, session := range sessions {
		messages := make([]storedMessage, 0, len(session.Messages))
		for _, msg := range session.Messages {
			messages = append(messages, storedMessage{
				ID:        msg.ID,
				Role:      string(msg.Role),
				Content:   msg.Content,
				Timestamp: chat.FormatTimestamp(msg.Timestamp),
			})
		}
		stored = append(stored, storedSession{
			ID:        session.ID,
			Name:      session.Name,
			Messages:  messages,
			CreatedAt: chat.FormatTimestamp(session.CreatedAt),
			UpdatedAt: chat.FormatTimestamp(session.UpdatedAt),
		})
	}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "marshal sessions")
	}
	return append(data, '\n'), nil
}

// decodeSessions parses a document body. A body that is not a JSON list of
// sessions is reported as an error; individual unparsable timestamps are
// logged and left zero.
func decodeSessions(data []byte) ([]chat.Session, error) {
	var stored []storedSession
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, errors.Wrap(err, "unmarshal sessions")
	}

	sessions := make([]chat.Session, 0, len(stored))
	for _, item := range stored {
		messages := make([]chat.Message, 0, len(item.Messages))
		for _, msg := range item.Messages {
			role := msg.Role
			if role == "" {
				role = msg.Type
			}
			parsedRole, ok := chat.ParseRole(role)
			if !ok {
				parsedRole = chat.Role(role)
			}
			messages = append(messages, chat.Message{
				ID:        msg.ID,
				Role:      parsedRole,
				Content:   msg.Content,
				Timestamp: parseStoredTime(item.ID, "timestamp", msg.Timestamp),
			})
		}
		sessions = append(sessions, chat.Session{
			ID:        item.ID,
			Name:      item.Name,
			Messages:  messages,
			CreatedAt: parseStoredTime(item.ID, "createdAt", item.CreatedAt),
			UpdatedAt: parseStoredTime(item.ID, "updatedAt", item.UpdatedAt),
		})
	}
	return sessions, nil
}

func parseStoredTime(sessionID, field, raw string) time.Time {
	t, err := chat.ParseTimestamp(raw)
	if err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Str("field", field).Msg("chat store: dropping unreadable timestamp")
		return time.Time{}
	}
	return t
}
