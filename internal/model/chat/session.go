package chat

import "time"

// DefaultSessionName labels sessions created without a name.
const DefaultSessionName = "New Chat"

// Session is a named, ordered conversation persisted as one record.
type Session struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Patch carries the optional fields of an update. Nil fields keep the stored
// value; a non-nil empty Messages clears the transcript.
type Patch struct {
	Name     *string
	Messages *[]Message
}

// Clone returns a copy whose message slice does not alias s.
func (s Session) Clone() Session {
	out := s
	out.Messages = make([]Message, len(s.Messages))
	copy(out.Messages, s.Messages)
	return out
}
