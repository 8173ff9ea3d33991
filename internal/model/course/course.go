package course

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Course is a generated outline of lessons.
type Course struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Lessons     []Lesson `json:"lessons"`
}

// Lesson is one entry of a Course outline.
type Lesson struct {
	ID          FlexString `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Duration    FlexString `json:"duration"`
	Objectives  []string   `json:"objectives"`
}

// FlexString accepts either a JSON string or a JSON number. Models are not
// consistent about which one they emit for ids and durations.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

// MarshalJSON emits integral values as numbers so ids round-trip the way the
// frontend expects them. Only the canonical decimal form counts: "01" or
// "+30" stay strings since they are not valid JSON numbers.
func (f FlexString) MarshalJSON() ([]byte, error) {
	if n, err := strconv.Atoi(string(f)); err == nil && strconv.Itoa(n) == string(f) {
		return []byte(f), nil
	}
	return json.Marshal(string(f))
}
