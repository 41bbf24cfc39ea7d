// Package record reads the assistant's on-disk memory files: one JSON
// interaction record per conversational turn, consolidated summaries, and
// plain text/markdown notes.
//
// Records are written by other parts of the assistant over time and their
// key layout drifted (English and French keys, optional "meta" wrapper), so
// field lookups go through gjson paths that try every known spelling.
package record

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrMissingFile is returned when a file that is expected to exist does not.
// It signals a structural inconsistency, not ordinary missing data.
var ErrMissingFile = errors.New("file does not exist")

// Classification is the taxonomy attached to an interaction by the upstream
// intent classifier.
type Classification struct {
	Subject  string   `json:"subject"`
	Action   string   `json:"action"`
	Category string   `json:"category"`
	Tags     []string `json:"tags,omitempty"`
}

// Interaction is one conversational turn as persisted on disk.
type Interaction struct {
	Prompt         string
	Response       string
	Summary        string
	SessionID      string
	Turn           string // kept verbatim so "3" and 3 compare equal
	Classification *Classification
	Timestamp      string
	Metadata       map[string]any
}

// TurnNumber returns Turn as an int, or 0 when it is absent or not numeric.
func (i *Interaction) TurnNumber() int {
	n, err := strconv.Atoi(strings.TrimSpace(i.Turn))
	if err != nil {
		return 0
	}
	return n
}

// Text returns the most useful body of the record: the response, falling
// back to the summary.
func (i *Interaction) Text() string {
	if i.Response != "" {
		return i.Response
	}
	return i.Summary
}

// Parse decodes an interaction record. Unknown keys are ignored; only
// malformed JSON is an error.
func Parse(data []byte) (*Interaction, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid JSON record")
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("record is not a JSON object")
	}

	in := &Interaction{
		Prompt:    root.Get("prompt").String(),
		Response:  first(root, "response", "reponse"),
		Summary:   first(root, "resume", "summary"),
		SessionID: first(root, "meta.session_id", "session_id"),
		Turn:      TurnOf(root),
		Timestamp: first(root, "timestamp", "meta.timestamp"),
	}

	cl := root.Get("classification")
	if !cl.Exists() {
		cl = root.Get("intention")
	}
	if cl.IsObject() {
		c := &Classification{
			Subject:  first(cl, "subject", "sujet"),
			Action:   cl.Get("action").String(),
			Category: first(cl, "category", "categorie"),
		}
		for _, t := range cl.Get("tags").Array() {
			if s := strings.TrimSpace(t.String()); s != "" {
				c.Tags = append(c.Tags, s)
			}
		}
		in.Classification = c
	}

	if md, ok := root.Get("metadata").Value().(map[string]any); ok {
		in.Metadata = md
	}
	return in, nil
}

// TurnOf extracts the turn number of a record, checking the nested
// meta.message_turn layout before the flat one. The raw JSON text is
// returned so that comparisons are exact.
func TurnOf(root gjson.Result) string {
	for _, p := range []string{"meta.message_turn", "message_turn", "turn"} {
		r := root.Get(p)
		if r.Exists() && r.Type != gjson.Null {
			return r.String()
		}
	}
	return ""
}

// Load reads and parses the record at path.
func Load(path string) (*Interaction, error) {
	text, err := ReadFileSafe(path)
	if err != nil {
		return nil, err
	}
	in, err := Parse([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return in, nil
}

// ReadFileSafe reads path as UTF-8, replacing invalid sequences with U+FFFD
// rather than failing. A missing file is an ErrMissingFile; any other read
// failure is returned wrapped.
func ReadFileSafe(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrMissingFile, path)
		}
		return "", fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	return strings.ToValidUTF8(string(data), "�"), nil
}

func first(r gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := r.Get(p); v.Exists() && v.Type != gjson.Null {
			if s := v.String(); s != "" {
				return s
			}
		}
	}
	return ""
}
