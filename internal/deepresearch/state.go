package deepresearch

import (
	"encoding/json"
	stderrors "errors"
	"io/fs"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/quartoworks/shelfmark/pkg/constants"
	"github.com/quartoworks/shelfmark/pkg/errors"
)

// Entry is one in-flight research job. An entry exists from the moment the
// interaction id is known until the finished report is saved as a note;
// a crash in between leaves the entry behind for the next run.
type Entry struct {
	InteractionID string    `json:"interaction_id"`
	Title         string    `json:"title,omitempty"`
	Author        string    `json:"author,omitempty"`
	StartedAt     time.Time `json:"started_at,omitzero"`
	LastEventID   string    `json:"last_event_id,omitempty"`
}

// UnmarshalJSON accepts both the current object form and the legacy form
// where the value was the bare interaction id.
func (e *Entry) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &e.InteractionID)
	}
	type entry Entry
	var decoded entry
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*e = Entry(decoded)
	return nil
}

// Describe returns the job's title and author, splitting them out of the
// map key for legacy entries that predate the dedicated fields.
func (e Entry) Describe(key string) (title, author string) {
	if e.Title != "" {
		return e.Title, e.Author
	}
	return SplitStateKey(key)
}

// StateKey builds the map key for a job. The format glues title and author
// with an underscore and is kept for compatibility with existing state
// files.
func StateKey(title, author string) string {
	return title + "_" + author
}

// SplitStateKey reverses StateKey on the last underscore.
func SplitStateKey(key string) (title, author string) {
	if idx := strings.LastIndex(key, "_"); idx >= 0 {
		return key[:idx], key[idx+1:]
	}
	return key, ""
}

// State is the flat JSON file tracking in-flight jobs, keyed by
// StateKey(title, author). Mutations only touch memory; Save writes the
// file.
type State struct {
	path    string
	entries map[string]Entry
}

// NewState returns an empty state bound to path. An empty path uses the
// default file name in the working directory.
func NewState(path string) *State {
	if path == "" {
		path = constants.StateFileName
	}
	return &State{path: path, entries: make(map[string]Entry)}
}

// LoadState reads the state file. A missing file yields an empty state; an
// unreadable or undecodable one is an error so callers can decide whether
// to start over.
func LoadState(path string) (*State, error) {
	state := NewState(path)

	data, err := os.ReadFile(state.path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return state, nil
		}
		return nil, errors.WrapIO("read", state.path, err)
	}
	if err := json.Unmarshal(data, &state.entries); err != nil {
		return nil, errors.WrapParse("json", state.path, err)
	}
	if state.entries == nil {
		state.entries = make(map[string]Entry)
	}
	return state, nil
}

// Save writes the state file. The file can reveal what is being researched,
// so it gets owner-only permissions like other sensitive files.
func (s *State) Save() error {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return errors.WrapParse("json", s.path, err)
	}
	if err := os.WriteFile(s.path, data, constants.SecureFilePermissions); err != nil {
		return errors.WrapIO("write", s.path, err)
	}
	return nil
}

// Path returns the backing file path.
func (s *State) Path() string {
	return s.path
}

// Len returns the number of tracked jobs.
func (s *State) Len() int {
	return len(s.entries)
}

// Keys returns the job keys in sorted order for stable iteration.
func (s *State) Keys() []string {
	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the entry for key.
func (s *State) Get(key string) (Entry, bool) {
	entry, ok := s.entries[key]
	return entry, ok
}

// Put records or replaces the entry for key.
func (s *State) Put(key string, entry Entry) {
	s.entries[key] = entry
}

// Delete removes the entry for key.
func (s *State) Delete(key string) {
	delete(s.entries, key)
}
