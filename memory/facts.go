package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
)

// memoryFile is the on-disk layout of the memory file. Conversations are
// only read for the legacy import; they are written back until the import
// has run and dropped afterwards.
type memoryFile struct {
	Conversations json.RawMessage `json:"conversations,omitempty"`
	UserInfo      map[string]any  `json:"user_info"`
}

// FactStore holds key/value facts about the user in the memory file.
// Every write is persisted before returning.
type FactStore struct {
	path          string
	facts         map[string]any
	conversations json.RawMessage
}

// OpenFactStore loads facts from path. A missing or malformed file yields an
// empty store.
func OpenFactStore(path string) *FactStore {
	s := &FactStore{path: path, facts: make(map[string]any)}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Printf("[MEMORY] Failed to read memory file %s: %v", path, err)
		}
		return s
	}

	var file memoryFile
	if err := json.Unmarshal(data, &file); err != nil {
		log.Printf("[MEMORY] Ignoring malformed memory file %s: %v", path, err)
		return s
	}
	if file.UserInfo != nil {
		s.facts = file.UserInfo
	}
	s.conversations = file.Conversations
	return s
}

// Set records a fact, overwriting any earlier value for key, and persists.
func (s *FactStore) Set(key string, value any) error {
	s.facts[key] = value
	return s.save()
}

// retireConversations drops the legacy conversations section from the
// file, leaving {"user_info": ...}.
func (s *FactStore) retireConversations() error {
	if len(s.conversations) == 0 {
		return nil
	}
	s.conversations = nil
	return s.save()
}

// All returns a copy of every fact.
func (s *FactStore) All() map[string]any {
	out := make(map[string]any, len(s.facts))
	for k, v := range s.facts {
		out[k] = v
	}
	return out
}

// Keys returns fact names in sorted order.
func (s *FactStore) Keys() []string {
	keys := make([]string, 0, len(s.facts))
	for k := range s.facts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *FactStore) save() error {
	data, err := json.MarshalIndent(memoryFile{
		Conversations: s.conversations,
		UserInfo:      s.facts,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal user info: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create memory dir: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write memory file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace memory file: %w", err)
	}
	return nil
}
