package history

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/tanq16/parafetch/internal/utils"
	"gopkg.in/yaml.v3"
)

// Store keeps history records in memory and persists them as a YAML map of
// URL to formatted record.
type Store struct {
	path    string
	mu      sync.Mutex
	records map[string]Record
}

type Entry struct {
	URL    string
	Record Record
}

// Open loads path if it exists. A missing file yields an empty store.
func Open(path string) (*Store, error) {
	s := &Store{path: path, records: make(map[string]Record)}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history file: %w", err)
	}
	raw := make(map[string]string)
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse history file: %w", err)
	}
	log := utils.GetLogger("history")
	for link, value := range raw {
		record, err := ParseRecord(value)
		if err != nil {
			log.Warn().Err(err).Str("url", link).Msg("Skipping history entry")
			continue
		}
		s.records[link] = record
	}
	return s, nil
}

func (s *Store) Put(link string, r Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[link] = r
}

func (s *Store) Get(link string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[link]
	return r, ok
}

func (s *Store) Delete(link string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, link)
}

// Entries returns all records, oldest first.
func (s *Store) Entries() []Entry {
	s.mu.Lock()
	entries := make([]Entry, 0, len(s.records))
	for link, r := range s.records {
		entries = append(entries, Entry{URL: link, Record: r})
	}
	s.mu.Unlock()
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Record.Timestamp != entries[j].Record.Timestamp {
			return entries[i].Record.Timestamp < entries[j].Record.Timestamp
		}
		return entries[i].URL < entries[j].URL
	})
	return entries
}

// Flush writes the store through a temp file and rename.
func (s *Store) Flush() error {
	s.mu.Lock()
	raw := make(map[string]string, len(s.records))
	for link, r := range s.records {
		raw[link] = r.Format()
	}
	s.mu.Unlock()

	data, err := yaml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create history directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write history file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace history file: %w", err)
	}
	return nil
}
