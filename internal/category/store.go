// Package category maps merchants to ledger categories using a JSON file
// that people can edit by hand while the bot is running.
package category

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/elliotchance/orderedmap/v3"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
)

// ErrEmptyMerchant is returned when an upsert names no merchant.
var ErrEmptyMerchant = errors.New("merchant name is empty")

// Entry is one merchant mapping in file order.
type Entry struct {
	Merchant string
	Category string
}

// Store is the merchant to category mapping. An empty category marks a
// merchant that was seen but not yet categorized.
type Store struct {
	modTime time.Time
	entries *orderedmap.OrderedMap[string, string]
	path    string
	mu      sync.Mutex
}

// Open loads the mapping at path, creating an empty one if it does not exist.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("category mapping path is empty")
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return nil, fmt.Errorf("failed to create mapping directory: %w", err)
		}
		if err := os.WriteFile(path, []byte("{}\n"), 0600); err != nil {
			return nil, fmt.Errorf("failed to create mapping file: %w", err)
		}
	}

	s := &Store{path: path, entries: orderedmap.NewOrderedMap[string, string]()}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the backing file location.
func (s *Store) Path() string {
	return s.path
}

// FindCategory resolves merchant to a category. An exact key wins; otherwise
// the first entry, in file order, whose key contains the merchant or is
// contained by it (ignoring case) is used. Unresolved entries never match.
func (s *Store) FindCategory(merchant string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshLocked()

	if merchant == "" {
		return "", false
	}

	if category, ok := s.entries.Get(merchant); ok && category != "" {
		return category, true
	}

	needle := strings.ToLower(merchant)
	for key, category := range s.entries.AllFromFront() {
		if category == "" {
			continue
		}
		lowerKey := strings.ToLower(key)
		if lowerKey == "" {
			continue
		}
		if strings.Contains(needle, lowerKey) || strings.Contains(lowerKey, needle) {
			return category, true
		}
	}

	return "", false
}

// AddUnresolvedMerchant writes merchant with the given category, which may be
// empty. Existing entries are overwritten in place.
func (s *Store) AddUnresolvedMerchant(merchant, category string) error {
	if strings.TrimSpace(merchant) == "" {
		return ErrEmptyMerchant
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to read mapping: %w", err)
		}
		data = []byte("{}")
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		data = []byte("{}")
	}

	updated, err := sjson.SetBytes(data, gjson.Escape(merchant), category)
	if err != nil {
		return fmt.Errorf("failed to update mapping for %q: %w", merchant, err)
	}

	if err := writeFileAtomic(s.path, pretty.Pretty(updated)); err != nil {
		return err
	}

	slog.Info("Merchant mapping saved", "merchant", merchant, "category", category)
	return s.reloadLocked()
}

// Categories returns the distinct non-empty categories in file order.
func (s *Store) Categories() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshLocked()

	seen := make(map[string]struct{})
	var out []string
	for _, category := range s.entries.AllFromFront() {
		if category == "" {
			continue
		}
		if _, ok := seen[category]; ok {
			continue
		}
		seen[category] = struct{}{}
		out = append(out, category)
	}
	return out
}

// Entries returns a snapshot of every mapping in file order.
func (s *Store) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshLocked()

	out := make([]Entry, 0, s.entries.Len())
	for merchant, category := range s.entries.AllFromFront() {
		out = append(out, Entry{Merchant: merchant, Category: category})
	}
	return out
}

func (s *Store) reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reloadLocked()
}

// refreshLocked reloads the file when its modification time has advanced.
// A failed reload keeps the previous mapping.
func (s *Store) refreshLocked() {
	info, err := os.Stat(s.path)
	if err != nil {
		slog.Warn("Failed to stat merchant mapping", "path", s.path, "error", err)
		return
	}
	if !info.ModTime().After(s.modTime) {
		return
	}
	if err := s.reloadLocked(); err != nil {
		slog.Warn("Failed to reload merchant mapping", "path", s.path, "error", err)
	}
}

func (s *Store) reloadLocked() error {
	info, err := os.Stat(s.path)
	if err != nil {
		return fmt.Errorf("failed to stat mapping: %w", err)
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read mapping: %w", err)
	}

	entries, err := parse(data)
	if err != nil {
		return fmt.Errorf("%s: %w", s.path, err)
	}

	s.entries = entries
	s.modTime = info.ModTime()
	slog.Debug("Merchant mapping loaded", "path", s.path, "entries", entries.Len())
	return nil
}

func parse(data []byte) (*orderedmap.OrderedMap[string, string], error) {
	entries := orderedmap.NewOrderedMap[string, string]()
	if len(strings.TrimSpace(string(data))) == 0 {
		return entries, nil
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid JSON in merchant mapping")
	}

	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("merchant mapping must be a JSON object")
	}

	root.ForEach(func(key, value gjson.Result) bool {
		category := ""
		if value.Type == gjson.String {
			category = value.String()
		}
		entries.Set(key.String(), category)
		return true
	})
	return entries, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".mapping-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp mapping: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write mapping: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close mapping: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace mapping: %w", err)
	}
	return nil
}
