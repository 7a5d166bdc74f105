package state

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"encoding/json"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// watchlist is the on-disk document: one account's tracked symbols.
type watchlist struct {
	Account   string   `json:"account"`
	UpdatedAt int64    `json:"updatedAt"`
	Symbols   []string `json:"symbols"`
}

// Store persists the set of symbols being tracked per account, surviving
// restarts. Writes go through a temp file and rename, so a crash mid-write
// leaves the previous document intact.
type Store struct {
	mu  sync.Mutex
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Symbols loads the tracked symbols for an account. A missing file is an
// empty list. A corrupt file is deleted and reported as empty, so one bad
// write never wedges startup.
func (s *Store) Symbols(account string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(account)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read watchlist")
	}

	var doc watchlist
	if err := json.Unmarshal(data, &doc); err != nil {
		logs.Errorf("state: corrupt watchlist %s, discarding, err: %+v", path, err)
		if err := os.Remove(path); err != nil {
			return nil, errors.Wrap(err, "remove corrupt watchlist")
		}
		return nil, nil
	}

	return doc.Symbols, nil
}

// Save replaces the account's tracked symbols. Symbols are uppercased,
// deduplicated, and sorted so the document is stable across runs.
func (s *Store) Save(account string, symbols []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := watchlist{
		Account:   account,
		UpdatedAt: time.Now().UTC().Unix(),
		Symbols:   normalize(symbols),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal watchlist")
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errors.Wrap(err, "create state dir")
	}

	path := s.path(account)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(err, "write watchlist temp file")
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrap(err, "replace watchlist")
	}
	return nil
}

// Add tracks one more symbol for the account; adding an existing symbol is a
// no-op.
func (s *Store) Add(account, symbol string) error {
	symbols, err := s.Symbols(account)
	if err != nil {
		return err
	}
	return s.Save(account, append(symbols, symbol))
}

// Remove stops tracking a symbol; removing an absent symbol is a no-op.
func (s *Store) Remove(account, symbol string) error {
	symbols, err := s.Symbols(account)
	if err != nil {
		return err
	}

	target := strings.ToUpper(strings.TrimSpace(symbol))
	kept := symbols[:0]
	for _, sym := range symbols {
		if sym != target {
			kept = append(kept, sym)
		}
	}
	return s.Save(account, kept)
}

func (s *Store) path(account string) string {
	return filepath.Join(s.dir, "watchlist_"+account+".json")
}

func normalize(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			continue
		}
		if _, ok := seen[sym]; ok {
			continue
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}
