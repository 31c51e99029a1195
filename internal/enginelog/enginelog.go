// Package enginelog is the persistent per-(tab,engine) transcript store
// behind the get_engine_logs command. internal/enginemgr is the only
// writer: it mirrors internal/engineproc's in-memory transcript here on
// teardown, so get_engine_logs can still answer after an engine has been
// killed.
package enginelog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"

	"github.com/dgraph-io/badger/v4"

	"github.com/arcbishop/chessbench/internal/wberr"
)

const appName = "chessbench"

// maxStoredLines bounds how much transcript a single (tab, engine) key
// retains, dropping the oldest lines first — the same drop-oldest policy
// internal/events applies to its bounded queues.
const maxStoredLines = 5000

// DataDir returns the platform-specific data directory for chessbench,
// creating it if necessary.
func DataDir() (string, error) {
	var baseDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		baseDir = filepath.Join(home, "Library", "Application Support")

	case "windows":
		baseDir = os.Getenv("APPDATA")
		if baseDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			baseDir = filepath.Join(home, "AppData", "Roaming")
		}

	default:
		baseDir = os.Getenv("XDG_DATA_HOME")
		if baseDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			baseDir = filepath.Join(home, ".local", "share")
		}
	}

	dataDir := filepath.Join(baseDir, appName, "enginelogs")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", err
	}
	return dataDir, nil
}

// Store persists engine transcripts keyed by (tab, engine path).
type Store struct {
	db *badger.DB
}

// Open opens (creating if needed) the badger store at dir.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, wberr.Wrap(wberr.Io, "opening engine log store", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func key(tab, enginePath string) []byte {
	return []byte(tab + "\x00" + enginePath)
}

// Append merges new into the stored transcript for (tab, enginePath),
// dropping the oldest lines once the total exceeds maxStoredLines.
func (s *Store) Append(tab, enginePath string, lines []string) error {
	if len(lines) == 0 {
		return nil
	}
	return s.db.Update(func(txn *badger.Txn) error {
		existing, err := readLocked(txn, tab, enginePath)
		if err != nil {
			return err
		}
		merged := append(existing, lines...)
		if len(merged) > maxStoredLines {
			merged = merged[len(merged)-maxStoredLines:]
		}
		data, err := json.Marshal(merged)
		if err != nil {
			return err
		}
		return txn.Set(key(tab, enginePath), data)
	})
}

// Put overwrites the stored transcript for (tab, enginePath) with lines,
// capping to the most recent maxStoredLines. Used by internal/enginemgr to
// persist internal/engineproc's full in-memory transcript snapshot on
// teardown, where (unlike Append) there is no delta to merge.
func (s *Store) Put(tab, enginePath string, lines []string) error {
	if len(lines) > maxStoredLines {
		lines = lines[len(lines)-maxStoredLines:]
	}
	data, err := json.Marshal(lines)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(tab, enginePath), data)
	})
}

// Get returns the persisted transcript for (tab, enginePath), nil if none
// has ever been recorded.
func (s *Store) Get(tab, enginePath string) ([]string, error) {
	var lines []string
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		lines, err = readLocked(txn, tab, enginePath)
		return err
	})
	if err != nil {
		return nil, wberr.Wrap(wberr.Io, "reading engine log", err)
	}
	return lines, nil
}

func readLocked(txn *badger.Txn, tab, enginePath string) ([]string, error) {
	item, err := txn.Get(key(tab, enginePath))
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var lines []string
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &lines)
	})
	return lines, err
}
