package persist

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"pkt.systems/pslog"
)

// ContextSnapshot captures the session-scoped storage of one window context.
type ContextSnapshot struct {
	Values    map[string]string `json:"values"`
	UpdatedAt int64             `json:"updated_at,omitempty"`
}

// Store persists window context snapshots to disk.
type Store struct {
	dir string
	log pslog.Logger
}

// NewStore constructs a persistent store at the given directory.
func NewStore(dir string) (*Store, error) {
	return NewStoreWithLogger(dir, nil)
}

// NewStoreWithLogger constructs a persistent store with logging.
func NewStoreWithLogger(dir string, logger pslog.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("session directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	if logger != nil {
		logger = logger.With("session_dir", dir)
	}
	return &Store{dir: dir, log: logger}, nil
}

// Load reads a context snapshot from disk.
func (s *Store) Load(contextID string) (ContextSnapshot, bool, error) {
	path := s.pathForContext(contextID)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if s.log != nil {
				s.log.Debug("session load miss", "context", contextID)
			}
			return ContextSnapshot{}, false, nil
		}
		if s.log != nil {
			s.log.Warn("session load failed", "context", contextID, "err", err)
		}
		return ContextSnapshot{}, false, err
	}
	var snapshot ContextSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		if s.log != nil {
			s.log.Warn("session load failed", "context", contextID, "err", err)
		}
		return ContextSnapshot{}, false, err
	}
	if snapshot.Values == nil {
		snapshot.Values = map[string]string{}
	}
	if s.log != nil {
		s.log.Debug("session load ok", "context", contextID, "keys", len(snapshot.Values))
	}
	return snapshot, true, nil
}

// Save writes a context snapshot to disk.
func (s *Store) Save(contextID string, snapshot ContextSnapshot) error {
	path := s.pathForContext(contextID)
	fail := func(err error) error {
		if s.log != nil {
			s.log.Warn("session save failed", "context", contextID, "err", err)
		}
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fail(err)
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fail(err)
	}
	if err := WriteFileAtomic(path, data, 0o600); err != nil {
		return fail(err)
	}
	if s.log != nil {
		s.log.Trace("session save ok", "context", contextID, "keys", len(snapshot.Values))
	}
	return nil
}

// Delete removes the snapshot of a closed context. Missing snapshots are not an error.
func (s *Store) Delete(contextID string) error {
	err := os.Remove(s.pathForContext(contextID))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		if s.log != nil {
			s.log.Warn("session delete failed", "context", contextID, "err", err)
		}
		return err
	}
	return nil
}

// WriteFileAtomic writes data to a temp file next to path, syncs it and renames it into place.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), perm); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (s *Store) pathForContext(contextID string) string {
	name := sanitize(contextID)
	if name == "" {
		name = "unknown"
	}
	return filepath.Join(s.dir, name+".json")
}

func sanitize(value string) string {
	var b strings.Builder
	for _, r := range value {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if r == '-' || r == '_' || r == '.' {
			b.WriteRune(r)
			continue
		}
		b.WriteRune('_')
	}
	return b.String()
}
