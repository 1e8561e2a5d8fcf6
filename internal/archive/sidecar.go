package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/askcam-lab/internal/logging"
)

// ErrSidecarNotFound is returned by Merge when no sidecar carries the id.
var ErrSidecarNotFound = errors.New("archive: sidecar not found")

// Sidecars finds and updates the JSON sidecar written for each turn. Files
// are named <stamp>_cid<correlation id>.json.
type Sidecars struct {
	Dir string
	// Locking takes an flock on <sidecar>.lock around read-modify-write so
	// external tools editing the archive do not race the assistant.
	Locking bool

	mu sync.Mutex
}

func NewSidecars(dir string, locking bool) *Sidecars {
	if strings.TrimSpace(dir) == "" {
		return nil
	}
	return &Sidecars{Dir: dir, Locking: locking}
}

// FindByCID returns the sidecar path for cid or "".
func (s *Sidecars) FindByCID(cid string) string {
	if s == nil || cid == "" {
		return ""
	}
	files, err := os.ReadDir(s.Dir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logging.Warnw("sidecar: failed to list dir", "dir", s.Dir, "err", err)
		}
		return ""
	}
	suffix := "_cid" + cid + ".json"
	for _, fi := range files {
		if strings.HasSuffix(fi.Name(), suffix) {
			return filepath.Join(s.Dir, fi.Name())
		}
	}
	// Renamed files still match on content.
	for _, fi := range files {
		name := fi.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		path := filepath.Join(s.Dir, name)
		b, err := os.ReadFile(path)
		if err != nil {
			logging.Debugw("sidecar: failed to read file while searching by cid", "path", path, "err", err, "correlation_id", cid)
			continue
		}
		var sc map[string]any
		if json.Unmarshal(b, &sc) == nil {
			if v, _ := sc["correlation_id"].(string); v == cid {
				return path
			}
		}
	}
	return ""
}

// BasePath returns the sidecar path for cid without its .json suffix,
// allocating a new name when none exists yet. Audio files share the base.
func (s *Sidecars) BasePath(cid string) string {
	if p := s.FindByCID(cid); p != "" {
		return strings.TrimSuffix(p, ".json")
	}
	stamp := time.Now().UTC().Format("20060102T150405.000Z")
	return filepath.Join(s.Dir, stamp+"_cid"+cid)
}

// Merge reads the sidecar for cid, applies updates and writes it back
// atomically.
func (s *Sidecars) Merge(cid string, updates map[string]any) error {
	if s == nil {
		return errors.New("archive: sidecars not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	path := s.FindByCID(cid)
	if path == "" {
		return fmt.Errorf("%w: cid=%s dir=%s", ErrSidecarNotFound, cid, s.Dir)
	}
	return s.update(path, cid, updates, false)
}

// Upsert is Merge that creates the sidecar when it does not exist.
func (s *Sidecars) Upsert(cid string, updates map[string]any) (string, error) {
	if s == nil {
		return "", errors.New("archive: sidecars not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	path := s.BasePath(cid) + ".json"
	return path, s.update(path, cid, updates, true)
}

func (s *Sidecars) update(path, cid string, updates map[string]any, create bool) error {
	if s.Locking {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		unlock, err := lockPath(path)
		if err != nil {
			logging.Warnw("sidecar: lock failed", "path", path, "err", err, "correlation_id", cid)
			return err
		}
		defer unlock()
	}

	sc := map[string]any{}
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(b, &sc); err != nil {
			logging.Warnw("sidecar: failed to unmarshal sidecar JSON", "path", path, "err", err, "correlation_id", cid)
			return fmt.Errorf("invalid sidecar JSON %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && create:
		sc["correlation_id"] = cid
		sc["created_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Errorf("read sidecar %s: %w", path, err)
	}
	for k, v := range updates {
		sc[k] = v
	}
	nb, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sidecar %s: %w", path, err)
	}
	if err := SaveFileAtomic(path, nb, 0o644); err != nil {
		logging.Warnw("sidecar: write failed", "path", path, "err", err, "correlation_id", cid)
		return err
	}
	logging.Debugw("sidecar: saved updates", "path", path, "correlation_id", cid, "keys", len(updates))
	return nil
}

// Read returns the decoded sidecar for cid.
func (s *Sidecars) Read(cid string) (map[string]any, error) {
	path := s.FindByCID(cid)
	if path == "" {
		return nil, fmt.Errorf("%w: cid=%s", ErrSidecarNotFound, cid)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc map[string]any
	if err := json.Unmarshal(b, &sc); err != nil {
		return nil, fmt.Errorf("invalid sidecar JSON %s: %w", path, err)
	}
	return sc, nil
}
