package archive

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/askcam-lab/internal/logging"
)

// Cleaner prunes archived turns older than Retention and keeps at most
// MaxFiles of them. A turn is its sidecar plus every audio file it names.
type Cleaner struct {
	Dir       string
	Retention time.Duration
	Interval  time.Duration
	MaxFiles  int
}

// Run sweeps every Interval until ctx is cancelled.
func (c *Cleaner) Run(ctx context.Context) error {
	interval := c.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n, err := c.Sweep(time.Now()); err != nil {
				logging.Debugw("archive: cleanup failed", "dir", c.Dir, "err", err)
			} else if n > 0 {
				logging.Infow("archive: pruned turns", "dir", c.Dir, "removed", n)
			}
		}
	}
}

type archivedTurn struct {
	sidecar string
	audio   []string
	mod     time.Time
}

// Sweep removes expired turns, then the oldest turns beyond MaxFiles, and
// reports how many it removed.
func (c *Cleaner) Sweep(now time.Time) (int, error) {
	files, err := os.ReadDir(c.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	var turns []archivedTurn
	for _, fi := range files {
		name := fi.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		path := filepath.Join(c.Dir, name)
		st, err := os.Stat(path)
		if err != nil {
			continue
		}
		turns = append(turns, archivedTurn{sidecar: path, audio: audioPaths(path), mod: st.ModTime()})
	}
	sort.Slice(turns, func(i, j int) bool { return turns[i].mod.Before(turns[j].mod) })

	var keep []archivedTurn
	removed := 0
	cutoff := now.Add(-c.Retention)
	for _, t := range turns {
		if c.Retention > 0 && t.mod.Before(cutoff) {
			t.remove()
			removed++
			continue
		}
		keep = append(keep, t)
	}
	if c.MaxFiles > 0 && len(keep) > c.MaxFiles {
		for _, t := range keep[:len(keep)-c.MaxFiles] {
			t.remove()
			removed++
		}
	}
	return removed, nil
}

func (t archivedTurn) remove() {
	_ = os.Remove(t.sidecar)
	_ = os.Remove(t.sidecar + ".lock")
	for _, p := range t.audio {
		_ = os.Remove(p)
	}
}

// audioPaths lists the wav files a sidecar refers to, falling back to the
// files that share its base name.
func audioPaths(sidecar string) []string {
	var out []string
	if b, err := os.ReadFile(sidecar); err == nil {
		var sc map[string]any
		if json.Unmarshal(b, &sc) == nil {
			for _, key := range []string{"wav_path", "reply_wav_path"} {
				if v, _ := sc[key].(string); v != "" {
					out = append(out, v)
				}
			}
		}
	}
	if len(out) == 0 {
		base := strings.TrimSuffix(sidecar, ".json")
		out = append(out, base+".wav", base+"_question.wav", base+"_reply.wav")
	}
	return out
}
