package assets

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/sitewatch-dev/sitewatch/internal/errors"
	"github.com/sitewatch-dev/sitewatch/internal/event"
	"github.com/sitewatch-dev/sitewatch/internal/metrics"
)

// Synchronizer mirrors the assets directory into the site root. The site
// root is shared with build outputs, so a small set of names at its top
// level is reserved and never touched: the generated index.html and the
// bundle directory.
type Synchronizer struct {
	src      string
	dest     string
	reserved map[string]bool
	bus      *event.Bus
	metrics  *metrics.Metrics
	logf     func(format string, args ...any)

	// mu serializes staging-tree mutation: the bus-driven incremental
	// updates and the pipeline's resync stage run on different
	// goroutines but must never interleave on the same entries.
	mu sync.Mutex
}

// Config configures a Synchronizer.
type Config struct {
	// Src is the assets directory.
	Src string

	// Dest is the site root the assets are mirrored into.
	Dest string

	// Reserved lists top-level names in Dest owned by the build, not by
	// the assets tree. They are never deleted and never overwritten.
	Reserved []string

	// Metrics overrides the process-wide metrics.
	Metrics *metrics.Metrics

	// Logf receives diagnostic output. Nil discards it.
	Logf func(format string, args ...any)
}

// New creates a synchronizer publishing reloads to bus.
func New(cfg Config, bus *event.Bus) *Synchronizer {
	reserved := make(map[string]bool, len(cfg.Reserved))
	for _, name := range cfg.Reserved {
		reserved[name] = true
	}
	logf := cfg.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.Default()
	}
	return &Synchronizer{
		src:      filepath.Clean(cfg.Src),
		dest:     filepath.Clean(cfg.Dest),
		reserved: reserved,
		bus:      bus,
		metrics:  m,
		logf:     logf,
	}
}

// Resync rebuilds the destination from scratch: everything under the site
// root except the reserved names is removed, then the assets tree is
// mirrored over. It is the recovery path for any incremental doubt.
func (s *Synchronizer) Resync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resync()
}

func (s *Synchronizer) resync() error {
	if err := os.MkdirAll(s.dest, 0755); err != nil {
		return errors.New("E110").WithDetail(s.dest).Wrap(err)
	}

	entries, err := os.ReadDir(s.dest)
	if err != nil {
		return errors.New("E110").WithDetail(s.dest).Wrap(err)
	}
	for _, entry := range entries {
		if s.reserved[entry.Name()] {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.dest, entry.Name())); err != nil {
			return errors.New("E110").WithDetail(entry.Name()).Wrap(err)
		}
	}

	if err := s.mirror(); err != nil {
		return err
	}
	s.metrics.RecordSync("full")
	return nil
}

// mirror copies the assets tree into the destination, skipping reserved
// top-level names with a warning.
func (s *Synchronizer) mirror() error {
	return filepath.WalkDir(s.src, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return errors.New("E110").WithDetail(path).Wrap(err)
		}
		rel, err := filepath.Rel(s.src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if s.isReserved(rel) {
			s.logf("%v", errors.New("E112").WithDetail(rel))
			if entry.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		target := filepath.Join(s.dest, rel)
		if entry.IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return errors.New("E110").WithDetail(target).Wrap(err)
			}
			return nil
		}
		if err := copyFile(path, target); err != nil {
			return errors.New("E110").WithDetail(rel).Wrap(err)
		}
		return nil
	})
}

// Apply performs one incremental update for a classified change. A change
// that maps onto a reserved destination name is skipped with a warning.
// Any error means the incremental path can no longer be trusted and the
// caller should fall back to Resync.
func (s *Synchronizer) Apply(change event.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if change.Op == event.Rescan {
		return s.resync()
	}
	if err := s.apply(change); err != nil {
		return err
	}
	s.metrics.RecordSync("incremental")
	return nil
}

func (s *Synchronizer) apply(change event.Change) error {
	switch change.Op {
	case event.Create, event.Write:
		dest, ok, err := s.destFor(change.Path)
		if err != nil || !ok {
			return err
		}
		return s.copyPath(change.Path, dest)

	case event.Remove:
		dest, ok, err := s.destFor(change.Path)
		if err != nil || !ok {
			return err
		}
		if err := os.RemoveAll(dest); err != nil {
			return errors.New("E111").WithDetail(change.String()).Wrap(err)
		}
		return nil

	case event.Rename:
		// Either end of a rename may lie outside the assets tree; the
		// outside end degrades to a plain remove or copy.
		from, fromIn, err := s.destFor(change.Path)
		if err != nil {
			return err
		}
		to, toIn, err := s.destFor(change.To)
		if err != nil {
			return err
		}
		switch {
		case fromIn && toIn:
			if err := os.Rename(from, to); err != nil {
				return errors.New("E111").WithDetail(change.String()).Wrap(err)
			}
		case fromIn:
			if err := os.RemoveAll(from); err != nil {
				return errors.New("E111").WithDetail(change.String()).Wrap(err)
			}
		case toIn:
			return s.copyPath(change.To, to)
		}
		return nil
	}

	return errors.New("E111").WithDetail("unexpected change " + change.String())
}

// destFor maps a source path to its destination. ok is false when the
// path lies outside the assets tree or maps onto a reserved name.
func (s *Synchronizer) destFor(path string) (dest string, ok bool, err error) {
	rel, err := filepath.Rel(s.src, filepath.Clean(path))
	if err != nil || rel == "." || !filepath.IsLocal(rel) {
		// Outside the assets tree. Not an error: renames legitimately
		// cross the boundary.
		return "", false, nil
	}
	if s.isReserved(rel) {
		s.logf("%v", errors.New("E112").WithDetail(rel))
		return "", false, nil
	}
	return filepath.Join(s.dest, rel), true, nil
}

// isReserved reports whether rel starts with a reserved top-level name.
func (s *Synchronizer) isReserved(rel string) bool {
	first := rel
	for {
		dir := filepath.Dir(first)
		if dir == "." || dir == string(filepath.Separator) {
			break
		}
		first = dir
	}
	return s.reserved[first]
}

// copyPath copies a file or directory tree from src to dest.
func (s *Synchronizer) copyPath(src, dest string) error {
	info, err := os.Stat(src)
	if err != nil {
		return errors.New("E111").WithDetail(src).Wrap(err)
	}
	if info.IsDir() {
		return filepath.WalkDir(src, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				return errors.New("E111").WithDetail(path).Wrap(err)
			}
			rel, err := filepath.Rel(src, path)
			if err != nil {
				return err
			}
			target := filepath.Join(dest, rel)
			if entry.IsDir() {
				return os.MkdirAll(target, 0755)
			}
			return copyFile(path, target)
		})
	}
	if err := copyFile(src, dest); err != nil {
		return errors.New("E111").WithDetail(src).Wrap(err)
	}
	return nil
}

// copyFile copies one regular file, creating parent directories as needed.
func copyFile(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Update applies one change, falling back to a full resync when the
// incremental path fails, and publishes a reload on success.
func (s *Synchronizer) Update(change event.Change) error {
	if err := s.Apply(change); err != nil {
		s.logf("assets: incremental update failed (%v), resyncing", err)
		if err := s.Resync(); err != nil {
			return err
		}
	}
	s.bus.Publish(event.Reload{Reason: "assets"})
	return nil
}

// Run subscribes to the bus and applies asset changes until shutdown or
// context cancellation. Sync failures are logged; the loop keeps running
// so a later change can recover it.
func (s *Synchronizer) Run(ctx context.Context) {
	ch, cancel := s.bus.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			switch m := msg.(type) {
			case event.ShutDown:
				return
			case event.AssetsChanged:
				if err := s.Update(m.Change); err != nil {
					s.logf("assets: %v", err)
				}
			}
		}
	}
}
