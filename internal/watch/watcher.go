package watch

import (
	"context"
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/fsnotify/fsnotify"

	"github.com/sitewatch-dev/sitewatch/internal/errors"
	"github.com/sitewatch-dev/sitewatch/internal/event"
	"github.com/sitewatch-dev/sitewatch/internal/metrics"
)

// DefaultDebounce is the window raw notifications are batched in before
// classification.
const DefaultDebounce = 200 * time.Millisecond

// styleExts are the style-sheet extensions routed to StyleChanged,
// matched case-insensitively.
var styleExts = map[string]bool{
	"css":  true,
	"scss": true,
	"sass": true,
}

// sourceExt is the source-code extension routed to SrcChanged.
const sourceExt = "go"

// Config configures the watcher.
type Config struct {
	// Roots are the directories to watch recursively. Expected to be
	// absolute and already reduced (see RemoveNested).
	Roots []string

	// Exclude contains absolute paths whose events are dropped before
	// classification.
	Exclude []string

	// AssetsDir routes events beneath it to AssetsChanged. Empty
	// disables asset routing.
	AssetsDir string

	// Debounce is the batching window. Zero means DefaultDebounce.
	Debounce time.Duration

	// Metrics overrides the process-wide metrics.
	Metrics *metrics.Metrics

	// Logf receives diagnostic output. Nil discards it.
	Logf func(format string, args ...any)
}

// Watcher turns raw filesystem notifications into debounced, classified
// control messages on the bus.
type Watcher struct {
	config Config
	bus    *event.Bus
	fsw    *fsnotify.Watcher
}

// NewWatcher creates a watcher publishing to bus.
func NewWatcher(cfg Config, bus *event.Bus) *Watcher {
	if cfg.Debounce == 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Default()
	}
	if cfg.Logf == nil {
		cfg.Logf = func(string, ...any) {}
	}
	return &Watcher{config: cfg, bus: bus}
}

// Start sets up OS watches on every root and runs the classification
// loop until ctx is cancelled. Setup failures are returned before the
// loop starts; they are fatal to the watch session.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.New("E100").Wrap(err)
	}
	w.fsw = fsw
	defer fsw.Close()

	for _, root := range w.config.Roots {
		if err := w.addRecursive(root); err != nil {
			return errors.New("E101").WithDetail(root).Wrap(err)
		}
	}

	w.run(ctx)
	return nil
}

// addRecursive watches root and every directory beneath it. fsnotify
// watches are not recursive.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() {
			return nil
		}
		return w.fsw.Add(path)
	})
}

// run batches raw notifications inside the debounce window and flushes
// each batch through classification.
func (w *Watcher) run(ctx context.Context) {
	var (
		batch  []fsnotify.Event
		rescan bool
		timer  *time.Timer
		timerC <-chan time.Time
	)

	arm := func() {
		if timerC == nil {
			timer = time.NewTimer(w.config.Debounce)
			timerC = timer.C
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			w.config.Logf("watch: stopped")
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			batch = append(batch, ev)
			arm()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if stderrors.Is(err, fsnotify.ErrEventOverflow) {
				rescan = true
				arm()
			} else {
				w.config.Logf("watch: error: %v", err)
			}

		case <-timerC:
			timerC = nil
			w.flush(batch, rescan)
			batch = nil
			rescan = false
		}
	}
}

// flush classifies one debounce window's worth of raw events and
// publishes the resulting messages.
func (w *Watcher) flush(batch []fsnotify.Event, rescan bool) {
	var changes []event.Change
	if rescan {
		// Overflow means incremental events can't be trusted;
		// collapse the whole window to a rescan.
		changes = []event.Change{{Op: event.Rescan}}
	} else {
		changes = Coalesce(batch)
	}

	for _, change := range changes {
		if change.HasPath() && !utf8.ValidString(change.Path) {
			w.config.Logf("%v", errors.New("E102").WithDetail(change.String()))
			continue
		}
		w.maintainWatches(change)
		w.route(change)
	}
}

// maintainWatches adds OS watches for directories created under a
// watched root so their contents keep producing events.
func (w *Watcher) maintainWatches(change event.Change) {
	var created string
	switch change.Op {
	case event.Create:
		created = change.Path
	case event.Rename:
		created = change.To
	default:
		return
	}
	info, err := os.Stat(created)
	if err != nil || !info.IsDir() {
		return
	}
	if err := w.addRecursive(created); err != nil {
		w.config.Logf("watch: could not watch new directory %s: %v", created, err)
	}
}

// route applies the exclusion set and the routing policy: assets root
// first, then the source extension, then style extensions. Everything
// else is dropped silently.
func (w *Watcher) route(change event.Change) {
	if change.HasPath() {
		for _, ex := range w.config.Exclude {
			if change.Under(ex) {
				return
			}
		}
	}

	if change.Op == event.Rescan {
		// Re-derive everything from disk: resync assets and rebuild.
		w.config.Metrics.RecordFSEvent("rescan")
		if w.config.AssetsDir != "" {
			w.bus.Publish(event.AssetsChanged{Change: change})
		}
		w.bus.Publish(event.SrcChanged{})
		return
	}

	if w.config.AssetsDir != "" && change.Under(w.config.AssetsDir) {
		w.config.Logf("watch: asset change %s", change)
		w.config.Metrics.RecordFSEvent("assets")
		w.bus.Publish(event.AssetsChanged{Change: change})
		return
	}

	switch ext := change.Ext(); {
	case ext == sourceExt:
		w.config.Logf("watch: source change %s", change)
		w.config.Metrics.RecordFSEvent("src")
		w.bus.Publish(event.SrcChanged{})
	case styleExts[ext]:
		w.config.Logf("watch: style change %s", change)
		w.config.Metrics.RecordFSEvent("style")
		w.bus.Publish(event.StyleChanged{})
	}
}

// Coalesce reduces one debounce window of raw notifications to at most
// one effective change per affected path. A metadata-only change is
// discarded. A rename notification followed by a create in the same
// window is paired into a single Rename change when the two paths share
// a directory or a file extension; an unpaired rename degrades to
// Remove. A genuine rename the affinity check misses still arrives as
// Remove plus Create, which mirrors the same way.
func Coalesce(raw []fsnotify.Event) []event.Change {
	var changes []event.Change
	consumed := make([]bool, len(raw))

	for i, ev := range raw {
		if consumed[i] {
			continue
		}
		switch {
		case ev.Op.Has(fsnotify.Rename):
			paired := false
			for j := i + 1; j < len(raw); j++ {
				if consumed[j] || !raw[j].Op.Has(fsnotify.Create) || !renameAffinity(ev.Name, raw[j].Name) {
					continue
				}
				changes = append(changes, event.Change{Op: event.Rename, Path: ev.Name, To: raw[j].Name})
				consumed[j] = true
				paired = true
				break
			}
			if !paired {
				changes = append(changes, event.Change{Op: event.Remove, Path: ev.Name})
			}
		case ev.Op.Has(fsnotify.Create):
			changes = append(changes, event.Change{Op: event.Create, Path: ev.Name})
		case ev.Op.Has(fsnotify.Remove):
			changes = append(changes, event.Change{Op: event.Remove, Path: ev.Name})
		case ev.Op.Has(fsnotify.Write):
			changes = append(changes, event.Change{Op: event.Write, Path: ev.Name})
		default:
			// Chmod only: metadata change, discard.
		}
	}

	// Keep the last effective change per path, preserving first-seen
	// order.
	return dedupeByPath(changes)
}

// renameAffinity reports whether a create is a plausible destination for
// a rename source: same directory, or same non-empty extension. An
// unrelated file appearing in the window must not be taken for the
// destination.
func renameAffinity(from, to string) bool {
	if filepath.Dir(from) == filepath.Dir(to) {
		return true
	}
	ext := filepath.Ext(from)
	return ext != "" && ext == filepath.Ext(to)
}

func dedupeByPath(changes []event.Change) []event.Change {
	index := make(map[string]int, len(changes))
	out := make([]event.Change, 0, len(changes))
	for _, change := range changes {
		if at, ok := index[change.Path]; ok {
			out[at] = change
			continue
		}
		index[change.Path] = len(out)
		out = append(out, change)
	}
	return out
}
