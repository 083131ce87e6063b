package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/sitewatch-dev/sitewatch/internal/event"
	"github.com/sitewatch-dev/sitewatch/internal/metrics"
)

func TestCoalesce_ChmodDiscarded(t *testing.T) {
	got := Coalesce([]fsnotify.Event{
		{Name: "/p/a.go", Op: fsnotify.Chmod},
	})
	if len(got) != 0 {
		t.Errorf("chmod-only window should produce no changes, got %v", got)
	}
}

func TestCoalesce_OneEffectiveChangePerPath(t *testing.T) {
	got := Coalesce([]fsnotify.Event{
		{Name: "/p/a.go", Op: fsnotify.Write},
		{Name: "/p/a.go", Op: fsnotify.Write},
		{Name: "/p/a.go", Op: fsnotify.Write},
		{Name: "/p/b.go", Op: fsnotify.Create},
	})
	if len(got) != 2 {
		t.Fatalf("want 2 changes, got %v", got)
	}
	if got[0].Op != event.Write || got[0].Path != "/p/a.go" {
		t.Errorf("got[0] = %v, want write /p/a.go", got[0])
	}
	if got[1].Op != event.Create || got[1].Path != "/p/b.go" {
		t.Errorf("got[1] = %v, want create /p/b.go", got[1])
	}
}

func TestCoalesce_RenamePairing(t *testing.T) {
	got := Coalesce([]fsnotify.Event{
		{Name: "/p/assets/logo.png", Op: fsnotify.Rename},
		{Name: "/p/assets/brand.png", Op: fsnotify.Create},
	})
	if len(got) != 1 {
		t.Fatalf("want 1 change, got %v", got)
	}
	want := event.Change{Op: event.Rename, Path: "/p/assets/logo.png", To: "/p/assets/brand.png"}
	if got[0] != want {
		t.Errorf("got %v, want %v", got[0], want)
	}
}

func TestCoalesce_RenamePairsAcrossDirsBySameExtension(t *testing.T) {
	got := Coalesce([]fsnotify.Event{
		{Name: "/p/assets/img/logo.png", Op: fsnotify.Rename},
		{Name: "/p/assets/brand.png", Op: fsnotify.Create},
	})
	if len(got) != 1 {
		t.Fatalf("want 1 change, got %v", got)
	}
	want := event.Change{Op: event.Rename, Path: "/p/assets/img/logo.png", To: "/p/assets/brand.png"}
	if got[0] != want {
		t.Errorf("got %v, want %v", got[0], want)
	}
}

func TestCoalesce_UnrelatedCreateNotTakenForRenameDestination(t *testing.T) {
	// The create shares neither directory nor extension with the rename
	// source; pairing them would fabricate a bogus move.
	got := Coalesce([]fsnotify.Event{
		{Name: "/p/assets/logo.png", Op: fsnotify.Rename},
		{Name: "/p/src/notes.txt", Op: fsnotify.Create},
	})
	if len(got) != 2 {
		t.Fatalf("want 2 changes, got %v", got)
	}
	if got[0].Op != event.Remove || got[0].Path != "/p/assets/logo.png" {
		t.Errorf("got[0] = %v, want remove /p/assets/logo.png", got[0])
	}
	if got[1].Op != event.Create || got[1].Path != "/p/src/notes.txt" {
		t.Errorf("got[1] = %v, want create /p/src/notes.txt", got[1])
	}
}

func TestCoalesce_UnpairedRenameDegradesToRemove(t *testing.T) {
	got := Coalesce([]fsnotify.Event{
		{Name: "/p/assets/logo.png", Op: fsnotify.Rename},
	})
	if len(got) != 1 || got[0].Op != event.Remove || got[0].Path != "/p/assets/logo.png" {
		t.Errorf("unpaired rename should become remove, got %v", got)
	}
}

func TestCoalesce_LaterOpSupersedes(t *testing.T) {
	got := Coalesce([]fsnotify.Event{
		{Name: "/p/a.go", Op: fsnotify.Create},
		{Name: "/p/a.go", Op: fsnotify.Remove},
	})
	if len(got) != 1 || got[0].Op != event.Remove {
		t.Errorf("remove should supersede create within a window, got %v", got)
	}
}

// drainMessages collects bus messages until the deadline passes.
func drainMessages(ch <-chan event.Message, d time.Duration) []event.Message {
	var out []event.Message
	deadline := time.After(d)
	for {
		select {
		case msg := <-ch:
			out = append(out, msg)
		case <-deadline:
			return out
		}
	}
}

func startWatcher(t *testing.T, cfg Config, bus *event.Bus) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- NewWatcher(cfg, bus).Start(ctx)
	}()
	// Give the OS watches time to attach.
	time.Sleep(150 * time.Millisecond)
	select {
	case err := <-errCh:
		cancel()
		t.Fatalf("watcher exited early: %v", err)
	default:
	}
	return cancel
}

func TestWatcher_RoutesSourceChange(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	if err := os.MkdirAll(src, 0755); err != nil {
		t.Fatal(err)
	}

	bus := event.NewBus()
	ch, unsub := bus.Subscribe()
	defer unsub()

	cancel := startWatcher(t, Config{
		Roots:    []string{src},
		Debounce: 50 * time.Millisecond,
	}, bus)
	defer cancel()

	if err := os.WriteFile(filepath.Join(src, "main.go"), []byte("package main"), 0644); err != nil {
		t.Fatal(err)
	}

	msgs := drainMessages(ch, 500*time.Millisecond)
	foundSrc := false
	for _, msg := range msgs {
		if _, ok := msg.(event.SrcChanged); ok {
			foundSrc = true
		}
	}
	if !foundSrc {
		t.Errorf("want SrcChanged, got %#v", msgs)
	}
}

func TestWatcher_RoutesAssetBeforeExtension(t *testing.T) {
	dir := t.TempDir()
	assets := filepath.Join(dir, "assets")
	if err := os.MkdirAll(assets, 0755); err != nil {
		t.Fatal(err)
	}

	bus := event.NewBus()
	ch, unsub := bus.Subscribe()
	defer unsub()

	cancel := startWatcher(t, Config{
		Roots:     []string{dir},
		AssetsDir: assets,
		Debounce:  50 * time.Millisecond,
	}, bus)
	defer cancel()

	// A .css file inside the assets root routes as an asset change,
	// not a style change.
	if err := os.WriteFile(filepath.Join(assets, "extra.css"), []byte("body{}"), 0644); err != nil {
		t.Fatal(err)
	}

	msgs := drainMessages(ch, 500*time.Millisecond)
	for _, msg := range msgs {
		if _, ok := msg.(event.StyleChanged); ok {
			t.Errorf("asset-root css should not produce StyleChanged: %#v", msgs)
		}
	}
	foundAsset := false
	for _, msg := range msgs {
		if _, ok := msg.(event.AssetsChanged); ok {
			foundAsset = true
		}
	}
	if !foundAsset {
		t.Errorf("want AssetsChanged, got %#v", msgs)
	}
}

func TestWatcher_ExcludedPathDropped(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	gen := filepath.Join(src, "gen")
	if err := os.MkdirAll(gen, 0755); err != nil {
		t.Fatal(err)
	}

	bus := event.NewBus()
	ch, unsub := bus.Subscribe()
	defer unsub()

	cancel := startWatcher(t, Config{
		Roots:    []string{src},
		Exclude:  []string{gen},
		Debounce: 50 * time.Millisecond,
	}, bus)
	defer cancel()

	if err := os.WriteFile(filepath.Join(gen, "zz.go"), []byte("package gen"), 0644); err != nil {
		t.Fatal(err)
	}

	msgs := drainMessages(ch, 400*time.Millisecond)
	if len(msgs) != 0 {
		t.Errorf("excluded path should produce no messages, got %#v", msgs)
	}
}

func TestWatcher_UnknownExtensionDropped(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	if err := os.MkdirAll(src, 0755); err != nil {
		t.Fatal(err)
	}

	bus := event.NewBus()
	ch, unsub := bus.Subscribe()
	defer unsub()

	cancel := startWatcher(t, Config{
		Roots:    []string{src},
		Debounce: 50 * time.Millisecond,
	}, bus)
	defer cancel()

	if err := os.WriteFile(filepath.Join(src, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	msgs := drainMessages(ch, 400*time.Millisecond)
	if len(msgs) != 0 {
		t.Errorf("unknown extension should be dropped silently, got %#v", msgs)
	}
}

func TestRoute_RecordsClassifiedEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	w := NewWatcher(Config{
		AssetsDir: "/p/assets",
		Metrics:   metrics.New(metrics.Config{Registry: reg}),
	}, event.NewBus())

	w.route(event.Change{Op: event.Write, Path: "/p/src/main.go"})
	w.route(event.Change{Op: event.Write, Path: "/p/style/main.css"})
	w.route(event.Change{Op: event.Create, Path: "/p/assets/logo.png"})
	w.route(event.Change{Op: event.Rescan})
	// Dropped changes are not classified and must not count.
	w.route(event.Change{Op: event.Write, Path: "/p/src/notes.txt"})

	expected := `
# HELP sitewatch_fs_events_total Classified filesystem changes by route
# TYPE sitewatch_fs_events_total counter
sitewatch_fs_events_total{route="assets"} 1
sitewatch_fs_events_total{route="rescan"} 1
sitewatch_fs_events_total{route="src"} 1
sitewatch_fs_events_total{route="style"} 1
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "sitewatch_fs_events_total")
	if err != nil {
		t.Error(err)
	}
}

func TestWatcher_MissingRootFails(t *testing.T) {
	bus := event.NewBus()
	w := NewWatcher(Config{
		Roots:    []string{filepath.Join(t.TempDir(), "does-not-exist")},
		Debounce: 50 * time.Millisecond,
	}, bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err == nil {
		t.Fatal("Start should fail when a root cannot be watched")
	}
}
