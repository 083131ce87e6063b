package assets

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/sitewatch-dev/sitewatch/internal/event"
	"github.com/sitewatch-dev/sitewatch/internal/metrics"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func newTestSync(t *testing.T) (*Synchronizer, string, string, *event.Bus) {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "assets")
	dest := filepath.Join(dir, "site")
	if err := os.MkdirAll(src, 0755); err != nil {
		t.Fatal(err)
	}
	bus := event.NewBus()
	s := New(Config{
		Src:      src,
		Dest:     dest,
		Reserved: []string{"index.html", "pkg"},
	}, bus)
	return s, src, dest, bus
}

func TestResync_MirrorsTree(t *testing.T) {
	s, src, dest, _ := newTestSync(t)
	writeFile(t, filepath.Join(src, "favicon.ico"), "icon")
	writeFile(t, filepath.Join(src, "img", "logo.png"), "png")

	if err := s.Resync(); err != nil {
		t.Fatal(err)
	}

	if got := readFile(t, filepath.Join(dest, "favicon.ico")); got != "icon" {
		t.Errorf("favicon.ico = %q", got)
	}
	if got := readFile(t, filepath.Join(dest, "img", "logo.png")); got != "png" {
		t.Errorf("img/logo.png = %q", got)
	}
}

func TestResync_PreservesReservedAndCleansRest(t *testing.T) {
	s, src, dest, _ := newTestSync(t)
	writeFile(t, filepath.Join(src, "keep.txt"), "new")

	// Pre-existing destination content: build outputs plus a stale file.
	writeFile(t, filepath.Join(dest, "index.html"), "generated")
	writeFile(t, filepath.Join(dest, "pkg", "app.wasm"), "wasm")
	writeFile(t, filepath.Join(dest, "stale.txt"), "old")

	if err := s.Resync(); err != nil {
		t.Fatal(err)
	}

	if got := readFile(t, filepath.Join(dest, "index.html")); got != "generated" {
		t.Errorf("reserved index.html was touched: %q", got)
	}
	if got := readFile(t, filepath.Join(dest, "pkg", "app.wasm")); got != "wasm" {
		t.Errorf("reserved pkg dir was touched: %q", got)
	}
	if _, err := os.Stat(filepath.Join(dest, "stale.txt")); !os.IsNotExist(err) {
		t.Error("stale destination file survived resync")
	}
	if got := readFile(t, filepath.Join(dest, "keep.txt")); got != "new" {
		t.Errorf("keep.txt = %q", got)
	}
}

func TestResync_SkipsReservedSourceNames(t *testing.T) {
	s, src, dest, _ := newTestSync(t)
	writeFile(t, filepath.Join(src, "index.html"), "from assets")
	writeFile(t, filepath.Join(dest, "index.html"), "generated")

	if err := s.Resync(); err != nil {
		t.Fatal(err)
	}

	if got := readFile(t, filepath.Join(dest, "index.html")); got != "generated" {
		t.Errorf("reserved source name overwrote build output: %q", got)
	}
}

func TestApply_CreateAndWrite(t *testing.T) {
	s, src, dest, _ := newTestSync(t)
	path := filepath.Join(src, "a.txt")
	writeFile(t, path, "one")

	if err := s.Apply(event.Change{Op: event.Create, Path: path}); err != nil {
		t.Fatal(err)
	}
	if got := readFile(t, filepath.Join(dest, "a.txt")); got != "one" {
		t.Errorf("after create: %q", got)
	}

	writeFile(t, path, "two")
	if err := s.Apply(event.Change{Op: event.Write, Path: path}); err != nil {
		t.Fatal(err)
	}
	if got := readFile(t, filepath.Join(dest, "a.txt")); got != "two" {
		t.Errorf("after write: %q", got)
	}
}

func TestApply_Remove(t *testing.T) {
	s, src, dest, _ := newTestSync(t)
	path := filepath.Join(src, "gone", "b.txt")
	writeFile(t, path, "x")
	if err := s.Resync(); err != nil {
		t.Fatal(err)
	}

	if err := s.Apply(event.Change{Op: event.Remove, Path: filepath.Join(src, "gone")}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dest, "gone")); !os.IsNotExist(err) {
		t.Error("removed directory still present in destination")
	}
}

func TestApply_Rename(t *testing.T) {
	s, src, dest, _ := newTestSync(t)
	writeFile(t, filepath.Join(src, "old.txt"), "x")
	if err := s.Resync(); err != nil {
		t.Fatal(err)
	}

	err := s.Apply(event.Change{
		Op:   event.Rename,
		Path: filepath.Join(src, "old.txt"),
		To:   filepath.Join(src, "new.txt"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dest, "old.txt")); !os.IsNotExist(err) {
		t.Error("rename left the old destination name behind")
	}
	if got := readFile(t, filepath.Join(dest, "new.txt")); got != "x" {
		t.Errorf("new.txt = %q", got)
	}
}

func TestApply_RenameOutOfTree(t *testing.T) {
	s, src, dest, _ := newTestSync(t)
	writeFile(t, filepath.Join(src, "leaving.txt"), "x")
	if err := s.Resync(); err != nil {
		t.Fatal(err)
	}

	// Destination of the rename is outside the assets tree: only the
	// removal side applies.
	err := s.Apply(event.Change{
		Op:   event.Rename,
		Path: filepath.Join(src, "leaving.txt"),
		To:   filepath.Join(t.TempDir(), "elsewhere.txt"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dest, "leaving.txt")); !os.IsNotExist(err) {
		t.Error("file renamed out of the tree still present in destination")
	}
}

func TestApply_ReservedTargetSkipped(t *testing.T) {
	s, src, dest, _ := newTestSync(t)
	writeFile(t, filepath.Join(dest, "index.html"), "generated")
	path := filepath.Join(src, "index.html")
	writeFile(t, path, "from assets")

	if err := s.Apply(event.Change{Op: event.Write, Path: path}); err != nil {
		t.Fatal(err)
	}
	if got := readFile(t, filepath.Join(dest, "index.html")); got != "generated" {
		t.Errorf("reserved destination was overwritten: %q", got)
	}
}

func TestUpdate_FallsBackToResyncAndReloads(t *testing.T) {
	s, src, dest, bus := newTestSync(t)
	writeFile(t, filepath.Join(src, "a.txt"), "x")

	ch, unsub := bus.Subscribe()
	defer unsub()

	// A create for a path that no longer exists on disk fails the
	// incremental step and triggers the full resync.
	missing := filepath.Join(src, "vanished.txt")
	if err := s.Update(event.Change{Op: event.Create, Path: missing}); err != nil {
		t.Fatal(err)
	}

	if got := readFile(t, filepath.Join(dest, "a.txt")); got != "x" {
		t.Errorf("resync fallback did not mirror the tree: %q", got)
	}

	select {
	case msg := <-ch:
		if _, ok := msg.(event.Reload); !ok {
			t.Errorf("want Reload, got %#v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("no Reload published after update")
	}
}

// snapshotTree collects every regular file under root keyed by its
// relative path.
func snapshotTree(t *testing.T, root string) map[string]string {
	t.Helper()
	tree := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		tree[rel] = readFile(t, path)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return tree
}

func TestResync_Idempotent(t *testing.T) {
	s, src, dest, _ := newTestSync(t)
	writeFile(t, filepath.Join(src, "favicon.ico"), "icon")
	writeFile(t, filepath.Join(src, "img", "logo.png"), "png")
	writeFile(t, filepath.Join(dest, "index.html"), "generated")

	if err := s.Resync(); err != nil {
		t.Fatal(err)
	}
	first := snapshotTree(t, dest)

	if err := s.Resync(); err != nil {
		t.Fatal(err)
	}
	second := snapshotTree(t, dest)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("second resync changed the tree:\nfirst:  %v\nsecond: %v", first, second)
	}
}

func TestConcurrentResyncAndApply(t *testing.T) {
	s, src, dest, _ := newTestSync(t)
	writeFile(t, filepath.Join(src, "a.txt"), "a")
	writeFile(t, filepath.Join(src, "img", "b.png"), "b")

	// Full resyncs and incremental applies race from separate goroutines
	// the way the pipeline's assets stage and the bus loop do. Whatever
	// the interleaving, the destination must end up a faithful mirror.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := s.Resync(); err != nil {
				t.Errorf("resync: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			change := event.Change{Op: event.Write, Path: filepath.Join(src, "a.txt")}
			if err := s.Apply(change); err != nil {
				t.Errorf("apply: %v", err)
			}
		}()
	}
	wg.Wait()

	want := map[string]string{
		"a.txt": "a",
		filepath.Join("img", "b.png"): "b",
	}
	if got := snapshotTree(t, dest); !reflect.DeepEqual(got, want) {
		t.Errorf("destination after concurrent syncs = %v, want %v", got, want)
	}
}

func TestSyncCountersByKind(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "assets")
	dest := filepath.Join(dir, "site")
	writeFile(t, filepath.Join(src, "a.txt"), "x")

	reg := prometheus.NewRegistry()
	s := New(Config{
		Src:     src,
		Dest:    dest,
		Metrics: metrics.New(metrics.Config{Registry: reg}),
	}, event.NewBus())

	if err := s.Resync(); err != nil {
		t.Fatal(err)
	}
	if err := s.Apply(event.Change{Op: event.Write, Path: filepath.Join(src, "a.txt")}); err != nil {
		t.Fatal(err)
	}

	expected := `
# HELP sitewatch_asset_syncs_total Asset synchronizations by kind (incremental or full)
# TYPE sitewatch_asset_syncs_total counter
sitewatch_asset_syncs_total{kind="full"} 1
sitewatch_asset_syncs_total{kind="incremental"} 1
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "sitewatch_asset_syncs_total")
	if err != nil {
		t.Error(err)
	}
}

func TestRun_AppliesBusChangesUntilShutdown(t *testing.T) {
	s, src, dest, bus := newTestSync(t)
	path := filepath.Join(src, "live.txt")
	writeFile(t, path, "x")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	bus.Publish(event.AssetsChanged{Change: event.Change{Op: event.Create, Path: path}})

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := os.Stat(filepath.Join(dest, "live.txt")); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("bus change was not applied")
		}
		time.Sleep(10 * time.Millisecond)
	}

	bus.Publish(event.ShutDown{})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after ShutDown")
	}
}
