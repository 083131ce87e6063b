package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, ConfigFileName)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `{"name": "my-app"}`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Site.Root != DefaultSiteRoot {
		t.Errorf("Site.Root = %q, want %q", cfg.Site.Root, DefaultSiteRoot)
	}
	if cfg.Site.ReloadPort != DefaultReloadPort {
		t.Errorf("Site.ReloadPort = %d, want %d", cfg.Site.ReloadPort, DefaultReloadPort)
	}
	if cfg.Build.OutputName != "my_app" {
		t.Errorf("Build.OutputName = %q, want my_app", cfg.Build.OutputName)
	}
	if cfg.SourceDir != "src" {
		t.Errorf("SourceDir = %q, want src", cfg.SourceDir)
	}
}

func TestLoad_Missing(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(dir); err == nil {
		t.Fatal("Load should fail without a config file")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `{"name": `)

	if _, err := Load(dir); err == nil {
		t.Fatal("Load should fail on malformed JSON")
	}
}

func TestLoad_InvalidReloadPort(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `{"site": {"reloadPort": 99999}}`)

	if _, err := Load(dir); err == nil {
		t.Fatal("Load should reject an out-of-range reload port")
	}
}

func TestPaths_ResolveAgainstProjectDir(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `{
		"name": "app",
		"styleFile": "style/main.scss",
		"assetsDir": "assets"
	}`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got, want := cfg.SiteRoot(), filepath.Join(dir, "dist", "site"); got != want {
		t.Errorf("SiteRoot = %q, want %q", got, want)
	}
	if got, want := cfg.PkgDir(), filepath.Join(dir, "dist", "site", "pkg"); got != want {
		t.Errorf("PkgDir = %q, want %q", got, want)
	}
	if got, want := cfg.StylePath(), filepath.Join(dir, "style", "main.scss"); got != want {
		t.Errorf("StylePath = %q, want %q", got, want)
	}
	if got, want := cfg.AssetsPath(), filepath.Join(dir, "assets"); got != want {
		t.Errorf("AssetsPath = %q, want %q", got, want)
	}
	if cfg.StylePath() == "" || cfg.AssetsPath() == "" {
		t.Error("configured optional paths should resolve non-empty")
	}
}

func TestPaths_OptionalStagesDisabled(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `{"name": "app"}`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StylePath() != "" {
		t.Errorf("StylePath = %q, want empty", cfg.StylePath())
	}
	if cfg.AssetsPath() != "" {
		t.Errorf("AssetsPath = %q, want empty", cfg.AssetsPath())
	}
}

func TestFindProjectRoot_WalksUp(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `{"name": "app"}`)

	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	found, err := FindProjectRoot(nested)
	if err != nil {
		t.Fatalf("FindProjectRoot: %v", err)
	}
	// Resolve symlinks so the comparison survives /tmp -> /private/tmp.
	wantResolved, _ := filepath.EvalSymlinks(root)
	gotResolved, _ := filepath.EvalSymlinks(found)
	if gotResolved != wantResolved {
		t.Errorf("FindProjectRoot = %q, want %q", found, root)
	}
}

func TestServerEnv(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `{"name": "app"}`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	env := cfg.ServerEnv(true)
	found := map[string]bool{}
	for _, kv := range env {
		found[kv] = true
	}
	if !found["SITE_WATCH=ON"] {
		t.Error("watch mode should set SITE_WATCH=ON")
	}
	if !found["SITE_ADDR="+DefaultSiteAddr] {
		t.Error("missing SITE_ADDR")
	}

	env = cfg.ServerEnv(false)
	for _, kv := range env {
		if kv == "SITE_WATCH=ON" {
			t.Error("SITE_WATCH should not be set outside watch mode")
		}
	}
}
