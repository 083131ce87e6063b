// Package styletool compiles the style entry file into the site root.
// Plain CSS and Tailwind-directive CSS run through the Tailwind CSS
// standalone binary, which is downloaded and cached per version so no
// Node.js install is needed. Sass entries use a sass binary from PATH.
package styletool

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	// TailwindVersion is the Tailwind CSS version to use.
	// Note: v4.0.0-v4.0.5 had a bug where --watch exited immediately.
	TailwindVersion = "v4.1.18"

	// GitHubReleaseURL is the base URL for downloading Tailwind binaries.
	GitHubReleaseURL = "https://github.com/tailwindlabs/tailwindcss/releases/download"

	// DefaultBinDir is the default directory for storing the binary.
	DefaultBinDir = ".sitewatch/bin"
)

// Binary represents the Tailwind CSS standalone binary.
type Binary struct {
	// Version is the Tailwind version.
	Version string

	// BinDir is the directory where the binary is stored.
	BinDir string

	// DownloadBaseURL is the base URL for downloading Tailwind binaries.
	// If empty, GitHubReleaseURL is used.
	DownloadBaseURL string

	// HTTPClient is used for downloads. If nil, a default client is used.
	HTTPClient *http.Client

	// path is the cached path to the binary.
	path string
	mu   sync.Mutex
}

// NewBinary creates a new Binary with default settings.
func NewBinary() *Binary {
	return &Binary{
		Version:         TailwindVersion,
		BinDir:          defaultBinDir(),
		DownloadBaseURL: GitHubReleaseURL,
	}
}

// NewBinaryWithVersion creates a new Binary with a specific version.
func NewBinaryWithVersion(version string) *Binary {
	b := NewBinary()
	b.Version = version
	return b
}

// defaultBinDir returns the default binary directory (~/.sitewatch/bin).
func defaultBinDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", DefaultBinDir)
	}
	return filepath.Join(home, DefaultBinDir)
}

// IsInstalled checks if the binary is installed.
func (b *Binary) IsInstalled() bool {
	_, err := os.Stat(b.binaryPath())
	return err == nil
}

// EnsureInstalled downloads the binary if it doesn't exist.
// Returns the path to the binary.
func (b *Binary) EnsureInstalled(ctx context.Context, progress func(msg string)) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	path := b.binaryPath()
	if _, err := os.Stat(path); err == nil {
		b.path = path
		return path, nil
	}

	if err := b.download(ctx, progress); err != nil {
		return "", err
	}

	b.path = path
	return path, nil
}

// binaryPath returns the path where the binary should be stored.
func (b *Binary) binaryPath() string {
	// Store per-version so upgrades don't silently keep using an older binary.
	return filepath.Join(b.BinDir, b.Version, binaryName())
}

// downloadURL returns the URL to download the binary.
func (b *Binary) downloadURL() string {
	base := b.DownloadBaseURL
	if base == "" {
		base = GitHubReleaseURL
	}
	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(base, "/"), b.Version, binaryName())
}

// download downloads the binary from GitHub releases.
func (b *Binary) download(ctx context.Context, progress func(msg string)) error {
	url := b.downloadURL()

	if progress != nil {
		progress(fmt.Sprintf("Downloading Tailwind CSS %s...", b.Version))
	}

	if err := os.MkdirAll(filepath.Dir(b.binaryPath()), 0755); err != nil {
		return fmt.Errorf("failed to create bin directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	client := b.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	if client.Timeout == 0 {
		client.Timeout = 5 * time.Minute // Large binary, allow time
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status %d (URL: %s)", resp.StatusCode, url)
	}

	// Temp file first, then rename (atomic).
	tmpPath := b.binaryPath() + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	written, err := io.Copy(f, resp.Body)
	f.Close()
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write file: %w", err)
	}

	if progress != nil {
		progress(fmt.Sprintf("Downloaded %.1f MB", float64(written)/1024/1024))
	}

	if err := os.Chmod(tmpPath, 0755); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to make executable: %w", err)
	}

	if err := os.Rename(tmpPath, b.binaryPath()); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to install binary: %w", err)
	}

	if progress != nil {
		progress(fmt.Sprintf("Installed to %s", b.binaryPath()))
	}

	return nil
}
