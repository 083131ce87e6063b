package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sitewatch-dev/sitewatch/internal/errors"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "sitewatch.json"

	// DefaultSiteRoot is the default staging directory for the built site.
	DefaultSiteRoot = "dist/site"

	// DefaultPkgDir is the default bundle output directory inside the
	// site root.
	DefaultPkgDir = "pkg"

	// DefaultSiteAddr is the default address the server binary listens on.
	DefaultSiteAddr = "127.0.0.1:3000"

	// DefaultReloadPort is the default port for the live-reload endpoint.
	DefaultReloadPort = 3001
)

// Config represents the complete sitewatch.json configuration.
type Config struct {
	// Name is the project name. Defaults to the project directory name.
	Name string `json:"name,omitempty"`

	// Server is the Go package built for the server target.
	Server string `json:"server,omitempty"`

	// Front is the Go package built for the browser (GOOS=js GOARCH=wasm).
	Front string `json:"front,omitempty"`

	// SourceDir is the directory watched for source changes.
	SourceDir string `json:"sourceDir,omitempty"`

	// StyleFile is the style entry file compiled into the site root.
	// Empty disables the style stage.
	StyleFile string `json:"styleFile,omitempty"`

	// AssetsDir is mirrored into the site root. Empty disables asset sync.
	AssetsDir string `json:"assetsDir,omitempty"`

	// Site contains staging tree and server address settings.
	Site SiteConfig `json:"site,omitempty"`

	// Build contains build settings shared by all targets.
	Build BuildConfig `json:"build,omitempty"`

	// Dev contains watch-mode settings.
	Dev DevConfig `json:"dev,omitempty"`

	// Deploy contains site upload settings.
	Deploy DeployConfig `json:"deploy,omitempty"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// SiteConfig describes the staging tree and the server address.
type SiteConfig struct {
	// Root is the staging directory the built site is assembled in.
	Root string `json:"root,omitempty"`

	// PkgDir is the bundle output directory, relative to Root.
	PkgDir string `json:"pkgDir,omitempty"`

	// Addr is the address the server binary listens on.
	Addr string `json:"addr,omitempty"`

	// ReloadPort is the port the live-reload endpoint listens on.
	ReloadPort int `json:"reloadPort,omitempty"`
}

// BuildConfig contains build settings.
type BuildConfig struct {
	// OutputName is the base name for the produced artifacts.
	OutputName string `json:"outputName,omitempty"`

	// Tags are build tags passed to both targets.
	Tags []string `json:"tags,omitempty"`

	// ServerTags are build tags passed to the server target only.
	ServerTags []string `json:"serverTags,omitempty"`

	// FrontTags are build tags passed to the front target only.
	FrontTags []string `json:"frontTags,omitempty"`

	// LDFlags are linker flags passed to the server target.
	LDFlags string `json:"ldflags,omitempty"`
}

// DevConfig contains watch-mode settings.
type DevConfig struct {
	// Watch contains extra paths to watch for changes.
	Watch []string `json:"watch,omitempty"`

	// Exclude contains paths whose events are dropped before
	// classification.
	Exclude []string `json:"exclude,omitempty"`
}

// DeployConfig contains site upload settings.
type DeployConfig struct {
	// Bucket is the S3 bucket the site is uploaded to.
	Bucket string `json:"bucket,omitempty"`

	// Prefix is the key prefix inside the bucket.
	Prefix string `json:"prefix,omitempty"`

	// Region overrides the region from the AWS environment.
	Region string `json:"region,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Server:    ".",
		Front:     ".",
		SourceDir: "src",
		Site: SiteConfig{
			Root:       DefaultSiteRoot,
			PkgDir:     DefaultPkgDir,
			Addr:       DefaultSiteAddr,
			ReloadPort: DefaultReloadPort,
		},
	}
}

// Load reads configuration from the specified directory.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads configuration from the specified file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("E122").
				WithDetail("No " + ConfigFileName + " found in " + filepath.Dir(path))
		}
		return nil, errors.New("E120").Wrap(err)
	}

	cfg := New()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.New("E120").
			WithDetail("Failed to parse " + ConfigFileName + ": " + err.Error())
	}

	cfg.configPath = path
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromWorkingDir loads configuration from the current working directory
// or the nearest parent containing a config file.
func LoadFromWorkingDir() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	root, err := FindProjectRoot(wd)
	if err != nil {
		return nil, err
	}

	return Load(root)
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}

// FindProjectRoot walks up directories to find the project root.
// Returns the directory containing sitewatch.json, or an error if not found.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if Exists(dir) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("E122").
				WithDetail("No " + ConfigFileName + " found in " + startDir + " or any parent directory")
		}
		dir = parent
	}
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = filepath.Base(c.Dir())
	}
	if c.Server == "" {
		c.Server = "."
	}
	if c.Front == "" {
		c.Front = c.Server
	}
	if c.SourceDir == "" {
		c.SourceDir = "src"
	}
	if c.Site.Root == "" {
		c.Site.Root = DefaultSiteRoot
	}
	if c.Site.PkgDir == "" {
		c.Site.PkgDir = DefaultPkgDir
	}
	if c.Site.Addr == "" {
		c.Site.Addr = DefaultSiteAddr
	}
	if c.Site.ReloadPort == 0 {
		c.Site.ReloadPort = DefaultReloadPort
	}
	if c.Build.OutputName == "" {
		c.Build.OutputName = strings.ReplaceAll(c.Name, "-", "_")
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Site.ReloadPort < 0 || c.Site.ReloadPort > 65535 {
		return errors.New("E121").
			WithDetail("site.reloadPort must be between 0 and 65535")
	}
	if filepath.IsAbs(c.Site.PkgDir) {
		return errors.New("E121").
			WithDetail("site.pkgDir must be relative to site.root")
	}
	return nil
}

// resolve turns a project-relative path into an absolute one.
func (c *Config) resolve(path string) string {
	if path == "" {
		return ""
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.Dir(), path)
}

// SiteRoot returns the absolute path to the staging directory.
func (c *Config) SiteRoot() string {
	return c.resolve(c.Site.Root)
}

// PkgDir returns the absolute path to the bundle output directory.
func (c *Config) PkgDir() string {
	return filepath.Join(c.SiteRoot(), c.Site.PkgDir)
}

// SourcePath returns the absolute path to the watched source directory.
func (c *Config) SourcePath() string {
	return c.resolve(c.SourceDir)
}

// StylePath returns the absolute path to the style entry file, or "" when
// the style stage is disabled.
func (c *Config) StylePath() string {
	return c.resolve(c.StyleFile)
}

// AssetsPath returns the absolute path to the assets directory, or "" when
// asset sync is disabled.
func (c *Config) AssetsPath() string {
	return c.resolve(c.AssetsDir)
}

// ServerBinPath returns the deterministic path the server binary is
// compiled to.
func (c *Config) ServerBinPath() string {
	return filepath.Join(c.resolve("dist"), "bin", c.Build.OutputName)
}

// ReloadAddr returns the address of the live-reload endpoint.
func (c *Config) ReloadAddr() string {
	return "127.0.0.1:" + strconv.Itoa(c.Site.ReloadPort)
}

// ServerEnv returns the environment variables passed to the spawned server
// process, appended to the parent environment.
func (c *Config) ServerEnv(watch bool) []string {
	env := []string{
		"SITE_OUTPUT_NAME=" + c.Build.OutputName,
		"SITE_ROOT=" + c.SiteRoot(),
		"SITE_PKG_DIR=" + c.Site.PkgDir,
		"SITE_ADDR=" + c.Site.Addr,
		"SITE_RELOAD_PORT=" + strconv.Itoa(c.Site.ReloadPort),
	}
	if watch {
		env = append(env, "SITE_WATCH=ON")
	}
	return env
}
