package config

import (
	"encoding/json"
	"log/slog"
	"maps"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/vango-dev/tapas/internal/errors"
	"github.com/vango-dev/tapas/pkg/store"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "tapas.json"

	// DefaultPort is the default live server port.
	DefaultPort = 3000

	// DefaultHost is the default live server host.
	DefaultHost = "localhost"

	// DefaultIdleTimeout is how long a session may go without a
	// connection before it is closed.
	DefaultIdleTimeout = "2m"

	// DefaultBindings is the default descriptor file.
	DefaultBindings = "bindings.yaml"

	// DefaultStaticPrefix is the URL prefix of static assets.
	DefaultStaticPrefix = "/static/"
)

// Config represents the complete tapas.json configuration.
type Config struct {
	// Name is the project name.
	Name string `json:"name,omitempty"`

	// Document is the HTML page the bindings apply to.
	Document string `json:"document"`

	// Bindings is the YAML or JSON descriptor file.
	Bindings string `json:"bindings,omitempty"`

	// StateFile is a JSON file holding the initial store state. It is
	// merged over InitialState.
	StateFile string `json:"stateFile,omitempty"`

	// InitialState is the initial store state given inline.
	InitialState map[string]any `json:"initialState,omitempty"`

	// Selectors maps selector names to dot paths into the state.
	Selectors map[string]string `json:"selectors,omitempty"`

	// Filters maps selector names to memoized list filters.
	Filters map[string]FilterConfig `json:"filters,omitempty"`

	// Actions maps action creator names to action types.
	Actions map[string]string `json:"actions,omitempty"`

	// Reducer lists the declarative reducer rules.
	Reducer []store.Op `json:"reducer,omitempty"`

	// Fetch maps action types to HTTP loaders.
	Fetch map[string]store.Fetch `json:"fetch,omitempty"`

	// Server contains live server configuration.
	Server ServerConfig `json:"server,omitempty"`

	// Static serves a directory of assets next to the page.
	Static StaticConfig `json:"static,omitempty"`

	// Publish configures where "tapas render" uploads s3:// targets.
	Publish PublishConfig `json:"publish,omitempty"`

	// Log contains logging configuration.
	Log LogConfig `json:"log,omitempty"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// FilterConfig selects the items of the list at List whose Field is one
// of the selector's first argument.
type FilterConfig struct {
	List  string `json:"list"`
	Field string `json:"field"`
}

// ServerConfig contains live server settings.
type ServerConfig struct {
	// Host is the host to bind to.
	Host string `json:"host,omitempty"`

	// Port is the port to listen on.
	Port int `json:"port,omitempty"`

	// IdleTimeout closes sessions without a connection (e.g. "2m").
	IdleTimeout string `json:"idleTimeout,omitempty"`

	// AllowedOrigins restricts websocket origins. Empty means same origin.
	AllowedOrigins []string `json:"allowedOrigins,omitempty"`
}

// StaticConfig contains static asset settings.
type StaticConfig struct {
	// Dir is the asset directory. Empty disables static serving.
	Dir string `json:"dir,omitempty"`

	// Prefix is the URL prefix of the assets. Default: /static/.
	Prefix string `json:"prefix,omitempty"`

	// CacheControl is "none", "production" or empty for no header.
	CacheControl string `json:"cacheControl,omitempty"`
}

// PublishConfig contains object storage settings for rendered pages.
// Credentials come from AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY and
// AWS_SESSION_TOKEN.
type PublishConfig struct {
	// Region is the bucket region. Default: AWS_REGION, then us-east-1.
	Region string `json:"region,omitempty"`

	// Endpoint overrides the S3 endpoint, e.g. for MinIO.
	Endpoint string `json:"endpoint,omitempty"`

	// PathStyle addresses buckets as endpoint/bucket/key.
	PathStyle bool `json:"pathStyle,omitempty"`

	// CacheControl is sent with every uploaded object.
	CacheControl string `json:"cacheControl,omitempty"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level is one of debug, info, warn and error.
	Level string `json:"level,omitempty"`

	// Format is text or json.
	Format string `json:"format,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Document: "index.html",
		Bindings: DefaultBindings,
		Server: ServerConfig{
			Host:        DefaultHost,
			Port:        DefaultPort,
			IdleTimeout: DefaultIdleTimeout,
		},
		Static: StaticConfig{
			Prefix: DefaultStaticPrefix,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from the specified directory.
// It looks for tapas.json in the directory.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads configuration from the specified file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("E141").
				WithDetail("No tapas.json found in " + filepath.Dir(path)).
				WithSuggestion("Create tapas.json next to your page and bindings file")
		}
		return nil, errors.New("E120").Wrap(err)
	}

	cfg := New()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.New("E120").
			WithDetail("Failed to parse tapas.json: " + err.Error()).
			WithSuggestion("Check that tapas.json is valid JSON")
	}

	cfg.configPath = path
	cfg.applyDefaults()

	return cfg, nil
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to the specified path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.New("E120").Wrap(err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("E120").Wrap(err)
	}

	c.configPath = path
	return nil
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
	if c.Bindings == "" {
		c.Bindings = DefaultBindings
	}
	if c.Server.Host == "" {
		c.Server.Host = DefaultHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.IdleTimeout == "" {
		c.Server.IdleTimeout = DefaultIdleTimeout
	}
	if c.Static.Prefix == "" {
		c.Static.Prefix = DefaultStaticPrefix
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Document == "" {
		return errors.New("E121").WithDetail("document is required")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return errors.New("E122").
			WithDetail("Port must be between 0 and 65535")
	}
	if _, err := time.ParseDuration(c.Server.IdleTimeout); err != nil {
		return errors.New("E122").
			WithDetailf("server.idleTimeout %q is not a duration", c.Server.IdleTimeout)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return errors.New("E122").
			WithDetailf("log.format must be text or json, got %q", c.Log.Format)
	}
	switch c.Static.CacheControl {
	case "", "none", "production":
	default:
		return errors.New("E122").
			WithDetailf("static.cacheControl must be none or production, got %q", c.Static.CacheControl)
	}
	if !strings.HasPrefix(c.Static.Prefix, "/") || c.Static.Prefix == "/" {
		return errors.New("E122").
			WithDetailf("static.prefix %q must be a path below /", c.Static.Prefix)
	}
	for _, op := range c.Reducer {
		if err := op.Validate(); err != nil {
			return err
		}
	}
	for t, f := range c.Fetch {
		if f.Success == "" {
			return errors.New("E121").WithDetailf("fetch %q: success action type is required", t)
		}
	}
	for name, f := range c.Filters {
		if f.List == "" || f.Field == "" {
			return errors.New("E121").WithDetailf("filter %q needs list and field", name)
		}
		if _, dup := c.Selectors[name]; dup {
			return errors.New("E122").WithDetailf("%q is both a selector and a filter", name)
		}
	}
	return nil
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, errors.New("E122").
			WithDetailf("log.level %q is not one of debug, info, warn, error", s)
	}
	return l, nil
}

// Address returns the listen address of the live server.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// IdleTimeout returns the parsed session idle timeout.
func (c *Config) IdleTimeout() time.Duration {
	d, err := time.ParseDuration(c.Server.IdleTimeout)
	if err != nil {
		d, _ = time.ParseDuration(DefaultIdleTimeout)
	}
	return d
}

// DocumentPath returns the absolute path to the HTML document.
func (c *Config) DocumentPath() string {
	return c.resolve(c.Document)
}

// StaticDir returns the absolute path to the static asset directory, or
// "" when static serving is off.
func (c *Config) StaticDir() string {
	return c.resolve(c.Static.Dir)
}

// BindingsPath returns the absolute path to the descriptor file.
func (c *Config) BindingsPath() string {
	return c.resolve(c.Bindings)
}

// LoadState returns the initial store state: InitialState with the
// contents of StateFile merged over it.
func (c *Config) LoadState() (map[string]any, error) {
	state := make(map[string]any, len(c.InitialState))
	maps.Copy(state, c.InitialState)
	if c.StateFile == "" {
		return state, nil
	}
	path := c.resolve(c.StateFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New("E140").WithDetail(path).Wrap(err)
	}
	var file map[string]any
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, errors.New("E122").
			WithDetailf("stateFile %s: %v", c.StateFile, err)
	}
	maps.Copy(state, file)
	return state, nil
}

func (c *Config) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.Dir(), path)
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}

// FindProjectRoot walks up directories to find the project root.
// Returns the directory containing tapas.json, or an error if not found.
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
			return "", errors.New("E141").
				WithDetail("No tapas.json found in " + startDir + " or any parent directory")
		}
		dir = parent
	}
}
