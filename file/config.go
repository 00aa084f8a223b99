package file

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendGoogle = "google"
	BackendMCP    = "mcp"
	BackendFake   = "fake"
)

// Duration is a time.Duration written in YAML as "90s", "1h30m" or "7d".
type Duration time.Duration

func (d Duration) String() string {
	v := time.Duration(d)
	if v > 0 && v%(24*time.Hour) == 0 {
		return strconv.Itoa(int(v/(24*time.Hour))) + "d"
	}
	return v.String()
}

func ParseDuration(s string) (Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return Duration(time.Duration(n) * 24 * time.Hour), nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	return Duration(v), nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}
	v, err := ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = v
	return nil
}

// Horizons are the default window lengths of the ranged commands.
type Horizons struct {
	List         Duration `yaml:"list"`
	Search       Duration `yaml:"search"`
	Availability Duration `yaml:"availability"`
	FreeBusy     Duration `yaml:"free_busy"`
}

// MCP describes how to start the calendar MCP server.
type MCP struct {
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
}

type Google struct {
	CredentialsFile string `yaml:"credentials_file"`
	// Account is the e-mail of the account the token was saved for.
	Account string `yaml:"account"`
}

type Config struct {
	// Timezone is the IANA zone used for naive times and default windows.
	Timezone          string   `yaml:"timezone"`
	DefaultCalendarID string   `yaml:"default_calendar_id"`
	Backend           string   `yaml:"backend"`
	ConnectTimeout    Duration `yaml:"connect_timeout"`
	Database          string   `yaml:"database"`
	Horizons          Horizons `yaml:"horizons"`
	MCP               MCP      `yaml:"mcp"`
	Google            Google   `yaml:"google"`
}

func DefaultConfig() *Config {
	return &Config{
		Timezone:          "UTC",
		DefaultCalendarID: "primary",
		Backend:           BackendMCP,
		ConnectTimeout:    Duration(10 * time.Second),
		Database:          "calcmd.db",
		Horizons: Horizons{
			List:         Duration(7 * 24 * time.Hour),
			Search:       Duration(30 * 24 * time.Hour),
			Availability: Duration(7 * 24 * time.Hour),
			FreeBusy:     Duration(7 * 24 * time.Hour),
		},
		Google: Google{
			CredentialsFile: "credentials.json",
		},
	}
}

// Normalize fills zero values with their defaults.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.DefaultCalendarID == "" {
		c.DefaultCalendarID = def.DefaultCalendarID
	}
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	if c.Backend == "" {
		c.Backend = def.Backend
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.Database == "" {
		c.Database = def.Database
	}
	if c.Horizons.List <= 0 {
		c.Horizons.List = def.Horizons.List
	}
	if c.Horizons.Search <= 0 {
		c.Horizons.Search = def.Horizons.Search
	}
	if c.Horizons.Availability <= 0 {
		c.Horizons.Availability = def.Horizons.Availability
	}
	if c.Horizons.FreeBusy <= 0 {
		c.Horizons.FreeBusy = def.Horizons.FreeBusy
	}
	if c.Google.CredentialsFile == "" {
		c.Google.CredentialsFile = def.Google.CredentialsFile
	}
}

func (c *Config) Validate() error {
	switch c.Backend {
	case BackendGoogle:
		if c.Google.Account == "" {
			return errors.New("config: google.account is required, run configure first")
		}
	case BackendMCP:
		if c.MCP.Command == "" {
			return errors.New("config: mcp.command is required")
		}
	case BackendFake:
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}
	return nil
}

// Load reads the YAML config at path. A missing file is created with the
// defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			return cfg, Save(path, cfg)
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	cfg.Normalize()
	return &cfg, nil
}

// Save writes cfg to path through a temp file in the same directory, with
// 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}
	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".calcmd-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func (c *Config) Save(path string) error {
	return Save(path, c)
}
