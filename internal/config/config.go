package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/shinji-kodama/portsweep/internal/model"
)

// EnvConfigPath names a config file used when --config is not given.
const EnvConfigPath = "PORTSWEEP_CONFIG"

// Duration wraps time.Duration so config files can say "200ms" or "1s".
type Duration struct {
	time.Duration
}

// UnmarshalYAML decodes a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("line %d: timeout must be a duration string such as \"200ms\"", value.Line)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML encodes the duration in its string form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// UnmarshalJSON decodes a Go duration string.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timeout must be a duration string such as \"200ms\"")
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalJSON encodes the duration in its string form.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Config holds the settings that may come from a config file.
type Config struct {
	// Threads is the worker count (-j). Must be at least 1.
	Threads uint16 `yaml:"threads" json:"threads"`

	// Timeout bounds each connection attempt (-t).
	Timeout Duration `yaml:"timeout" json:"timeout"`

	// JSON selects JSON output (--json).
	JSON bool `yaml:"json" json:"json"`

	// Verbose enables debug logging (-v).
	Verbose bool `yaml:"verbose" json:"verbose"`
}

// Default returns the built-in settings: 4 workers and a 200ms timeout.
func Default() Config {
	return Config{
		Threads: model.DefaultWorkers,
		Timeout: Duration{model.DefaultTimeout},
	}
}

// Validate checks value ranges after loading and flag merging.
func (c Config) Validate() error {
	if c.Threads == 0 {
		return model.ErrInvalidWorkerCount
	}
	if c.Timeout.Duration <= 0 {
		return fmt.Errorf("%w: got %s", model.ErrInvalidTimeout, c.Timeout.Duration)
	}
	return nil
}

// ResolvePath returns the config file to load: the explicit flag value if
// set, otherwise $PORTSWEEP_CONFIG, otherwise "" (no file).
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv(EnvConfigPath)
}

// Load reads the config file at path and overlays it on Default().
// An empty path returns the defaults unchanged.
//
// The decoder is chosen by file extension. Unknown keys are rejected so that
// a typo such as "thread:" does not silently fall back to a default.
//
// Values are not range-checked here: a command-line flag may still override
// them. Callers run Validate once flags have been applied.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("config file not found: %s", path)
		}
		return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	// Decode on top of the defaults, so keys missing from the file keep
	// their built-in values. ".JSONC" and ".jsonc" are treated alike.
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = decodeYAML(data, &cfg)
	case ".json", ".jsonc":
		err = decodeJSON(data, &cfg)
	default:
		return Config{}, fmt.Errorf("unsupported config file extension %q (valid: .yaml, .yml, .json, .jsonc)", ext)
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// decodeYAML decodes into cfg, keeping fields absent from the document.
func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		// io.EOF means an empty document, which is valid.
		return err
	}
	return nil
}

// decodeJSON strips comments and trailing commas, then decodes into cfg.
func decodeJSON(data []byte, cfg *Config) error {
	// jsonc.ToJSON blanks out comments and trailing commas with spaces, so
	// byte offsets in json errors still point at the original file.
	clean := jsonc.ToJSON(data)
	if len(bytes.TrimSpace(clean)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(clean))
	dec.DisallowUnknownFields()
	return dec.Decode(cfg)
}
