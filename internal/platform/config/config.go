// Package config loads the server configuration from YAML.
// The raw document is checked against an embedded JSON Schema before it is
// decoded, so a malformed resource table fails at startup instead of mid-session.
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/pawclicker/server/internal/domain/resource"
	"github.com/pawclicker/server/internal/domain/rules"
)

//go:embed schema.json
var schemaJSON string

// DefaultPath is where the server looks for its config when -config is not given.
const DefaultPath = "clicker.yaml"

// Config is the full server configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Economy EconomyConfig `yaml:"economy"`
	Tuning  TuningConfig  `yaml:"tuning"`
}

type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// StorageConfig locates the ledger and archive. Empty paths disable them.
type StorageConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
	ArchiveDir string `yaml:"archive_dir"`
}

type EconomyConfig struct {
	AutoCollectFraction float64               `yaml:"auto_collect_fraction"`
	FrameRateHz         int                   `yaml:"frame_rate_hz"`
	TapTextLifetime     time.Duration         `yaml:"tap_text_lifetime"`
	Curve               rules.Curve           `yaml:"curve"`
	Resources           []resource.Config     `yaml:"resources"`
	Gates               []resource.GateConfig `yaml:"gates"`
}

// FrameInterval is the wall-clock time between engine frames.
func (e EconomyConfig) FrameInterval() time.Duration {
	if e.FrameRateHz <= 0 {
		return time.Second / 30
	}
	return time.Second / time.Duration(e.FrameRateHz)
}

type TuningConfig struct {
	Profile        string `yaml:"profile"`
	EventRetention int    `yaml:"event_retention"`
}

// Default returns a config with every optional field filled in.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"*"},
		},
		Storage: StorageConfig{
			SQLitePath: "data/clicker.db",
		},
		Economy: EconomyConfig{
			AutoCollectFraction: 0.1,
			FrameRateHz:         30,
			TapTextLifetime:     time.Second,
			Curve:               rules.LinearCurve(),
		},
		Tuning: TuningConfig{
			Profile: ProfileDefault,
		},
	}
}

// Load reads and validates the config file at path.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := Parse(raw)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse validates raw YAML against the schema and decodes it over Default().
func Parse(raw []byte) (Config, error) {
	if err := validateSchema(raw); err != nil {
		return Config{}, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateSchema(raw []byte) error {
	schema, err := jsonschema.CompileString("config.schema.json", schemaJSON)
	if err != nil {
		return fmt.Errorf("failed to compile config schema: %w", err)
	}

	var doc interface{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("failed to parse config yaml: %w", err)
	}

	// Round-trip through JSON so the validator sees plain JSON values.
	asJSON, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("config is not representable as json: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(asJSON))
	dec.UseNumber()
	var value interface{}
	if err := dec.Decode(&value); err != nil {
		return fmt.Errorf("failed to re-read config: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// validate covers the rules a schema cannot express.
func (c Config) validate() error {
	seen := make(map[string]bool, len(c.Economy.Gates))
	for _, g := range c.Economy.Gates {
		if seen[g.ID] {
			return fmt.Errorf("invalid config: duplicate gate id %q", g.ID)
		}
		seen[g.ID] = true
	}
	return nil
}
