package duplicator

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-duplicator/pkg/activity"
)

// FileConfig is the YAML description of one duplicator setup.
//
//	anchor: Person
//	target: Cube
//	evaluator: cel
//	in_flight_guard: true
//	activity:
//	  enabled: true
//	  channel: scene
//	replay:
//	  - name: scale
//	    storable: scale
//	    when: 'storable.scale > 0'
//	    fields: [scale]
type FileConfig struct {
	Owner         string          `yaml:"owner,omitempty"`
	Anchor        string          `yaml:"anchor"`
	Target        string          `yaml:"target,omitempty"`
	Evaluator     string          `yaml:"evaluator,omitempty"`
	InFlightGuard bool            `yaml:"in_flight_guard,omitempty"`
	Activity      activity.Config `yaml:"activity,omitempty"`
	Replay        []ReplayRule    `yaml:"replay,omitempty"`
}

// LoadConfigFile reads and validates a YAML config file.
func LoadConfigFile(path string) (FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, fmt.Errorf("duplicator: read config %q: %w", path, err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return FileConfig{}, fmt.Errorf("duplicator: config %q: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes YAML, rejecting unknown keys. Empty input yields the
// zero config.
func ParseConfig(data []byte) (FileConfig, error) {
	var cfg FileConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return FileConfig{}, fmt.Errorf("duplicator: parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return FileConfig{}, err
	}
	return cfg, nil
}

// Validate checks the engine name and replay rules.
func (c FileConfig) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Evaluator)) {
	case "", EngineExpr, EngineCEL, EngineJS:
	default:
		return fmt.Errorf("duplicator: unknown evaluator engine %q", c.Evaluator)
	}
	var errs []error
	for _, rule := range c.Replay {
		if err := rule.validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Options converts the file into construction options.
func (c FileConfig) Options() []Option {
	opts := []Option{WithEngine(c.Evaluator)}
	if owner := strings.TrimSpace(c.Owner); owner != "" {
		opts = append(opts, WithOwnerID(owner))
	}
	if c.InFlightGuard {
		opts = append(opts, WithInFlightGuard())
	}
	if c.Activity != (activity.Config{}) {
		opts = append(opts, WithActivityConfig(c.Activity))
	}
	if len(c.Replay) > 0 {
		opts = append(opts, WithReplayRules(c.Replay...))
	}
	return opts
}
