package application

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-council/internal/domain"
)

// Default council tuning values, used when no config file is supplied or a
// field is left unset.
const (
	DefaultCallTimeout     = 120 * time.Second
	DefaultTitleTimeout    = 30 * time.Second
	DefaultTitleModel      = "gemini-2.0-flash"
	DefaultMaxToolRounds   = 5
	DefaultToolResultLimit = 2000
)

// CouncilConfig tunes how the pipeline talks to models.
// Use CouncilConfig to adjust deadlines, tool-loop bounds, and the default
// council roster without touching process configuration.
type CouncilConfig struct {
	// CallTimeout bounds each individual model call in every stage. A call
	// that exceeds it becomes that model's abstention without delaying
	// sibling calls.
	CallTimeout time.Duration `yaml:"call_timeout" validate:"min=0"`
	// TitleTimeout bounds the lightweight title-generation call.
	TitleTimeout time.Duration `yaml:"title_timeout" validate:"min=0"`
	// TitleModel generates conversation titles from the first message.
	TitleModel string `yaml:"title_model" validate:"omitempty,modelid"`
	// MaxToolRounds is the number of tool-bearing requests a model may make
	// before a final tool-less request is forced.
	MaxToolRounds int `yaml:"max_tool_rounds" validate:"min=0,max=20"`
	// ToolResultLimit caps the characters of a tool result kept in the
	// turn record. The model always receives the full result.
	ToolResultLimit int `yaml:"tool_result_limit" validate:"min=0,max=100000"`
	// MaxConcurrency limits simultaneous model calls within one fan-out.
	// Zero leaves fan-out unbounded.
	MaxConcurrency int `yaml:"max_concurrency" validate:"min=0,max=64"`
	// DefaultCouncilModels is used when a request names no council.
	DefaultCouncilModels []string `yaml:"default_council_models" validate:"max=26,dive,modelid"`
	// DefaultChairmanModel is used when a request names no chairman.
	DefaultChairmanModel string `yaml:"default_chairman_model" validate:"omitempty,modelid"`
}

// DefaultCouncilConfig returns the tuning used when no file is given.
func DefaultCouncilConfig() CouncilConfig {
	return CouncilConfig{}.WithDefaults()
}

// WithDefaults fills unset fields with their defaults.
func (c CouncilConfig) WithDefaults() CouncilConfig {
	if c.CallTimeout == 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	if c.TitleTimeout == 0 {
		c.TitleTimeout = DefaultTitleTimeout
	}
	if c.TitleModel == "" {
		c.TitleModel = DefaultTitleModel
	}
	if c.MaxToolRounds == 0 {
		c.MaxToolRounds = DefaultMaxToolRounds
	}
	if c.ToolResultLimit == 0 {
		c.ToolResultLimit = DefaultToolResultLimit
	}
	return c
}

// LoadCouncilConfig reads a council config file. An empty path yields the
// defaults.
func LoadCouncilConfig(path string) (CouncilConfig, error) {
	if path == "" {
		return DefaultCouncilConfig(), nil
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return CouncilConfig{}, fmt.Errorf("failed to read council config: %w", err)
	}
	return ParseCouncilConfig(bytes.NewReader(data))
}

// ParseCouncilConfig decodes and validates a council config document.
// Unknown fields are rejected so typos are not silently ignored.
func ParseCouncilConfig(r io.Reader) (CouncilConfig, error) {
	var cfg CouncilConfig
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && err != io.EOF {
		return CouncilConfig{}, fmt.Errorf("%w: YAML decode failed: %v", domain.ErrInvalidConfiguration, err)
	}

	if err := validate.Struct(cfg); err != nil {
		return CouncilConfig{}, fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
	}
	return cfg.WithDefaults(), nil
}
