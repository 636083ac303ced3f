package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net/url"

	"github.com/linnemanlabs/prioritizer/internal/engine/huggingface"
	"github.com/linnemanlabs/prioritizer/internal/priority"
)

// Engine backends selectable with -engine.
const (
	EngineHuggingFace = "huggingface"
	EngineClaude      = "claude"
)

// LegacyModelEnv is the model variable read by earlier deployments.
const LegacyModelEnv = "AI_MODEL"

// Config adds app-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	Engine                string
	Model                 string
	HFEndpoint            string
	HFToken               string
	ClaudeAPIKey          string
	EngineTimeoutSeconds  int
	LoadTimeoutSeconds    int
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.Engine, "engine", EngineHuggingFace, "classification engine backend (huggingface|claude)")
	fs.StringVar(&c.Model, "model", priority.DefaultModel, "zero-shot classification model identifier")
	fs.StringVar(&c.HFEndpoint, "hf-endpoint", huggingface.DefaultEndpoint, "Hugging Face inference endpoint base URL")
	fs.StringVar(&c.HFToken, "hf-token", "", "Hugging Face API token (optional for public models)")
	fs.StringVar(&c.ClaudeAPIKey, "claude-api-key", "", "API key for the claude engine")
	fs.IntVar(&c.EngineTimeoutSeconds, "engine-timeout-seconds", 60, "per-request classification engine timeout in seconds (1..600)")
	fs.IntVar(&c.LoadTimeoutSeconds, "load-timeout-seconds", 300, "startup model load timeout in seconds (1..1800)")
}

// ApplyLegacyEnv fills Model from AI_MODEL when neither the -model flag nor
// its prefixed env var was set. Call after flag parsing and env fill.
func (c *Config) ApplyLegacyEnv(fs *flag.FlagSet, getenv func(string) string) {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "model" {
			set = true
		}
	})
	if set {
		return
	}
	if v := getenv(LegacyModelEnv); v != "" {
		c.Model = v
	}
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	if c.Model == "" {
		errs = append(errs, errors.New("MODEL is required"))
	}

	if c.EngineTimeoutSeconds <= 0 || c.EngineTimeoutSeconds > 600 {
		errs = append(errs, fmt.Errorf("invalid ENGINE_TIMEOUT_SECONDS %d (must be 1..600)", c.EngineTimeoutSeconds))
	}
	if c.LoadTimeoutSeconds <= 0 || c.LoadTimeoutSeconds > 1800 {
		errs = append(errs, fmt.Errorf("invalid LOAD_TIMEOUT_SECONDS %d (must be 1..1800)", c.LoadTimeoutSeconds))
	}

	switch c.Engine {
	case EngineHuggingFace:
		if u, err := url.Parse(c.HFEndpoint); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("invalid HF_ENDPOINT %q (must be an absolute URL)", c.HFEndpoint))
		}
	case EngineClaude:
		if c.ClaudeAPIKey == "" {
			errs = append(errs, errors.New("CLAUDE_API_KEY is required when ENGINE=claude"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid ENGINE %q (must be %s or %s)", c.Engine, EngineHuggingFace, EngineClaude))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
