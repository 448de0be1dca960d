package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/conductor/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key]",
	Short: "Show effective configuration",
	Long: `Display the effective configuration after defaults, config files,
environment variables, and flags are applied.

Without arguments, displays every value.
With one argument (key), displays the value for that key.

User configuration lives at ~/.config/conductor/config.yaml.
Project-specific overrides can be placed in .conductor.yaml.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(args) == 0 {
			displayAllConfig(out, cfg)
			return nil
		}
		value, err := getConfigValue(cfg, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(out, value)
		return nil
	},
}

// configKeys lists displayable keys in output order.
var configKeys = []string{
	"agents.dir",
	"agents.watch",
	"agents.debounce",
	"router.confidence_threshold",
	"router.fallback_agent",
	"router.classifier",
	"lifecycle.default_timeout",
	"lifecycle.mock_delay",
	"lifecycle.wait_timeout",
	"llm.api_key",
	"llm.model",
	"llm.use_bedrock",
	"llm.aws_region",
	"llm.cache_ttl",
	"llm.requests_per_second",
	"llm.burst",
	"llm.breaker_max_failures",
	"llm.breaker_timeout",
	"log.level",
	"log.format",
	"log.output",
	"tracing.enabled",
	"tracing.exporter",
	"journal.path",
}

// displayAllConfig prints all configuration values.
func displayAllConfig(w io.Writer, cfg *config.Config) {
	for _, key := range configKeys {
		value, _ := getConfigValue(cfg, key)
		fmt.Fprintf(w, "%s: %s\n", key, value)
	}
	if p := config.ProjectConfigPath(); p != "" {
		fmt.Fprintf(w, "\n# project config: %s\n", p)
	}
	fmt.Fprintf(w, "# user config: %s\n", config.UserConfigPath())
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "agents.dir":
		return cfg.Agents.Dir, nil
	case "agents.watch":
		return strconv.FormatBool(cfg.Agents.Watch), nil
	case "agents.debounce":
		return cfg.Agents.Debounce.String(), nil
	case "router.confidence_threshold":
		return strconv.FormatFloat(cfg.Router.ConfidenceThreshold, 'g', -1, 64), nil
	case "router.fallback_agent":
		return cfg.Router.FallbackAgent, nil
	case "router.classifier":
		return cfg.Router.Classifier, nil
	case "lifecycle.default_timeout":
		return cfg.Lifecycle.DefaultTimeout.String(), nil
	case "lifecycle.mock_delay":
		return cfg.Lifecycle.MockDelay.String(), nil
	case "lifecycle.wait_timeout":
		return cfg.Lifecycle.WaitTimeout.String(), nil
	case "llm.api_key":
		key, source, err := config.ResolveAPIKey(cfg)
		if err != nil {
			return "(not set)", nil
		}
		return fmt.Sprintf("%s (%s)", config.MaskAPIKey(key), source), nil
	case "llm.model":
		return cfg.LLM.Model, nil
	case "llm.use_bedrock":
		return strconv.FormatBool(cfg.LLM.UseBedrock), nil
	case "llm.aws_region":
		return cfg.LLM.AWSRegion, nil
	case "llm.cache_ttl":
		return cfg.LLM.CacheTTL.String(), nil
	case "llm.requests_per_second":
		return strconv.FormatFloat(cfg.LLM.RequestsPerSecond, 'g', -1, 64), nil
	case "llm.burst":
		return strconv.Itoa(cfg.LLM.Burst), nil
	case "llm.breaker_max_failures":
		return strconv.FormatUint(uint64(cfg.LLM.BreakerMaxFailures), 10), nil
	case "llm.breaker_timeout":
		return cfg.LLM.BreakerTimeout.String(), nil
	case "log.level":
		return cfg.Log.Level, nil
	case "log.format":
		return cfg.Log.Format, nil
	case "log.output":
		return cfg.Log.Output, nil
	case "tracing.enabled":
		return strconv.FormatBool(cfg.Tracing.Enabled), nil
	case "tracing.exporter":
		return cfg.Tracing.Exporter, nil
	case "journal.path":
		return cfg.Journal.Path, nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}
