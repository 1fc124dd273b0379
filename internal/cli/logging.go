package cli

import (
	"fmt"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"

	"autopilot-engine/internal/config"
	"autopilot-engine/pkg/confkit"
)

// ConfigSummaryLines returns human readable lines describing the loaded app config.
func ConfigSummaryLines(cfg *config.Config) []string {
	if cfg == nil {
		return []string{"Configuration: <nil>"}
	}

	lines := []string{
		fmt.Sprintf("Environment: %s", cfg.Env),
		fmt.Sprintf("Postgres: %s", presence(cfg.Postgres.DSN != "")),
		fmt.Sprintf("Redis: %s", presence(strings.TrimSpace(cfg.Redis.Addr) != "")),
		fmt.Sprintf("Bar archive: %s", pathOrNone(cfg.Archive.Path)),
		fmt.Sprintf("Journal: %s", pathOrNone(cfg.JournalDir)),
		fmt.Sprintf("Metrics: %s", pathOrNone(cfg.Metrics.Addr)),
		fmt.Sprintf("TTL (short/medium/long): %ds / %ds / %ds", cfg.TTL.Short, cfg.TTL.Medium, cfg.TTL.Long),
		sectionLine("Autopilot config", cfg.Autopilot),
		sectionLine("Market config", cfg.Market),
		sectionLine("LLM config", cfg.LLM),
		sectionLine("Approval config", cfg.Approval),
		sectionLine("Notify config", cfg.Notify),
		sectionLine("Exchange config", cfg.Exchange),
	}
	if ap := cfg.Autopilot.Value; ap != nil {
		a := ap.Autopilot
		lines = append(lines,
			fmt.Sprintf("Watchlist: %s", strings.Join(a.Watchlist, ", ")),
			fmt.Sprintf("Schedule: every %s (timeout %s, %d workers, mode %s)", a.Schedule, a.RunTimeout, a.MaxConcurrency, a.Mode),
			fmt.Sprintf("Strategies: %d", len(ap.Strategies)),
		)
	}

	return lines
}

// LogConfigSummary emits the configuration summary using logx.
func LogConfigSummary(cfg *config.Config) {
	lines := ConfigSummaryLines(cfg)
	if len(lines) == 0 {
		return
	}
	logx.Info("configuration summary")
	for _, line := range lines {
		logx.Infof("config • %s", line)
	}
}

func presence(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}

func pathOrNone(p string) string {
	if strings.TrimSpace(p) == "" {
		return "disabled"
	}
	return p
}

func sectionLine[T any](name string, section confkit.Section[T]) string {
	switch {
	case strings.TrimSpace(section.File) != "":
		return fmt.Sprintf("%s: %s", name, section.File)
	case section.Value != nil:
		return fmt.Sprintf("%s: inline", name)
	default:
		return fmt.Sprintf("%s: not configured", name)
	}
}
