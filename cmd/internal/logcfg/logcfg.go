package logcfg

import (
	"os"

	logs "github.com/danmuck/smplog"
)

const envConfigPath = "OPTIMISTIC_LOG_CONFIG"

// Load returns the first smplog configuration that decodes, trying the
// environment override, then explicit (usually the log_config key of the
// binary's own config), then the conventional local paths. Defaults otherwise.
func Load(explicit ...string) logs.Config {
	candidates := make([]string, 0, len(explicit)+3)
	if path := os.Getenv(envConfigPath); path != "" {
		candidates = append(candidates, path)
	}
	for _, path := range explicit {
		if path != "" {
			candidates = append(candidates, path)
		}
	}
	candidates = append(candidates,
		"./smplog.config.toml",
		"./local/smplog.config.toml",
	)

	for _, path := range candidates {
		if cfg, err := logs.ConfigFromFile(path); err == nil {
			return cfg
		}
	}

	return logs.DefaultConfig()
}
