package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	ModeHTTP = "http"
	ModeTCP  = "tcp"
)

type RuntimeConfig struct {
	Mode        string `toml:"mode"`        // transport used by commits
	BaseURL     string `toml:"base_url"`    // REST API root for ModeHTTP
	TCPAddr     string `toml:"tcp_addr"`    // framed API address for ModeTCP
	Rounds      int    `toml:"rounds"`      // scripted mutation bursts
	FailEvery   int    `toml:"fail_every"`  // every Nth commit asks the server to fail, 0 never
	Concurrency int    `toml:"concurrency"` // in-flight mutations per burst
	TimeoutSec  uint64 `toml:"timeout_sec"` // per-commit deadline, 0 none
	LogConfig   string `toml:"log_config"`  // optional smplog config path
	ConfigPath  string `toml:"-"`
}

func defaultConfig() RuntimeConfig {
	return RuntimeConfig{
		Mode:        ModeHTTP,
		BaseURL:     "http://localhost:8080",
		TCPAddr:     "localhost:9000",
		Rounds:      3,
		FailEvery:   3,
		Concurrency: 3,
		TimeoutSec:  10,
	}
}

var defaultRuntimeConfig = defaultConfig()

const CONFIG_FLAG = "--config"
const ROUNDS_FLAG = "--rounds"
const FAIL_EVERY_FLAG = "--fail-every"
const CONCURRENCY_FLAG = "--concurrency"
const URL_FLAG = "--url"
const ADDR_FLAG = "--addr"

// loadRuntimeConfig decodes path over cfg.
func loadRuntimeConfig(path string, cfg RuntimeConfig) (RuntimeConfig, error) {
	out := cfg
	if _, err := toml.DecodeFile(path, &out); err != nil {
		return cfg, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	out.ConfigPath = path
	return out, nil
}

// flagValue returns the value of a "--flag value" or "--flag=value" argument.
func flagValue(args []string, i *int, name string) (string, bool, error) {
	arg := args[*i]
	if arg == name {
		if *i+1 >= len(args) {
			return "", true, fmt.Errorf("missing value after %q", name)
		}
		*i++
		return strings.TrimSpace(args[*i]), true, nil
	}
	if after, ok := strings.CutPrefix(arg, name+"="); ok {
		return strings.TrimSpace(after), true, nil
	}
	return "", false, nil
}

func parseCount(name, raw string, least int) (int, error) {
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, raw, err)
	}
	if parsed < least {
		return 0, fmt.Errorf("%s must be >= %d", name, least)
	}
	return parsed, nil
}

// parseCLI applies a --config file first, then the remaining arguments, so
// flags always win over the file.
func parseCLI(args []string, cfg RuntimeConfig) (RuntimeConfig, error) {
	runtimeCfg := cfg

	for i := 0; i < len(args); i++ {
		value, ok, err := flagValue(args, &i, CONFIG_FLAG)
		if err != nil {
			return runtimeCfg, err
		}
		if ok {
			if runtimeCfg, err = loadRuntimeConfig(value, runtimeCfg); err != nil {
				return runtimeCfg, err
			}
		}
	}

	modeProvided := false
	for i := 0; i < len(args); i++ {
		// already applied above
		if _, ok, _ := flagValue(args, &i, CONFIG_FLAG); ok {
			continue
		}

		if value, ok, err := flagValue(args, &i, ROUNDS_FLAG); err != nil {
			return runtimeCfg, err
		} else if ok {
			if runtimeCfg.Rounds, err = parseCount(ROUNDS_FLAG, value, 1); err != nil {
				return runtimeCfg, err
			}
			continue
		}

		if value, ok, err := flagValue(args, &i, FAIL_EVERY_FLAG); err != nil {
			return runtimeCfg, err
		} else if ok {
			if runtimeCfg.FailEvery, err = parseCount(FAIL_EVERY_FLAG, value, 0); err != nil {
				return runtimeCfg, err
			}
			continue
		}

		if value, ok, err := flagValue(args, &i, CONCURRENCY_FLAG); err != nil {
			return runtimeCfg, err
		} else if ok {
			if runtimeCfg.Concurrency, err = parseCount(CONCURRENCY_FLAG, value, 1); err != nil {
				return runtimeCfg, err
			}
			continue
		}

		if value, ok, err := flagValue(args, &i, URL_FLAG); err != nil {
			return runtimeCfg, err
		} else if ok {
			runtimeCfg.BaseURL = value
			continue
		}

		if value, ok, err := flagValue(args, &i, ADDR_FLAG); err != nil {
			return runtimeCfg, err
		} else if ok {
			runtimeCfg.TCPAddr = value
			continue
		}

		normalized := strings.ToLower(strings.TrimSpace(args[i]))
		switch normalized {
		case ModeHTTP, ModeTCP:
			if modeProvided {
				return runtimeCfg, fmt.Errorf("multiple modes provided: %q", args[i])
			}
			runtimeCfg.Mode = normalized
			modeProvided = true
		default:
			return runtimeCfg, fmt.Errorf("unsupported argument %q", args[i])
		}
	}

	switch runtimeCfg.Mode {
	case ModeHTTP, ModeTCP:
	default:
		return runtimeCfg, fmt.Errorf("unsupported mode %q", runtimeCfg.Mode)
	}
	if runtimeCfg.Rounds < 1 || runtimeCfg.Concurrency < 1 || runtimeCfg.FailEvery < 0 {
		return runtimeCfg, fmt.Errorf("rounds and concurrency must be >= 1, fail_every >= 0")
	}
	return runtimeCfg, nil
}

func printUsage(cfg RuntimeConfig) {
	fmt.Printf("Usage: go run ./cmd/demo [http|tcp] [%s PATH] [%s N] [%s N] [%s N] [%s URL] [%s HOST:PORT]\n",
		CONFIG_FLAG,
		ROUNDS_FLAG,
		FAIL_EVERY_FLAG,
		CONCURRENCY_FLAG,
		URL_FLAG,
		ADDR_FLAG,
	)
	fmt.Printf("No mode defaults to %q.\n", cfg.Mode)
	fmt.Printf("HTTP commits go to %s; TCP commits go to %s.\n", cfg.BaseURL, cfg.TCPAddr)
	fmt.Printf("Runs %d round(s) of up to %d concurrent mutations.\n", cfg.Rounds, cfg.Concurrency)
	fmt.Printf("Every %d(th) commit asks the server to fail; 0 disables failures.\n", cfg.FailEvery)
	fmt.Printf("%s loads a TOML file first; other flags override it.\n", CONFIG_FLAG)
}
