package todos

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultListLatencyMS  uint64 = 300
	DefaultWriteLatencyMS uint64 = 800
	DefaultHTTPAddr              = ":8080"
	DefaultTCPAddr               = ":9000"
)

// Config controls the mock todo service.
type Config struct {
	HTTPAddr       string `toml:"http_addr"`        // REST listen address, empty disables
	TCPAddr        string `toml:"tcp_addr"`         // framed protobuf listen address, empty disables
	ListLatencyMS  uint64 `toml:"list_latency_ms"`  // delay before List answers
	WriteLatencyMS uint64 `toml:"write_latency_ms"` // delay before Create/Delete/Patch answer
	LogConfig      string `toml:"log_config"`       // optional smplog config path
	Seed           []Todo `toml:"seed"`             // initial collection
}

// DefaultConfig returns the stock latencies and the three seed todos.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:       DefaultHTTPAddr,
		TCPAddr:        DefaultTCPAddr,
		ListLatencyMS:  DefaultListLatencyMS,
		WriteLatencyMS: DefaultWriteLatencyMS,
		Seed: []Todo{
			{ID: "1", Text: "Learn React", Completed: true},
			{ID: "2", Text: "Build optimistic UI", Completed: false},
			{ID: "3", Text: "Deploy to production", Completed: false},
		},
	}
}

// LoadConfig decodes path over DefaultConfig. Keys missing from the file keep
// their defaults; a seed list in the file replaces the default seed.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	cfg.Seed = nil
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return DefaultConfig(), fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return DefaultConfig(), fmt.Errorf("unknown config keys in %s: %v", path, undecoded)
	}
	if cfg.Seed == nil {
		cfg.Seed = DefaultConfig().Seed
	}
	return cfg, nil
}

func (c Config) ListLatency() time.Duration {
	return time.Duration(c.ListLatencyMS) * time.Millisecond
}

func (c Config) WriteLatency() time.Duration {
	return time.Duration(c.WriteLatencyMS) * time.Millisecond
}
