package config

import (
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/godokan/go-dokan/metadata"
)

// Default returns the configuration used for absent keys.
func Default() Config {
	mountPoint := "X:\\"
	if runtime.GOOS != "windows" {
		mountPoint = "/mnt/dokanfs"
	}
	return Config{
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
			Output: "stderr",
			Topics: []string{"verdict", "error"},
		},
		Mount: MountConfig{
			MountPoint:        mountPoint,
			VolumeLabel:       "Dokan Volume",
			FileSystemName:    "NTFS",
			Timeout:           30 * time.Second,
			Flags:             []string{},
			ReadOnlyAttribute: metadata.ReadOnlyWindows.String(),
		},
		Backend: BackendConfig{
			Type:   "memory",
			Memory: map[string]any{"case_insensitive": true},
			OS:     map[string]any{"dir": filepath.Join(Dir(), "data")},
			Badger: map[string]any{"dir": filepath.Join(Dir(), "badger")},
			S3:     map[string]any{"region": "us-east-1"},
		},
		Metrics: MetricsConfig{
			Listen: "127.0.0.1:9464",
			Path:   "/metrics",
		},
	}
}

// Normalize canonicalizes the values that accept several
// spellings.
func Normalize(cfg *Config) {
	cfg.Logging.Level = strings.ToUpper(strings.TrimSpace(cfg.Logging.Level))
	cfg.Logging.Format = strings.ToLower(strings.TrimSpace(cfg.Logging.Format))
	for i, topic := range cfg.Logging.Topics {
		cfg.Logging.Topics[i] = strings.ToLower(strings.TrimSpace(topic))
	}
	for i, flag := range cfg.Mount.Flags {
		cfg.Mount.Flags[i] = strings.ToLower(strings.TrimSpace(flag))
	}
	cfg.Mount.ReadOnlyAttribute = strings.ToLower(strings.TrimSpace(cfg.Mount.ReadOnlyAttribute))
	cfg.Backend.Type = strings.ToLower(strings.TrimSpace(cfg.Backend.Type))
}
