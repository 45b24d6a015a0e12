package engine

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/anima-content/engine/core"
)

// Duration is a time.Duration written as "250ms" or "5s" in the config file.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type ContentConfig struct {
	// ManifestPath is the manifest file describing every asset and bundle.
	ManifestPath string `toml:"manifest_path"`
	// WatchManifest reloads the manifest when the file changes.
	WatchManifest bool `toml:"watch_manifest"`
	// PlayerDataPath is the read-only directory holding the packaged bundles.
	PlayerDataPath  string   `toml:"player_data_path"`
	StreamingAssets []string `toml:"streaming_assets"`
	OfflineMode     bool     `toml:"offline_mode"`
	Encryption      bool     `toml:"encryption"`
	EncryptKey      string   `toml:"encrypt_key"`
	Variant         string   `toml:"variant"`
	// VerifyMode is "size" or "hash".
	VerifyMode    string `toml:"verify_mode"`
	VerifyWorkers int    `toml:"verify_workers"`
	// VerifyOnStart checks every bundle of the manifest during boot and logs
	// what is left to download.
	VerifyOnStart      bool     `toml:"verify_on_start"`
	MaxUpdateTimeSlice Duration `toml:"max_update_time_slice"`
	ImmediateTimeout   Duration `toml:"immediate_timeout"`
}

type DownloadConfig struct {
	URL          string   `toml:"url"`
	DataPath     string   `toml:"data_path"`
	Retries       int      `toml:"retries"`
	RetryDelay    Duration `toml:"retry_delay"`
	MaxRetryDelay Duration `toml:"max_retry_delay"`
	MaxBandwidth  int      `toml:"max_bandwidth"`
	Timeout       Duration `toml:"timeout"`
}

type SystemsConfig struct {
	Workers              int    `toml:"workers"`
	QueueSize            int    `toml:"queue_size"`
	MaxLoaderCount       uint32 `toml:"max_loader_count"`
	MaxSceneCount        uint32 `toml:"max_scene_count"`
	DeferSceneActivation bool   `toml:"defer_scene_activation"`
}

type ApplicationConfig struct {
	// The application name, used in logs.
	Name     string `toml:"name"`
	LogLevel string `toml:"log_level"`
	// TickRate is the number of engine updates per second.
	TickRate int `toml:"tick_rate"`
	// MetricsAddress serves the prometheus collectors when set, e.g. ":9090".
	MetricsAddress string         `toml:"metrics_address"`
	Content        ContentConfig  `toml:"content"`
	Download       DownloadConfig `toml:"download"`
	Systems        SystemsConfig  `toml:"systems"`
}

func DefaultApplicationConfig() *ApplicationConfig {
	return &ApplicationConfig{
		Name:     "Anima Content",
		LogLevel: "info",
		TickRate: 60,
		Content: ContentConfig{
			ManifestPath:       "content/manifest.json",
			PlayerDataPath:     "content",
			OfflineMode:        true,
			VerifyMode:         "size",
			VerifyWorkers:      4,
			MaxUpdateTimeSlice: Duration{10 * time.Millisecond},
			ImmediateTimeout:   Duration{10 * time.Second},
		},
		Download: DownloadConfig{
			DataPath:      "downloads",
			Retries:       2,
			RetryDelay:    Duration{500 * time.Millisecond},
			MaxRetryDelay: Duration{30 * time.Second},
			Timeout:       Duration{time.Minute},
		},
		Systems: SystemsConfig{
			Workers:        4,
			QueueSize:      256,
			MaxLoaderCount: 32,
			MaxSceneCount:  64,
		},
	}
}

// LoadApplicationConfig reads a TOML file over the defaults.
func LoadApplicationConfig(path string) (*ApplicationConfig, error) {
	config := DefaultApplicationConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config '%s': %w", path, err)
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *ApplicationConfig) validate() error {
	if c.TickRate <= 0 {
		return fmt.Errorf("tick_rate must be positive, got %d", c.TickRate)
	}
	if c.Content.ManifestPath == "" {
		return fmt.Errorf("content.manifest_path: %w", core.ErrEmptyPath)
	}
	if _, err := core.ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}
