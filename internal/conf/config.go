// Package conf loads VoiceForge settings from the embedded defaults, an
// optional config.yaml and VOICEFORGE_ environment variables.
package conf

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/voiceforge/internal/errors"
)

// ComponentConf identifies configuration errors
const ComponentConf = "configuration"

//go:embed config.yaml
var defaultConfig []byte

// Settings holds the complete application configuration
type Settings struct {
	Main struct {
		Log LogConfig `mapstructure:"log" yaml:"log"`
	} `mapstructure:"main" yaml:"main"`

	Audio      AudioConfig      `mapstructure:"audio" yaml:"audio"`
	Processing ProcessingConfig `mapstructure:"processing" yaml:"processing"`
	Playback   PlaybackConfig   `mapstructure:"playback" yaml:"playback"`
	Decoder    DecoderConfig    `mapstructure:"decoder" yaml:"decoder"`
	Export     ExportConfig     `mapstructure:"export" yaml:"export"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`

	// ConfigFile is the file the settings were read from, empty for defaults
	ConfigFile string `mapstructure:"-" yaml:"-"`
}

// LogConfig controls the structured logger
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

// AudioConfig selects the playback device
type AudioConfig struct {
	Device     string `mapstructure:"device" yaml:"device"`
	Channels   int    `mapstructure:"channels" yaml:"channels"`
	SampleRate int    `mapstructure:"samplerate" yaml:"samplerate"` // 0 follows the loaded file
	TapSize    int    `mapstructure:"tapsize" yaml:"tapsize"`
}

// ProcessingConfig tunes the vocoder worker and render debouncing
type ProcessingConfig struct {
	Backend   string        `mapstructure:"backend" yaml:"backend"`
	Debounce  time.Duration `mapstructure:"debounce" yaml:"debounce"`
	QueueSize int           `mapstructure:"queuesize" yaml:"queuesize"`
	Autoplay  bool          `mapstructure:"autoplay" yaml:"autoplay"`
}

// PlaybackConfig holds transport defaults
type PlaybackConfig struct {
	Loop bool `mapstructure:"loop" yaml:"loop"`
}

// DecoderConfig locates external decoders and sizes the decode cache
type DecoderConfig struct {
	FFmpegPath  string        `mapstructure:"ffmpegpath" yaml:"ffmpegpath"`
	FFprobePath string        `mapstructure:"ffprobepath" yaml:"ffprobepath"`
	CacheTTL    time.Duration `mapstructure:"cachettl" yaml:"cachettl"`
}

// ExportConfig sets where exports go
type ExportConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
}

// DefaultConfigPaths returns the directories searched for config.yaml
func DefaultConfigPaths() []string {
	var paths []string
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "voiceforge"))
	}
	return append(paths, ".")
}

// Load reads settings into v. An explicit configFile must exist; otherwise
// the default paths are searched and a missing file leaves the defaults.
func Load(v *viper.Viper, configFile string) (*Settings, error) {
	v.SetConfigType("yaml")
	setDefaultConfig(v)

	if err := bindEnvVars(v); err != nil {
		return nil, configError(err, "environment")
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		for _, path := range DefaultConfigPaths() {
			v.AddConfigPath(path)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, configError(fmt.Errorf("error reading config file: %w", err), "read")
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, configError(fmt.Errorf("error unmarshaling config: %w", err), "unmarshal")
	}
	settings.ConfigFile = v.ConfigFileUsed()

	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// DefaultYAML returns the embedded default configuration
func DefaultYAML() []byte {
	return defaultConfig
}

// Dump marshals settings as YAML
func Dump(s *Settings) ([]byte, error) {
	data, err := yaml.Marshal(s)
	if err != nil {
		return nil, configError(fmt.Errorf("error marshaling settings: %w", err), "dump")
	}
	return data, nil
}

// SaveYAMLConfig writes settings to configPath, creating parent directories
func SaveYAMLConfig(configPath string, s *Settings) error {
	data, err := Dump(s)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return configError(fmt.Errorf("error creating directories for config file: %w", err), "save")
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil { //nolint:gosec // config is not secret
		return configError(fmt.Errorf("error writing config file: %w", err), "save")
	}
	return nil
}

func configError(err error, op string) error {
	return errors.New(err).
		Component(ComponentConf).
		Category(errors.CategoryConfiguration).
		Context("operation", op).
		Build()
}
