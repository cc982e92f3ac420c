package conf

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load
const EnvPrefix = "VOICEFORGE"

// envBinding holds metadata for environment variable bindings
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

func getEnvBindings() []envBinding {
	return []envBinding{
		{"main.log.level", "VOICEFORGE_MAIN_LOG_LEVEL", nil},
		{"main.log.file", "VOICEFORGE_MAIN_LOG_FILE", nil},

		{"audio.device", "VOICEFORGE_AUDIO_DEVICE", nil},
		{"audio.channels", "VOICEFORGE_AUDIO_CHANNELS", validateEnvInt},
		{"audio.samplerate", "VOICEFORGE_AUDIO_SAMPLERATE", validateEnvInt},
		{"audio.tapsize", "VOICEFORGE_AUDIO_TAPSIZE", validateEnvInt},

		{"processing.backend", "VOICEFORGE_PROCESSING_BACKEND", nil},
		{"processing.debounce", "VOICEFORGE_PROCESSING_DEBOUNCE", validateEnvDuration},
		{"processing.queuesize", "VOICEFORGE_PROCESSING_QUEUESIZE", validateEnvInt},
		{"processing.autoplay", "VOICEFORGE_PROCESSING_AUTOPLAY", validateEnvBool},

		{"playback.loop", "VOICEFORGE_PLAYBACK_LOOP", validateEnvBool},

		{"decoder.ffmpegpath", "VOICEFORGE_DECODER_FFMPEGPATH", nil},
		{"decoder.ffprobepath", "VOICEFORGE_DECODER_FFPROBEPATH", nil},
		{"decoder.cachettl", "VOICEFORGE_DECODER_CACHETTL", validateEnvDuration},

		{"export.dir", "VOICEFORGE_EXPORT_DIR", nil},

		{"metrics.enabled", "VOICEFORGE_METRICS_ENABLED", validateEnvBool},
		{"metrics.listen", "VOICEFORGE_METRICS_LISTEN", nil},
	}
}

// bindEnvVars binds every known key to its VOICEFORGE_ variable and
// validates the values that are set.
func bindEnvVars(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var warnings []string
	for _, binding := range getEnvBindings() {
		if err := v.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}
		if binding.Validate == nil {
			continue
		}
		if value := os.Getenv(binding.EnvVar); value != "" {
			if err := binding.Validate(value); err != nil {
				warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, value, err))
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true or false")
	}
	return nil
}

func validateEnvInt(value string) error {
	if _, err := strconv.Atoi(value); err != nil {
		return fmt.Errorf("must be an integer")
	}
	return nil
}

func validateEnvDuration(value string) error {
	if _, err := time.ParseDuration(value); err != nil {
		return fmt.Errorf("must be a duration such as 150ms")
	}
	return nil
}
