package conf

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaultConfig sets a default for every key so that environment
// variables and Unmarshal see the full key set without a config file.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("main.log.level", "info")
	v.SetDefault("main.log.file", "")

	v.SetDefault("audio.device", "default")
	v.SetDefault("audio.channels", 1)
	v.SetDefault("audio.samplerate", 0)
	v.SetDefault("audio.tapsize", 2048)

	v.SetDefault("processing.backend", "reference")
	v.SetDefault("processing.debounce", 150*time.Millisecond)
	v.SetDefault("processing.queuesize", 16)
	v.SetDefault("processing.autoplay", true)

	v.SetDefault("playback.loop", false)

	v.SetDefault("decoder.ffmpegpath", "ffmpeg")
	v.SetDefault("decoder.ffprobepath", "ffprobe")
	v.SetDefault("decoder.cachettl", 10*time.Minute)

	v.SetDefault("export.dir", "")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", "127.0.0.1:9090")
}
