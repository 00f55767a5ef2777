// clipstitch/config/config.go
package config

import (
	"reflect"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type Config struct {
	FFBin            string        `mapstructure:"FF_BIN"`
	FFProbeBin       string        `mapstructure:"FFPROBE_BIN"`
	FFTimeout        time.Duration `mapstructure:"FF_TIMEOUT"`
	JobRetention     time.Duration `mapstructure:"JOB_RETENTION"`
	MaxInputSize     int64         `mapstructure:"MAX_INPUT_SIZE"`
	MaxRequestSize   int64         `mapstructure:"MAX_REQUEST_SIZE"`
	MaxConcurrency   int           `mapstructure:"MAX_CONCURRENCY"`
	MaxClips         int           `mapstructure:"MAX_CLIPS"`
	ThrottleCPU      float64       `mapstructure:"THROTTLE_CPU"`
	ThrottleFreeMem  int64         `mapstructure:"THROTTLE_FREEMEM"`
	ThrottleFreeDisk int64         `mapstructure:"THROTTLE_FREEDISK"`
	DiagnosticLimit  int64         `mapstructure:"DIAGNOSTIC_LIMIT"`
	AuthEnable       bool          `mapstructure:"AUTH_ENABLE"`
	AuthKey          string        `mapstructure:"AUTH_KEY"`
	Port             string        `mapstructure:"PORT"`
	LogLevel         string        `mapstructure:"LOG_LEVEL"`
	WorkDir          string        `mapstructure:"WORK_DIR"`

	// Output profile.
	OutputWidth     int     `mapstructure:"OUTPUT_WIDTH"`
	OutputFPS       int     `mapstructure:"OUTPUT_FPS"`
	PixelFormat     string  `mapstructure:"PIXEL_FORMAT"`
	VideoArgs       string  `mapstructure:"VIDEO_ARGS"`
	AudioCodec      string  `mapstructure:"AUDIO_CODEC"`
	AudioBitrate    string  `mapstructure:"AUDIO_BITRATE"`
	AudioSampleRate int     `mapstructure:"AUDIO_SAMPLE_RATE"`
	CaptionFont     string  `mapstructure:"CAPTION_FONT"`
	CaptionFontSize int     `mapstructure:"CAPTION_FONT_SIZE"`
	CaptionStretch  float64 `mapstructure:"CAPTION_STRETCH"`
}

// stringToDurationHookFunc is a custom Viper hook for parsing Go's duration strings.
func stringToDurationHookFunc() mapstructure.DecodeHookFunc {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		return time.ParseDuration(data.(string))
	}
}

// stringToByteSizeHookFunc is a custom Viper hook for parsing human-readable size strings.
func stringToByteSizeHookFunc() mapstructure.DecodeHookFunc {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		// Only int64 fields hold byte sizes.
		if f.Kind() != reflect.String || t.Kind() != reflect.Int64 {
			return data, nil
		}

		var size datasize.ByteSize
		err := size.UnmarshalText([]byte(data.(string)))
		if err != nil {
			// Not a valid size string, let other parsers handle it.
			return data, nil
		}

		return int64(size.Bytes()), nil
	}
}

// Load reads the configuration from defaults, an optional clipstitch_config.yaml and
// CLIPSTITCH_* environment variables, in increasing order of precedence.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. An empty path searches the
// default locations.
func LoadFile(path string) (*Config, error) {
	vp := viper.New()

	// Defaults are strings where a decode hook applies.
	vp.SetDefault("FF_BIN", "ffmpeg")
	vp.SetDefault("FFPROBE_BIN", "ffprobe")
	vp.SetDefault("FF_TIMEOUT", "10m")
	vp.SetDefault("JOB_RETENTION", "1h")
	vp.SetDefault("MAX_INPUT_SIZE", "200MB")
	vp.SetDefault("MAX_REQUEST_SIZE", "5MB")
	vp.SetDefault("MAX_CONCURRENCY", 2)
	vp.SetDefault("MAX_CLIPS", 3)
	vp.SetDefault("THROTTLE_CPU", 10.0)
	vp.SetDefault("THROTTLE_FREEMEM", "200MB")
	vp.SetDefault("THROTTLE_FREEDISK", "500MB")
	vp.SetDefault("DIAGNOSTIC_LIMIT", "8KB")
	vp.SetDefault("AUTH_ENABLE", false)
	vp.SetDefault("AUTH_KEY", "123456")
	vp.SetDefault("PORT", "8080")
	vp.SetDefault("LOG_LEVEL", "info")
	vp.SetDefault("WORK_DIR", "")

	vp.SetDefault("OUTPUT_WIDTH", 1080)
	vp.SetDefault("OUTPUT_FPS", 30)
	vp.SetDefault("PIXEL_FORMAT", "yuv420p")
	vp.SetDefault("VIDEO_ARGS", "-c:v libx264 -profile:v high -level 4.0 -movflags +faststart")
	vp.SetDefault("AUDIO_CODEC", "aac")
	vp.SetDefault("AUDIO_BITRATE", "192k")
	vp.SetDefault("AUDIO_SAMPLE_RATE", 48000)
	vp.SetDefault("CAPTION_FONT", "Anton")
	vp.SetDefault("CAPTION_FONT_SIZE", 36)
	vp.SetDefault("CAPTION_STRETCH", 1.0)

	if path != "" {
		vp.SetConfigFile(path)
	} else {
		vp.SetConfigName("clipstitch_config")
		vp.SetConfigType("yaml")
		vp.AddConfigPath(".")
		vp.AddConfigPath("/etc/clipstitch/")
	}

	if err := vp.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	vp.SetEnvPrefix("CLIPSTITCH")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	var cfg Config
	// The first hook that converts a value wins.
	err := vp.Unmarshal(&cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			stringToDurationHookFunc(),
			stringToByteSizeHookFunc(),
		),
	))
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}
