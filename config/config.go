// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package config

import (
	"log"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Application config structure
type AppConfig struct {
	Name     string `mapstructure:"service_name" validate:"required"`
	Version  string `mapstructure:"version" validate:"required"`
	LogLevel string `mapstructure:"log_level" validate:"required"`
	LogPath  string `mapstructure:"log_path"`

	// Remote check-in service
	BaseURL     string `mapstructure:"base_url" validate:"required,url"`
	AccessToken string `mapstructure:"access_token" validate:"required"`
	UserID      uint64 `mapstructure:"user_id" validate:"required"`

	// Upload pipeline
	UploadTimeout time.Duration `mapstructure:"upload_timeout" validate:"required"`

	// Progress channel
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" validate:"required"`
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay" validate:"required"`

	// Capture
	RecordingDir   string `mapstructure:"recording_dir" validate:"required"`
	SampleRate     int    `mapstructure:"sample_rate" validate:"required"`
	Channels       int    `mapstructure:"channels" validate:"required"`
	CaptureBackend string `mapstructure:"capture_backend" validate:"required,oneof=portaudio ffmpeg"`
	FFmpegFormat   string `mapstructure:"ffmpeg_format"`
	FFmpegInput    string `mapstructure:"ffmpeg_input"`
}

// reading config and intializing configs for application
func InitConfig() (*viper.Viper, error) {
	vConfig := viper.NewWithOptions(viper.KeyDelimiter("__"))

	vConfig.AddConfigPath(".")
	vConfig.SetConfigName(".env")
	path := os.Getenv("ENV_PATH")
	if path != "" {
		log.Printf("env path %v", path)
		vConfig.SetConfigFile(path)
	}
	vConfig.SetConfigType("env")
	vConfig.AutomaticEnv()

	setDefault(vConfig)
	if err := vConfig.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		log.Printf("Reading from env varaibles.")
	}

	return vConfig, nil
}

func setDefault(v *viper.Viper) {
	// setting all default values
	// keeping watch on https://github.com/spf13/viper/issues/188

	v.SetDefault("SERVICE_NAME", "checkin-client")
	v.SetDefault("VERSION", "0.0.1")
	v.SetDefault("LOG_LEVEL", "debug")
	v.SetDefault("LOG_PATH", "")

	v.SetDefault("BASE_URL", "http://localhost:8000")
	v.SetDefault("ACCESS_TOKEN", "")
	v.SetDefault("USER_ID", 0)

	v.SetDefault("UPLOAD_TIMEOUT", "60s")
	v.SetDefault("HEARTBEAT_INTERVAL", "30s")
	v.SetDefault("RECONNECT_DELAY", "3s")

	v.SetDefault("RECORDING_DIR", os.TempDir())
	v.SetDefault("SAMPLE_RATE", 16000)
	v.SetDefault("CHANNELS", 1)
	v.SetDefault("CAPTURE_BACKEND", "portaudio")
	v.SetDefault("FFMPEG_FORMAT", "alsa")
	v.SetDefault("FFMPEG_INPUT", "default")
}

// Getting application config from viper
func GetApplicationConfig(v *viper.Viper) (*AppConfig, error) {
	var config AppConfig
	err := v.Unmarshal(&config)
	if err != nil {
		log.Printf("%+v\n", err)
		return nil, err
	}

	// valdating the app config
	validate := validator.New()
	err = validate.Struct(&config)
	if err != nil {
		log.Printf("%+v\n", err)
		return nil, err
	}
	return &config, nil
}
