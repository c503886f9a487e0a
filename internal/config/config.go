package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. BRIDGE_HUB_WS_URL.
const EnvPrefix = "BRIDGE"

type Config struct {
	Hub          HubConfig          `mapstructure:"hub"`
	CallPlatform CallPlatformConfig `mapstructure:"call_platform"`
	Client       ClientConfig       `mapstructure:"client"`
	Poller       PollerConfig       `mapstructure:"poller"`
	Service      ServiceConfig      `mapstructure:"service"`
	HTTP         HTTPConfig         `mapstructure:"http"`
}

type HubConfig struct {
	WSURL string     `mapstructure:"ws_url" validate:"required,url"`
	Auth  AuthConfig `mapstructure:"auth"`
}

type CallPlatformConfig struct {
	RelayURL        string     `mapstructure:"relay_url" validate:"required,url"`
	Auth            AuthConfig `mapstructure:"auth"`
	LoginPopup      bool       `mapstructure:"login_popup"`
	DisableRingtone bool       `mapstructure:"disable_ringtone"`
}

// AuthConfig holds password-grant credentials. An empty TokenURL disables
// authentication for the transport.
type AuthConfig struct {
	TokenURL     string `mapstructure:"token_url" validate:"omitempty,url"`
	ClientID     string `mapstructure:"client_id" validate:"required_with=TokenURL"`
	ClientSecret string `mapstructure:"client_secret"`
	Username     string `mapstructure:"username" validate:"required_with=TokenURL"`
	Password     string `mapstructure:"password"`
}

// Enabled reports whether credentials are configured.
func (a AuthConfig) Enabled() bool {
	return a.TokenURL != ""
}

// ClientConfig is served read-only to the agent UI.
type ClientConfig struct {
	IconPack string          `mapstructure:"icon_pack" json:"iconPack" validate:"required"`
	Features map[string]bool `mapstructure:"features" json:"features"`
}

type PollerConfig struct {
	Interval time.Duration `mapstructure:"interval" validate:"gt=0"`
}

type ServiceConfig struct {
	LogLevel string `mapstructure:"log_level" validate:"oneof=trace debug info warn error fatal panic disabled"`
	AppName  string `mapstructure:"app_name" validate:"required"`
}

type HTTPConfig struct {
	Port    int  `mapstructure:"port" validate:"min=1,max=65535"`
	Enabled bool `mapstructure:"enabled"`
}

// Load reads configPath, applies BRIDGE_ environment overrides (after loading
// an optional .env file) and validates the result. A missing config file is
// not an error when the environment supplies the required values.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := validator.New().Struct(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("hub.ws_url", "ws://localhost:8089/ws/hub")
	v.SetDefault("hub.auth.token_url", "")
	v.SetDefault("hub.auth.client_id", "")
	v.SetDefault("hub.auth.client_secret", "")
	v.SetDefault("hub.auth.username", "")
	v.SetDefault("hub.auth.password", "")
	v.SetDefault("call_platform.relay_url", "ws://localhost:8090/ws/ccp")
	v.SetDefault("call_platform.auth.token_url", "")
	v.SetDefault("call_platform.auth.client_id", "")
	v.SetDefault("call_platform.auth.client_secret", "")
	v.SetDefault("call_platform.auth.username", "")
	v.SetDefault("call_platform.auth.password", "")
	v.SetDefault("call_platform.login_popup", true)
	v.SetDefault("call_platform.disable_ringtone", false)
	v.SetDefault("client.icon_pack", "https://localhost:4200/assets/icons/")
	v.SetDefault("poller.interval", 500*time.Millisecond)
	v.SetDefault("service.log_level", "info")
	v.SetDefault("service.app_name", "Amazon Connect")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.enabled", true)
}
