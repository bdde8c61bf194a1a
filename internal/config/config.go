package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dkeye/VoiceAgent/internal/domain"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const EnvPrefix = "VOICE"

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	LogLevel   string        `mapstructure:"log_level"`

	TokenEndpoint     string        `mapstructure:"token_endpoint"`
	ConnectionTimeout time.Duration `mapstructure:"connection_timeout"`
	ExitAnimation     time.Duration `mapstructure:"exit_animation"`
	ICEServers        []string      `mapstructure:"ice_servers"`
	EventsTopic       string        `mapstructure:"events_topic"`
	MicrophoneSource  string        `mapstructure:"microphone_source"`

	App domain.AppConfig `mapstructure:"app"`
}

// LoadDotenv reads .env.local and .env into the process environment.
// Variables already set win; missing files are fine.
func LoadDotenv() {
	for _, name := range []string{".env.local", ".env"} {
		if _, err := os.Stat(name); err != nil {
			continue
		}
		if err := godotenv.Load(name); err != nil {
			log.Warn().Err(err).Str("module", "config").Str("file", name).Msg("failed to load env file")
			continue
		}
		log.Info().Str("module", "config").Str("file", name).Msg("loaded env file")
	}
}

// Load reads config/config.<env>.yaml, then VOICE_* environment overrides.
// An empty env falls back to CONFIG_ENV, then "dev".
func Load(env string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if env == "" {
		env = os.Getenv("CONFIG_ENV")
	}
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("static", cfg.StaticPath).
		Msg("config ready")
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	app := domain.DefaultAppConfig()

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("token_endpoint", "")
	v.SetDefault("connection_timeout", "200s")
	v.SetDefault("exit_animation", "500ms")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("events_topic", "agent_events")
	v.SetDefault("microphone_source", "silence")

	v.SetDefault("app.supports_chat_input", app.SupportsChatInput)
	v.SetDefault("app.supports_video_input", app.SupportsVideoInput)
	v.SetDefault("app.supports_screen_share", app.SupportsScreenShare)
	v.SetDefault("app.is_pre_connect_buffer_enabled", app.IsPreConnectBufferEnabled)
	v.SetDefault("app.agent_name", app.AgentName)
	v.SetDefault("app.sandbox_id", app.SandboxID)
}

func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.ReadLimit <= 0 {
		errs = append(errs, errors.New("read_limit must be positive"))
	}
	if c.PingPeriod <= 0 {
		errs = append(errs, errors.New("ping_period must be positive"))
	}
	if c.ConnectionTimeout <= 0 {
		errs = append(errs, errors.New("connection_timeout must be positive"))
	}
	if c.ExitAnimation <= 0 {
		errs = append(errs, errors.New("exit_animation must be positive"))
	}
	switch c.MicrophoneSource {
	case "silence", "none":
	default:
		errs = append(errs, fmt.Errorf("microphone_source %q must be silence or none", c.MicrophoneSource))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
