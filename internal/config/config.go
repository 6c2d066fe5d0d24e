package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode      string `mapstructure:"mode"`
	Port      int    `mapstructure:"port"`
	Secret    string `mapstructure:"secret"`
	StorePath string `mapstructure:"store_path"`

	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	SendBuffer int           `mapstructure:"send_buffer"`

	Guard    GuardConfig    `mapstructure:"guard"`
	Call     CallConfig     `mapstructure:"call"`
	Group    GroupConfig    `mapstructure:"group"`
	Transfer TransferConfig `mapstructure:"transfer"`
}

type GuardConfig struct {
	MaxPayloadBytes int           `mapstructure:"max_payload_bytes"`
	EventLimit      int           `mapstructure:"event_limit"`
	EventWindow     time.Duration `mapstructure:"event_window"`
	CallLimit       int           `mapstructure:"call_limit"`
	CallWindow      time.Duration `mapstructure:"call_window"`
	BannedUsers     []string      `mapstructure:"banned_users"`
}

type CallConfig struct {
	PendingTTL     time.Duration `mapstructure:"pending_ttl"`
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	ICEFailTimeout time.Duration `mapstructure:"ice_fail_timeout"`
	ICEDiscGrace   time.Duration `mapstructure:"ice_disconnect_grace"`
	ICEDiscTimeout time.Duration `mapstructure:"ice_disconnect_timeout"`
}

type GroupConfig struct {
	Capacity int `mapstructure:"capacity"`
}

type TransferConfig struct {
	MaxFileSize   int64         `mapstructure:"max_file_size"`
	PendingTTL    time.Duration `mapstructure:"pending_ttl"`
	PausedTTL     time.Duration `mapstructure:"paused_ttl"`
	ActiveTTL     time.Duration `mapstructure:"active_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("store_path", "mesh.db")
	v.SetDefault("read_limit", 262144)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("send_buffer", 64)

	v.SetDefault("guard.max_payload_bytes", 65536)
	v.SetDefault("guard.event_limit", 60)
	v.SetDefault("guard.event_window", "10s")
	v.SetDefault("guard.call_limit", 10)
	v.SetDefault("guard.call_window", "60s")

	v.SetDefault("call.pending_ttl", "30s")
	v.SetDefault("call.token_ttl", "60s")
	v.SetDefault("call.ice_fail_timeout", "10s")
	v.SetDefault("call.ice_disconnect_grace", "5s")
	v.SetDefault("call.ice_disconnect_timeout", "15s")

	v.SetDefault("group.capacity", 6)

	v.SetDefault("transfer.max_file_size", int64(100)<<30)
	v.SetDefault("transfer.pending_ttl", "5m")
	v.SetDefault("transfer.paused_ttl", "24h")
	v.SetDefault("transfer.active_ttl", "5m")
	v.SetDefault("transfer.sweep_interval", "1m")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
