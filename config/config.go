package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Tracker  TrackerConfig  `mapstructure:"tracker"`
	Calendar CalendarConfig `mapstructure:"calendar"`
	Security SecurityConfig `mapstructure:"security"`
}

type ServerConfig struct {
	Port  int  `mapstructure:"port"`
	Debug bool `mapstructure:"debug"`
	// AdminKey protects the admin route group (audit log, manual
	// sweep). Empty disables the group entirely.
	AdminKey string `mapstructure:"admin_key"`
	// AdminIPs additionally restricts the admin group to these
	// client IPs. Empty allows any IP.
	AdminIPs []string `mapstructure:"admin_ips"`
}

type DatabaseConfig struct {
	Mode         string        `mapstructure:"mode"` // sqlite | sqlite_memory | mysql
	SQLitePath   string        `mapstructure:"sqlite_path"`
	MySQLDSN     string        `mapstructure:"mysql_dsn"`
	MySQLMaxOpen int           `mapstructure:"mysql_max_open"`
	MySQLMaxIdle int           `mapstructure:"mysql_max_idle"`
	MySQLMaxLife time.Duration `mapstructure:"mysql_max_life"`
}

type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalPubSubBuf  int           `mapstructure:"local_pubsub_buf"`
}

type TrackerConfig struct {
	// FolderName labels the quest collection inside the document store.
	FolderName string `mapstructure:"folder_name"`
	// SweepInterval is how often date-gated visibility is re-resolved
	// when no explicit edit happens (the world-clock tick).
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	AnnounceChan  string        `mapstructure:"announce_chan"`
	HistoryLen    int           `mapstructure:"history_len"`
	SpeakerLabel  string        `mapstructure:"speaker_label"`
}

type CalendarConfig struct {
	// Enabled controls whether the in-process calendar collaborator is
	// started at all. When false every calendar integration no-ops.
	Enabled    bool `mapstructure:"enabled"`
	EpochYear  int  `mapstructure:"epoch_year"`
	EpochMonth int  `mapstructure:"epoch_month"` // 0-indexed
	EpochDay   int  `mapstructure:"epoch_day"`
}

type SecurityConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	JWTTTLH        time.Duration `mapstructure:"jwt_ttl_h"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	// AllowedOrigins lists the WebSocket origins that are permitted.
	// An empty slice allows all origins (useful for local development only).
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load reads config from the given YAML file path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.debug", false)
	v.SetDefault("database.mode", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/quests.db")
	v.SetDefault("database.mysql_max_open", 50)
	v.SetDefault("database.mysql_max_idle", 10)
	v.SetDefault("database.mysql_max_life", "1h")
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("cache.local_pubsub_buf", 256)
	v.SetDefault("tracker.folder_name", "Quest Tracker")
	v.SetDefault("tracker.sweep_interval", "30s")
	v.SetDefault("tracker.announce_chan", "chat:quests")
	v.SetDefault("tracker.history_len", 200)
	v.SetDefault("tracker.speaker_label", "Quest Tracker")
	v.SetDefault("calendar.enabled", true)
	v.SetDefault("calendar.epoch_year", 1)
	v.SetDefault("calendar.epoch_month", 0)
	v.SetDefault("calendar.epoch_day", 1)
	v.SetDefault("security.jwt_ttl_h", "72h")
	v.SetDefault("security.rate_limit_rps", 100)
	v.SetDefault("security.rate_limit_burst", 200)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
