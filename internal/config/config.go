package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"roomchat/internal/model"

	"github.com/spf13/viper"
)

// Config holds process configuration for the chat server.
type Config struct {
	Port           string
	RedisURL       string
	SecretKey      string
	AdminPass      string
	JWTSecret      string
	EdgeSecret     string
	EdgeUserAgent  string
	TrustedProxies []string
	AllowedOrigins []string
	LogDev         bool

	MongoURI string
	MongoDB  string

	Token   TokenConfig
	History HistoryConfig
	Abuse   model.AbusePolicy
	Reset   ResetConfig
}

// TokenConfig controls session token lifetime.
type TokenConfig struct {
	// TTL is how long the store keeps a session's current token.
	TTL time.Duration
	// MaxAge bounds token age at validation time. Zero means tokens are
	// validated against the store only.
	MaxAge time.Duration
	// ClockSkew tolerates tokens issued slightly in the future.
	ClockSkew time.Duration
	// ReissueCooldown limits fresh-session creation per client address.
	ReissueCooldown time.Duration
}

// HistoryConfig controls the bounded per-room log.
type HistoryConfig struct {
	Limit int64
}

// ResetConfig controls the periodic data wipe.
type ResetConfig struct {
	Timezone string
	Schedule string
	LockTTL  time.Duration
}

var ErrMissingRedisURL = errors.New("REDIS_URL is not set")

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	p := model.DefaultAbusePolicy()

	v.SetDefault("port", "3000")
	v.SetDefault("secret_key", "supersecretkey1234")
	v.SetDefault("admin_pass", "adminkey1234")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("edge_secret", "")
	v.SetDefault("edge_user_agent", "cf-worker-kaeru-log")
	v.SetDefault("trusted_proxies", "")
	v.SetDefault("allowed_origins", "*")
	v.SetDefault("log_dev", false)
	v.SetDefault("mongo_db", "roomchat")

	v.SetDefault("token_ttl", 24*time.Hour)
	v.SetDefault("token_max_age", time.Duration(0))
	v.SetDefault("token_clock_skew", 30*time.Second)
	v.SetDefault("reissue_cooldown", 30*time.Second)

	v.SetDefault("history_limit", 100)

	v.SetDefault("abuse_cooldown", p.Cooldown)
	v.SetDefault("abuse_tolerance", p.Tolerance)
	v.SetDefault("abuse_threshold", p.Threshold)
	v.SetDefault("abuse_mute_ttl", p.MuteTTL)
	v.SetDefault("abuse_window", p.Window)

	v.SetDefault("reset_tz", "Asia/Tokyo")
	v.SetDefault("reset_schedule", "0 0 1 * *")
	v.SetDefault("reset_lock_ttl", 30*time.Second)
}

// New returns a viper instance bound to the environment with defaults set.
func New() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	SetDefaults(v)
	return v
}

// Load reads configuration from v. An optional config file is merged first
// when path is non-empty.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{
		Port:           v.GetString("port"),
		RedisURL:       v.GetString("redis_url"),
		SecretKey:      v.GetString("secret_key"),
		AdminPass:      v.GetString("admin_pass"),
		JWTSecret:      v.GetString("jwt_secret"),
		EdgeSecret:     v.GetString("edge_secret"),
		EdgeUserAgent:  v.GetString("edge_user_agent"),
		TrustedProxies: parseList(v.GetString("trusted_proxies")),
		AllowedOrigins: parseList(v.GetString("allowed_origins")),
		LogDev:         v.GetBool("log_dev"),
		MongoURI:       v.GetString("mongo_uri"),
		MongoDB:        v.GetString("mongo_db"),
		Token: TokenConfig{
			TTL:             v.GetDuration("token_ttl"),
			MaxAge:          v.GetDuration("token_max_age"),
			ClockSkew:       v.GetDuration("token_clock_skew"),
			ReissueCooldown: v.GetDuration("reissue_cooldown"),
		},
		History: HistoryConfig{
			Limit: v.GetInt64("history_limit"),
		},
		Abuse: model.AbusePolicy{
			Cooldown:  v.GetDuration("abuse_cooldown"),
			Tolerance: v.GetDuration("abuse_tolerance"),
			Threshold: v.GetInt("abuse_threshold"),
			MuteTTL:   v.GetDuration("abuse_mute_ttl"),
			Window:    v.GetDuration("abuse_window"),
		},
		Reset: ResetConfig{
			Timezone: v.GetString("reset_tz"),
			Schedule: v.GetString("reset_schedule"),
			LockTTL:  v.GetDuration("reset_lock_ttl"),
		},
	}

	if cfg.RedisURL == "" {
		return nil, ErrMissingRedisURL
	}
	// Admin tokens are signed with the session secret unless configured.
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = cfg.SecretKey
	}
	sanitize(cfg)
	return cfg, nil
}

func sanitize(cfg *Config) {
	def := model.DefaultAbusePolicy()

	if cfg.Port == "" {
		cfg.Port = "3000"
	}
	if cfg.Token.TTL <= 0 {
		cfg.Token.TTL = 24 * time.Hour
	}
	if cfg.Token.MaxAge < 0 {
		cfg.Token.MaxAge = 0
	}
	if cfg.Token.ReissueCooldown < 0 {
		cfg.Token.ReissueCooldown = 0
	}
	if cfg.History.Limit <= 0 {
		cfg.History.Limit = 100
	}
	if cfg.Abuse.Cooldown < 0 {
		cfg.Abuse.Cooldown = 0
	}
	if cfg.Abuse.Tolerance < 0 {
		cfg.Abuse.Tolerance = def.Tolerance
	}
	if cfg.Abuse.Threshold < 2 {
		cfg.Abuse.Threshold = def.Threshold
	}
	if cfg.Abuse.MuteTTL <= 0 {
		cfg.Abuse.MuteTTL = def.MuteTTL
	}
	if cfg.Abuse.Window <= 0 {
		cfg.Abuse.Window = def.Window
	}
	if cfg.Reset.Timezone == "" {
		cfg.Reset.Timezone = "Asia/Tokyo"
	}
	if cfg.Reset.Schedule == "" {
		cfg.Reset.Schedule = "0 0 1 * *"
	}
	if cfg.Reset.LockTTL <= 0 {
		cfg.Reset.LockTTL = 30 * time.Second
	}
}

// Location resolves the reset timezone, falling back to UTC.
func (c ResetConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
