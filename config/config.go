package config

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// AppConfig holds environment driven configuration values.
// Sensitive data should never have defaults inside code and must be provided
// via config/config.json or the environment.
type AppConfig struct {
	AppName   string
	AppURL    string
	AppPort   string
	JWTSecret string
	// Gin framework configuration
	GinMode string
	GinPath string
	// Database
	DatabaseURI string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	// Redis for caching
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string
	// SMTP for the weekly digest
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string
	SMTPTLS      bool
	// Logging configuration
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
	// HTTP behaviour
	RateLimitPerMinute   int
	AllowedOrigins       []string
	DashboardCacheTTLSec int
	// Weekly digest scheduling (cron expression, empty disables)
	DigestCron string
}

var cfg AppConfig
var loaded bool

// Load loads the application configuration. It should be called once during
// boot; precedence is config/config.json -> defaults -> env overrides.
func Load() AppConfig {
	if loaded {
		return cfg
	}

	if err := loadJSONConfig(filepath.Join("config", "config.json"), &cfg); err != nil {
		log.Fatalf("invalid config/config.json: %v", err)
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set in environment variables")
	}

	loaded = true
	return cfg
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	if !loaded {
		return Load()
	}
	return cfg
}

// loadJSONConfig reads grouped JSON sections into cfg when the file exists.
func loadJSONConfig(path string, out *AppConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return nil // silently ignore missing file
	}
	defer f.Close()

	var raw map[string]map[string]any
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return err
	}

	getString := func(sec, key string) string {
		if v, ok := raw[sec][key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
		return ""
	}
	getInt := func(sec, key string) int {
		if v, ok := raw[sec][key]; ok {
			if f, ok := v.(float64); ok {
				return int(f)
			}
		}
		return 0
	}
	getBool := func(sec, key string) bool {
		if v, ok := raw[sec][key]; ok {
			if b, ok := v.(bool); ok {
				return b
			}
		}
		return false
	}
	getStringSlice := func(sec, key string) []string {
		if v, ok := raw[sec][key]; ok {
			if arr, ok := v.([]any); ok {
				res := make([]string, 0, len(arr))
				for _, it := range arr {
					if s, ok := it.(string); ok {
						res = append(res, s)
					}
				}
				return res
			}
		}
		return nil
	}

	out.AppName = getString("app", "AppName")
	out.AppURL = getString("app", "AppURL")
	out.AppPort = getString("app", "AppPort")
	out.JWTSecret = getString("app", "JWTSecret")
	if v := getInt("app", "RateLimitPerMinute"); v != 0 {
		out.RateLimitPerMinute = v
	}
	if v := getInt("app", "DashboardCacheTTLSec"); v != 0 {
		out.DashboardCacheTTLSec = v
	}
	if list := getStringSlice("app", "AllowedOrigins"); len(list) > 0 {
		out.AllowedOrigins = list
	}

	out.DatabaseURI = getString("database", "DatabaseURI")
	out.DBHost = getString("database", "DBHost")
	out.DBPort = getString("database", "DBPort")
	out.DBUser = getString("database", "DBUser")
	out.DBPassword = getString("database", "DBPassword")
	out.DBName = getString("database", "DBName")

	out.RedisHost = getString("redis", "RedisHost")
	if v := getInt("redis", "RedisPort"); v != 0 {
		out.RedisPort = v
	}
	if v := getInt("redis", "RedisDB"); v != 0 {
		out.RedisDB = v
	}
	out.RedisPassword = getString("redis", "RedisPassword")

	out.SMTPHost = getString("smtp", "SMTPHost")
	if v := getInt("smtp", "SMTPPort"); v != 0 {
		out.SMTPPort = v
	}
	out.SMTPUsername = getString("smtp", "SMTPUsername")
	out.SMTPPassword = getString("smtp", "SMTPPassword")
	out.SMTPFrom = getString("smtp", "SMTPFrom")
	out.SMTPFromName = getString("smtp", "SMTPFromName")
	out.SMTPTLS = getBool("smtp", "SMTPTLS")

	if v := getString("log", "Level"); v != "" {
		out.LogLevel = v
	}
	if v := getString("log", "Path"); v != "" {
		out.LogPath = v
	}
	if v := getString("log", "GinMode"); v != "" {
		out.GinMode = v
	}
	if v := getString("log", "GinPath"); v != "" {
		out.GinPath = v
	}
	if v := getInt("log", "MaxSizeMB"); v != 0 {
		out.LogMaxSizeMB = v
	}
	if v := getInt("log", "MaxBackups"); v != 0 {
		out.LogMaxBackups = v
	}
	if v := getInt("log", "MaxAgeDays"); v != 0 {
		out.LogMaxAgeDays = v
	}
	out.LogCompress = getBool("log", "Compress")

	if v := getString("digest", "Cron"); v != "" {
		out.DigestCron = v
	}

	return nil
}

// applyDefaults sets sane defaults for zero-value fields.
func applyDefaults(c *AppConfig) {
	if c.AppName == "" {
		c.AppName = "Linkea"
	}
	if c.AppURL == "" {
		c.AppURL = "http://localhost:8080"
	}
	if c.AppPort == "" {
		c.AppPort = "8080"
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.GinPath == "" {
		c.GinPath = "logs/go_gin.log"
	}
	if c.DBHost == "" {
		c.DBHost = "127.0.0.1"
	}
	if c.DBPort == "" {
		c.DBPort = "3306"
	}
	if c.DBUser == "" {
		c.DBUser = "root"
	}
	if c.DBName == "" {
		c.DBName = "linkea"
	}
	if c.RedisHost == "" {
		c.RedisHost = "127.0.0.1"
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.SMTPPort == 0 {
		c.SMTPPort = 587
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 3
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 7
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 120
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.DashboardCacheTTLSec == 0 {
		c.DashboardCacheTTLSec = 60
	}
	if c.DigestCron == "" {
		// Monday 09:00 local time
		c.DigestCron = "0 9 * * 1"
	}
}

// applyEnvOverrides maps known environment variables onto config values.
func applyEnvOverrides(c *AppConfig) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			*dst = mustParseInt(v)
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			*dst = v == "true"
		}
	}

	setString("APP_NAME", &c.AppName)
	setString("APP_URL", &c.AppURL)
	setString("APP_PORT", &c.AppPort)
	setString("JWT_SECRET", &c.JWTSecret)
	setString("GIN_MODE", &c.GinMode)
	setString("GIN_PATH", &c.GinPath)
	setString("DATABASE_URI", &c.DatabaseURI)
	setString("DB_HOST", &c.DBHost)
	setString("DB_PORT", &c.DBPort)
	setString("DB_USER", &c.DBUser)
	setString("DB_PASSWORD", &c.DBPassword)
	setString("DB_NAME", &c.DBName)
	setString("REDIS_HOST", &c.RedisHost)
	setInt("REDIS_PORT", &c.RedisPort)
	setInt("REDIS_DB", &c.RedisDB)
	setString("REDIS_PASSWORD", &c.RedisPassword)
	setString("SMTP_HOST", &c.SMTPHost)
	setInt("SMTP_PORT", &c.SMTPPort)
	setString("SMTP_USERNAME", &c.SMTPUsername)
	setString("SMTP_PASSWORD", &c.SMTPPassword)
	setString("SMTP_FROM", &c.SMTPFrom)
	setString("SMTP_FROM_NAME", &c.SMTPFromName)
	setBool("SMTP_TLS", &c.SMTPTLS)
	setString("LOG_LEVEL", &c.LogLevel)
	setString("LOG_PATH", &c.LogPath)
	setInt("LOG_MAX_SIZE_MB", &c.LogMaxSizeMB)
	setInt("LOG_MAX_BACKUPS", &c.LogMaxBackups)
	setInt("LOG_MAX_AGE_DAYS", &c.LogMaxAgeDays)
	setBool("LOG_COMPRESS", &c.LogCompress)
	setInt("RATE_LIMIT_PER_MINUTE", &c.RateLimitPerMinute)
	setInt("DASHBOARD_CACHE_TTL_SEC", &c.DashboardCacheTTLSec)
	setString("DIGEST_CRON", &c.DigestCron)

	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = splitAndTrim(v)
	}
}

func mustParseInt(val string) int {
	i, err := strconv.Atoi(val)
	if err != nil {
		log.Fatalf("invalid integer value %s: %v", val, err)
	}
	return i
}

func splitAndTrim(raw string) []string {
	items := []string{}
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
