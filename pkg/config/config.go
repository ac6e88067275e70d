package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	CORS         CORSConfig
	Log          LogConfig
	Engine       EngineConfig
	Reservations ReservationsConfig
	Exports      ExportsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// EngineConfig tunes the scheduling grid and the optimizer defaults.
type EngineConfig struct {
	DayStartMinute     int
	DayEndMinute       int
	SlotMinutes        int
	TeachingDays       []int
	MaxIterations      int
	TimeLimit          time.Duration
	ConvergenceWindow  int
	InitialTemperature float64
	CoolingFactor      float64
	WeightConflicts    float64
	WeightUtilization  float64
	WeightBalance      float64
	WeightSatisfaction float64
	WeightCompactness  float64
	StatisticsCacheTTL time.Duration
}

// ReservationsConfig governs batch materialization of bookings.
type ReservationsConfig struct {
	WorkerConcurrency int
	QueueBuffer       int
	MaxAlternatives   int
}

// ExportsConfig controls timetable export rendering.
type ExportsConfig struct {
	Enabled     bool
	Institution string
	PDFPageSize string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Engine = EngineConfig{
		DayStartMinute:     v.GetInt("ENGINE_DAY_START_MINUTE"),
		DayEndMinute:       v.GetInt("ENGINE_DAY_END_MINUTE"),
		SlotMinutes:        v.GetInt("ENGINE_SLOT_MINUTES"),
		TeachingDays:       intList(v.GetString("ENGINE_TEACHING_DAYS")),
		MaxIterations:      v.GetInt("ENGINE_MAX_ITERATIONS"),
		TimeLimit:          parseDuration(v.GetString("ENGINE_TIME_LIMIT"), 30*time.Second),
		ConvergenceWindow:  v.GetInt("ENGINE_CONVERGENCE_WINDOW"),
		InitialTemperature: v.GetFloat64("ENGINE_INITIAL_TEMPERATURE"),
		CoolingFactor:      v.GetFloat64("ENGINE_COOLING_FACTOR"),
		WeightConflicts:    v.GetFloat64("ENGINE_WEIGHT_CONFLICTS"),
		WeightUtilization:  v.GetFloat64("ENGINE_WEIGHT_UTILIZATION"),
		WeightBalance:      v.GetFloat64("ENGINE_WEIGHT_BALANCE"),
		WeightSatisfaction: v.GetFloat64("ENGINE_WEIGHT_SATISFACTION"),
		WeightCompactness:  v.GetFloat64("ENGINE_WEIGHT_COMPACTNESS"),
		StatisticsCacheTTL: parseDuration(v.GetString("ENGINE_STATS_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Reservations = ReservationsConfig{
		WorkerConcurrency: v.GetInt("RESERVATIONS_WORKER_CONCURRENCY"),
		QueueBuffer:       v.GetInt("RESERVATIONS_QUEUE_BUFFER"),
		MaxAlternatives:   v.GetInt("RESERVATIONS_MAX_ALTERNATIVES"),
	}

	cfg.Exports = ExportsConfig{
		Enabled:     v.GetBool("ENABLE_EXPORTS"),
		Institution: v.GetString("EXPORTS_INSTITUTION"),
		PDFPageSize: v.GetString("EXPORTS_PDF_PAGE_SIZE"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "timetable_engine")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	// 08:00-18:00, one hour slots, Monday through Saturday.
	v.SetDefault("ENGINE_DAY_START_MINUTE", 480)
	v.SetDefault("ENGINE_DAY_END_MINUTE", 1080)
	v.SetDefault("ENGINE_SLOT_MINUTES", 60)
	v.SetDefault("ENGINE_TEACHING_DAYS", "1,2,3,4,5,6")
	v.SetDefault("ENGINE_MAX_ITERATIONS", 5000)
	v.SetDefault("ENGINE_TIME_LIMIT", "30s")
	v.SetDefault("ENGINE_CONVERGENCE_WINDOW", 200)
	v.SetDefault("ENGINE_INITIAL_TEMPERATURE", 10.0)
	v.SetDefault("ENGINE_COOLING_FACTOR", 0.995)
	v.SetDefault("ENGINE_WEIGHT_CONFLICTS", 0.30)
	v.SetDefault("ENGINE_WEIGHT_UTILIZATION", 0.25)
	v.SetDefault("ENGINE_WEIGHT_BALANCE", 0.20)
	v.SetDefault("ENGINE_WEIGHT_SATISFACTION", 0.15)
	v.SetDefault("ENGINE_WEIGHT_COMPACTNESS", 0.10)
	v.SetDefault("ENGINE_STATS_CACHE_TTL", "5m")

	v.SetDefault("RESERVATIONS_WORKER_CONCURRENCY", 4)
	v.SetDefault("RESERVATIONS_QUEUE_BUFFER", 16)
	v.SetDefault("RESERVATIONS_MAX_ALTERNATIVES", 3)

	v.SetDefault("ENABLE_EXPORTS", true)
	v.SetDefault("EXPORTS_INSTITUTION", "University Administrative Portal")
	v.SetDefault("EXPORTS_PDF_PAGE_SIZE", "A4")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

func intList(raw string) []int {
	parts := splitAndTrim(raw)
	result := make([]int, 0, len(parts))
	for _, part := range parts {
		var value int
		for _, r := range part {
			if r < '0' || r > '9' {
				value = -1
				break
			}
			value = value*10 + int(r-'0')
		}
		if value > 0 {
			result = append(result, value)
		}
	}
	return result
}
