package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverBadger   = "badger"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	CORS     CORSConfig
	Log      LogConfig
	Solver   SolverConfig
	Worker   WorkerConfig
	Store    StoreConfig
	Exports  ExportsConfig
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
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	// ProgressTTL bounds how long a live progress snapshot survives after its last write.
	ProgressTTL time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SolverConfig describes how the external PBO solver is launched.
type SolverConfig struct {
	Binary             string
	Args               []string
	TimeLimitFlag      string
	Version            string
	TotalTimeLimit     time.Duration
	IdleTimeLimit      time.Duration
	CheckpointInterval time.Duration
	KillGrace          time.Duration
	WorkDir            string
}

// WorkerConfig controls the run queue consumers.
type WorkerConfig struct {
	Concurrency  int
	BufferSize   int
	PollSchedule string
	// StaleAfter fails RUNNING runs older than this; defaults past the
	// solver's total limit and kill grace.
	StaleAfter time.Duration
}

// StoreConfig selects the run record backend.
type StoreConfig struct {
	Driver     string
	BadgerPath string
	InMemory   bool
}

// ExportsConfig configures rendered timetable exports.
type ExportsConfig struct {
	StorageDir string
	Retention  time.Duration
	// SigningSecret authenticates download tokens; exports are disabled without it.
	SigningSecret string
	LinkTTL       time.Duration
	// CleanupSchedule is a cron spec for purging files older than Retention.
	CleanupSchedule string
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
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
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
		Enabled:     v.GetBool("ENABLE_REDIS"),
		Host:        v.GetString("REDIS_HOST"),
		Port:        v.GetInt("REDIS_PORT"),
		Password:    v.GetString("REDIS_PASSWORD"),
		DB:          v.GetInt("REDIS_DB"),
		ProgressTTL: parseDuration(v.GetString("REDIS_PROGRESS_TTL"), time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Solver = SolverConfig{
		Binary:             v.GetString("SOLVER_BINARY"),
		Args:               strings.Fields(v.GetString("SOLVER_ARGS")),
		TimeLimitFlag:      v.GetString("SOLVER_TIME_LIMIT_FLAG"),
		Version:            v.GetString("SOLVER_VERSION"),
		TotalTimeLimit:     parseDuration(v.GetString("SOLVER_TOTAL_TIME_LIMIT"), 10*time.Minute),
		IdleTimeLimit:      parseDuration(v.GetString("SOLVER_IDLE_TIME_LIMIT"), time.Minute),
		CheckpointInterval: parseDuration(v.GetString("SOLVER_CHECKPOINT_INTERVAL"), time.Second),
		KillGrace:          parseDuration(v.GetString("SOLVER_KILL_GRACE"), 2*time.Second),
		WorkDir:            v.GetString("SOLVER_WORK_DIR"),
	}

	concurrency := v.GetInt("WORKER_CONCURRENCY")
	if concurrency <= 0 {
		concurrency = 1
	}
	cfg.Worker = WorkerConfig{
		Concurrency:  concurrency,
		BufferSize:   v.GetInt("WORKER_BUFFER_SIZE"),
		PollSchedule: v.GetString("WORKER_POLL_SCHEDULE"),
		StaleAfter:   parseDuration(v.GetString("WORKER_STALE_AFTER"), cfg.Solver.TotalTimeLimit+cfg.Solver.KillGrace+time.Minute),
	}

	cfg.Store = StoreConfig{
		Driver:     strings.ToLower(v.GetString("STORE_DRIVER")),
		BadgerPath: v.GetString("BADGER_PATH"),
		InMemory:   v.GetBool("BADGER_IN_MEMORY"),
	}

	cfg.Exports = ExportsConfig{
		StorageDir:      v.GetString("EXPORTS_STORAGE_DIR"),
		Retention:       parseDuration(v.GetString("EXPORTS_RETENTION"), 7*24*time.Hour),
		SigningSecret:   v.GetString("EXPORTS_SIGNING_SECRET"),
		LinkTTL:         parseDuration(v.GetString("EXPORTS_LINK_TTL"), 24*time.Hour),
		CleanupSchedule: v.GetString("EXPORTS_CLEANUP_SCHEDULE"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "lesson_scheduler")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("ENABLE_REDIS", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_PROGRESS_TTL", "1h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SOLVER_BINARY", "clasp")
	v.SetDefault("SOLVER_ARGS", "-t8")
	v.SetDefault("SOLVER_TIME_LIMIT_FLAG", "--time-limit=%d")
	v.SetDefault("SOLVER_VERSION", "")
	v.SetDefault("SOLVER_TOTAL_TIME_LIMIT", "10m")
	v.SetDefault("SOLVER_IDLE_TIME_LIMIT", "1m")
	v.SetDefault("SOLVER_CHECKPOINT_INTERVAL", "1s")
	v.SetDefault("SOLVER_KILL_GRACE", "2s")
	v.SetDefault("SOLVER_WORK_DIR", "./runs")

	v.SetDefault("WORKER_CONCURRENCY", 1)
	v.SetDefault("WORKER_BUFFER_SIZE", 16)
	v.SetDefault("WORKER_POLL_SCHEDULE", "@every 5s")

	v.SetDefault("STORE_DRIVER", StoreDriverPostgres)
	v.SetDefault("BADGER_PATH", "./data/runs")
	v.SetDefault("BADGER_IN_MEMORY", false)

	v.SetDefault("EXPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("EXPORTS_RETENTION", "168h")
	v.SetDefault("EXPORTS_SIGNING_SECRET", "")
	v.SetDefault("EXPORTS_LINK_TTL", "24h")
	v.SetDefault("EXPORTS_CLEANUP_SCHEDULE", "@hourly")
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

// RunOptions are the objective weights and interval constraints of a
// file-driven solve, keyed like the stored solver options.
type RunOptions struct {
	ArriveLateBonus                 int    `mapstructure:"arrive_late_bonus"`
	LeaveEarlyBonus                 int    `mapstructure:"leave_early_bonus"`
	DayOffBonus                     int    `mapstructure:"day_off_bonus"`
	PupilPreferencePenaltyList      string `mapstructure:"pupil_preference_penalty_list"`
	InstructorPreferencePenaltyList string `mapstructure:"instructor_preference_penalty_list"`
	NoBreakPenalty                  string `mapstructure:"no_break_penalty"`
	ComplexConstraints              string `mapstructure:"complex_constraints"`
	DefaultLessonLength             int    `mapstructure:"default_lesson_length"`
}

// LoadRunOptions reads a run options file; the format follows the extension
// (yaml, json, toml, env). An empty path yields zero options.
func LoadRunOptions(path string) (RunOptions, error) {
	var opts RunOptions
	if path == "" {
		return opts, nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return opts, fmt.Errorf("read run options %s: %w", path, err)
	}
	if err := v.Unmarshal(&opts); err != nil {
		return opts, fmt.Errorf("decode run options %s: %w", path, err)
	}
	return opts, nil
}
