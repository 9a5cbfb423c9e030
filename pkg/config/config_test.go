package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, StoreDriverPostgres, cfg.Store.Driver)
	assert.Equal(t, "clasp", cfg.Solver.Binary)
	assert.Equal(t, []string{"-t8"}, cfg.Solver.Args)
	assert.Equal(t, 10*time.Minute, cfg.Solver.TotalTimeLimit)
	assert.Equal(t, time.Minute, cfg.Solver.IdleTimeLimit)
	assert.Equal(t, 1, cfg.Worker.Concurrency)
	assert.Equal(t, "@every 5s", cfg.Worker.PollSchedule)
	assert.Equal(t, 10*time.Minute+2*time.Second+time.Minute, cfg.Worker.StaleAfter)
	assert.Equal(t, 24*time.Hour, cfg.Exports.LinkTTL)
	assert.Empty(t, cfg.Exports.SigningSecret)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STORE_DRIVER", "BADGER")
	t.Setenv("SOLVER_IDLE_TIME_LIMIT", "90s")
	t.Setenv("SOLVER_TOTAL_TIME_LIMIT", "not-a-duration")
	t.Setenv("WORKER_CONCURRENCY", "0")
	t.Setenv("WORKER_STALE_AFTER", "45m")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, ,https://b.example.com")
	t.Setenv("EXPORTS_SIGNING_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreDriverBadger, cfg.Store.Driver)
	assert.Equal(t, 90*time.Second, cfg.Solver.IdleTimeLimit)
	assert.Equal(t, 10*time.Minute, cfg.Solver.TotalTimeLimit)
	assert.Equal(t, 1, cfg.Worker.Concurrency)
	assert.Equal(t, 45*time.Minute, cfg.Worker.StaleAfter)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, "s3cret", cfg.Exports.SigningSecret)
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	// Registered so godotenv's process-level writes are undone afterwards.
	t.Setenv("PORT", "")
	t.Setenv("LOG_FORMAT", "")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("PORT=9090\nLOG_FORMAT=console\n"), 0o600))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoadRunOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "options.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
arrive_late_bonus: 3
day_off_bonus: 10
pupil_preference_penalty_list: "0, 5, 20"
no_break_penalty: "{60: 1, 120: 5}"
complex_constraints: "(M 9:00 - M 12:00) >= 1"
default_lesson_length: 45
`), 0o600))

	opts, err := LoadRunOptions(path)
	require.NoError(t, err)
	assert.Equal(t, 3, opts.ArriveLateBonus)
	assert.Equal(t, 0, opts.LeaveEarlyBonus)
	assert.Equal(t, 10, opts.DayOffBonus)
	assert.Equal(t, "0, 5, 20", opts.PupilPreferencePenaltyList)
	assert.Equal(t, "{60: 1, 120: 5}", opts.NoBreakPenalty)
	assert.Equal(t, 45, opts.DefaultLessonLength)

	empty, err := LoadRunOptions("")
	require.NoError(t, err)
	assert.Equal(t, RunOptions{}, empty)

	_, err = LoadRunOptions(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
