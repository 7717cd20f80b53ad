package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, "./data", cfg.Storage.DataDir)
	assert.Equal(t, 60*time.Second, cfg.Sandbox.Timeout)
	assert.Equal(t, 512, cfg.Sandbox.MemoryMB)
	assert.Equal(t, int64(10*1024*1024), cfg.Sandbox.MaxOutputBytes)
	assert.Equal(t, "python3", cfg.Sandbox.PythonBin)
	assert.Equal(t, 4, cfg.Scheduler.WorkerCount)
	assert.Equal(t, 64, cfg.Scheduler.QueueSize)
	assert.Equal(t, 10, cfg.RateLimit.SubmissionsPerHour)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("API_HOST", "127.0.0.1")
	t.Setenv("API_PORT", "9090")
	t.Setenv("ARENA_DATA_DIR", "/tmp/arena-test")
	t.Setenv("SANDBOX_TIMEOUT", "5")
	t.Setenv("SANDBOX_MEMORY_MB", "128")
	t.Setenv("SANDBOX_MAX_OUTPUT", "1024")
	t.Setenv("SUBMISSIONS_PER_HOUR", "3")
	t.Setenv("WORKER_COUNT", "2")
	t.Setenv("QUEUE_SIZE", "8")

	cfg := Load()

	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Addr())
	assert.Equal(t, 5*time.Second, cfg.Sandbox.Timeout)
	assert.Equal(t, 128, cfg.Sandbox.MemoryMB)
	assert.Equal(t, int64(1024), cfg.Sandbox.MaxOutputBytes)
	assert.Equal(t, 3, cfg.RateLimit.SubmissionsPerHour)
	assert.Equal(t, 2, cfg.Scheduler.WorkerCount)
	assert.Equal(t, 8, cfg.Scheduler.QueueSize)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("API_PORT", "not-a-port")
	t.Setenv("SANDBOX_TIMEOUT", "sixty")

	cfg := Load()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 60*time.Second, cfg.Sandbox.Timeout)
}

func TestStoragePaths(t *testing.T) {
	s := StorageConfig{DataDir: "/var/lib/arena"}

	assert.Equal(t, filepath.Join("/var/lib/arena", "arena.db"), s.DatabasePath())
	assert.Equal(t, filepath.Join("/var/lib/arena", "challenges", "compression-v1"), s.ChallengeDir("compression-v1"))
}
