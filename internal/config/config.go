package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Version is reported by the health and root endpoints.
const Version = "1.0.0"

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Sandbox   SandboxConfig
	Scheduler SchedulerConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

// Addr returns the host:port the HTTP server listens on.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}

type StorageConfig struct {
	// DataDir holds the sqlite database and per-challenge input files.
	DataDir string
}

// DatabasePath is the sqlite file under DataDir.
func (s StorageConfig) DatabasePath() string {
	return filepath.Join(s.DataDir, "arena.db")
}

// ChallengeDir is where a challenge keeps its reference input.
func (s StorageConfig) ChallengeDir(challengeID string) string {
	return filepath.Join(s.DataDir, "challenges", challengeID)
}

type SandboxConfig struct {
	// Timeout is the wall-clock limit for one evaluation. The worker
	// process is killed at Timeout plus a two second grace period.
	Timeout time.Duration
	// MemoryMB caps the worker's address space.
	MemoryMB int
	// MaxOutputBytes truncates captured stdout/stderr.
	MaxOutputBytes int64
	// PythonBin is the interpreter used for the isolated worker.
	PythonBin string
}

type SchedulerConfig struct {
	// WorkerCount is the number of evaluation workers.
	WorkerCount int
	// QueueSize bounds the evaluation queue; a full queue rejects
	// submissions with QUEUE_FULL rather than blocking the handler.
	QueueSize int
	// StopGrace is how long Stop waits for in-flight evaluations.
	StopGrace time.Duration
}

type RateLimitConfig struct {
	// SubmissionsPerHour is enforced per (agent, challenge) over a
	// trailing 60 minute window.
	SubmissionsPerHour int
}

type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from the environment, falling back to defaults.
// It never fails; malformed values fall back silently.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: getEnv("API_HOST", "0.0.0.0"),
			Port: getIntEnv("API_PORT", 8080),
		},
		Storage: StorageConfig{
			DataDir: getEnv("ARENA_DATA_DIR", "./data"),
		},
		Sandbox: SandboxConfig{
			Timeout:        time.Duration(getIntEnv("SANDBOX_TIMEOUT", 60)) * time.Second,
			MemoryMB:       getIntEnv("SANDBOX_MEMORY_MB", 512),
			MaxOutputBytes: getInt64Env("SANDBOX_MAX_OUTPUT", 10*1024*1024),
			PythonBin:      getEnv("SANDBOX_PYTHON", "python3"),
		},
		Scheduler: SchedulerConfig{
			WorkerCount: getIntEnv("WORKER_COUNT", 4),
			QueueSize:   getIntEnv("QUEUE_SIZE", 64),
			StopGrace:   getDurationEnv("SCHEDULER_STOP_GRACE", 30*time.Second),
		},
		RateLimit: RateLimitConfig{
			SubmissionsPerHour: getIntEnv("SUBMISSIONS_PER_HOUR", 10),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
