// Package config loads pgraph's process configuration from environment
// variables: a struct-per-concern Config populated by LoadFromEnv(),
// validated with Validate(), all under a single PGRAPH_ prefix.
//
// Example:
//
//	cfg := config.LoadFromEnv()
//	if err := cfg.Validate(); err != nil {
//		log.Fatal(err)
//	}
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all of pgraph's runtime configuration.
type Config struct {
	Auth     AuthConfig
	Database DatabaseConfig
	Server   ServerConfig
	Raft     RaftConfig
	Memory   MemoryConfig
	Logging  LoggingConfig
}

// AuthConfig holds wire-protocol authentication settings for the
// first-request auth gate.
type AuthConfig struct {
	Enabled           bool
	InitialUsername   string
	InitialPassword   string
	MinPasswordLength int
	TokenExpiry       time.Duration
	JWTSecret         string
}

// DatabaseConfig holds graph-store settings.
type DatabaseConfig struct {
	DataDir                   string
	ReadOnly                  bool
	TransactionTimeout        time.Duration
	MaxConcurrentTransactions int
}

// ServerConfig holds wire-protocol listener settings.
type ServerConfig struct {
	Enabled        bool
	ListenAddress  string
	Port           int
	RequestTimeout time.Duration
	MetricsEnabled bool
	MetricsPort    int
}

// RaftConfig holds replication-harness settings.
type RaftConfig struct {
	Enabled          bool
	NodeID           string
	BindAddress      string
	DataDir          string
	SnapshotBaseDir  string
	MaxSnapshotFiles int
	JoinAddress      string // non-empty to join an existing cluster instead of bootstrapping
}

// MemoryConfig holds the in-process memory-layer cache sizing.
type MemoryConfig struct {
	FullVertexLRUSize  int
	DescriptionLRUSize int
	PlanCacheSize      int
	PlanCacheTTL       time.Duration
	RuntimeLimitStr    string
	RuntimeLimit       int64
	GCPercent          int
}

// LoggingConfig holds structured-logging settings.
type LoggingConfig struct {
	Level  string
	JSON   bool
	Output string
}

// LoadFromEnv populates a Config from the process environment. Every
// variable lives under the PGRAPH_ prefix.
func LoadFromEnv() *Config {
	cfg := &Config{}

	authStr := getEnv("PGRAPH_AUTH", "none")
	if authStr == "none" {
		cfg.Auth.Enabled = false
		cfg.Auth.InitialUsername = "admin"
		cfg.Auth.InitialPassword = "admin"
	} else {
		cfg.Auth.Enabled = true
		parts := strings.SplitN(authStr, "/", 2)
		if len(parts) == 2 {
			cfg.Auth.InitialUsername = parts[0]
			cfg.Auth.InitialPassword = parts[1]
		} else {
			cfg.Auth.InitialUsername = "admin"
			cfg.Auth.InitialPassword = authStr
		}
	}
	cfg.Auth.MinPasswordLength = getEnvInt("PGRAPH_AUTH_MIN_PASSWORD_LENGTH", 8)
	cfg.Auth.TokenExpiry = getEnvDuration("PGRAPH_AUTH_TOKEN_EXPIRY", 24*time.Hour)
	cfg.Auth.JWTSecret = getEnv("PGRAPH_AUTH_JWT_SECRET", generateDefaultSecret())

	cfg.Database.DataDir = getEnv("PGRAPH_DATA_DIR", "./data")
	cfg.Database.ReadOnly = getEnvBool("PGRAPH_READ_ONLY", false)
	cfg.Database.TransactionTimeout = getEnvDuration("PGRAPH_TRANSACTION_TIMEOUT", 30*time.Second)
	cfg.Database.MaxConcurrentTransactions = getEnvInt("PGRAPH_MAX_CONCURRENT_TRANSACTIONS", 1000)

	cfg.Server.Enabled = getEnvBool("PGRAPH_SERVER_ENABLED", true)
	cfg.Server.ListenAddress = getEnv("PGRAPH_SERVER_ADDRESS", "0.0.0.0")
	cfg.Server.Port = getEnvInt("PGRAPH_SERVER_PORT", 7850)
	cfg.Server.RequestTimeout = getEnvDuration("PGRAPH_REQUEST_TIMEOUT", 30*time.Second)
	cfg.Server.MetricsEnabled = getEnvBool("PGRAPH_METRICS_ENABLED", true)
	cfg.Server.MetricsPort = getEnvInt("PGRAPH_METRICS_PORT", 9850)

	cfg.Raft.Enabled = getEnvBool("PGRAPH_RAFT_ENABLED", false)
	cfg.Raft.NodeID = getEnv("PGRAPH_RAFT_NODE_ID", "node-1")
	cfg.Raft.BindAddress = getEnv("PGRAPH_RAFT_BIND_ADDRESS", "127.0.0.1:7851")
	cfg.Raft.DataDir = getEnv("PGRAPH_RAFT_DATA_DIR", "./data/raft")
	cfg.Raft.SnapshotBaseDir = getEnv("PGRAPH_RAFT_SNAPSHOT_DIR", "./data/snapshots")
	cfg.Raft.MaxSnapshotFiles = getEnvInt("PGRAPH_RAFT_MAX_SNAPSHOT_FILES", 3)
	cfg.Raft.JoinAddress = getEnv("PGRAPH_RAFT_JOIN_ADDRESS", "")

	cfg.Memory.FullVertexLRUSize = getEnvInt("PGRAPH_VERTEX_LRU_SIZE", 10000)
	cfg.Memory.DescriptionLRUSize = getEnvInt("PGRAPH_DESCRIPTION_LRU_SIZE", 5000)
	cfg.Memory.PlanCacheSize = getEnvInt("PGRAPH_PLAN_CACHE_SIZE", 256)
	cfg.Memory.PlanCacheTTL = getEnvDuration("PGRAPH_PLAN_CACHE_TTL", 5*time.Minute)
	cfg.Memory.RuntimeLimitStr = getEnv("PGRAPH_MEMORY_LIMIT", "0")
	cfg.Memory.RuntimeLimit = parseMemorySize(cfg.Memory.RuntimeLimitStr)
	cfg.Memory.GCPercent = getEnvInt("PGRAPH_GC_PERCENT", 100)

	cfg.Logging.Level = getEnv("PGRAPH_LOG_LEVEL", "info")
	cfg.Logging.JSON = getEnvBool("PGRAPH_LOG_JSON", true)
	cfg.Logging.Output = getEnv("PGRAPH_LOG_OUTPUT", "stdout")

	return cfg
}

// Validate checks cfg for logical errors before use.
func (c *Config) Validate() error {
	if c.Auth.Enabled {
		if c.Auth.InitialUsername == "" {
			return fmt.Errorf("config: authentication enabled but no username provided")
		}
		if len(c.Auth.InitialPassword) < c.Auth.MinPasswordLength {
			return fmt.Errorf("config: password must be at least %d characters", c.Auth.MinPasswordLength)
		}
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("config: invalid server port: %d", c.Server.Port)
	}
	if c.Raft.Enabled && c.Raft.NodeID == "" {
		return fmt.Errorf("config: raft enabled but no node id provided")
	}
	if c.Memory.FullVertexLRUSize <= 0 {
		return fmt.Errorf("config: invalid vertex LRU size: %d", c.Memory.FullVertexLRUSize)
	}
	return nil
}

// String returns a safe, loggable representation of cfg (no secrets).
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Auth: %v, Server: %s:%d, Raft: %v(%s), DataDir: %s}",
		c.Auth.Enabled,
		c.Server.ListenAddress, c.Server.Port,
		c.Raft.Enabled, c.Raft.NodeID,
		c.Database.DataDir,
	)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(val)
		return val == "true" || val == "1" || val == "yes" || val == "on"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultVal
}

func generateDefaultSecret() string {
	return "CHANGE_ME_IN_PRODUCTION_" + strconv.FormatInt(time.Now().UnixNano(), 36)
}

// parseMemorySize parses a human-readable memory size string. Supports
// "1024", "1KB", "1MB", "1GB", "1TB", "0", "unlimited".
func parseMemorySize(s string) int64 {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" || s == "0" || s == "UNLIMITED" {
		return 0
	}
	s = strings.TrimSuffix(s, "B")

	var multiplier int64 = 1
	switch {
	case strings.HasSuffix(s, "K"):
		multiplier = 1 << 10
		s = strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		multiplier = 1 << 20
		s = strings.TrimSuffix(s, "M")
	case strings.HasSuffix(s, "G"):
		multiplier = 1 << 30
		s = strings.TrimSuffix(s, "G")
	case strings.HasSuffix(s, "T"):
		multiplier = 1 << 40
		s = strings.TrimSuffix(s, "T")
	}

	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return n * multiplier
}

// FormatMemorySize renders bytes as a human-readable size string.
func FormatMemorySize(bytes int64) string {
	if bytes == 0 {
		return "unlimited"
	}
	switch {
	case bytes >= 1<<40:
		return fmt.Sprintf("%.1fTB", float64(bytes)/(1<<40))
	case bytes >= 1<<30:
		return fmt.Sprintf("%.1fGB", float64(bytes)/(1<<30))
	case bytes >= 1<<20:
		return fmt.Sprintf("%.1fMB", float64(bytes)/(1<<20))
	case bytes >= 1<<10:
		return fmt.Sprintf("%.1fKB", float64(bytes)/(1<<10))
	default:
		return fmt.Sprintf("%dB", bytes)
	}
}
