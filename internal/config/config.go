package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

type Config struct {
	ListenAddr  string            `json:"listen_addr"`
	AuthToken   string            `json:"auth_token"`
	ObjectStore ObjectStoreConfig `json:"object_store"`
	Cache       CacheConfig       `json:"cache"`
	Limits      LimitsConfig      `json:"limits"`
	Timeout     TimeoutConfig     `json:"timeout"`
	Datasets    DatasetsConfig    `json:"datasets"`
}

type ObjectStoreConfig struct {
	Type      string `json:"type"`
	Endpoint  string `json:"endpoint"`
	Bucket    string `json:"bucket"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Region    string `json:"region"`
	UseSSL    bool   `json:"use_ssl"`
	RootPath  string `json:"root_path"`
}

// CacheConfig sizes the in-memory query result cache.
type CacheConfig struct {
	ResultCacheMB int `json:"result_cache_mb"`
}

// ResultCacheBytes returns the result cache budget in bytes.
func (c CacheConfig) ResultCacheBytes() int64 {
	if c.ResultCacheMB <= 0 {
		return 256 * 1024 * 1024 // 256 MB default
	}
	return int64(c.ResultCacheMB) * 1024 * 1024
}

// LimitsConfig holds per-server guardrails.
type LimitsConfig struct {
	// MaxDatasets is the maximum number of datasets held in memory.
	// Default: 100
	MaxDatasets int `json:"max_datasets"`
	// MaxSelectLimit caps the limit accepted by select_rows.
	// Default: 10000
	MaxSelectLimit int `json:"max_select_limit"`
	// MaxConcurrentTasks limits parallel signal and index computations.
	// Default: 4
	MaxConcurrentTasks int `json:"max_concurrent_tasks"`
}

// GetMaxDatasets returns MaxDatasets with default fallback.
func (c LimitsConfig) GetMaxDatasets() int {
	if c.MaxDatasets <= 0 {
		return 100
	}
	return c.MaxDatasets
}

// GetMaxSelectLimit returns MaxSelectLimit with default fallback.
func (c LimitsConfig) GetMaxSelectLimit() int {
	if c.MaxSelectLimit <= 0 {
		return 10000
	}
	return c.MaxSelectLimit
}

// GetMaxConcurrentTasks returns MaxConcurrentTasks with default fallback.
func (c LimitsConfig) GetMaxConcurrentTasks() int {
	if c.MaxConcurrentTasks <= 0 {
		return 4
	}
	return c.MaxConcurrentTasks
}

// TimeoutConfig holds per-request timeout configuration.
type TimeoutConfig struct {
	// QueryTimeoutMs is the maximum time allowed for query requests in milliseconds.
	// Default: 30000 (30 seconds)
	QueryTimeoutMs int `json:"query_timeout_ms"`
	// TaskTimeoutMs is the maximum time allowed for a signal or index task.
	// Default: 600000 (10 minutes)
	TaskTimeoutMs int `json:"task_timeout_ms"`
}

// GetQueryTimeout returns the query timeout in milliseconds with default fallback.
func (c TimeoutConfig) GetQueryTimeout() int {
	if c.QueryTimeoutMs <= 0 {
		return 30000
	}
	return c.QueryTimeoutMs
}

// GetTaskTimeout returns the task timeout in milliseconds with default fallback.
func (c TimeoutConfig) GetTaskTimeout() int {
	if c.TaskTimeoutMs <= 0 {
		return 600000
	}
	return c.TaskTimeoutMs
}

// DatasetsConfig controls dataset persistence behavior.
type DatasetsConfig struct {
	// LoadOnStart lists dataset names loaded from the object store at boot.
	// Empty means load every persisted dataset.
	LoadOnStart []string `json:"load_on_start"`
	// SaveOnMutate persists a dataset after every completed mutation task.
	SaveOnMutate bool `json:"save_on_mutate"`
}

func Default() *Config {
	return &Config{
		ListenAddr: ":8080",
		ObjectStore: ObjectStoreConfig{
			Type:      "s3",
			Endpoint:  "http://localhost:9000",
			Bucket:    "sift",
			AccessKey: "minioadmin",
			SecretKey: "minioadmin",
			Region:    "us-east-1",
			UseSSL:    false,
		},
		Cache: CacheConfig{
			ResultCacheMB: 256,
		},
		Datasets: DatasetsConfig{
			SaveOnMutate: true,
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("SIFT_CONFIG")
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	if env := os.Getenv("SIFT_LISTEN_ADDR"); env != "" {
		cfg.ListenAddr = env
	}
	if env := os.Getenv("SIFT_AUTH_TOKEN"); env != "" {
		cfg.AuthToken = env
	}
	if env := os.Getenv("SIFT_OBJECT_STORE_TYPE"); env != "" {
		cfg.ObjectStore.Type = env
	}
	if env := os.Getenv("SIFT_OBJECT_STORE_ENDPOINT"); env != "" {
		cfg.ObjectStore.Endpoint = env
	}
	if env := os.Getenv("SIFT_OBJECT_STORE_BUCKET"); env != "" {
		cfg.ObjectStore.Bucket = env
	}
	if env := os.Getenv("SIFT_OBJECT_STORE_ROOT"); env != "" {
		cfg.ObjectStore.RootPath = env
	}
	if env := os.Getenv("SIFT_OBJECT_STORE_ACCESS_KEY"); env != "" {
		cfg.ObjectStore.AccessKey = env
	}
	if env := os.Getenv("SIFT_OBJECT_STORE_SECRET_KEY"); env != "" {
		cfg.ObjectStore.SecretKey = env
	}
	if env := os.Getenv("SIFT_OBJECT_STORE_REGION"); env != "" {
		cfg.ObjectStore.Region = env
	}
	if env := os.Getenv("SIFT_OBJECT_STORE_USE_SSL"); env != "" {
		cfg.ObjectStore.UseSSL = env == "true" || env == "1"
	}

	if env := os.Getenv("SIFT_CACHE_RESULT_CACHE_MB"); env != "" {
		if n, err := parseIntEnv(env); err == nil {
			cfg.Cache.ResultCacheMB = n
		}
	}

	if env := os.Getenv("SIFT_LIMITS_MAX_DATASETS"); env != "" {
		if n, err := parseIntEnv(env); err == nil {
			cfg.Limits.MaxDatasets = n
		}
	}
	if env := os.Getenv("SIFT_LIMITS_MAX_SELECT_LIMIT"); env != "" {
		if n, err := parseIntEnv(env); err == nil {
			cfg.Limits.MaxSelectLimit = n
		}
	}
	if env := os.Getenv("SIFT_LIMITS_MAX_CONCURRENT_TASKS"); env != "" {
		if n, err := parseIntEnv(env); err == nil {
			cfg.Limits.MaxConcurrentTasks = n
		}
	}

	if env := os.Getenv("SIFT_TIMEOUT_QUERY_MS"); env != "" {
		if n, err := parseIntEnv(env); err == nil {
			cfg.Timeout.QueryTimeoutMs = n
		}
	}
	if env := os.Getenv("SIFT_TIMEOUT_TASK_MS"); env != "" {
		if n, err := parseIntEnv(env); err == nil {
			cfg.Timeout.TaskTimeoutMs = n
		}
	}

	if env := os.Getenv("SIFT_DATASETS_LOAD_ON_START"); env != "" {
		cfg.Datasets.LoadOnStart = parseNameList(env)
	}
	if env := os.Getenv("SIFT_DATASETS_SAVE_ON_MUTATE"); env != "" {
		cfg.Datasets.SaveOnMutate = env == "true" || env == "1"
	}

	return cfg, nil
}

func parseIntEnv(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}

func parseNameList(s string) []string {
	var names []string
	for _, name := range strings.Split(s, ",") {
		name = strings.TrimSpace(name)
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}
