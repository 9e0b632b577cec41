package config

import (
	"os"
	"path/filepath"
	"sync"
	"time"
)

type Config struct {
	ListenHost     string
	ListenPort     int
	LogLevel       string
	DBPath         string
	ConfigDir      string
	Backend        string
	OpenAIEndpoint string
	OpenAIAPIKey   string
	GeminiAPIKey   string
}

var (
	cacheTTL   = 10 * time.Second
	nowFunc    = time.Now
	cacheMu    sync.RWMutex
	cachedCfg  Config
	cachedAt   time.Time
	cacheValid bool
)

func LoadConfig() Config {
	cfg := loadFromEnv()
	cacheMu.Lock()
	cachedCfg = cfg
	cachedAt = nowFunc()
	cacheValid = true
	cacheMu.Unlock()
	return cfg
}

func GetConfig() *Config {
	now := nowFunc()
	cacheMu.RLock()
	valid := cacheValid && now.Sub(cachedAt) < cacheTTL
	if valid {
		out := cachedCfg
		cacheMu.RUnlock()
		return &out
	}
	cacheMu.RUnlock()

	cfg := loadFromEnv()
	cacheMu.Lock()
	cachedCfg = cfg
	cachedAt = now
	cacheValid = true
	cacheMu.Unlock()

	out := cfg
	return &out
}

func loadFromEnv() Config {
	host := os.Getenv("PLANLOOM_HOST")
	if host == "" {
		host = "127.0.0.1"
	}

	port := 4710
	if p := os.Getenv("PLANLOOM_PORT"); p != "" {
		if n := atoiOrDefault(p, 4710); n > 0 {
			port = n
		}
	}

	level := os.Getenv("PLANLOOM_LOG_LEVEL")
	if level == "" {
		level = "info"
	}

	configDir := os.Getenv("PLANLOOM_CONFIG_DIR")
	if configDir == "" {
		configDir = defaultConfigDir()
	}

	dbPath := os.Getenv("PLANLOOM_DB_PATH")
	if dbPath == "" {
		dbPath = filepath.Join(configDir, "planloom.db")
	}

	// Empty means "use the durable config's backend"; the env var is an
	// override, not the default.
	backend := os.Getenv("PLANLOOM_BACKEND")

	return Config{
		ListenHost:     host,
		ListenPort:     port,
		LogLevel:       level,
		DBPath:         dbPath,
		ConfigDir:      configDir,
		Backend:        backend,
		OpenAIEndpoint: os.Getenv("OPENAI_ENDPOINT"),
		OpenAIAPIKey:   os.Getenv("OPENAI_API_KEY"),
		GeminiAPIKey:   os.Getenv("GEMINI_API_KEY"),
	}
}

func defaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".planloom"
	}
	return filepath.Join(home, ".planloom")
}

func atoiOrDefault(v string, fallback int) int {
	n := 0
	for i := 0; i < len(v); i++ {
		if v[i] < '0' || v[i] > '9' {
			return fallback
		}
		n = n*10 + int(v[i]-'0')
	}
	if n == 0 {
		return fallback
	}
	return n
}
