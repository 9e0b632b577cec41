package global

import (
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	configTOMLFileName = "config.toml"

	BackendOpenAI = "openai"
	BackendGemini = "gemini"
)

type ModelPair struct {
	Model         string `json:"model" toml:"model"`
	FallbackModel string `json:"fallback_model" toml:"fallback_model"`
}

type PlanningConfig struct {
	DecomposeAttempts int `json:"decompose_attempts" toml:"decompose_attempts"`
	MinSubtasks       int `json:"min_subtasks" toml:"min_subtasks"`
	MaxSubtasks       int `json:"max_subtasks" toml:"max_subtasks"`
}

type GlobalConfig struct {
	Backend  string         `json:"backend" toml:"backend"`
	OpenAI   ModelPair      `json:"openai" toml:"openai"`
	Gemini   ModelPair      `json:"gemini" toml:"gemini"`
	Planning PlanningConfig `json:"planning" toml:"planning"`
}

type ConfigStore struct {
	dir string
}

func NewConfigStore(dir string) *ConfigStore {
	return &ConfigStore{dir: dir}
}

func (s *ConfigStore) LoadOrInit() (GlobalConfig, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return GlobalConfig{}, err
	}

	path := filepath.Join(s.dir, configTOMLFileName)
	if b, err := os.ReadFile(path); err == nil {
		var cfg GlobalConfig
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return GlobalConfig{}, err
		}
		return normalizeConfig(cfg), nil
	} else if !os.IsNotExist(err) {
		return GlobalConfig{}, err
	}

	cfg := normalizeConfig(GlobalConfig{})
	if err := writeTOMLAtomically(path, cfg); err != nil {
		return GlobalConfig{}, err
	}
	return cfg, nil
}

func (s *ConfigStore) Save(cfg GlobalConfig) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	return writeTOMLAtomically(filepath.Join(s.dir, configTOMLFileName), normalizeConfig(cfg))
}

func normalizeConfig(cfg GlobalConfig) GlobalConfig {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case BackendGemini:
		cfg.Backend = BackendGemini
	default:
		cfg.Backend = BackendOpenAI
	}
	cfg.OpenAI = normalizeModelPair(cfg.OpenAI, "gpt-4o", "gpt-4o-mini")
	cfg.Gemini = normalizeModelPair(cfg.Gemini, "gemini-2.0-flash", "gemini-1.5-flash")
	cfg.Planning = normalizePlanning(cfg.Planning)
	return cfg
}

func normalizeModelPair(pair ModelPair, defaultModel, defaultFallback string) ModelPair {
	pair.Model = strings.TrimSpace(pair.Model)
	pair.FallbackModel = strings.TrimSpace(pair.FallbackModel)
	if pair.Model == "" {
		pair.Model = defaultModel
	}
	if pair.FallbackModel == "" {
		pair.FallbackModel = defaultFallback
	}
	return pair
}

func normalizePlanning(p PlanningConfig) PlanningConfig {
	if p.DecomposeAttempts < 1 {
		p.DecomposeAttempts = 3
	}
	if p.MinSubtasks < 2 {
		p.MinSubtasks = 2
	}
	if p.MaxSubtasks < p.MinSubtasks {
		p.MaxSubtasks = 5
	}
	return p
}

func writeTOMLAtomically(path string, v any) error {
	b, err := toml.Marshal(v)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
