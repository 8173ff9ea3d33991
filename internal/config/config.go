package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server ServerConfig `yaml:"server"`
	Ollama OllamaConfig `yaml:"ollama"`
	Store  StoreConfig  `yaml:"store"`
	Log    LogConfig    `yaml:"log"`
}

// Load 从环境变量加载配置。若设置了 TUTOR_CONFIG，则先读取该 YAML 文件作为基础值，
// 环境变量再覆盖其中的字段。
func Load() (*Config, error) {
	base, err := loadFile(strings.TrimSpace(os.Getenv("TUTOR_CONFIG")))
	if err != nil {
		return nil, err
	}

	server, err := loadServerConfig(base.Server)
	if err != nil {
		return nil, err
	}

	ollama, err := loadOllamaConfig(base.Ollama)
	if err != nil {
		return nil, err
	}

	store, err := loadStoreConfig(base.Store)
	if err != nil {
		return nil, err
	}

	logCfg, err := loadLogConfig(base.Log)
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, Ollama: ollama, Store: store, Log: logCfg}, nil
}

// loadFile 解析可选的 YAML 配置文件。
func loadFile(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig(base ServerConfig) (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = base.Addr
	}
	if port == "" {
		port = "8000"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8000" 或 "127.0.0.1:8000"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// OllamaConfig 描述本地推理后端及采样参数。
type OllamaConfig struct {
	BaseURL       string  `yaml:"baseURL"`
	Model         string  `yaml:"model"`
	Temperature   float64 `yaml:"temperature"`
	TopP          float64 `yaml:"topP"`
	TopK          int     `yaml:"topK"`
	RepeatPenalty float64 `yaml:"repeatPenalty"`
	NumPredict    int     `yaml:"numPredict"`
	HistoryLimit  int     `yaml:"historyLimit"`
}

// DefaultOllamaConfig 返回与 gemma3n 导师模式匹配的默认值。
func DefaultOllamaConfig() OllamaConfig {
	return OllamaConfig{
		BaseURL:       "http://localhost:11434",
		Model:         "gemma3n",
		Temperature:   0.7,
		TopP:          0.9,
		TopK:          40,
		RepeatPenalty: 1.1,
		NumPredict:    512,
		HistoryLimit:  20,
	}
}

// Options 生成 /api/chat 请求中的 options 字段。
func (c OllamaConfig) Options() map[string]any {
	return map[string]any{
		"temperature":    c.Temperature,
		"top_p":          c.TopP,
		"top_k":          c.TopK,
		"repeat_penalty": c.RepeatPenalty,
		"num_predict":    c.NumPredict,
	}
}

// URL 解析后端地址。
func (c OllamaConfig) URL() (*url.URL, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid OLLAMA_BASE_URL %q: %w", c.BaseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid OLLAMA_BASE_URL %q: scheme and host are required", c.BaseURL)
	}
	return u, nil
}

func loadOllamaConfig(base OllamaConfig) (OllamaConfig, error) {
	cfg := DefaultOllamaConfig()
	mergeOllama(&cfg, base)

	cfg.BaseURL = strings.TrimRight(getEnvOrDefault("OLLAMA_BASE_URL", cfg.BaseURL), "/")
	cfg.Model = getEnvOrDefault("OLLAMA_MODEL", cfg.Model)

	floats := []struct {
		key string
		dst *float64
	}{
		{"OLLAMA_TEMPERATURE", &cfg.Temperature},
		{"OLLAMA_TOP_P", &cfg.TopP},
		{"OLLAMA_REPEAT_PENALTY", &cfg.RepeatPenalty},
	}
	for _, f := range floats {
		val, err := parseOptionalFloatEnv(f.key)
		if err != nil {
			return OllamaConfig{}, err
		}
		if val != nil {
			*f.dst = *val
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"OLLAMA_TOP_K", &cfg.TopK},
		{"OLLAMA_NUM_PREDICT", &cfg.NumPredict},
		{"CHAT_HISTORY_LIMIT", &cfg.HistoryLimit},
	}
	for _, i := range ints {
		val, err := parseOptionalIntEnv(i.key)
		if err != nil {
			return OllamaConfig{}, err
		}
		if val != nil {
			*i.dst = *val
		}
	}

	if cfg.HistoryLimit < 0 {
		cfg.HistoryLimit = 0
	}
	if _, err := cfg.URL(); err != nil {
		return OllamaConfig{}, err
	}
	return cfg, nil
}

func mergeOllama(dst *OllamaConfig, src OllamaConfig) {
	if src.BaseURL != "" {
		dst.BaseURL = src.BaseURL
	}
	if src.Model != "" {
		dst.Model = src.Model
	}
	if src.Temperature != 0 {
		dst.Temperature = src.Temperature
	}
	if src.TopP != 0 {
		dst.TopP = src.TopP
	}
	if src.TopK != 0 {
		dst.TopK = src.TopK
	}
	if src.RepeatPenalty != 0 {
		dst.RepeatPenalty = src.RepeatPenalty
	}
	if src.NumPredict != 0 {
		dst.NumPredict = src.NumPredict
	}
	if src.HistoryLimit != 0 {
		dst.HistoryLimit = src.HistoryLimit
	}
}

// StoreDriver 选择会话文档的存储介质。
type StoreDriver string

const (
	StoreDriverFile   StoreDriver = "file"
	StoreDriverSQLite StoreDriver = "sqlite"
)

// StoreConfig 描述会话存储位置。
type StoreConfig struct {
	Driver     StoreDriver `yaml:"driver"`
	File       string      `yaml:"file"`
	SQLitePath string      `yaml:"sqlitePath"`
}

func loadStoreConfig(base StoreConfig) (StoreConfig, error) {
	cfg := StoreConfig{
		Driver:     StoreDriverFile,
		File:       "data/chats.json",
		SQLitePath: "data/chats.db",
	}
	if base.Driver != "" {
		cfg.Driver = base.Driver
	}
	if base.File != "" {
		cfg.File = base.File
	}
	if base.SQLitePath != "" {
		cfg.SQLitePath = base.SQLitePath
	}

	cfg.Driver = StoreDriver(strings.ToLower(getEnvOrDefault("STORE_DRIVER", string(cfg.Driver))))
	cfg.File = getEnvOrDefault("CHATS_FILE", cfg.File)
	cfg.SQLitePath = getEnvOrDefault("CHATS_SQLITE_PATH", cfg.SQLitePath)

	switch cfg.Driver {
	case StoreDriverFile, StoreDriverSQLite:
		return cfg, nil
	default:
		return StoreConfig{}, fmt.Errorf("invalid STORE_DRIVER value %q", cfg.Driver)
	}
}

// LogConfig 描述日志级别与输出格式。
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ZerologLevel 返回解析后的日志级别。
func (c LogConfig) ZerologLevel() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.Level)
	if err != nil || c.Level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// Console 表示是否使用人类可读的控制台输出。
func (c LogConfig) Console() bool {
	return c.Format == "console"
}

func loadLogConfig(base LogConfig) (LogConfig, error) {
	cfg := LogConfig{
		Level:  getEnvOrDefault("LOG_LEVEL", base.Level),
		Format: strings.ToLower(getEnvOrDefault("LOG_FORMAT", base.Format)),
	}
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if _, err := zerolog.ParseLevel(cfg.Level); err != nil {
		return LogConfig{}, fmt.Errorf("invalid LOG_LEVEL value %q: %w", cfg.Level, err)
	}
	if cfg.Format == "" {
		cfg.Format = "json"
	}
	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
