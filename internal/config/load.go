package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvLookup resolves environment variables. It mirrors os.LookupEnv.
type EnvLookup func(key string) (string, bool)

// DefaultEnvLookup reads from the process environment.
func DefaultEnvLookup(key string) (string, bool) { return os.LookupEnv(key) }

type loadOptions struct {
	envLookup  EnvLookup
	readFile   func(string) ([]byte, error)
	homeDir    func() (string, error)
	configFile string
	overrides  Overrides
}

// Option customizes Load behavior, mainly for tests.
type Option func(*loadOptions)

// WithEnv replaces the environment lookup.
func WithEnv(lookup EnvLookup) Option {
	return func(o *loadOptions) { o.envLookup = lookup }
}

// WithFileReader replaces the file reader.
func WithFileReader(read func(string) ([]byte, error)) Option {
	return func(o *loadOptions) { o.readFile = read }
}

// WithHomeDir replaces home directory resolution.
func WithHomeDir(home func() (string, error)) Option {
	return func(o *loadOptions) { o.homeDir = home }
}

// WithConfigFile forces a specific config file instead of the search path.
func WithConfigFile(path string) Option {
	return func(o *loadOptions) { o.configFile = path }
}

// WithOverrides applies caller-supplied values after file and environment.
func WithOverrides(overrides Overrides) Option {
	return func(o *loadOptions) { o.overrides = overrides }
}

// Overrides carries caller-level settings, typically from CLI flags.
// Nil fields leave the loaded value untouched.
type Overrides struct {
	LMStudioBaseURL *string
	DeepStackURL    *string
	ComfyUIURL      *string
	ChatModel       *string
	VisionModel     *string
	EmbeddingModel  *string
	WhisperModel    *string
	ImageModel      *string
	Temperature     *float64
	MaxTokens       *int
	MinConfidence   *float64
	TimeoutSeconds  *int
	IndexDir        *string
	ServeAddr       *string
	Verbose         *bool
}

// fileConfig mirrors RuntimeConfig with pointer fields so absent keys
// can be told apart from zero values.
type fileConfig struct {
	LMStudioBaseURL *string  `json:"lmstudio_base_url" yaml:"lmstudio_base_url"`
	DeepStackURL    *string  `json:"deepstack_url" yaml:"deepstack_url"`
	DeepStackAPIKey *string  `json:"deepstack_api_key" yaml:"deepstack_api_key"`
	ComfyUIURL      *string  `json:"comfyui_url" yaml:"comfyui_url"`
	ChatModel       *string  `json:"chat_model" yaml:"chat_model"`
	VisionModel     *string  `json:"vision_model" yaml:"vision_model"`
	EmbeddingModel  *string  `json:"embedding_model" yaml:"embedding_model"`
	WhisperModel    *string  `json:"whisper_model" yaml:"whisper_model"`
	ImageModel      *string  `json:"image_model" yaml:"image_model"`
	Temperature     *float64 `json:"temperature" yaml:"temperature"`
	MaxTokens       *int     `json:"max_tokens" yaml:"max_tokens"`
	MinConfidence   *float64 `json:"min_confidence" yaml:"min_confidence"`
	TimeoutSeconds  *int     `json:"timeout_seconds" yaml:"timeout_seconds"`
	ModelLoadTTL    *int     `json:"model_load_ttl_seconds" yaml:"model_load_ttl_seconds"`
	EmbedCacheSize  *int     `json:"embed_cache_size" yaml:"embed_cache_size"`
	IndexWorkers    *int     `json:"index_workers" yaml:"index_workers"`
	IndexDir        *string  `json:"index_dir" yaml:"index_dir"`
	ServeAddr       *string  `json:"serve_addr" yaml:"serve_addr"`
	FFmpegBin       *string  `json:"ffmpeg_bin" yaml:"ffmpeg_bin"`
	Verbose         *bool    `json:"verbose" yaml:"verbose"`

	HTTPLimits *struct {
		DefaultMaxResponseBytes *int `json:"default_max_response_bytes" yaml:"default_max_response_bytes"`
	} `json:"http_limits" yaml:"http_limits"`
}

// Load builds the runtime configuration from defaults, the config file,
// environment variables and caller overrides, in that order of precedence.
func Load(opts ...Option) (RuntimeConfig, Metadata, error) {
	options := loadOptions{
		envLookup: DefaultEnvLookup,
		readFile:  os.ReadFile,
		homeDir:   os.UserHomeDir,
	}
	for _, opt := range opts {
		opt(&options)
	}

	meta := Metadata{sources: map[string]ValueSource{}, loadedAt: time.Now()}

	cfg := RuntimeConfig{
		LMStudioBaseURL: DefaultLMStudioBaseURL,
		DeepStackURL:    DefaultDeepStackURL,
		ComfyUIURL:      DefaultComfyUIURL,
		ChatModel:       DefaultChatModel,
		VisionModel:     DefaultVisionModel,
		EmbeddingModel:  DefaultEmbeddingModel,
		WhisperModel:    DefaultWhisperModel,
		ImageModel:      DefaultImageModel,
		Temperature:     DefaultTemperature,
		MaxTokens:       DefaultMaxTokens,
		MinConfidence:   DefaultMinConfidence,
		TimeoutSeconds:  int(DefaultRequestTimeout.Seconds()),
		ModelLoadTTL:    DefaultModelLoadTTL,
		EmbedCacheSize:  DefaultEmbedCacheSize,
		IndexWorkers:    DefaultIndexWorkers,
		IndexDir:        defaultIndexDir(options.homeDir),
		ServeAddr:       DefaultServeAddr,
		FFmpegBin:       "ffmpeg",
		HTTPLimits: HTTPLimitsConfig{
			DefaultMaxResponseBytes: DefaultHTTPMaxResponse,
		},
	}

	if err := applyFile(&cfg, &meta, options); err != nil {
		return RuntimeConfig{}, Metadata{}, err
	}
	applyEnv(&cfg, &meta, options.envLookup)
	applyOverrides(&cfg, &meta, options.overrides)

	normalize(&cfg)
	return cfg, meta, nil
}

func defaultIndexDir(homeDir func() (string, error)) string {
	home, err := homeDir()
	if err != nil || home == "" {
		return ".aictl/index"
	}
	return filepath.Join(home, ".aictl", "index")
}

func configSearchPath(options loadOptions) []string {
	if options.configFile != "" {
		return []string{options.configFile}
	}
	paths := []string{"aictl.yaml", "aictl.yml", ".aictl.yaml"}
	if home, err := options.homeDir(); err == nil && home != "" {
		paths = append(paths, filepath.Join(home, ".aictl.json"))
	}
	return paths
}

func applyFile(cfg *RuntimeConfig, meta *Metadata, options loadOptions) error {
	for _, path := range configSearchPath(options) {
		data, err := options.readFile(path)
		if err != nil {
			if options.configFile != "" {
				return fmt.Errorf("read config %s: %w", path, err)
			}
			continue
		}

		var fc fileConfig
		if strings.HasSuffix(path, ".json") {
			err = json.Unmarshal(data, &fc)
		} else {
			err = yaml.Unmarshal(data, &fc)
		}
		if err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}

		meta.filePath = path
		mergeFileConfig(cfg, meta, fc)
		return nil
	}
	return nil
}

func mergeFileConfig(cfg *RuntimeConfig, meta *Metadata, fc fileConfig) {
	setStr := func(field string, dst *string, src *string) {
		if src != nil {
			*dst = *src
			meta.sources[field] = SourceFile
		}
	}
	setInt := func(field string, dst *int, src *int) {
		if src != nil {
			*dst = *src
			meta.sources[field] = SourceFile
		}
	}
	setFloat := func(field string, dst *float64, src *float64) {
		if src != nil {
			*dst = *src
			meta.sources[field] = SourceFile
		}
	}

	setStr("lmstudio_base_url", &cfg.LMStudioBaseURL, fc.LMStudioBaseURL)
	setStr("deepstack_url", &cfg.DeepStackURL, fc.DeepStackURL)
	setStr("deepstack_api_key", &cfg.DeepStackAPIKey, fc.DeepStackAPIKey)
	setStr("comfyui_url", &cfg.ComfyUIURL, fc.ComfyUIURL)
	setStr("chat_model", &cfg.ChatModel, fc.ChatModel)
	setStr("vision_model", &cfg.VisionModel, fc.VisionModel)
	setStr("embedding_model", &cfg.EmbeddingModel, fc.EmbeddingModel)
	setStr("whisper_model", &cfg.WhisperModel, fc.WhisperModel)
	setStr("image_model", &cfg.ImageModel, fc.ImageModel)
	setFloat("temperature", &cfg.Temperature, fc.Temperature)
	setInt("max_tokens", &cfg.MaxTokens, fc.MaxTokens)
	setFloat("min_confidence", &cfg.MinConfidence, fc.MinConfidence)
	setInt("timeout_seconds", &cfg.TimeoutSeconds, fc.TimeoutSeconds)
	setInt("model_load_ttl_seconds", &cfg.ModelLoadTTL, fc.ModelLoadTTL)
	setInt("embed_cache_size", &cfg.EmbedCacheSize, fc.EmbedCacheSize)
	setInt("index_workers", &cfg.IndexWorkers, fc.IndexWorkers)
	setStr("index_dir", &cfg.IndexDir, fc.IndexDir)
	setStr("serve_addr", &cfg.ServeAddr, fc.ServeAddr)
	setStr("ffmpeg_bin", &cfg.FFmpegBin, fc.FFmpegBin)
	if fc.Verbose != nil {
		cfg.Verbose = *fc.Verbose
		meta.sources["verbose"] = SourceFile
	}
	if fc.HTTPLimits != nil && fc.HTTPLimits.DefaultMaxResponseBytes != nil {
		cfg.HTTPLimits.DefaultMaxResponseBytes = *fc.HTTPLimits.DefaultMaxResponseBytes
		meta.sources["http_limits.default_max_response_bytes"] = SourceFile
	}
}

func applyEnv(cfg *RuntimeConfig, meta *Metadata, lookup EnvLookup) {
	setStr := func(key, field string, dst *string) {
		if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
			*dst = value
			meta.sources[field] = SourceEnv
		}
	}
	setInt := func(key, field string, dst *int) {
		if value, ok := lookup(key); ok {
			if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
				*dst = parsed
				meta.sources[field] = SourceEnv
			}
		}
	}
	setFloat := func(key, field string, dst *float64) {
		if value, ok := lookup(key); ok {
			if parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
				*dst = parsed
				meta.sources[field] = SourceEnv
			}
		}
	}

	setStr("AICTL_LMSTUDIO_URL", "lmstudio_base_url", &cfg.LMStudioBaseURL)
	setStr("AICTL_DEEPSTACK_URL", "deepstack_url", &cfg.DeepStackURL)
	setStr("AICTL_DEEPSTACK_API_KEY", "deepstack_api_key", &cfg.DeepStackAPIKey)
	setStr("AICTL_COMFYUI_URL", "comfyui_url", &cfg.ComfyUIURL)
	setStr("AICTL_CHAT_MODEL", "chat_model", &cfg.ChatModel)
	setStr("AICTL_VISION_MODEL", "vision_model", &cfg.VisionModel)
	setStr("AICTL_EMBEDDING_MODEL", "embedding_model", &cfg.EmbeddingModel)
	setStr("AICTL_WHISPER_MODEL", "whisper_model", &cfg.WhisperModel)
	setStr("AICTL_IMAGE_MODEL", "image_model", &cfg.ImageModel)
	setFloat("AICTL_TEMPERATURE", "temperature", &cfg.Temperature)
	setInt("AICTL_MAX_TOKENS", "max_tokens", &cfg.MaxTokens)
	setFloat("AICTL_MIN_CONFIDENCE", "min_confidence", &cfg.MinConfidence)
	setInt("AICTL_TIMEOUT_SECONDS", "timeout_seconds", &cfg.TimeoutSeconds)
	setInt("AICTL_MODEL_LOAD_TTL", "model_load_ttl_seconds", &cfg.ModelLoadTTL)
	setInt("AICTL_INDEX_WORKERS", "index_workers", &cfg.IndexWorkers)
	setStr("AICTL_INDEX_DIR", "index_dir", &cfg.IndexDir)
	setStr("AICTL_SERVE_ADDR", "serve_addr", &cfg.ServeAddr)
	setStr("AICTL_FFMPEG", "ffmpeg_bin", &cfg.FFmpegBin)

	if value, ok := lookup("AICTL_VERBOSE"); ok {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			cfg.Verbose = parsed
			meta.sources["verbose"] = SourceEnv
		}
	}
}

func applyOverrides(cfg *RuntimeConfig, meta *Metadata, ov Overrides) {
	setStr := func(field string, dst *string, src *string) {
		if src != nil && strings.TrimSpace(*src) != "" {
			*dst = *src
			meta.sources[field] = SourceOverride
		}
	}

	setStr("lmstudio_base_url", &cfg.LMStudioBaseURL, ov.LMStudioBaseURL)
	setStr("deepstack_url", &cfg.DeepStackURL, ov.DeepStackURL)
	setStr("comfyui_url", &cfg.ComfyUIURL, ov.ComfyUIURL)
	setStr("chat_model", &cfg.ChatModel, ov.ChatModel)
	setStr("vision_model", &cfg.VisionModel, ov.VisionModel)
	setStr("embedding_model", &cfg.EmbeddingModel, ov.EmbeddingModel)
	setStr("whisper_model", &cfg.WhisperModel, ov.WhisperModel)
	setStr("image_model", &cfg.ImageModel, ov.ImageModel)
	setStr("index_dir", &cfg.IndexDir, ov.IndexDir)
	setStr("serve_addr", &cfg.ServeAddr, ov.ServeAddr)

	if ov.Temperature != nil {
		cfg.Temperature = *ov.Temperature
		meta.sources["temperature"] = SourceOverride
	}
	if ov.MaxTokens != nil && *ov.MaxTokens > 0 {
		cfg.MaxTokens = *ov.MaxTokens
		meta.sources["max_tokens"] = SourceOverride
	}
	if ov.MinConfidence != nil {
		cfg.MinConfidence = *ov.MinConfidence
		meta.sources["min_confidence"] = SourceOverride
	}
	if ov.TimeoutSeconds != nil && *ov.TimeoutSeconds > 0 {
		cfg.TimeoutSeconds = *ov.TimeoutSeconds
		meta.sources["timeout_seconds"] = SourceOverride
	}
	if ov.Verbose != nil {
		cfg.Verbose = *ov.Verbose
		meta.sources["verbose"] = SourceOverride
	}
}

func normalize(cfg *RuntimeConfig) {
	cfg.LMStudioBaseURL = strings.TrimRight(strings.TrimSpace(cfg.LMStudioBaseURL), "/")
	cfg.DeepStackURL = strings.TrimRight(strings.TrimSpace(cfg.DeepStackURL), "/")
	cfg.ComfyUIURL = strings.TrimRight(strings.TrimSpace(cfg.ComfyUIURL), "/")
	cfg.ChatModel = strings.TrimSpace(cfg.ChatModel)
	cfg.VisionModel = strings.TrimSpace(cfg.VisionModel)
	cfg.EmbeddingModel = strings.TrimSpace(cfg.EmbeddingModel)
	cfg.WhisperModel = strings.TrimSpace(cfg.WhisperModel)
	cfg.ImageModel = strings.TrimSpace(cfg.ImageModel)
	cfg.IndexDir = strings.TrimSpace(cfg.IndexDir)
	cfg.ServeAddr = strings.TrimSpace(cfg.ServeAddr)
	cfg.FFmpegBin = strings.TrimSpace(cfg.FFmpegBin)

	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.MinConfidence < 0 || cfg.MinConfidence > 1 {
		cfg.MinConfidence = DefaultMinConfidence
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = int(DefaultRequestTimeout.Seconds())
	}
	if cfg.EmbedCacheSize < 0 {
		cfg.EmbedCacheSize = 0
	}
	if cfg.IndexWorkers <= 0 {
		cfg.IndexWorkers = DefaultIndexWorkers
	}
	if cfg.HTTPLimits.DefaultMaxResponseBytes <= 0 {
		cfg.HTTPLimits.DefaultMaxResponseBytes = DefaultHTTPMaxResponse
	}
}
