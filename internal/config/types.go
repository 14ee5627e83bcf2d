package config

import (
	"sort"
	"time"
)

// ValueSource describes where a configuration value originated from.
type ValueSource string

const (
	SourceDefault  ValueSource = "default"
	SourceFile     ValueSource = "file"
	SourceEnv      ValueSource = "environment"
	SourceOverride ValueSource = "override"
)

const (
	DefaultLMStudioBaseURL = "http://localhost:1234"
	DefaultDeepStackURL    = "http://localhost:5000"
	DefaultComfyUIURL      = "http://localhost:8188"

	DefaultChatModel      = "qwen2.5-14b-instruct"
	DefaultVisionModel    = "minicpm-v-2.6"
	DefaultEmbeddingModel = "text-embedding-nomic-embed-text-v1.5"
	DefaultWhisperModel   = "whisper-large-v3"
	DefaultImageModel     = "flux1-schnell"

	DefaultMaxTokens       = 8192
	DefaultTemperature     = 0.2
	DefaultMinConfidence   = 0.5
	DefaultRequestTimeout  = 120 * time.Second
	DefaultModelLoadTTL    = 1800 // seconds the loaded model stays resident
	DefaultEmbedCacheSize  = 256
	DefaultHTTPMaxResponse = 32 << 20
	DefaultServeAddr       = "127.0.0.1:8787"
	DefaultIndexWorkers    = 4
)

// RuntimeConfig captures user-configurable settings shared across commands.
type RuntimeConfig struct {
	LMStudioBaseURL string `json:"lmstudio_base_url" yaml:"lmstudio_base_url"`
	DeepStackURL    string `json:"deepstack_url" yaml:"deepstack_url"`
	DeepStackAPIKey string `json:"deepstack_api_key" yaml:"deepstack_api_key"`
	ComfyUIURL      string `json:"comfyui_url" yaml:"comfyui_url"`

	ChatModel      string `json:"chat_model" yaml:"chat_model"`
	VisionModel    string `json:"vision_model" yaml:"vision_model"`
	EmbeddingModel string `json:"embedding_model" yaml:"embedding_model"`
	WhisperModel   string `json:"whisper_model" yaml:"whisper_model"`
	ImageModel     string `json:"image_model" yaml:"image_model"`

	Temperature    float64 `json:"temperature" yaml:"temperature"`
	MaxTokens      int     `json:"max_tokens" yaml:"max_tokens"`
	MinConfidence  float64 `json:"min_confidence" yaml:"min_confidence"`
	TimeoutSeconds int     `json:"timeout_seconds" yaml:"timeout_seconds"`
	ModelLoadTTL   int     `json:"model_load_ttl_seconds" yaml:"model_load_ttl_seconds"`
	EmbedCacheSize int     `json:"embed_cache_size" yaml:"embed_cache_size"`
	IndexWorkers   int     `json:"index_workers" yaml:"index_workers"`

	IndexDir  string `json:"index_dir" yaml:"index_dir"`
	ServeAddr string `json:"serve_addr" yaml:"serve_addr"`
	FFmpegBin string `json:"ffmpeg_bin" yaml:"ffmpeg_bin"`

	Verbose bool `json:"verbose" yaml:"verbose"`

	HTTPLimits HTTPLimitsConfig `json:"http_limits" yaml:"http_limits"`
}

// HTTPLimitsConfig controls maximum response sizes for outbound HTTP calls.
type HTTPLimitsConfig struct {
	DefaultMaxResponseBytes int `json:"default_max_response_bytes" yaml:"default_max_response_bytes"`
}

// Timeout returns the request timeout as a duration.
func (c RuntimeConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return DefaultRequestTimeout
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Metadata records per-field provenance for a loaded configuration.
type Metadata struct {
	sources  map[string]ValueSource
	filePath string
	loadedAt time.Time
}

// Source reports where the named field's value came from.
func (m Metadata) Source(field string) ValueSource {
	if src, ok := m.sources[field]; ok {
		return src
	}
	return SourceDefault
}

// FilePath returns the config file that contributed values, if any.
func (m Metadata) FilePath() string { return m.filePath }

// LoadedAt returns when the configuration snapshot was built.
func (m Metadata) LoadedAt() time.Time { return m.loadedAt }

// Fields returns the names of all fields with non-default provenance, sorted.
func (m Metadata) Fields() []string {
	fields := make([]string, 0, len(m.sources))
	for field := range m.sources {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}
