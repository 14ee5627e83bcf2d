package config

import (
	"os"
	"testing"
)

func noFiles(string) ([]byte, error) { return nil, os.ErrNotExist }

func fakeHome() (string, error) { return "/home/tester", nil }

func envFrom(values map[string]string) EnvLookup {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, meta, err := Load(
		WithFileReader(noFiles),
		WithHomeDir(fakeHome),
		WithEnv(envFrom(nil)),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LMStudioBaseURL != DefaultLMStudioBaseURL {
		t.Fatalf("unexpected LM Studio URL: %q", cfg.LMStudioBaseURL)
	}
	if cfg.DeepStackURL != DefaultDeepStackURL {
		t.Fatalf("unexpected DeepStack URL: %q", cfg.DeepStackURL)
	}
	if cfg.IndexDir != "/home/tester/.aictl/index" {
		t.Fatalf("unexpected index dir: %q", cfg.IndexDir)
	}
	if meta.Source("chat_model") != SourceDefault {
		t.Fatalf("expected default provenance, got %v", meta.Source("chat_model"))
	}
}

func TestLoadFileThenEnvPrecedence(t *testing.T) {
	readFile := func(path string) ([]byte, error) {
		if path == "aictl.yaml" {
			return []byte("chat_model: from-file\ntemperature: 0.9\n"), nil
		}
		return nil, os.ErrNotExist
	}

	cfg, meta, err := Load(
		WithFileReader(readFile),
		WithHomeDir(fakeHome),
		WithEnv(envFrom(map[string]string{
			"AICTL_CHAT_MODEL": "from-env",
		})),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ChatModel != "from-env" {
		t.Fatalf("env should win over file, got %q", cfg.ChatModel)
	}
	if meta.Source("chat_model") != SourceEnv {
		t.Fatalf("expected env provenance, got %v", meta.Source("chat_model"))
	}
	if cfg.Temperature != 0.9 {
		t.Fatalf("file temperature should survive, got %v", cfg.Temperature)
	}
	if meta.Source("temperature") != SourceFile {
		t.Fatalf("expected file provenance, got %v", meta.Source("temperature"))
	}
	if meta.FilePath() != "aictl.yaml" {
		t.Fatalf("unexpected file path: %q", meta.FilePath())
	}
}

func TestLoadOverridesWinLast(t *testing.T) {
	model := "from-flag"
	cfg, meta, err := Load(
		WithFileReader(noFiles),
		WithHomeDir(fakeHome),
		WithEnv(envFrom(map[string]string{"AICTL_CHAT_MODEL": "from-env"})),
		WithOverrides(Overrides{ChatModel: &model}),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ChatModel != "from-flag" {
		t.Fatalf("override should win, got %q", cfg.ChatModel)
	}
	if meta.Source("chat_model") != SourceOverride {
		t.Fatalf("expected override provenance, got %v", meta.Source("chat_model"))
	}
}

func TestLoadHomeJSONConfig(t *testing.T) {
	readFile := func(path string) ([]byte, error) {
		if path == "/home/tester/.aictl.json" {
			return []byte(`{"deepstack_url": "http://127.0.0.1:5555/"}`), nil
		}
		return nil, os.ErrNotExist
	}

	cfg, _, err := Load(
		WithFileReader(readFile),
		WithHomeDir(fakeHome),
		WithEnv(envFrom(nil)),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DeepStackURL != "http://127.0.0.1:5555" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.DeepStackURL)
	}
}

func TestLoadExplicitConfigFileMissingFails(t *testing.T) {
	_, _, err := Load(
		WithFileReader(noFiles),
		WithHomeDir(fakeHome),
		WithEnv(envFrom(nil)),
		WithConfigFile("/etc/aictl/custom.yaml"),
	)
	if err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestNormalizeClampsInvalidValues(t *testing.T) {
	cfg, _, err := Load(
		WithFileReader(noFiles),
		WithHomeDir(fakeHome),
		WithEnv(envFrom(map[string]string{
			"AICTL_MIN_CONFIDENCE":  "3.5",
			"AICTL_TIMEOUT_SECONDS": "-1",
		})),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MinConfidence != DefaultMinConfidence {
		t.Fatalf("out-of-range confidence should reset, got %v", cfg.MinConfidence)
	}
	if cfg.TimeoutSeconds != int(DefaultRequestTimeout.Seconds()) {
		t.Fatalf("negative timeout should reset, got %v", cfg.TimeoutSeconds)
	}
}
