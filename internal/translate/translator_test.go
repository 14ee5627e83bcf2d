package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"aictl/internal/lmstudio"
)

func TestNormalizeLanguage(t *testing.T) {
	got, err := NormalizeLanguage("  dutch ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Dutch" {
		t.Fatalf("unexpected canonical name: %q", got)
	}

	if _, err := NormalizeLanguage("klingon"); err == nil {
		t.Fatal("expected error for unsupported language")
	}
}

func TestSupportedLanguagesSorted(t *testing.T) {
	languages := SupportedLanguages()
	if len(languages) < 30 {
		t.Fatalf("expected a full language table, got %d entries", len(languages))
	}
	for i := 1; i < len(languages); i++ {
		if languages[i-1] >= languages[i] {
			t.Fatalf("languages not sorted at %d: %q >= %q", i, languages[i-1], languages[i])
		}
	}
}

func TestTranslateBuildsPromptAndTrims(t *testing.T) {
	var gotMessages []map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Messages []map[string]any `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		gotMessages = payload.Messages
		fmt.Fprint(w, `{"choices":[{"message":{"content":"  Hallo wereld  "},"finish_reason":"stop"}]}`)
	}))
	defer server.Close()

	client := lmstudio.New(lmstudio.Config{BaseURL: server.URL, Model: "test-model"})
	translator := New(client, nil)

	out, err := translator.Translate(context.Background(), "Hello world", "dutch", "keep it informal")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "Hallo wereld" {
		t.Fatalf("unexpected translation: %q", out)
	}

	if len(gotMessages) != 2 {
		t.Fatalf("expected system + user message, got %d", len(gotMessages))
	}
	system := gotMessages[0]["content"].(string)
	if !strings.Contains(system, "Dutch") {
		t.Fatalf("system prompt should name the language: %q", system)
	}
	if !strings.Contains(system, "keep it informal") {
		t.Fatalf("system prompt should carry instructions: %q", system)
	}
	if gotMessages[1]["content"] != "Hello world" {
		t.Fatalf("unexpected user message: %v", gotMessages[1])
	}
}

func TestTranslateRejectsEmptyInput(t *testing.T) {
	client := lmstudio.New(lmstudio.Config{BaseURL: "http://localhost:1", Model: "m"})
	translator := New(client, nil)
	if _, err := translator.Translate(context.Background(), "   ", "dutch", ""); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestTranslateRejectsUnknownLanguage(t *testing.T) {
	client := lmstudio.New(lmstudio.Config{BaseURL: "http://localhost:1", Model: "m"})
	translator := New(client, nil)
	if _, err := translator.Translate(context.Background(), "hi", "klingon", ""); err == nil {
		t.Fatal("expected error for unknown language")
	}
}
