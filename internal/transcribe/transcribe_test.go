package transcribe

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type fakeExecutor struct {
	calls [][]string
	fail  bool
}

func (f *fakeExecutor) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.fail {
		return nil, fmt.Errorf("exit status 1")
	}
	// The last argument is the output path.
	out := args[len(args)-1]
	return nil, os.WriteFile(out, []byte("RIFF"), 0o644)
}

func writeTempAudio(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
		t.Fatalf("write temp audio: %v", err)
	}
	return path
}

func TestPrepareAudioPassesThroughWav(t *testing.T) {
	executor := &fakeExecutor{}
	input := writeTempAudio(t, "clip.wav")

	path, cleanup, err := PrepareAudio(context.Background(), executor, "ffmpeg", input)
	defer cleanup()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != input {
		t.Fatalf("wav input should pass through, got %q", path)
	}
	if len(executor.calls) != 0 {
		t.Fatal("wav input should not invoke ffmpeg")
	}
}

func TestPrepareAudioConvertsNonWav(t *testing.T) {
	executor := &fakeExecutor{}
	input := writeTempAudio(t, "clip.mp3")

	path, cleanup, err := PrepareAudio(context.Background(), executor, "ffmpeg", input)
	defer cleanup()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path == input {
		t.Fatal("expected a converted temp file")
	}
	if len(executor.calls) != 1 {
		t.Fatalf("expected one ffmpeg call, got %d", len(executor.calls))
	}
	call := strings.Join(executor.calls[0], " ")
	if !strings.Contains(call, "-ar 16000") || !strings.Contains(call, "-ac 1") {
		t.Fatalf("ffmpeg not asked for 16 kHz mono: %s", call)
	}
}

func TestPrepareAudioFfmpegFailure(t *testing.T) {
	executor := &fakeExecutor{fail: true}
	input := writeTempAudio(t, "clip.mp3")

	_, cleanup, err := PrepareAudio(context.Background(), executor, "ffmpeg", input)
	defer cleanup()
	if err == nil {
		t.Fatal("expected error when ffmpeg fails")
	}
}

func TestPrepareAudioMissingInput(t *testing.T) {
	executor := &fakeExecutor{}
	_, cleanup, err := PrepareAudio(context.Background(), executor, "ffmpeg", "/does/not/exist.mp3")
	defer cleanup()
	if err == nil {
		t.Fatal("expected error for missing input")
	}
}

func TestTranscribeParsesVerboseJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.FormValue("response_format"); got != "verbose_json" {
			t.Errorf("unexpected response_format: %q", got)
		}
		if got := r.FormValue("model"); got != "whisper-large-v3" {
			t.Errorf("unexpected model: %q", got)
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("missing file part: %v", err)
		}
		fmt.Fprint(w, `{
			"text": " hello world ",
			"language": "en",
			"duration": 3.5,
			"segments": [
				{"id": 0, "start": 0.0, "end": 1.5, "text": " hello"},
				{"id": 1, "start": 1.5, "end": 3.5, "text": " world"}
			]
		}`)
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, Model: "whisper-large-v3"})
	result, err := client.Transcribe(context.Background(), Request{
		AudioPath: writeTempAudio(t, "clip.wav"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "hello world" {
		t.Fatalf("unexpected text: %q", result.Text)
	}
	if result.Language != "en" || len(result.Segments) != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestTranscribeSendsLanguageHint(t *testing.T) {
	var gotLanguage string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseMultipartForm(1 << 20)
		gotLanguage = r.FormValue("language")
		fmt.Fprint(w, `{"text":"ok","segments":[]}`)
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, Model: "whisper-large-v3"})
	_, err := client.Transcribe(context.Background(), Request{
		AudioPath: writeTempAudio(t, "clip.wav"),
		Language:  "nl",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotLanguage != "nl" {
		t.Fatalf("unexpected language: %q", gotLanguage)
	}
}

func TestSRTFormatting(t *testing.T) {
	tr := &Transcription{
		Segments: []Segment{
			{ID: 0, Start: 0, End: 1.5, Text: " hello"},
			{ID: 1, Start: 61.25, End: 3661.75, Text: "world "},
		},
	}
	srt := tr.SRT()

	want := "1\n00:00:00,000 --> 00:00:01,500\nhello\n\n" +
		"2\n00:01:01,250 --> 01:01:01,750\nworld\n\n"
	if srt != want {
		t.Fatalf("unexpected SRT output:\n%q\nwant:\n%q", srt, want)
	}
}
