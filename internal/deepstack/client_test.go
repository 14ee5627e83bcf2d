package deepstack

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	aierrors "aictl/internal/errors"
)

func writeTempImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "photo.jpg")
	if err := os.WriteFile(path, []byte("not really a jpeg"), 0o644); err != nil {
		t.Fatalf("write temp image: %v", err)
	}
	return path
}

func TestDetectObjectsFiltersByConfidence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/vision/detection" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if _, _, err := r.FormFile("image"); err != nil {
			t.Errorf("missing image part: %v", err)
		}
		fmt.Fprint(w, `{"success":true,"predictions":[
			{"label":"person","confidence":0.92,"x_min":10,"y_min":10,"x_max":50,"y_max":90},
			{"label":"dog","confidence":0.3,"x_min":0,"y_min":0,"x_max":5,"y_max":5}
		]}`)
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, MinConfidence: 0.5})
	preds, err := client.DetectObjects(context.Background(), writeTempImage(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(preds) != 1 {
		t.Fatalf("expected low-confidence prediction filtered, got %d", len(preds))
	}
	if preds[0].Label != "person" {
		t.Fatalf("unexpected label: %q", preds[0].Label)
	}
}

func TestRecognizeFacesReturnsIdentities(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":true,"predictions":[
			{"userid":"alice","confidence":0.88,"x_min":1,"y_min":1,"x_max":2,"y_max":2},
			{"userid":"unknown","confidence":0.6,"x_min":3,"y_min":3,"x_max":4,"y_max":4}
		]}`)
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL})
	preds, err := client.RecognizeFaces(context.Background(), writeTempImage(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(preds) != 2 {
		t.Fatalf("expected 2 predictions, got %d", len(preds))
	}
	if preds[0].UserID != "alice" {
		t.Fatalf("unexpected identity: %q", preds[0].UserID)
	}
}

func TestRegisterFaceSendsIdentity(t *testing.T) {
	var gotUserID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/vision/face/register" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		gotUserID = r.FormValue("userid")
		fmt.Fprint(w, `{"success":true,"message":"face added"}`)
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL})
	if err := client.RegisterFace(context.Background(), "alice", writeTempImage(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotUserID != "alice" {
		t.Fatalf("unexpected userid: %q", gotUserID)
	}

	if err := client.RegisterFace(context.Background(), "  ", writeTempImage(t)); err == nil {
		t.Fatal("expected error for blank identity")
	}
}

func TestListAndDeleteFaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/vision/face/list":
			fmt.Fprint(w, `{"success":true,"faces":["alice","bob"]}`)
		case "/v1/vision/face/delete":
			fmt.Fprint(w, `{"success":true}`)
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL})
	faces, err := client.ListFaces(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(faces) != 2 || faces[0] != "alice" {
		t.Fatalf("unexpected faces: %v", faces)
	}
	if err := client.DeleteFace(context.Background(), "alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestClassifyScene(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":true,"label":"forest","confidence":0.77}`)
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL})
	scene, err := client.ClassifyScene(context.Background(), writeTempImage(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scene.Label != "forest" || scene.Confidence != 0.77 {
		t.Fatalf("unexpected scene: %+v", scene)
	}
}

func TestServerFailureResponseIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":false,"error":"invalid image"}`)
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL})
	_, err := client.DetectObjects(context.Background(), writeTempImage(t))
	if err == nil {
		t.Fatal("expected error")
	}
	if !aierrors.IsPermanent(err) {
		t.Fatalf("success=false should be permanent, got %v", err)
	}
}

func TestUnreachableServerNamesEndpoint(t *testing.T) {
	client := New(Config{BaseURL: "http://127.0.0.1:1", TimeoutSeconds: 1})
	_, err := client.ListFaces(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	msg := aierrors.FormatForUser(err)
	if msg == "" {
		t.Fatal("expected a user-facing message")
	}
}
