package aivideo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"shortvid-pipeline/config"
	"shortvid-pipeline/faults"
	"shortvid-pipeline/types"
)

func testGenerator(t *testing.T, baseURL string, maxPolls int) *Generator {
	t.Helper()
	cfg := config.Default()
	cfg.AIVideo.PollInterval = time.Millisecond
	cfg.AIVideo.MaxPolls = maxPolls
	cred := config.CredentialSource{Kind: config.CredentialBearerToken, Value: "tok"}
	gen, err := New(context.Background(), cred, cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}
	gen.BaseURL = baseURL
	return gen
}

func TestGenerateSubmitPollDownload(t *testing.T) {
	clip := []byte("generated clip bytes")
	var polls atomic.Int32
	var gotAuth, gotRatio string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1beta/models/", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var req generateRequest
		readJSON(t, r, &req)
		gotRatio = req.Parameters.AspectRatio
		fmt.Fprint(w, `{"name":"operations/op-123"}`)
	})
	mux.HandleFunc("GET /v1beta/operations/op-123", func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) < 3 {
			fmt.Fprint(w, `{"name":"operations/op-123","done":false}`)
			return
		}
		fmt.Fprintf(w, `{"name":"operations/op-123","done":true,"response":{
			"generateVideoResponse":{"generatedSamples":[{"video":{"uri":"http://%s/files/clip.mp4"}}]}}}`, r.Host)
	})
	mux.HandleFunc("GET /files/clip.mp4", func(w http.ResponseWriter, r *http.Request) {
		w.Write(clip)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	gen := testGenerator(t, srv.URL, 10)
	dest := filepath.Join(t.TempDir(), "scene_2.mp4")
	if err := gen.Generate(context.Background(), "a sunrise over mountains", types.Vertical, dest); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("auth header = %q", gotAuth)
	}
	if gotRatio != "9:16" {
		t.Fatalf("aspect ratio = %q, want 9:16", gotRatio)
	}
	if polls.Load() != 3 {
		t.Fatalf("polls = %d, want 3", polls.Load())
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read clip: %v", err)
	}
	if string(data) != string(clip) {
		t.Fatal("downloaded bytes differ")
	}
}

func TestGenerateTimesOutAfterMaxPolls(t *testing.T) {
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1beta/models/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"name":"operations/slow"}`)
	})
	mux.HandleFunc("GET /v1beta/operations/slow", func(w http.ResponseWriter, r *http.Request) {
		polls.Add(1)
		fmt.Fprint(w, `{"name":"operations/slow","done":false}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	gen := testGenerator(t, srv.URL, 4)
	err := gen.Generate(context.Background(), "p", types.Horizontal,
		filepath.Join(t.TempDir(), "out.mp4"))
	var timeout *faults.TimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if polls.Load() != 4 {
		t.Fatalf("polls = %d, want 4", polls.Load())
	}
}

func TestGenerateOperationError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1beta/models/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"name":"operations/bad"}`)
	})
	mux.HandleFunc("GET /v1beta/operations/bad", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"name":"operations/bad","done":true,"error":{"code":3,"message":"prompt rejected"}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	gen := testGenerator(t, srv.URL, 5)
	err := gen.Generate(context.Background(), "p", types.Horizontal,
		filepath.Join(t.TempDir(), "out.mp4"))
	var provErr *faults.ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
}

func TestNewRejectsUnreadableCredentialFile(t *testing.T) {
	cred := config.CredentialSource{
		Kind:  config.CredentialServiceIdentityFile,
		Value: filepath.Join(t.TempDir(), "does-not-exist.json"),
	}
	_, err := New(context.Background(), cred, config.Default(), zerolog.Nop())
	var authErr *faults.AuthenticationUnavailableError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthenticationUnavailableError, got %v", err)
	}
}

func readJSON(t *testing.T, r *http.Request, out any) {
	t.Helper()
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		t.Errorf("decode request: %v", err)
	}
}
