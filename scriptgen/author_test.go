package scriptgen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"shortvid-pipeline/config"
	"shortvid-pipeline/faults"
	"shortvid-pipeline/keyring"
	"shortvid-pipeline/types"
)

const wellFormedScript = `{
	"title": "Morning Coffee",
	"background_music_keywords": ["upbeat", "acoustic"],
	"scenes": [
		{"scene_number": 1, "media_source": "stock", "visual_prompt": "coffee shop", "voiceover_text": "Start your day right.", "duration_seconds": 4},
		{"scene_number": 2, "media_source": "ai_generated", "visual_prompt": "steam rising from a cup in golden light", "voiceover_text": "Every cup tells a story.", "duration_seconds": 5}
	]
}`

func TestExtractJSONTolerance(t *testing.T) {
	cases := []string{
		wellFormedScript,
		"Sure! Here is your script:\n```json\n" + wellFormedScript + "\n```\nEnjoy!",
		"prefix text {\"title\":\"X\",\"scenes\":[{\"scene_number\":1,\"media_source\":\"stock\",\"visual_prompt\":\"a\",\"voiceover_text\":\"b\",\"duration_seconds\":3,}],} suffix",
	}
	for i, c := range cases {
		raw, err := ExtractJSON(c)
		if err != nil {
			t.Fatalf("case %d: extract: %v", i, err)
		}
		if !json.Valid([]byte(raw)) {
			t.Fatalf("case %d: extracted JSON invalid: %s", i, raw)
		}
	}
}

func TestExtractJSONKeepsBracesInStrings(t *testing.T) {
	in := `{"title": "curly } brace", "scenes": [{"scene_number": 1, "media_source": "stock", "visual_prompt": "x", "voiceover_text": "y", "duration_seconds": 3}]}`
	raw, err := ExtractJSON("noise " + in + " noise")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if raw != in {
		t.Fatalf("extracted %q, want %q", raw, in)
	}
}

func TestExtractJSONNoObject(t *testing.T) {
	if _, err := ExtractJSON("I cannot help with that."); err == nil {
		t.Fatal("expected error for prose-only response")
	}
}

func TestParseScriptMalformed(t *testing.T) {
	cases := []string{
		"no json here",
		`{"title": "x", "scenes": []}`,
		`{"title": "x", "scenes": [{"scene_number": 1, "media_source": "hologram", "visual_prompt": "a", "voiceover_text": "b", "duration_seconds": 3}]}`,
	}
	for i, c := range cases {
		_, err := parseScript(c)
		var malformed *faults.MalformedScriptResponseError
		if !errors.As(err, &malformed) {
			t.Fatalf("case %d: expected MalformedScriptResponseError, got %v", i, err)
		}
	}
}

func TestParseScriptFillsSceneNumbers(t *testing.T) {
	in := `{"title": "x", "scenes": [
		{"media_source": "STOCK", "visual_prompt": "a", "voiceover_text": "b", "duration_seconds": 3},
		{"media_source": "stock", "visual_prompt": "c", "voiceover_text": "d", "duration_seconds": 4}
	]}`
	script, err := parseScript(in)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if script.Scenes[0].SceneNumber != 1 || script.Scenes[1].SceneNumber != 2 {
		t.Fatalf("scene numbers not filled: %+v", script.Scenes)
	}
	if script.Scenes[0].MediaSource != types.MediaStock {
		t.Fatalf("media source not normalized: %q", script.Scenes[0].MediaSource)
	}
}

func geminiBody(text string) string {
	b, _ := json.Marshal(map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{"parts": []map[string]any{{"text": text}}}},
		},
	})
	return string(b)
}

func TestGenerateRotatesOnRateLimit(t *testing.T) {
	var keys []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Query().Get("key")
		keys = append(keys, key)
		if key != "k3" {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error":{"code":429,"status":"RESOURCE_EXHAUSTED","message":"quota"}}`)
			return
		}
		fmt.Fprint(w, geminiBody("Here you go:\n"+wellFormedScript))
	}))
	defer srv.Close()

	rot, _ := keyring.New([]string{"k1", "k2", "k3"})
	author := New(config.Default(), rot, "", zerolog.Nop())
	author.BaseURL = srv.URL

	script, err := author.Generate(context.Background(), "a coffee ad", 9)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if script.Title != "Morning Coffee" || len(script.Scenes) != 2 {
		t.Fatalf("unexpected script: %+v", script)
	}
	if len(keys) != 3 || keys[0] != "k1" || keys[2] != "k3" {
		t.Fatalf("key rotation order: %v", keys)
	}
}

func TestGenerateSuccessBodyWithQuotaWordIsNotRateLimited(t *testing.T) {
	// A valid script can legitimately talk about quotas; only error responses
	// carry quota rejection markers.
	script := `{"title": "Fishing Quotas Explained", "scenes": [
		{"scene_number": 1, "media_source": "stock", "visual_prompt": "fishing boat",
		 "voiceover_text": "New fishing quota rules start this year.", "duration_seconds": 5}
	]}`
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, geminiBody(script))
	}))
	defer srv.Close()

	rot, _ := keyring.New([]string{"k1", "k2", "k3"})
	author := New(config.Default(), rot, "", zerolog.Nop())
	author.BaseURL = srv.URL

	got, err := author.Generate(context.Background(), "explain fishing quotas", 5)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got.Title != "Fishing Quotas Explained" {
		t.Fatalf("unexpected script: %+v", got)
	}
	if calls != 1 {
		t.Fatalf("success response retried: %d calls", calls)
	}
}

func TestGenerateExhaustsAllKeys(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"code":429,"status":"RESOURCE_EXHAUSTED","message":"quota"}}`)
	}))
	defer srv.Close()

	rot, _ := keyring.New([]string{"k1", "k2", "k3"})
	author := New(config.Default(), rot, "", zerolog.Nop())
	author.BaseURL = srv.URL

	_, err := author.Generate(context.Background(), "prompt", 20)
	var exhausted *faults.AllCredentialsExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected AllCredentialsExhaustedError, got %v", err)
	}
	if !strings.Contains(err.Error(), "exhausted") {
		t.Fatalf("message should mention exhaustion: %v", err)
	}
}

func TestGenerateNonRetryableSurfaces(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"code":400,"status":"INVALID_ARGUMENT","message":"bad prompt"}}`)
	}))
	defer srv.Close()

	rot, _ := keyring.New([]string{"k1", "k2"})
	author := New(config.Default(), rot, "", zerolog.Nop())
	author.BaseURL = srv.URL

	_, err := author.Generate(context.Background(), "prompt", 20)
	var provErr *faults.ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("non-retryable error retried: %d calls", calls)
	}
}
