// Package scriptgen wraps the script-authoring providers. The preferred-model
// path goes through OpenAI structured outputs when a key is configured; the
// rotator-backed Gemini path is the fallback and the workhorse.
package scriptgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/rs/zerolog"

	"shortvid-pipeline/config"
	"shortvid-pipeline/faults"
	"shortvid-pipeline/keyring"
	"shortvid-pipeline/retry"
	"shortvid-pipeline/types"
)

const providerName = "script author"

const scriptPromptTemplate = `You are a creative video scriptwriter. A user wants a short promo video.
Generate a script for a video based on this prompt: "%s"

The script must be broken down into 3-5 scenes and the sum of all scene
"duration_seconds" must be exactly %.0f seconds.

For each scene provide:
1. "scene_number": the order of the scene, starting at 1.
2. "media_source": "stock" for stock footage or "ai_generated" for AI video.
   Stock scenes must be 2-6 seconds long; ai_generated scenes 4-6 seconds.
3. "visual_prompt": for stock scenes a 3-7 word concrete search query
   (e.g. "coffee shop", "person running"); for ai_generated scenes a detailed
   generation prompt. DO NOT use long sentences for stock queries.
4. "voiceover_text": the narration for this scene. Pace it at 1.8 to 2.1 words
   per second of the scene duration. Do NOT exceed 2.1 words per second.
5. "duration_seconds": how long this scene runs. Prefer whole numbers.

Also provide:
- "title": a short, catchy video title.
- "background_music_keywords": 2-3 keywords for fitting background music
  (e.g. ["upbeat", "pop"]).

Return a single valid JSON object with exactly these fields. Do not include
any text, notes, or markdown (like a json fence) before or after the JSON.`

// Author generates validated-shape scripts from a user prompt.
type Author struct {
	cfg        *config.Config
	rot        *keyring.Rotator
	openaiKey  string
	httpClient *http.Client
	log        zerolog.Logger

	// BaseURL points at the Gemini API host; overridable in tests.
	BaseURL string
}

// New creates an Author. openaiKey may be empty, which disables the
// preferred-model path.
func New(cfg *config.Config, rot *keyring.Rotator, openaiKey string, log zerolog.Logger) *Author {
	return &Author{
		cfg:        cfg,
		rot:        rot,
		openaiKey:  openaiKey,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		log:        log.With().Str("comp", "scriptgen").Logger(),
		BaseURL:    "https://generativelanguage.googleapis.com",
	}
}

// Generate asks the provider for a scene-by-scene script targeting the exact
// total duration.
func (a *Author) Generate(ctx context.Context, prompt string, totalSeconds float64) (*types.Script, error) {
	fullPrompt := fmt.Sprintf(scriptPromptTemplate, prompt, totalSeconds)

	if a.openaiKey != "" {
		script, err := a.generateStructured(ctx, fullPrompt)
		if err == nil {
			a.log.Info().Str("title", script.Title).Int("scenes", len(script.Scenes)).
				Msg("script authored via preferred model")
			return script, nil
		}
		a.log.Warn().Err(err).Msg("preferred model failed, falling back to rotated keys")
	}

	content, err := retry.Do(ctx, a.rot, retry.Spec{Provider: providerName},
		func(ctx context.Context, key string) (string, error) {
			return a.geminiGenerate(ctx, key, fullPrompt)
		})
	if err != nil {
		return nil, err
	}

	script, err := parseScript(content)
	if err != nil {
		return nil, err
	}
	a.log.Info().Str("title", script.Title).Int("scenes", len(script.Scenes)).
		Float64("total_sec", script.TotalDuration()).Msg("script authored")
	return script, nil
}

// generateStructured is the preferred-model path: one chat call with a strict
// JSON schema response format.
func (a *Author) generateStructured(ctx context.Context, prompt string) (*types.Script, error) {
	client := openai.NewClient(option.WithAPIKey(a.openaiKey))

	schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        "video_script",
		Description: openai.String("Scene-by-scene short video script"),
		Schema:      scriptSchema,
		Strict:      openai.Bool(true),
	}

	chat, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model: openai.ChatModel(a.cfg.Script.OpenAIModel),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: schemaParam,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai chat: %w", err)
	}
	if len(chat.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}
	return parseScript(chat.Choices[0].Message.Content)
}

var scriptSchema = generateSchema[types.Script]()

func generateSchema[T any]() interface{} {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig geminiGenConfig `json:"generationConfig"`
}

type geminiGenConfig struct {
	Temperature float64 `json:"temperature"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (a *Author) geminiGenerate(ctx context.Context, key, prompt string) (string, error) {
	body, err := json.Marshal(geminiRequest{
		Contents:         []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: geminiGenConfig{Temperature: a.cfg.Script.Temperature},
	})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		a.BaseURL, a.cfg.Script.GeminiModel, key)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini request: %w: %v", faults.ErrTransient, err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("gemini response: %w: %v", faults.ErrTransient, err)
	}

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusTooManyRequests || quotaExceeded(respBytes) {
			return "", fmt.Errorf("gemini HTTP %d: %w", resp.StatusCode, faults.ErrRateLimited)
		}
		return "", faults.Provider(providerName,
			fmt.Sprintf("HTTP %d", resp.StatusCode), fmt.Errorf("%s", truncate(respBytes, 200)))
	}

	var parsed geminiResponse
	if err := json.Unmarshal(respBytes, &parsed); err != nil {
		return "", faults.Provider(providerName, "unparseable response body", err)
	}
	if parsed.Error != nil {
		return "", faults.Provider(providerName, "api error", fmt.Errorf("%s", parsed.Error.Message))
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", faults.Provider(providerName, "empty candidate list", nil)
	}
	return parsed.Candidates[0].Content.Parts[0].Text, nil
}

func quotaExceeded(body []byte) bool {
	s := strings.ToLower(string(body))
	return strings.Contains(s, "resource_exhausted") || strings.Contains(s, "quota")
}

func parseScript(content string) (*types.Script, error) {
	raw, err := ExtractJSON(content)
	if err != nil {
		return nil, &faults.MalformedScriptResponseError{Detail: "no JSON object found", Err: err}
	}

	var script types.Script
	if err := json.Unmarshal([]byte(raw), &script); err != nil {
		return nil, &faults.MalformedScriptResponseError{Detail: "decode script", Err: err}
	}
	if len(script.Scenes) == 0 {
		return nil, &faults.MalformedScriptResponseError{Detail: "script has no scenes"}
	}

	for i := range script.Scenes {
		sc := &script.Scenes[i]
		if sc.SceneNumber == 0 {
			sc.SceneNumber = i + 1
		}
		sc.MediaSource = types.MediaSource(strings.ToLower(string(sc.MediaSource)))
		if !sc.MediaSource.Valid() {
			return nil, &faults.MalformedScriptResponseError{
				Detail: fmt.Sprintf("scene %d has unknown media_source %q", sc.SceneNumber, sc.MediaSource),
			}
		}
	}
	return &script, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
