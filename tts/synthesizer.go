// Package tts turns voiceover text into raw PCM speech via the Gemini
// text-to-speech models, rotating over the shared Google key pool.
package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"shortvid-pipeline/config"
	"shortvid-pipeline/faults"
	"shortvid-pipeline/keyring"
	"shortvid-pipeline/retry"
)

const providerName = "speech synthesis"

// defaultSampleRate is what the TTS models emit when the mime type does not
// say otherwise.
const defaultSampleRate = 24000

// Speech is one synthesized utterance as signed 16-bit little-endian PCM.
type Speech struct {
	PCM        []byte
	SampleRate int
}

// Synthesizer calls the Gemini TTS endpoint.
type Synthesizer struct {
	cfg        *config.Config
	rot        *keyring.Rotator
	httpClient *http.Client
	log        zerolog.Logger

	// BaseURL points at the Gemini API host; overridable in tests.
	BaseURL string
}

func New(cfg *config.Config, rot *keyring.Rotator, log zerolog.Logger) *Synthesizer {
	return &Synthesizer{
		cfg:        cfg,
		rot:        rot,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		log:        log.With().Str("comp", "tts").Logger(),
		BaseURL:    "https://generativelanguage.googleapis.com",
	}
}

type ttsRequest struct {
	Contents         []ttsContent `json:"contents"`
	GenerationConfig ttsGenConfig `json:"generationConfig"`
}

type ttsContent struct {
	Parts []ttsPart `json:"parts"`
}

type ttsPart struct {
	Text string `json:"text"`
}

type ttsGenConfig struct {
	ResponseModalities []string        `json:"responseModalities"`
	SpeechConfig       ttsSpeechConfig `json:"speechConfig"`
}

type ttsSpeechConfig struct {
	VoiceConfig ttsVoiceConfig `json:"voiceConfig"`
}

type ttsVoiceConfig struct {
	PrebuiltVoiceConfig ttsPrebuiltVoice `json:"prebuiltVoiceConfig"`
}

type ttsPrebuiltVoice struct {
	VoiceName string `json:"voiceName"`
}

type ttsResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				InlineData *struct {
					MimeType string `json:"mimeType"`
					Data     string `json:"data"`
				} `json:"inlineData"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Synthesize speaks text with the configured voice, retrying across the key
// pool on quota errors.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (*Speech, error) {
	speech, err := retry.Do(ctx, s.rot, retry.Spec{Provider: providerName},
		func(ctx context.Context, key string) (*Speech, error) {
			return s.synthesizeOnce(ctx, key, text)
		})
	if err != nil {
		return nil, err
	}
	s.log.Debug().Int("pcm_bytes", len(speech.PCM)).Int("rate", speech.SampleRate).
		Msg("speech synthesized")
	return speech, nil
}

func (s *Synthesizer) synthesizeOnce(ctx context.Context, key, text string) (*Speech, error) {
	body, err := json.Marshal(ttsRequest{
		Contents: []ttsContent{{Parts: []ttsPart{{Text: text}}}},
		GenerationConfig: ttsGenConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: ttsSpeechConfig{
				VoiceConfig: ttsVoiceConfig{
					PrebuiltVoiceConfig: ttsPrebuiltVoice{VoiceName: s.cfg.Audio.Voice},
				},
			},
		},
	})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		s.BaseURL, s.cfg.Audio.TTSModel, key)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts request: %w: %v", faults.ErrTransient, err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tts response: %w: %v", faults.ErrTransient, err)
	}

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusTooManyRequests || quotaExceeded(respBytes) {
			return nil, fmt.Errorf("tts HTTP %d: %w", resp.StatusCode, faults.ErrRateLimited)
		}
		return nil, faults.Provider(providerName,
			fmt.Sprintf("HTTP %d", resp.StatusCode), nil)
	}

	var parsed ttsResponse
	if err := json.Unmarshal(respBytes, &parsed); err != nil {
		return nil, faults.Provider(providerName, "unparseable response body", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 ||
		parsed.Candidates[0].Content.Parts[0].InlineData == nil {
		return nil, faults.Provider(providerName, "response carries no audio payload", nil)
	}

	inline := parsed.Candidates[0].Content.Parts[0].InlineData
	pcm, err := base64.StdEncoding.DecodeString(inline.Data)
	if err != nil {
		return nil, faults.Provider(providerName, "decode audio payload", err)
	}
	if len(pcm) == 0 {
		return nil, faults.Provider(providerName, "empty audio payload", nil)
	}
	return &Speech{PCM: pcm, SampleRate: sampleRateFromMime(inline.MimeType)}, nil
}

// sampleRateFromMime reads the rate parameter out of mime types like
// "audio/L16;codec=pcm;rate=24000".
func sampleRateFromMime(mime string) int {
	for _, part := range strings.Split(mime, ";") {
		part = strings.TrimSpace(part)
		if v, ok := strings.CutPrefix(part, "rate="); ok {
			if rate, err := strconv.Atoi(v); err == nil && rate > 0 {
				return rate
			}
		}
	}
	return defaultSampleRate
}

func quotaExceeded(body []byte) bool {
	s := strings.ToLower(string(body))
	return strings.Contains(s, "resource_exhausted") || strings.Contains(s, "quota")
}
