// Package aivideo generates footage with the Veo long-running video models.
// Unlike the key-rotated providers it authenticates with a single Google
// credential, resolved once at startup into one of four source kinds.
package aivideo

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	htransport "google.golang.org/api/transport/http"

	"github.com/rs/zerolog"

	"shortvid-pipeline/config"
	"shortvid-pipeline/faults"
	"shortvid-pipeline/types"
)

const providerName = "ai video generation"

const authScope = "https://www.googleapis.com/auth/cloud-platform"

// Generator drives the predict-then-poll video generation flow.
type Generator struct {
	cfg        *config.Config
	httpClient *http.Client
	log        zerolog.Logger

	// BaseURL points at the generation API host; overridable in tests.
	BaseURL string
}

// New resolves the credential into an authenticated client. It fails fast
// with AuthenticationUnavailableError so tasks never get queued against a
// provider that can not be reached.
func New(ctx context.Context, cred config.CredentialSource, cfg *config.Config, log zerolog.Logger) (*Generator, error) {
	ts, err := tokenSource(ctx, cred)
	if err != nil {
		return nil, err
	}
	client, _, err := htransport.NewClient(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, &faults.AuthenticationUnavailableError{
			Provider: providerName,
			Detail:   fmt.Sprintf("build authenticated client: %v", err),
		}
	}
	client.Timeout = 5 * time.Minute
	return &Generator{
		cfg:        cfg,
		httpClient: client,
		log:        log.With().Str("comp", "aivideo").Logger(),
		BaseURL:    "https://generativelanguage.googleapis.com",
	}, nil
}

func tokenSource(ctx context.Context, cred config.CredentialSource) (oauth2.TokenSource, error) {
	switch cred.Kind {
	case config.CredentialBearerToken:
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cred.Value}), nil

	case config.CredentialServiceIdentityFile:
		data, err := os.ReadFile(cred.Value)
		if err != nil {
			return nil, &faults.AuthenticationUnavailableError{
				Provider: providerName,
				Detail:   fmt.Sprintf("read credential file %s: %v", cred.Value, err),
			}
		}
		return jsonTokenSource(ctx, data)

	case config.CredentialInlineServiceIdentity:
		return jsonTokenSource(ctx, []byte(cred.Value))

	default: // CredentialAmbient
		creds, err := google.FindDefaultCredentials(ctx, authScope)
		if err != nil {
			return nil, &faults.AuthenticationUnavailableError{
				Provider: providerName,
				Detail:   fmt.Sprintf("no ambient credentials: %v", err),
			}
		}
		return creds.TokenSource, nil
	}
}

func jsonTokenSource(ctx context.Context, data []byte) (oauth2.TokenSource, error) {
	creds, err := google.CredentialsFromJSON(ctx, data, authScope)
	if err != nil {
		return nil, &faults.AuthenticationUnavailableError{
			Provider: providerName,
			Detail:   fmt.Sprintf("parse service identity: %v", err),
		}
	}
	return creds.TokenSource, nil
}

type generateRequest struct {
	Instances  []generateInstance `json:"instances"`
	Parameters generateParameters `json:"parameters"`
}

type generateInstance struct {
	Prompt string `json:"prompt"`
}

type generateParameters struct {
	AspectRatio string `json:"aspectRatio"`
}

type operation struct {
	Name     string `json:"name"`
	Done     bool   `json:"done"`
	Error    *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Response *struct {
		GenerateVideoResponse struct {
			GeneratedSamples []struct {
				Video struct {
					URI        string `json:"uri"`
					VideoBytes string `json:"encodedVideo"`
				} `json:"video"`
			} `json:"generatedSamples"`
		} `json:"generateVideoResponse"`
	} `json:"response"`
}

// Generate submits a prompt, polls the returned operation to completion, and
// writes the resulting clip to destPath.
func (g *Generator) Generate(ctx context.Context, prompt string, orientation types.Orientation, destPath string) error {
	op, err := g.submit(ctx, prompt, orientation)
	if err != nil {
		return err
	}
	g.log.Info().Str("operation", op).Msg("video generation submitted")

	done, err := g.poll(ctx, op)
	if err != nil {
		return err
	}

	samples := done.Response.GenerateVideoResponse.GeneratedSamples
	if len(samples) == 0 {
		return faults.Provider(providerName, "operation finished with no video", nil)
	}
	video := samples[0].Video
	switch {
	case video.URI != "":
		return g.download(ctx, video.URI, destPath)
	case video.VideoBytes != "":
		raw, err := base64.StdEncoding.DecodeString(video.VideoBytes)
		if err != nil {
			return faults.Provider(providerName, "decode inline video", err)
		}
		return os.WriteFile(destPath, raw, 0644)
	}
	return faults.Provider(providerName, "video carries neither uri nor payload", nil)
}

func (g *Generator) submit(ctx context.Context, prompt string, orientation types.Orientation) (string, error) {
	body, err := json.Marshal(generateRequest{
		Instances:  []generateInstance{{Prompt: prompt}},
		Parameters: generateParameters{AspectRatio: orientation.AspectRatio()},
	})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:predictLongRunning", g.BaseURL, g.cfg.AIVideo.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	var op operation
	if err := g.doJSON(req, &op); err != nil {
		return "", err
	}
	if op.Name == "" {
		return "", faults.Provider(providerName, "submit returned no operation name", nil)
	}
	return op.Name, nil
}

func (g *Generator) poll(ctx context.Context, opName string) (*operation, error) {
	ticker := time.NewTicker(g.cfg.AIVideo.PollInterval)
	defer ticker.Stop()

	start := time.Now()
	for i := 0; i < g.cfg.AIVideo.MaxPolls; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		url := fmt.Sprintf("%s/v1beta/%s", g.BaseURL, opName)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		var op operation
		if err := g.doJSON(req, &op); err != nil {
			return nil, err
		}
		if op.Error != nil {
			return nil, faults.Provider(providerName, "generation failed",
				fmt.Errorf("%s (code %d)", op.Error.Message, op.Error.Code))
		}
		if op.Done {
			if op.Response == nil {
				return nil, faults.Provider(providerName, "operation done without response", nil)
			}
			g.log.Info().Dur("elapsed", time.Since(start)).Msg("video generation finished")
			return &op, nil
		}
		g.log.Debug().Int("poll", i+1).Msg("video generation pending")
	}
	return nil, &faults.TimeoutError{Provider: providerName, Elapsed: time.Since(start)}
}

func (g *Generator) doJSON(req *http.Request, out any) error {
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return faults.Provider(providerName, "request", err)
	}
	defer resp.Body.Close()
	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return faults.Provider(providerName, "read response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return faults.Provider(providerName,
			fmt.Sprintf("HTTP %d", resp.StatusCode), fmt.Errorf("%s", truncate(respBytes, 200)))
	}
	if err := json.Unmarshal(respBytes, out); err != nil {
		return faults.Provider(providerName, "unparseable response body", err)
	}
	return nil
}

func (g *Generator) download(ctx context.Context, uri, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return err
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return faults.Provider(providerName, "download clip", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return faults.Provider(providerName,
			fmt.Sprintf("download HTTP %d", resp.StatusCode), nil)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", destPath, err)
	}
	defer out.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("write %s: %w", destPath, err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
