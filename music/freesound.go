// Package music finds background tracks on Freesound. Music is optional: a
// missing key or an empty result set degrades to a silent background rather
// than failing the task.
package music

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"shortvid-pipeline/config"
	"shortvid-pipeline/faults"
)

const providerName = "background music"

// Client searches and downloads Freesound previews. Safe for use from
// concurrent tasks.
type Client struct {
	cfg        *config.Config
	apiKey     string
	httpClient *http.Client
	log        zerolog.Logger

	// BaseURL points at the Freesound API host; overridable in tests.
	BaseURL string
}

// New creates a Client. apiKey may be empty, which turns Find into a no-op.
func New(cfg *config.Config, apiKey string, log zerolog.Logger) *Client {
	return &Client{
		cfg:        cfg,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		log:        log.With().Str("comp", "music").Logger(),
		BaseURL:    "https://freesound.org",
	}
}

type searchResponse struct {
	Results []struct {
		ID       int               `json:"id"`
		Name     string            `json:"name"`
		Previews map[string]string `json:"previews"`
		Duration float64           `json:"duration"`
		Username string            `json:"username"`
	} `json:"results"`
}

// Find searches for a track matching the script's music keywords that roughly
// covers targetDuration, downloads it into destDir, and returns the local
// path. An empty return path with a nil error means "no music": the caller
// renders without a background track.
func (c *Client) Find(ctx context.Context, keywords []string, targetDuration float64, destDir string) (string, error) {
	if c.apiKey == "" {
		c.log.Warn().Msg("no music key configured, rendering without background music")
		return "", nil
	}

	query := buildQuery(keywords, c.cfg.Music.MaxKeywords)
	minDur := targetDuration - 5
	if minDur < 5 {
		minDur = 5
	}
	filter := fmt.Sprintf("duration:[%.0f TO %.0f] tag:music", minDur, targetDuration+30)

	params := url.Values{}
	params.Set("query", query)
	params.Set("filter", filter)
	params.Set("sort", "rating_desc")
	params.Set("fields", "id,name,previews,duration,username")
	params.Set("page_size", "10")
	params.Set("token", c.apiKey)

	searchURL := fmt.Sprintf("%s/apiv2/search/text/?%s", c.BaseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", faults.Provider(providerName, "search request", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", faults.Provider(providerName,
			fmt.Sprintf("search HTTP %d", resp.StatusCode), nil)
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", faults.Provider(providerName, "unparseable search response", err)
	}

	type candidate struct {
		name, preview string
	}
	var candidates []candidate
	for _, r := range parsed.Results {
		if preview := r.Previews["preview-hq-mp3"]; preview != "" {
			candidates = append(candidates, candidate{name: r.Name, preview: preview})
		}
	}
	if len(candidates) == 0 {
		c.log.Info().Str("query", query).Msg("no music found, rendering without background music")
		return "", nil
	}

	top := c.cfg.Music.TopCandidates
	if top > len(candidates) {
		top = len(candidates)
	}
	pick := candidates[rand.Intn(top)]
	c.log.Info().Str("track", pick.name).Str("query", query).Msg("background music selected")

	destPath := filepath.Join(destDir, "music.mp3")
	if err := c.download(ctx, pick.preview, destPath); err != nil {
		return "", err
	}
	return destPath, nil
}

func (c *Client) download(ctx context.Context, link, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return faults.Provider(providerName, "download preview", err)
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

func buildQuery(keywords []string, max int) string {
	if max > 0 && len(keywords) > max {
		keywords = keywords[:max]
	}
	if len(keywords) == 0 {
		return "background music"
	}
	return strings.Join(keywords, " ")
}
