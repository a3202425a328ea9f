// Package stockmedia finds and downloads stock footage from Pexels.
package stockmedia

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/rs/zerolog"

	"shortvid-pipeline/config"
	"shortvid-pipeline/faults"
	"shortvid-pipeline/keyring"
	"shortvid-pipeline/retry"
	"shortvid-pipeline/types"
)

const providerName = "stock footage"

const searchPerPage = 10

// Client searches and downloads Pexels videos.
type Client struct {
	cfg        *config.Config
	rot        *keyring.Rotator
	httpClient *http.Client
	log        zerolog.Logger

	// BaseURL points at the Pexels API host; overridable in tests.
	BaseURL string
}

func New(cfg *config.Config, rot *keyring.Rotator, log zerolog.Logger) *Client {
	return &Client{
		cfg:        cfg,
		rot:        rot,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		log:        log.With().Str("comp", "stockmedia").Logger(),
		BaseURL:    "https://api.pexels.com",
	}
}

type searchResponse struct {
	Videos []struct {
		ID         int `json:"id"`
		VideoFiles []struct {
			Quality string `json:"quality"`
			Link    string `json:"link"`
		} `json:"video_files"`
	} `json:"videos"`
}

// Find searches Pexels for query footage in the given orientation and
// downloads the best match to destPath.
func (c *Client) Find(ctx context.Context, query string, orientation types.Orientation, destPath string) error {
	spec := retry.Spec{
		Provider:       providerName,
		TransientTries: c.cfg.Stock.RetriesPerKey,
		TransientPause: c.cfg.Stock.RetryPause,
	}
	link, err := retry.Do(ctx, c.rot, spec,
		func(ctx context.Context, key string) (string, error) {
			return c.search(ctx, key, query, orientation)
		})
	if err != nil {
		return err
	}

	c.log.Debug().Str("query", query).Str("link", link).Msg("downloading stock clip")
	return c.download(ctx, link, destPath)
}

func (c *Client) search(ctx context.Context, key, query string, orientation types.Orientation) (string, error) {
	pexelsOrientation := "landscape"
	if orientation == types.Vertical {
		pexelsOrientation = "portrait"
	}

	searchURL := fmt.Sprintf("%s/videos/search?query=%s&orientation=%s&per_page=%d",
		c.BaseURL, url.QueryEscape(query), pexelsOrientation, searchPerPage)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("pexels search: %w: %v", faults.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", fmt.Errorf("pexels HTTP 429: %w", faults.ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return "", faults.Provider(providerName,
			fmt.Sprintf("search HTTP %d", resp.StatusCode), nil)
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", faults.Provider(providerName, "unparseable search response", err)
	}
	if len(parsed.Videos) == 0 {
		return "", &faults.NoResultsFoundError{Provider: providerName, Query: query}
	}

	files := parsed.Videos[0].VideoFiles
	if len(files) == 0 {
		return "", faults.Provider(providerName, "result carries no video files", nil)
	}
	for _, f := range files {
		if f.Quality == "hd" {
			return f.Link, nil
		}
	}
	return files[0].Link, nil
}

func (c *Client) download(ctx context.Context, link, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
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
