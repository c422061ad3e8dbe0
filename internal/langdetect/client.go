// Package langdetect provides a client for the code-language detection service.
package langdetect

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/kwalimwa/craftlink/internal/config"
	"github.com/kwalimwa/craftlink/pkg/logger"
)

// Client resolves a repository id to the set of languages observed in it.
type Client struct {
	baseURL string
	http    *http.Client
	log     *logger.Logger
}

// NewClient creates a new language detector client.
func NewClient(cfg *config.DetectorConfig, log *logger.Logger) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.HTTPTimeout()},
		log:     log,
	}
}

// Languages returns the language names detected in the repository.
//
// Detection is best-effort: any failure (including a missing base URL)
// degrades to an empty set and is logged, never surfaced.
func (c *Client) Languages(ctx context.Context, repoID string) []string {
	if c.baseURL == "" || repoID == "" {
		return nil
	}

	endpoint := fmt.Sprintf("%s/repos/%s/languages", c.baseURL, url.PathEscape(repoID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		c.log.Warn().Err(err).Str("repo_id", repoID).Msg("Failed to build language detection request")
		return nil
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("repo_id", repoID).Msg("Language detection request failed")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.log.Warn().Int("status", resp.StatusCode).Str("repo_id", repoID).Msg("Language detection returned non-200")
		return nil
	}

	// GitHub-style response: language name -> byte count.
	var byLanguage map[string]int64
	if err := json.NewDecoder(resp.Body).Decode(&byLanguage); err != nil {
		c.log.Warn().Err(err).Str("repo_id", repoID).Msg("Failed to decode language detection response")
		return nil
	}

	languages := make([]string, 0, len(byLanguage))
	for name := range byLanguage {
		languages = append(languages, name)
	}
	return languages
}
