package version

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	RepoOwner = "khanglvm"
	RepoName  = "lunar-mcp"
	UpdateURL = "https://api.github.com/repos/" + RepoOwner + "/" + RepoName + "/releases/latest"

	// CheckInterval is how long a check result is reused.
	CheckInterval = 24 * time.Hour
)

// GitHubRelease represents a GitHub release API response.
type GitHubRelease struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

// UpdateCache stores update check state.
type UpdateCache struct {
	LastUpdateCheck  time.Time `json:"lastUpdateCheck"`
	LastKnownVersion string    `json:"lastKnownVersion"`
	ReleaseURL       string    `json:"releaseUrl,omitempty"`
}

// Release describes a newer release.
type Release struct {
	Version string `json:"version"`
	URL     string `json:"url"`
}

// Checker looks up the latest release, at most once per CheckInterval.
// Zero fields select the GitHub API, a 10s HTTP client and
// ~/.lunar-mcp/update.json.
type Checker struct {
	URL       string
	Client    *http.Client
	CachePath string
	Current   string
	Now       func() time.Time

	mu sync.Mutex
}

// CheckUpdate returns the newer release, or nil when the running version
// is current or the last check was recent.
func (c *Checker) CheckUpdate(ctx context.Context) (*Release, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	current := c.Current
	if current == "" {
		current = Version
	}

	cachePath, err := c.cachePath()
	if err != nil {
		return nil, err
	}
	cache := loadUpdateCache(cachePath)
	if now().Sub(cache.LastUpdateCheck) < CheckInterval {
		return nil, nil
	}

	url := c.URL
	if url == "" {
		url = UpdateURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	client := c.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to check for updates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GitHub API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var release GitHubRelease
	if err := json.Unmarshal(body, &release); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	latest := StripPrefix(release.TagName)
	cache = UpdateCache{LastUpdateCheck: now(), LastKnownVersion: latest, ReleaseURL: release.HTMLURL}
	if err := saveUpdateCache(cachePath, cache); err != nil {
		return nil, fmt.Errorf("failed to save update cache: %w", err)
	}

	if !IsNewer(latest, current) {
		return nil, nil
	}
	return &Release{Version: latest, URL: release.HTMLURL}, nil
}

func (c *Checker) cachePath() (string, error) {
	if c.CachePath != "" {
		return c.CachePath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".lunar-mcp", "update.json"), nil
}

// StripPrefix removes a leading "v" or "V" from a tag.
func StripPrefix(tag string) string {
	return strings.TrimPrefix(strings.TrimPrefix(tag, "v"), "V")
}

// IsNewer reports whether latest is a higher dotted version than current.
// A development build is never older than a release.
func IsNewer(latest, current string) bool {
	current = StripPrefix(current)
	if latest == "" || current == devVersion {
		return false
	}

	l := strings.Split(latest, ".")
	c := strings.Split(current, ".")
	for i := 0; i < len(l) || i < len(c); i++ {
		lv, cv := part(l, i), part(c, i)
		if lv != cv {
			return lv > cv
		}
	}
	return false
}

func part(parts []string, i int) int {
	if i >= len(parts) {
		return 0
	}
	// Pre-release suffixes such as "1-rc1" compare by their number.
	digits := strings.SplitN(parts[i], "-", 2)[0]
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return n
}

func loadUpdateCache(path string) UpdateCache {
	var cache UpdateCache
	data, err := os.ReadFile(path)
	if err != nil {
		return cache
	}
	if err := json.Unmarshal(data, &cache); err != nil {
		return UpdateCache{}
	}
	return cache
}

func saveUpdateCache(path string, cache UpdateCache) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
