// SPDX-License-Identifier: Apache-2.0
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/Work-Fort/Warehouse/pkg/config"
	"github.com/Work-Fort/Warehouse/pkg/download"
)

// ErrNotFound is returned when the API answers 404
var ErrNotFound = errors.New("not found")

// Release represents a GitHub release
type Release struct {
	ID         int64   `json:"id"`
	TagName    string  `json:"tag_name"`
	Name       string  `json:"name"`
	UploadURL  string  `json:"upload_url"`
	HTMLURL    string  `json:"html_url"`
	Draft      bool    `json:"draft"`
	Prerelease bool    `json:"prerelease"`
	Assets     []Asset `json:"assets"`
}

// Asset represents a GitHub release asset
type Asset struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	Size               int64  `json:"size"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// HasAsset reports whether the release already carries an asset called name
func (r *Release) HasAsset(name string) bool {
	for _, a := range r.Assets {
		if a.Name == name {
			return true
		}
	}
	return false
}

// Client handles GitHub API requests
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new GitHub API client
func NewClient() *Client {
	return &Client{
		token:   config.GetGitHubToken(),
		baseURL: config.GitHubAPI,
	}
}

// NewClientWithBase creates a client against another API root, such as a
// GitHub Enterprise host or a test server.
func NewClientWithBase(baseURL, token string, httpClient *http.Client) *Client {
	return &Client{
		token:      token,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// HasToken reports whether requests are authenticated
func (c *Client) HasToken() bool { return c.token != "" }

// GetReleaseByTag fetches a specific release by tag
func (c *Client) GetReleaseByTag(ctx context.Context, owner, repo, tag string) (*Release, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/releases/tags/%s", c.baseURL, owner, repo, url.PathEscape(tag))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var release Release
	if err := c.doJSON(req, http.StatusOK, &release); err != nil {
		return nil, fmt.Errorf("failed to fetch release %s: %w", tag, err)
	}
	return &release, nil
}

// GetReleases lists the most recent releases, newest first
func (c *Client) GetReleases(ctx context.Context, owner, repo string, perPage int) ([]Release, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/releases?per_page=%d", c.baseURL, owner, repo, perPage)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var releases []Release
	if err := c.doJSON(req, http.StatusOK, &releases); err != nil {
		return nil, fmt.Errorf("failed to fetch releases: %w", err)
	}
	return releases, nil
}

// CreateRelease creates a published release for tag
func (c *Client) CreateRelease(ctx context.Context, owner, repo, tag, name, body string) (*Release, error) {
	payload, err := json.Marshal(map[string]any{
		"tag_name": tag,
		"name":     name,
		"body":     body,
	})
	if err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/repos/%s/%s/releases", c.baseURL, owner, repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var release Release
	if err := c.doJSON(req, http.StatusCreated, &release); err != nil {
		return nil, fmt.Errorf("failed to create release %s: %w", tag, err)
	}
	return &release, nil
}

// UploadAsset attaches data to a release under name
func (c *Client) UploadAsset(ctx context.Context, release *Release, name, contentType string, data []byte) (*Asset, error) {
	// upload_url is a URI template such as .../assets{?name,label}
	base, _, _ := strings.Cut(release.UploadURL, "{")
	if base == "" {
		return nil, fmt.Errorf("release %s has no upload URL", release.TagName)
	}
	u := base + "?name=" + url.QueryEscape(name)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = int64(len(data))

	var asset Asset
	if err := c.doJSON(req, http.StatusCreated, &asset); err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", name, err)
	}
	return &asset, nil
}

// DownloadFile downloads a file from a URL with automatic GitHub token injection
func (c *Client) DownloadFile(ctx context.Context, url, dest string, progressCallback download.ProgressCallback) error {
	opts := &download.Options{
		ProgressCallback: progressCallback,
		HTTPClient:       c.httpClient,
	}

	if c.token != "" {
		opts.Headers = map[string]string{
			"Authorization": "token " + c.token,
		}
	}

	return download.FileWithOptions(ctx, url, dest, opts)
}

// DoRequest executes an HTTP request with automatic GitHub token injection
func (c *Client) DoRequest(req *http.Request) (*http.Response, error) {
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", download.UserAgent)

	client := c.httpClient
	if client == nil {
		client = http.DefaultClient
	}
	return client.Do(req)
}

func (c *Client) doJSON(req *http.Request, want int, out any) error {
	resp, err := c.DoRequest(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != want {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("GitHub API returned %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// SplitRepo splits "owner/repo"
func SplitRepo(s string) (owner, repo string, err error) {
	owner, repo, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", fmt.Errorf("repository must be owner/repo, got %q", s)
	}
	return owner, repo, nil
}
