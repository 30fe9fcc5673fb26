// Package update talks to the GitHub releases API for the app's update
// channel. It is a read-only boundary: nothing here participates in the
// scheduling invariants.
package update

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	logx "lockpilot/pkg/logx"
)

const (
	defaultTimeout = 30 * time.Second
	// GitHub allows 60 unauthenticated requests/hour; stay well under it
	// even when the UI polls aggressively.
	apiBurst = 3
)

// Config configures the release client.
type Config struct {
	Enabled bool
	Owner   string
	Repo    string
	// Prerelease selects the channel: false = stable only, true = stable
	// and prerelease builds.
	Prerelease bool

	// BaseURL overrides the GitHub API root (tests).
	BaseURL string
	// OpenPath overrides the installer-open command (tests). Default
	// /usr/bin/open.
	OpenPath string
}

// Release is one published version, already filtered to non-draft releases
// with parseable semver tags.
type Release struct {
	Tag         string  `json:"tag_name"`
	Name        string  `json:"name"`
	Notes       string  `json:"body"`
	Draft       bool    `json:"draft"`
	Prerelease  bool    `json:"prerelease"`
	PublishedAt string  `json:"published_at"`
	Assets      []Asset `json:"assets"`
}

// Asset is a downloadable release artifact.
type Asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// Client is an HTTP client for the release listing.
type Client struct {
	cfg     Config
	log     logx.Logger
	http    *resty.Client
	limiter *rate.Limiter
}

func NewClient(cfg Config, log logx.Logger) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.github.com"
	}
	httpc := resty.New().
		SetBaseURL(base).
		SetTimeout(defaultTimeout).
		SetHeader("Accept", "application/vnd.github+json").
		SetHeader("User-Agent", "LockPilot-Updater")
	return &Client{
		cfg:     cfg,
		log:     log,
		http:    httpc,
		limiter: rate.NewLimiter(rate.Every(time.Second), apiBurst),
	}
}

// Releases fetches the release list, dropping drafts and releases whose tag
// is not a semver version, sorted newest first. The stable channel
// (includePrerelease=false) also drops prereleases.
func (c *Client) Releases(ctx context.Context, includePrerelease bool) ([]Release, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var releases []Release
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&releases).
		SetQueryParam("per_page", "100").
		Get(fmt.Sprintf("/repos/%s/%s/releases", c.cfg.Owner, c.cfg.Repo))
	if err != nil {
		return nil, fmt.Errorf("fetch releases: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("releases API returned status %d", resp.StatusCode())
	}

	out := releases[:0]
	for _, r := range releases {
		if r.Draft {
			continue
		}
		if !includePrerelease && r.Prerelease {
			continue
		}
		if _, err := parseVersion(r.Tag); err != nil {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		vi, _ := parseVersion(out[i].Tag)
		vj, _ := parseVersion(out[j].Tag)
		return vi.GreaterThan(vj)
	})
	return out, nil
}

// Latest returns the newest release on the given channel, or nil when the
// listing is empty.
func (c *Client) Latest(ctx context.Context, includePrerelease bool) (*Release, error) {
	releases, err := c.Releases(ctx, includePrerelease)
	if err != nil {
		return nil, err
	}
	if len(releases) == 0 {
		return nil, nil
	}
	r := releases[0]
	return &r, nil
}

// Check returns the newest release strictly newer than current, or nil when
// the app is up to date.
func (c *Client) Check(ctx context.Context, current string) (*Release, error) {
	cur, err := parseVersion(current)
	if err != nil {
		return nil, fmt.Errorf("invalid current version %q: %w", current, err)
	}
	releases, err := c.Releases(ctx, c.cfg.Prerelease)
	if err != nil {
		return nil, err
	}
	for _, r := range releases {
		v, verr := parseVersion(r.Tag)
		if verr != nil {
			continue
		}
		if v.GreaterThan(cur) {
			rc := r
			return &rc, nil
		}
	}
	return nil, nil
}
