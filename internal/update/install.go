package update

import (
	"context"
	"fmt"
	"os"
	osexec "os/exec"
	"path/filepath"
	"runtime"
	"strings"

	logx "lockpilot/pkg/logx"
)

const defaultOpenPath = "/usr/bin/open"

// Install downloads the installer image for the given release tag into the
// temp directory and hands it to the OS opener. It returns a human-readable
// status line for the UI.
func (c *Client) Install(ctx context.Context, tag string) (string, error) {
	releases, err := c.Releases(ctx, true)
	if err != nil {
		return "", err
	}
	var release *Release
	for i := range releases {
		if tagsMatch(releases[i].Tag, tag) {
			release = &releases[i]
			break
		}
	}
	if release == nil {
		return "", fmt.Errorf("release not found for tag %q", tag)
	}

	asset := pickInstallerAsset(release.Assets)
	if asset == nil {
		return "", fmt.Errorf("no installer asset found for release %s", release.Tag)
	}

	path, err := c.downloadAsset(ctx, asset, release.Tag)
	if err != nil {
		return "", err
	}

	openPath := c.cfg.OpenPath
	if openPath == "" {
		openPath = defaultOpenPath
	}
	if err := osexec.CommandContext(ctx, openPath, path).Start(); err != nil {
		return "", fmt.Errorf("open installer: %w", err)
	}

	c.log.Info("installer opened", logx.String("tag", release.Tag), logx.String("path", path))
	return fmt.Sprintf("Opened installer for %s from %s", release.Tag, path), nil
}

func (c *Client) downloadAsset(ctx context.Context, asset *Asset, tag string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	safeTag := strings.ReplaceAll(tag, "/", "-")
	path := filepath.Join(os.TempDir(), fmt.Sprintf("LockPilot-%s%s", safeTag, filepath.Ext(asset.Name)))

	resp, err := c.http.R().
		SetContext(ctx).
		SetOutput(path).
		Get(asset.BrowserDownloadURL)
	if err != nil {
		return "", fmt.Errorf("download release asset: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("asset download failed with status %d", resp.StatusCode())
	}
	return path, nil
}

// pickInstallerAsset prefers a .dmg matching the host architecture and
// falls back to the first .dmg.
func pickInstallerAsset(assets []Asset) *Asset {
	var dmgs []Asset
	for _, a := range assets {
		if strings.HasSuffix(strings.ToLower(a.Name), ".dmg") {
			dmgs = append(dmgs, a)
		}
	}
	if len(dmgs) == 0 {
		return nil
	}

	var hints []string
	switch runtime.GOARCH {
	case "arm64":
		hints = []string{"aarch64", "arm64"}
	case "amd64":
		hints = []string{"x86_64", "amd64"}
	}
	for _, a := range dmgs {
		name := strings.ToLower(a.Name)
		for _, h := range hints {
			if strings.Contains(name, h) {
				return &a
			}
		}
	}
	return &dmgs[0]
}
