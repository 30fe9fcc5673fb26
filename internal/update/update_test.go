package update

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	logx "lockpilot/pkg/logx"
)

func newReleaseServer(t *testing.T, releases []Release) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/lockpilot/releases", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(releases)
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func newTestClient(t *testing.T, ts *httptest.Server, prerelease bool) *Client {
	t.Helper()
	return NewClient(Config{
		Enabled:    true,
		Owner:      "acme",
		Repo:       "lockpilot",
		Prerelease: prerelease,
		BaseURL:    ts.URL,
	}, logx.Nop())
}

func testReleases() []Release {
	return []Release{
		{Tag: "v1.1.0", Name: "1.1.0"},
		{Tag: "v2.0.0-rc.1", Name: "2.0.0 rc1", Prerelease: true},
		{Tag: "v1.2.0", Name: "1.2.0"},
		{Tag: "v9.9.9", Name: "draft", Draft: true},
		{Tag: "nightly-2026-05-01", Name: "nightly"},
	}
}

func TestReleasesStableChannel(t *testing.T) {
	t.Parallel()
	ts := newReleaseServer(t, testReleases())
	c := newTestClient(t, ts, false)

	got, err := c.Releases(context.Background(), false)
	if err != nil {
		t.Fatalf("Releases: %v", err)
	}
	// Drafts, prereleases and non-semver tags are dropped; newest first.
	want := []string{"v1.2.0", "v1.1.0"}
	if len(got) != len(want) {
		t.Fatalf("Releases = %d entries, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Tag != want[i] {
			t.Fatalf("Releases[%d] = %s, want %s", i, got[i].Tag, want[i])
		}
	}
}

func TestReleasesPrereleaseChannel(t *testing.T) {
	t.Parallel()
	ts := newReleaseServer(t, testReleases())
	c := newTestClient(t, ts, true)

	got, err := c.Releases(context.Background(), true)
	if err != nil {
		t.Fatalf("Releases: %v", err)
	}
	if len(got) != 3 || got[0].Tag != "v2.0.0-rc.1" {
		t.Fatalf("prerelease channel = %+v, want v2.0.0-rc.1 newest", tags(got))
	}
}

func TestLatest(t *testing.T) {
	t.Parallel()
	ts := newReleaseServer(t, testReleases())
	c := newTestClient(t, ts, false)

	r, err := c.Latest(context.Background(), false)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if r == nil || r.Tag != "v1.2.0" {
		t.Fatalf("Latest = %+v, want v1.2.0", r)
	}
}

func TestLatestEmptyListing(t *testing.T) {
	t.Parallel()
	ts := newReleaseServer(t, nil)
	c := newTestClient(t, ts, false)

	r, err := c.Latest(context.Background(), false)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if r != nil {
		t.Fatalf("Latest of empty listing = %+v, want nil", r)
	}
}

func TestCheck(t *testing.T) {
	t.Parallel()
	ts := newReleaseServer(t, testReleases())

	tests := []struct {
		name       string
		prerelease bool
		current    string
		wantTag    string // "" means up to date
	}{
		{name: "older stable", current: "v1.1.0", wantTag: "v1.2.0"},
		{name: "up to date", current: "v1.2.0", wantTag: ""},
		{name: "ahead of listing", current: "v3.0.0", wantTag: ""},
		{name: "prerelease channel", prerelease: true, current: "v1.2.0", wantTag: "v2.0.0-rc.1"},
		{name: "no v prefix", current: "1.0.0", wantTag: "v1.2.0"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := newTestClient(t, ts, tt.prerelease)
			r, err := c.Check(context.Background(), tt.current)
			if err != nil {
				t.Fatalf("Check: %v", err)
			}
			if tt.wantTag == "" {
				if r != nil {
					t.Fatalf("Check = %+v, want up to date", r)
				}
				return
			}
			if r == nil || r.Tag != tt.wantTag {
				t.Fatalf("Check = %+v, want %s", r, tt.wantTag)
			}
		})
	}
}

func TestCheckRejectsInvalidCurrent(t *testing.T) {
	t.Parallel()
	ts := newReleaseServer(t, testReleases())
	c := newTestClient(t, ts, false)
	if _, err := c.Check(context.Background(), "not-a-version"); err == nil {
		t.Fatal("Check with invalid current version should fail")
	}
}

func TestReleasesAPIError(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusForbidden)
	}))
	t.Cleanup(ts.Close)

	c := newTestClient(t, ts, false)
	if _, err := c.Releases(context.Background(), false); err == nil {
		t.Fatal("API error status should surface as an error")
	}
}

func TestTagsMatch(t *testing.T) {
	t.Parallel()
	tests := []struct {
		a, b string
		want bool
	}{
		{"v1.2.3", "1.2.3", true},
		{" v1.2.3 ", "v1.2.3", true},
		{"v1.2.3", "v1.2.4", false},
	}
	for _, tt := range tests {
		if got := tagsMatch(tt.a, tt.b); got != tt.want {
			t.Fatalf("tagsMatch(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestPickInstallerAsset(t *testing.T) {
	t.Parallel()
	if got := pickInstallerAsset(nil); got != nil {
		t.Fatalf("pickInstallerAsset(nil) = %+v, want nil", got)
	}
	if got := pickInstallerAsset([]Asset{{Name: "app.zip"}}); got != nil {
		t.Fatalf("non-dmg assets should yield nil, got %+v", got)
	}

	assets := []Asset{
		{Name: "LockPilot_1.2.0_aarch64.dmg"},
		{Name: "LockPilot_1.2.0_x86_64.dmg"},
		{Name: "checksums.txt"},
	}
	got := pickInstallerAsset(assets)
	if got == nil {
		t.Fatal("pickInstallerAsset returned nil for dmg assets")
	}
	// Whatever the host arch, the pick must be one of the dmgs.
	if got.Name != assets[0].Name && got.Name != assets[1].Name {
		t.Fatalf("pickInstallerAsset = %+v, want a dmg", got)
	}
}

func tags(rs []Release) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Tag
	}
	return out
}
