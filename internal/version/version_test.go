/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package version

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.2.3", "1.2.3", 0},
		{"1.2.3", "1.2.4", -1},
		{"1.10.0", "1.9.9", 1},
		{"v2.0.0", "1.99.99", 1},
		{"0.3", "0.3.0", 0},
		{"1.0.0-rc1", "1.0.0", -1},
		{"1.0.0", "1.0.0-rc1", 1},
		{"1.0.0-rc1", "1.0.0-rc2", -1},
	}
	for _, tt := range tests {
		if got := compareVersions(tt.a, tt.b); got != tt.want {
			t.Errorf("compareVersions(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestFirstLine(t *testing.T) {
	if got := firstLine("first line\nsecond", 200); got != "first line" {
		t.Fatalf("firstLine() = %q", got)
	}
	if got := firstLine(strings.Repeat("x", 50), 10); got != "xxxxxxx..." {
		t.Fatalf("firstLine() = %q", got)
	}
}

func TestCheckReportsNewerRelease(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("User-Agent"), "powerdown/") {
			t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tag_name":"v99.0.0","html_url":"https://example.com/r","body":"Fixes\nmore"}`))
	}))
	defer srv.Close()

	info, err := Check(context.Background(), srv.Client(), srv.URL)
	if err != nil {
		t.Fatalf("Check() err=%v", err)
	}
	if !info.UpdateAvailable || info.LatestVersion != "99.0.0" || info.ReleaseNotes != "Fixes" {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestCheckCurrentRelease(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tag_name":"v` + Version + `"}`))
	}))
	defer srv.Close()

	info, err := Check(context.Background(), srv.Client(), srv.URL)
	if err != nil {
		t.Fatalf("Check() err=%v", err)
	}
	if info.UpdateAvailable {
		t.Fatalf("same version reported as update: %+v", info)
	}
}

func TestCheckErrors(t *testing.T) {
	tests := []struct {
		name string
		code int
		body string
	}{
		{"forbidden", http.StatusForbidden, ""},
		{"garbage", http.StatusOK, "not json"},
		{"no tag", http.StatusOK, `{"html_url":"x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			if _, err := Check(context.Background(), srv.Client(), srv.URL); err == nil {
				t.Fatal("Check() succeeded, want error")
			}
		})
	}
}
