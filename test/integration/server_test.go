// Package integration contains end-to-end tests that exercise the popchat
// server over real HTTP and WebSocket connections.
package integration

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/popchat/popchat/internal/server"
	"github.com/popchat/popchat/test/testhelpers"
)

func TestHealthEndpoint(t *testing.T) {
	server.SetConfig(&server.Config{StaticDir: t.TempDir()})
	t.Cleanup(func() { server.SetConfig(nil) })

	ts := testhelpers.StartTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("Failed to request health endpoint: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	if string(body) != "popchat server is running!" {
		t.Errorf("Unexpected health body: %q", body)
	}
}

func TestStaticBundleServing(t *testing.T) {
	dir := t.TempDir()
	index := filepath.Join(dir, "index.html")
	if err := os.WriteFile(index, []byte("<!DOCTYPE html><title>popchat</title>"), 0o644); err != nil {
		t.Fatalf("Failed to write test asset: %v", err)
	}
	server.SetConfig(&server.Config{StaticDir: dir})
	t.Cleanup(func() { server.SetConfig(nil) })

	ts := testhelpers.StartTestServer(t)

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("Failed to request static root: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200 for index, got %d", resp.StatusCode)
	}

	missing, err := http.Get(ts.URL + "/no-such-asset.js")
	if err != nil {
		t.Fatalf("Failed to request missing asset: %v", err)
	}
	defer func() { _ = missing.Body.Close() }()

	if missing.StatusCode != http.StatusNotFound {
		t.Errorf("Expected status 404 for missing asset, got %d", missing.StatusCode)
	}
}

func TestRequestBudgetRejection(t *testing.T) {
	server.SetConfig(&server.Config{StaticDir: t.TempDir(), HTTPRateLimit: 3})
	t.Cleanup(func() { server.SetConfig(nil) })

	ts := testhelpers.StartTestServer(t)

	var last *http.Response
	for i := 0; i < 4; i++ {
		resp, err := http.Get(ts.URL + "/healthz")
		if err != nil {
			t.Fatalf("Request %d failed: %v", i+1, err)
		}
		if last != nil {
			_ = last.Body.Close()
		}
		last = resp
	}
	defer func() { _ = last.Body.Close() }()

	if last.StatusCode != http.StatusTooManyRequests {
		t.Errorf("Expected status 429 after budget exhaustion, got %d", last.StatusCode)
	}
	body, _ := io.ReadAll(last.Body)
	if string(body) != "Слишком много запросов, попробуйте позже.\n" {
		t.Errorf("Unexpected rejection body: %q", body)
	}
}

func TestUpgradeRejectsDisallowedOrigin(t *testing.T) {
	server.SetConfig(&server.Config{StaticDir: t.TempDir()})
	t.Cleanup(func() { server.SetConfig(nil) })

	ts := testhelpers.StartTestServer(t)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	req.Header.Set("Origin", "http://evil.example")
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Version", "13")
	req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected status 403 for disallowed origin, got %d", resp.StatusCode)
	}
}
