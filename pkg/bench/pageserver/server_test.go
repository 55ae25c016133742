package pageserver

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	page := `<!DOCTYPE html><html><head><title>Agent Bench Page</title></head><body></body></html>`
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte(page), 0o644); err != nil {
		t.Fatalf("writing test page: %v", err)
	}
	cfg := DefaultConfig()
	cfg.Dir = dir
	return cfg
}

func TestServerStartStop(t *testing.T) {
	srv, err := NewServer(testConfig(t))
	if err != nil {
		t.Fatalf("NewServer() failed: %v", err)
	}

	addr, err := srv.Start()
	if err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if addr == "" || addr == ":0" {
		t.Errorf("Start() returned invalid address: %q", addr)
	}
	if got := srv.Addr(); got != addr {
		t.Errorf("Addr() = %q, want %q", got, addr)
	}

	url := "http://" + addr + "/"
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("HTTP GET failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET / status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "Agent Bench Page") {
		t.Error("Response body doesn't contain the hosted page")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() failed: %v", err)
	}

	if _, err := http.Get(url); err == nil {
		t.Error("Expected connection error after shutdown, but request succeeded")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Addr != ":0" {
		t.Errorf("DefaultConfig().Addr = %q, want %q", cfg.Addr, ":0")
	}
	if cfg.ReadTimeout != 30*time.Second {
		t.Errorf("DefaultConfig().ReadTimeout = %v, want %v", cfg.ReadTimeout, 30*time.Second)
	}
	if cfg.WriteTimeout != 30*time.Second {
		t.Errorf("DefaultConfig().WriteTimeout = %v, want %v", cfg.WriteTimeout, 30*time.Second)
	}
}

func TestServerDoubleStart(t *testing.T) {
	srv, err := NewServer(testConfig(t))
	if err != nil {
		t.Fatalf("NewServer() failed: %v", err)
	}
	defer srv.Shutdown(context.Background())

	addr1, err := srv.Start()
	if err != nil {
		t.Fatalf("First Start() failed: %v", err)
	}
	addr2, err := srv.Start()
	if err != nil {
		t.Fatalf("Second Start() failed: %v", err)
	}
	if addr1 != addr2 {
		t.Errorf("Second Start() returned different address: %q vs %q", addr1, addr2)
	}
}

func TestNewServerRequiresDir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Dir = ""
	if _, err := NewServer(cfg); err == nil {
		t.Error("NewServer() with empty dir should fail")
	}
}
