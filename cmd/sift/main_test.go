package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testBinary(t *testing.T) string {
	t.Helper()
	binaryPath, err := filepath.Abs("../../sift")
	if err != nil {
		t.Fatalf("failed to get binary path: %v", err)
	}
	if _, err := os.Stat(binaryPath); os.IsNotExist(err) {
		t.Skip("sift binary not found - run 'go build -o sift ./cmd/sift' first")
	}
	return binaryPath
}

func TestSubcommands(t *testing.T) {
	binaryPath := testBinary(t)

	t.Run("help shows usage", func(t *testing.T) {
		out, err := exec.Command(binaryPath, "help").CombinedOutput()
		if err != nil {
			t.Fatalf("help command failed: %v", err)
		}
		if !strings.Contains(string(out), "serve") || !strings.Contains(string(out), "load") {
			t.Errorf("help output missing subcommands: %s", out)
		}
	})

	t.Run("version prints version info", func(t *testing.T) {
		out, err := exec.Command(binaryPath, "version").CombinedOutput()
		if err != nil {
			t.Fatalf("version command failed: %v", err)
		}
		if !strings.Contains(string(out), "sift version") {
			t.Errorf("version output incorrect: %s", out)
		}
	})

	t.Run("no args shows usage and exits 1", func(t *testing.T) {
		out, err := exec.Command(binaryPath).CombinedOutput()
		if err == nil {
			t.Fatal("expected non-zero exit for no args")
		}
		if !strings.Contains(string(out), "Usage:") {
			t.Errorf("expected usage output, got: %s", out)
		}
	})

	t.Run("unknown command exits 1", func(t *testing.T) {
		out, err := exec.Command(binaryPath, "notreal").CombinedOutput()
		if err == nil {
			t.Fatal("expected non-zero exit for unknown command")
		}
		if !strings.Contains(string(out), "Unknown command") {
			t.Errorf("expected unknown command message, got: %s", out)
		}
	})
}

func TestServeMode(t *testing.T) {
	binaryPath := testBinary(t)

	port := 18080
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := exec.CommandContext(ctx, binaryPath, "serve", fmt.Sprintf("--addr=:%d", port))
	if err := cmd.Start(); err != nil {
		t.Fatalf("failed to start serve: %v", err)
	}
	defer cmd.Process.Kill()

	time.Sleep(2 * time.Second)

	resp, err := http.Get(fmt.Sprintf("http://localhost:%d/health", port))
	if err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	defer resp.Body.Close()

	var result map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result["status"] != "ok" {
		t.Errorf("expected status ok, got %s", result["status"])
	}
}

func TestConfigLoading(t *testing.T) {
	binaryPath := testBinary(t)

	configFile, err := os.CreateTemp("", "sift-config-*.json")
	if err != nil {
		t.Fatalf("failed to create temp config: %v", err)
	}
	defer os.Remove(configFile.Name())

	port := 18082
	config := fmt.Sprintf(`{
		"listen_addr": ":%d",
		"object_store": {
			"type": "memory"
		}
	}`, port)
	if _, err := configFile.WriteString(config); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	configFile.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := exec.CommandContext(ctx, binaryPath, "serve", "--config="+configFile.Name())
	if err := cmd.Start(); err != nil {
		t.Fatalf("failed to start serve with config: %v", err)
	}
	defer cmd.Process.Kill()

	time.Sleep(2 * time.Second)

	resp, err := http.Get(fmt.Sprintf("http://localhost:%d/health", port))
	if err != nil {
		t.Fatalf("health check on config port failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}
}
