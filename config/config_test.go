// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.HealthAddr != ":8081" {
		t.Errorf("expected default health addr :8081, got %s", cfg.Server.HealthAddr)
	}

	if len(cfg.Queues) != 1 {
		t.Fatalf("expected one default queue, got %d", len(cfg.Queues))
	}
	q := cfg.Queues[0]
	if q.LockTimeout != 30*time.Second {
		t.Errorf("expected lock timeout 30s, got %v", q.LockTimeout)
	}
	if q.WaitTimeout != 5*time.Second {
		t.Errorf("expected wait timeout 5s, got %v", q.WaitTimeout)
	}

	if cfg.Log.Level != "info" {
		t.Errorf("expected log level info, got %s", cfg.Log.Level)
	}
	if cfg.Metrics.Enabled {
		t.Error("expected metrics to be disabled by default")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "default config is valid",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "no queues is valid",
			modify: func(c *Config) {
				c.Queues = nil
			},
			wantErr: false,
		},
		{
			name: "health enabled without address",
			modify: func(c *Config) {
				c.Server.HealthAddr = ""
			},
			wantErr: true,
		},
		{
			name: "invalid log level",
			modify: func(c *Config) {
				c.Log.Level = "invalid"
			},
			wantErr: true,
		},
		{
			name: "invalid log format",
			modify: func(c *Config) {
				c.Log.Format = "xml"
			},
			wantErr: true,
		},
		{
			name: "queue without name",
			modify: func(c *Config) {
				c.Queues[0].Name = ""
			},
			wantErr: true,
		},
		{
			name: "duplicate queue",
			modify: func(c *Config) {
				c.Queues = append(c.Queues, c.Queues[0])
			},
			wantErr: true,
		},
		{
			name: "zero lock timeout",
			modify: func(c *Config) {
				c.Queues[0].LockTimeout = 0
			},
			wantErr: true,
		},
		{
			name: "negative wait timeout",
			modify: func(c *Config) {
				c.Queues[0].WaitTimeout = -time.Second
			},
			wantErr: true,
		},
		{
			name: "trace sample rate out of range",
			modify: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.TraceSampleRate = 1.5
			},
			wantErr: true,
		},
		{
			name: "webhook endpoint without url",
			modify: func(c *Config) {
				c.Webhook.Enabled = true
				c.Webhook.Endpoints = []WebhookEndpoint{{Name: "alerts", Type: "http"}}
			},
			wantErr: true,
		},
		{
			name: "webhook with invalid drop policy",
			modify: func(c *Config) {
				c.Webhook.Enabled = true
				c.Webhook.DropPolicy = "random"
			},
			wantErr: true,
		},
		{
			name: "producer targets unknown queue",
			modify: func(c *Config) {
				c.Producer.Enabled = true
				c.Producer.Queue = "missing"
			},
			wantErr: true,
		},
		{
			name: "producer with zero rate",
			modify: func(c *Config) {
				c.Producer.Enabled = true
				c.Producer.Rate = 0
			},
			wantErr: true,
		},
		{
			name: "enabled producer is valid",
			modify: func(c *Config) {
				c.Producer.Enabled = true
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadNonExistent(t *testing.T) {
	cfg, err := Load("nonexistent.yaml")
	if err != nil {
		t.Fatalf("Load() should return default config and no error when file doesn't exist, got error: %v", err)
	}
	if cfg == nil {
		t.Fatal("Load() should return a default config, got nil")
	}

	if cfg.Server.HealthAddr != ":8081" {
		t.Errorf("expected default config, got health addr %s", cfg.Server.HealthAddr)
	}
}

func TestLoadYAML(t *testing.T) {
	tmpfile := filepath.Join(t.TempDir(), "config.yaml")
	data := `
log:
  level: debug
queues:
  - name: orders
    kind: memory
    lock_timeout: 10s
    wait_timeout: 1s
  - name: audit
    kind: memory
    lock_timeout: 1m
    wait_timeout: 500ms
    listen: true
`
	if err := os.WriteFile(tmpfile, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(tmpfile)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Log.Level)
	}
	if cfg.Log.Format != "text" {
		t.Errorf("expected default log format text, got %s", cfg.Log.Format)
	}
	if len(cfg.Queues) != 2 {
		t.Fatalf("expected 2 queues, got %d", len(cfg.Queues))
	}
	if cfg.Queues[0].Name != "orders" || cfg.Queues[0].LockTimeout != 10*time.Second {
		t.Errorf("unexpected first queue: %+v", cfg.Queues[0])
	}
	if !cfg.Queues[1].Listen || cfg.Queues[1].WaitTimeout != 500*time.Millisecond {
		t.Errorf("unexpected second queue: %+v", cfg.Queues[1])
	}
}

func TestLoadInvalid(t *testing.T) {
	tmpfile := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(tmpfile, []byte("log:\n  level: loud\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(tmpfile); err == nil {
		t.Fatal("expected an error for an invalid log level")
	}

	if err := os.WriteFile(tmpfile, []byte("queues: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(tmpfile); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestSaveLoad(t *testing.T) {
	tmpfile := t.TempDir() + "/config.yaml"

	cfg := Default()
	cfg.Server.HealthAddr = ":9090"
	cfg.Queues[0].LockTimeout = 45 * time.Second
	cfg.Log.Level = "debug"

	if err := cfg.Save(tmpfile); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(tmpfile)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if loaded.Server.HealthAddr != ":9090" {
		t.Errorf("expected health addr :9090, got %s", loaded.Server.HealthAddr)
	}
	if loaded.Queues[0].LockTimeout != 45*time.Second {
		t.Errorf("expected lock timeout 45s, got %v", loaded.Queues[0].LockTimeout)
	}
	if loaded.Log.Level != "debug" {
		t.Errorf("expected log level debug, got %s", loaded.Log.Level)
	}
}
