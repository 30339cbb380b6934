package shared

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Database.Path != "./dird.db" {
			t.Errorf("expected database path ./dird.db, got %s", config.Database.Path)
		}

		if config.Server.Port != 9489 {
			t.Errorf("expected server port 9489, got %d", config.Server.Port)
		}

		if config.Engine.SourceTimeout != 5*time.Second {
			t.Errorf("expected source timeout 5s, got %v", config.Engine.SourceTimeout)
		}

		if !config.Events.WaitForAck {
			t.Error("expected events to wait for subscriber acks by default")
		}

		if len(config.Sources) != 1 || config.Sources[0].Backend != "personal" {
			t.Fatalf("expected the personal source, got %+v", config.Sources)
		}

		if got := config.Sources[0].FormatColumns["name"]; got != "{firstname} {lastname}" {
			t.Errorf("unexpected name format column %q", got)
		}

		if len(config.Profiles) != 1 || config.Profiles[0].Display != "default" {
			t.Errorf("expected the default profile, got %+v", config.Profiles)
		}

		if err := config.Validate(); err != nil {
			t.Errorf("default config should be valid: %v", err)
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		if _, err := os.Stat(configPath); err != nil {
			t.Fatalf("config file should exist: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		defaultConfig := DefaultConfig()
		if config.Database.Path != defaultConfig.Database.Path {
			t.Errorf("created config database path doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		testConfig := `enabled_backends = ["csv"]

[database]
path = "/custom/path.db"

[engine]
source_timeout = "250ms"

[[sources]]
name = "my_csv"
backend = "csv"
file = "/tmp/contacts.csv"
searched_columns = ["firstname"]
unique_columns = ["id"]

[[displays]]
name = "short"

[[displays.columns]]
title = "Firstname"
field = "firstname"
default = "Unknown"

[[profiles]]
name = "switchboard"
display = "short"

[profiles.services.lookup]
sources = ["my_csv"]
timeout = "1s"
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Database.Path != "/custom/path.db" {
			t.Errorf("expected database path /custom/path.db, got %s", config.Database.Path)
		}

		if config.Server.Port != 9489 {
			t.Errorf("expected default server port to be kept, got %d", config.Server.Port)
		}

		if config.Engine.SourceTimeout != 250*time.Millisecond {
			t.Errorf("expected 250ms source timeout, got %v", config.Engine.SourceTimeout)
		}

		if len(config.Sources) != 1 || config.Sources[0].Name != "my_csv" {
			t.Fatalf("file sources should replace the defaults, got %+v", config.Sources)
		}

		if len(config.Auth.Tokens) != 0 {
			t.Errorf("example tokens should not leak into a loaded config")
		}

		col := config.Displays[0].Columns[0]
		if col.Default == nil || *col.Default != "Unknown" {
			t.Errorf("expected column default Unknown, got %v", col.Default)
		}

		if got := config.Profiles[0].Services["lookup"].Timeout; got != time.Second {
			t.Errorf("expected lookup timeout 1s, got %v", got)
		}
	})

	t.Run("Validate", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		bad := `[[profiles]]
name = "p"
display = "missing"
`
		if err := os.WriteFile(configPath, []byte(bad), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		if _, err := LoadConfig(configPath); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}

		dup := DefaultConfig()
		dup.Sources = append(dup.Sources, dup.Sources[0])
		if err := dup.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected duplicated source to be rejected, got %v", err)
		}
	})
}

func TestWatchConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")
	if err := CreateConfigFile(configPath); err != nil {
		t.Fatalf("failed to create config file: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 1)
	done := make(chan error, 1)
	go func() {
		done <- WatchConfig(ctx, configPath, NewLogger(nil), func(c *Config) {
			select {
			case changes <- c:
			default:
			}
		})
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)

	updated := "[database]\npath = \"/changed.db\"\n"
	if err := os.WriteFile(configPath, []byte(updated), 0644); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}

	select {
	case c := <-changes:
		if c.Database.Path != "/changed.db" {
			t.Errorf("expected reloaded path /changed.db, got %s", c.Database.Path)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config change")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("watcher returned error: %v", err)
	}
}
