package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := &Config{
		BaseDir:           "/home/ops/.local/share/droplock",
		LogDir:            "/home/ops/.local/share/droplock/log",
		LogLevel:          "debug",
		AlertRecipient:    "noc@example.com",
		EmailSettingsPath: "/etc/droplock/email.yaml",
		Transitions:       "strict",
		SessionTTL:        "1h",
		StoreTimeoutSec:   3,
		Database:          DatabaseConfig{Type: "sqlite", DataDir: "/var/lib/droplock"},
		Signals:           SignalsConfig{Type: "memory"},
		Archive: ArchiveConfig{
			Vault: VaultConfig{Type: "s3", S3Bucket: "droplock-snapshots", S3Prefix: "prod", S3Region: "eu-west-1"},
			Encryption: EncryptionConfig{
				Type:           "age",
				PublicKeyPath:  "/keys/archive.pub",
				PrivateKeyPath: "/keys/archive.key",
			},
		},
		MQTT: MQTTConfig{Broker: "tcp://broker:1883", ClientID: "c1", TopicPrefix: "dl", QoS: 1},
	}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", got.LogLevel, "debug")
	}
	if got.AlertRecipient != original.AlertRecipient {
		t.Errorf("AlertRecipient = %q, want %q", got.AlertRecipient, original.AlertRecipient)
	}
	if got.Transitions != "strict" {
		t.Errorf("Transitions = %q, want %q", got.Transitions, "strict")
	}
	if got.Database != original.Database {
		t.Errorf("Database = %+v, want %+v", got.Database, original.Database)
	}
	if got.Signals.Type != "memory" {
		t.Errorf("Signals.Type = %q, want %q", got.Signals.Type, "memory")
	}
	if got.Archive.Vault != original.Archive.Vault {
		t.Errorf("Archive.Vault = %+v, want %+v", got.Archive.Vault, original.Archive.Vault)
	}
	if got.Archive.Encryption != original.Archive.Encryption {
		t.Errorf("Archive.Encryption = %+v, want %+v", got.Archive.Encryption, original.Archive.Encryption)
	}
	if got.MQTT != original.MQTT {
		t.Errorf("MQTT = %+v, want %+v", got.MQTT, original.MQTT)
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("/data/droplock")

	if cfg.LogDir != "/data/droplock/log" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/data/droplock/log")
	}
	if cfg.Database.Type != "sqlite" || cfg.Database.DataDir != "/data/droplock/db" {
		t.Errorf("Database = %+v, want sqlite under /data/droplock/db", cfg.Database)
	}
	if cfg.Transitions != "permissive" {
		t.Errorf("Transitions = %q, want permissive", cfg.Transitions)
	}
	if cfg.Archive.Encryption.PublicKeyPath != "/data/droplock/keys/archive.pub" {
		t.Errorf("PublicKeyPath = %q", cfg.Archive.Encryption.PublicKeyPath)
	}
	if cfg.Archive.Vault.FSVaultRoot != "/data/droplock/vault" {
		t.Errorf("FSVaultRoot = %q", cfg.Archive.Vault.FSVaultRoot)
	}
}

func TestSessionTTLDuration(t *testing.T) {
	tests := []struct {
		name    string
		ttl     string
		want    time.Duration
		wantErr bool
	}{
		{"default", "", 12 * time.Hour, false},
		{"explicit", "30m", 30 * time.Minute, false},
		{"malformed", "soon", 0, true},
		{"negative", "-1h", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{SessionTTL: tt.ttl}
			got, err := cfg.SessionTTLDuration()
			if (err != nil) != tt.wantErr {
				t.Fatalf("SessionTTLDuration() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("SessionTTLDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStoreTimeout(t *testing.T) {
	if got := (&Config{}).StoreTimeout(); got != 5*time.Second {
		t.Errorf("StoreTimeout() = %v, want 5s", got)
	}
	if got := (&Config{StoreTimeoutSec: 2}).StoreTimeout(); got != 2*time.Second {
		t.Errorf("StoreTimeout() = %v, want 2s", got)
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "droplock.toml")

		if err := Init(path, NewConfig(dir)); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("config file not created: %v", err)
		}
		if perm := info.Mode().Perm(); perm != 0600 {
			t.Errorf("config file mode = %o, want 600", perm)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "droplock.toml")
		cfg := NewConfig(dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}
		if err := Init(path, cfg); err == nil {
			t.Fatal("second Init() expected error")
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "droplock.toml")
		cfg := NewConfig(dir)
		cfg.Database = DatabaseConfig{Type: "memory"}

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.Database.Type != "memory" {
			t.Errorf("Database.Type = %q, want memory", got.Database.Type)
		}
		if got.BaseDir != dir {
			t.Errorf("BaseDir = %q, want %q", got.BaseDir, dir)
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		if _, err := ReadFromFile("/nonexistent/path/droplock.toml"); err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})
}
