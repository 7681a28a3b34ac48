package vault

import (
	"context"
	"errors"
	"strings"
	"testing"

	"droplock/internal/config"
	"droplock/internal/droplock"
)

func newOfflineS3Vault(t *testing.T, prefix string) *S3Vault {
	t.Helper()
	v, err := NewS3Vault(context.Background(), "test", config.VaultConfig{
		Type:              "s3",
		S3Bucket:          "droplock-archive",
		S3Prefix:          prefix,
		S3Region:          "us-east-1",
		S3Endpoint:        "http://127.0.0.1:1",
		S3AccessKeyID:     "AKIDEXAMPLE",
		S3SecretAccessKey: "secret",
	})
	if err != nil {
		t.Fatalf("NewS3Vault() error = %v", err)
	}
	return v
}

func TestS3Vault_Keys(t *testing.T) {
	tests := []struct {
		prefix string
		object string
		want   string
	}{
		{"", "snapshots/a", "snapshots/a"},
		{"prod", "snapshots/a", "prod/snapshots/a"},
		{"/prod/", "snapshots/a", "prod/snapshots/a"},
	}
	for _, tt := range tests {
		v := newOfflineS3Vault(t, tt.prefix)
		if got := v.key(tt.object); got != tt.want {
			t.Errorf("key(%q) with prefix %q = %q, want %q", tt.object, tt.prefix, got, tt.want)
		}
		if got := v.objectName(tt.want); got != tt.object {
			t.Errorf("objectName(%q) = %q, want %q", tt.want, got, tt.object)
		}
	}
}

func TestS3Vault_RejectsInvalidNames(t *testing.T) {
	v := newOfflineS3Vault(t, "")
	if err := v.Put("../x", strings.NewReader("x"), 1); !errors.Is(err, droplock.ErrValidation) {
		t.Errorf("Put(../x) error = %v, want ErrValidation", err)
	}
}

func TestCountingReader(t *testing.T) {
	c := &countingReader{r: strings.NewReader("hello")}
	buf := make([]byte, 2)
	for {
		if _, err := c.Read(buf); err != nil {
			break
		}
	}
	if c.n != 5 {
		t.Errorf("counted %d bytes, want 5", c.n)
	}
}
