package notify

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Settings are the SMTP transport parameters.
type Settings struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	UseTLS    bool
}

// Addr is host:port for dialing.
func (s Settings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

var requiredKeys = []string{"smtp_host", "smtp_port", "username", "password", "from_email", "use_tls"}

// LoadSettings reads SMTP settings from a .json, .toml, .yaml or .yml
// file. Every key in requiredKeys must be present.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading email settings: %w", err)
	}

	raw := make(map[string]any)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = json.Unmarshal(data, &raw)
	case ".toml":
		_, err = toml.Decode(string(data), &raw)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	default:
		return nil, fmt.Errorf("unsupported email settings format %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing email settings: %w", err)
	}
	return parseSettings(raw)
}

func parseSettings(raw map[string]any) (*Settings, error) {
	var missing []string
	for _, key := range requiredKeys {
		if _, ok := raw[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("email settings missing keys: %s", strings.Join(missing, ", "))
	}

	port, err := toInt(raw["smtp_port"])
	if err != nil || port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid smtp_port %v", raw["smtp_port"])
	}
	useTLS, err := toBool(raw["use_tls"])
	if err != nil {
		return nil, fmt.Errorf("invalid use_tls: %w", err)
	}

	s := &Settings{
		Host:      fmt.Sprint(raw["smtp_host"]),
		Port:      port,
		Username:  fmt.Sprint(raw["username"]),
		Password:  fmt.Sprint(raw["password"]),
		FromEmail: fmt.Sprint(raw["from_email"]),
		UseTLS:    useTLS,
	}
	if s.Host == "" || !strings.Contains(s.FromEmail, "@") {
		return nil, fmt.Errorf("email settings need smtp_host and a valid from_email")
	}
	return s, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		return strconv.Atoi(strings.TrimSpace(n))
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

func toBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(b))
	default:
		return false, fmt.Errorf("unexpected type %T", v)
	}
}
