package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Environment variables (or .env keys) holding the API credentials.
const (
	EnvBaseURL  = "CONFLUENCE_BASE_URL"
	EnvUsername = "CONFLUENCE_USERNAME"
	EnvAPIToken = "CONFLUENCE_API_TOKEN"
)

// Credentials authenticate against the remote REST API.
type Credentials struct {
	BaseURL  string
	Username string
	APIToken string
}

// LoadCredentials reads credentials from dir/.env with process
// environment variables taking precedence. A missing .env file is fine;
// missing values are not, and the error lists every absent variable so
// one run reports everything to fix.
func LoadCredentials(dir string) (Credentials, error) {
	envFile := filepath.Join(dir, ".env")

	v := viper.New()
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(envFile); statErr == nil {
			return Credentials{}, fmt.Errorf("read %s: %w", envFile, err)
		}
	}
	for _, key := range []string{EnvBaseURL, EnvUsername, EnvAPIToken} {
		if err := v.BindEnv(key); err != nil {
			return Credentials{}, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	creds := Credentials{
		BaseURL:  strings.TrimSpace(v.GetString(EnvBaseURL)),
		Username: strings.TrimSpace(v.GetString(EnvUsername)),
		APIToken: strings.TrimSpace(v.GetString(EnvAPIToken)),
	}

	var missing []string
	if creds.BaseURL == "" {
		missing = append(missing, EnvBaseURL)
	}
	if creds.Username == "" {
		missing = append(missing, EnvUsername)
	}
	if creds.APIToken == "" {
		missing = append(missing, EnvAPIToken)
	}
	if len(missing) > 0 {
		return Credentials{}, fmt.Errorf("missing credentials: set %s (in the environment or %s)",
			strings.Join(missing, ", "), envFile)
	}

	creds.BaseURL = strings.TrimRight(creds.BaseURL, "/")
	return creds, nil
}
