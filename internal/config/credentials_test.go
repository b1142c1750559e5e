package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func clearCredentialEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvBaseURL, EnvUsername, EnvAPIToken} {
		t.Setenv(key, "")
	}
}

func TestLoadCredentialsFromEnvFile(t *testing.T) {
	clearCredentialEnv(t)
	dir := t.TempDir()
	content := `CONFLUENCE_BASE_URL=https://example.atlassian.net/wiki/
CONFLUENCE_USERNAME=docs@example.com
CONFLUENCE_API_TOKEN=secret-token
`
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	creds, err := LoadCredentials(dir)
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if creds.BaseURL != "https://example.atlassian.net/wiki" {
		t.Errorf("BaseURL = %q, want trailing slash trimmed", creds.BaseURL)
	}
	if creds.Username != "docs@example.com" {
		t.Errorf("Username = %q", creds.Username)
	}
	if creds.APIToken != "secret-token" {
		t.Errorf("APIToken = %q", creds.APIToken)
	}
}

func TestLoadCredentialsEnvOverridesFile(t *testing.T) {
	clearCredentialEnv(t)
	dir := t.TempDir()
	content := `CONFLUENCE_BASE_URL=https://file.example.com
CONFLUENCE_USERNAME=file@example.com
CONFLUENCE_API_TOKEN=file-token
`
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvBaseURL, "https://env.example.com")

	creds, err := LoadCredentials(dir)
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if creds.BaseURL != "https://env.example.com" {
		t.Errorf("BaseURL = %q, want environment value", creds.BaseURL)
	}
	if creds.Username != "file@example.com" {
		t.Errorf("Username = %q, want file value", creds.Username)
	}
}

func TestLoadCredentialsMissingListsAll(t *testing.T) {
	clearCredentialEnv(t)

	_, err := LoadCredentials(t.TempDir())
	if err == nil {
		t.Fatal("expected error with no credentials")
	}
	for _, key := range []string{EnvBaseURL, EnvUsername, EnvAPIToken} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error should name %s: %v", key, err)
		}
	}
}
