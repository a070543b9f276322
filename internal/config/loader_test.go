package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestExpandEnv(t *testing.T) {
	t.Setenv("POSTAI_TEST_SET", "value")

	cases := []struct {
		in, want string
	}{
		{"k: ${POSTAI_TEST_SET}", "k: value"},
		{"k: ${POSTAI_TEST_SET:other}", "k: value"},
		{"k: ${POSTAI_TEST_UNSET:fallback}", "k: fallback"},
		{"k: ${POSTAI_TEST_UNSET:}", "k: "},
		{"k: ${POSTAI_TEST_UNSET}", "k: ${POSTAI_TEST_UNSET}"},
	}
	for _, tc := range cases {
		if got := expandEnv(tc.in); got != tc.want {
			t.Errorf("expandEnv(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	for _, name := range []string{"OPENAI_API_KEY", "PORT", "MAX_REQ_PER_MINUTE", "CORS_ORIGIN"} {
		t.Setenv(name, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.HTTP.Port != 4000 {
		t.Errorf("port = %d", cfg.Server.HTTP.Port)
	}
	if cfg.Security.RateLimit.RequestsPerWindow != 10 || cfg.Security.RateLimit.Window != time.Minute {
		t.Errorf("rate limit = %+v", cfg.Security.RateLimit)
	}
	if len(cfg.Security.CORS.AllowedOrigins) != 1 || cfg.Security.CORS.AllowedOrigins[0] != "http://localhost:3000" {
		t.Errorf("origins = %v", cfg.Security.CORS.AllowedOrigins)
	}
	p, ok := cfg.LLM.Provider()
	if !ok || p.Model != "gpt-4o-mini" || p.APIKey != "" {
		t.Errorf("provider = %+v ok=%v", p, ok)
	}
	if cfg.Generation.LinkedInMaxTokens != 800 || cfg.Generation.XMaxTokens != 200 {
		t.Errorf("generation = %+v", cfg.Generation)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("SEARCH_API_KEY", "search-key")
	t.Setenv("MAX_REQ_PER_MINUTE", "3")
	t.Setenv("CORS_ORIGIN", "https://app.example.com")
	t.Setenv("PORT", "5050")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p, _ := cfg.LLM.Provider(); p.APIKey != "sk-test" {
		t.Errorf("api key = %q", p.APIKey)
	}
	if cfg.Search.APIKey != "search-key" {
		t.Errorf("search key = %q", cfg.Search.APIKey)
	}
	if cfg.Security.RateLimit.RequestsPerWindow != 3 {
		t.Errorf("limit = %d", cfg.Security.RateLimit.RequestsPerWindow)
	}
	if got := cfg.Security.CORS.AllowedOrigins; len(got) != 1 || got[0] != "https://app.example.com" {
		t.Errorf("origins = %v", got)
	}
	if cfg.Server.HTTP.Port != 5050 {
		t.Errorf("port = %d", cfg.Server.HTTP.Port)
	}
}

func TestLoadFileWithPlaceholders(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "search:\n  provider: ${POSTAI_TEST_PROVIDER:Serper}\n  count: 2\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Search.Provider != "serper" || cfg.Search.Count != 2 {
		t.Errorf("search = %+v", cfg.Search)
	}
}
