package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// isolate runs the test from an empty directory with the credentials set.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("SPOTIFY_CLIENT_ID", "id")
	t.Setenv("SPOTIFY_CLIENT_SECRET", "secret")
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Spotify.ClientID != "id" || cfg.Spotify.ClientSecret != "secret" {
		t.Errorf("credentials = %q/%q", cfg.Spotify.ClientID, cfg.Spotify.ClientSecret)
	}
	if cfg.Spotify.RequestTimeout != 10*time.Second {
		t.Errorf("RequestTimeout = %v, want 10s", cfg.Spotify.RequestTimeout)
	}
	if cfg.Sync.WindowLimit != 50 {
		t.Errorf("WindowLimit = %d, want 50", cfg.Sync.WindowLimit)
	}
	if cfg.Sync.MergeWindow != 300*time.Second {
		t.Errorf("MergeWindow = %v, want 300s", cfg.Sync.MergeWindow)
	}
	if cfg.Enrich.BatchSize != 100 || cfg.Enrich.Concurrency != 4 {
		t.Errorf("Enrich = %+v", cfg.Enrich)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.URL != "./db.sqlite" {
		t.Errorf("Database = %+v", cfg.Database)
	}
	if cfg.Credentials.RefreshMargin != time.Minute {
		t.Errorf("RefreshMargin = %v, want 1m", cfg.Credentials.RefreshMargin)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("SYNC_MERGE_WINDOW", "2m")
	t.Setenv("ENRICH_CONCURRENCY", "8")
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/listens")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Sync.MergeWindow != 2*time.Minute {
		t.Errorf("MergeWindow = %v, want 2m", cfg.Sync.MergeWindow)
	}
	if cfg.Enrich.Concurrency != 8 {
		t.Errorf("Concurrency = %d, want 8", cfg.Enrich.Concurrency)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("Driver = %q, want postgres", cfg.Database.Driver)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want json", cfg.Log.Format)
	}
}

func TestLoad_ShortCredentialNames(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SPOTIFY_CLIENT_ID", "")
	t.Setenv("SPOTIFY_CLIENT_SECRET", "")
	os.Unsetenv("SPOTIFY_CLIENT_ID")
	os.Unsetenv("SPOTIFY_CLIENT_SECRET")
	t.Setenv("SPOTIFY_ID", "short-id")
	t.Setenv("SPOTIFY_SECRET", "short-secret")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Spotify.ClientID != "short-id" || cfg.Spotify.ClientSecret != "short-secret" {
		t.Errorf("credentials = %q/%q", cfg.Spotify.ClientID, cfg.Spotify.ClientSecret)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.yaml")
	yaml := []byte("sync:\n  window_limit: 20\nserver:\n  addr: 0.0.0.0:9090\n")
	if err := os.WriteFile(path, yaml, 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Sync.WindowLimit != 20 {
		t.Errorf("WindowLimit = %d, want 20", cfg.Sync.WindowLimit)
	}
	if cfg.Server.Addr != "0.0.0.0:9090" {
		t.Errorf("Server.Addr = %q", cfg.Server.Addr)
	}
}

func TestLoad_MissingExplicitConfigFile(t *testing.T) {
	dir := isolate(t)

	_, err := Load(filepath.Join(dir, "absent.yaml"))
	if err == nil {
		t.Fatal("Load() should fail when an explicit config file is missing")
	}
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("SPOTIFY_CLIENT_ID", "")
	t.Setenv("SPOTIFY_CLIENT_SECRET", "")
	os.Unsetenv("SPOTIFY_CLIENT_ID")
	os.Unsetenv("SPOTIFY_CLIENT_SECRET")
	// Values loaded from .env end up in the process environment.
	t.Setenv("LASTFM_API_KEY", "")
	os.Unsetenv("LASTFM_API_KEY")

	env := []byte("SPOTIFY_CLIENT_ID=env-id\nSPOTIFY_CLIENT_SECRET=env-secret\nLASTFM_API_KEY=lfm\n")
	if err := os.WriteFile(filepath.Join(dir, ".env"), env, 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Spotify.ClientID != "env-id" {
		t.Errorf("ClientID = %q, want env-id", cfg.Spotify.ClientID)
	}
	if cfg.LastFM.APIKey != "lfm" {
		t.Errorf("LastFM.APIKey = %q, want lfm", cfg.LastFM.APIKey)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"window above feed ceiling", map[string]string{"SYNC_WINDOW_LIMIT": "51"}},
		{"batch above endpoint ceiling", map[string]string{"ENRICH_BATCH_SIZE": "101"}},
		{"unknown driver", map[string]string{"DATABASE_DRIVER": "mysql"}},
		{"unknown log format", map[string]string{"LOG_FORMAT": "xml"}},
		{"missing client secret", map[string]string{"SPOTIFY_CLIENT_SECRET": ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load("")
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("Load() error = %v, want ErrInvalid", err)
			}
		})
	}
}
