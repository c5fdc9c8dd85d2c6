package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"DOCUFLEX_APP_NAME", "DOCUFLEX_IMPORT_STAGGER_MS", "MINIO_USE_SSL", "DOCUFLEX_VIDEO_POLL_SECONDS"} {
		t.Setenv(key, "")
	}
	cfg := Load()
	if cfg.AppName != "DocuFlex" {
		t.Fatalf("expected default app name, got %q", cfg.AppName)
	}
	if cfg.ImportStagger != 500*time.Millisecond {
		t.Fatalf("expected 500ms stagger, got %v", cfg.ImportStagger)
	}
	if cfg.VideoPoll != 5*time.Second {
		t.Fatalf("expected 5s poll, got %v", cfg.VideoPoll)
	}
	if cfg.MinioUseSSL {
		t.Fatal("expected MinIO SSL off by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DOCUFLEX_APP_NAME", "Acme Docs")
	t.Setenv("DOCUFLEX_IMPORT_SUCCESS_RATE", "100")
	t.Setenv("DOCUFLEX_IMPORT_STAGGER_MS", "not-a-number")
	t.Setenv("MINIO_USE_SSL", "true")

	cfg := Load()
	if cfg.AppName != "Acme Docs" {
		t.Fatalf("expected override, got %q", cfg.AppName)
	}
	if cfg.ImportSuccessRate != 100 {
		t.Fatalf("expected 100, got %d", cfg.ImportSuccessRate)
	}
	if cfg.ImportStagger != 500*time.Millisecond {
		t.Fatalf("expected fallback on bad int, got %v", cfg.ImportStagger)
	}
	if !cfg.MinioUseSSL {
		t.Fatal("expected MinIO SSL on")
	}
}
