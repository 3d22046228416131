package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"STORAGE_TYPE", "LOCAL_STORAGE_PATH", "INVITATION_TTL", "ALLOWED_ORIGINS", "MAIL_RATE_BURST"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Storage.Type != "memory" {
		t.Errorf("Storage.Type = %q, want memory", cfg.Storage.Type)
	}
	if cfg.Storage.LocalPath != "./data" {
		t.Errorf("Storage.LocalPath = %q", cfg.Storage.LocalPath)
	}
	if cfg.InvitationTTL != 90*24*time.Hour {
		t.Errorf("InvitationTTL = %v", cfg.InvitationTTL)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "*" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.Mail.Burst != 10 {
		t.Errorf("Mail.Burst = %d", cfg.Mail.Burst)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORAGE_TYPE", "sqlite")
	t.Setenv("INVITATION_TTL", "3600")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("MAIL_RATE_BURST", "not-a-number")
	t.Setenv("SHUTDOWN_TIMEOUT", "10s")

	cfg := Load()
	if cfg.Storage.Type != "sqlite" {
		t.Errorf("Storage.Type = %q", cfg.Storage.Type)
	}
	if cfg.InvitationTTL != time.Hour {
		t.Errorf("InvitationTTL = %v, want 1h", cfg.InvitationTTL)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.Mail.Burst != 10 {
		t.Errorf("invalid MAIL_RATE_BURST should fall back, got %d", cfg.Mail.Burst)
	}
	if cfg.ShutdownDeadline != 10*time.Second {
		t.Errorf("ShutdownDeadline = %v", cfg.ShutdownDeadline)
	}
}
