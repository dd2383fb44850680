package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.InstanceName != "default" {
		t.Errorf("InstanceName = %q, want default", cfg.InstanceName)
	}
	if cfg.StoreBackend != "sqlite" {
		t.Errorf("StoreBackend = %q, want sqlite", cfg.StoreBackend)
	}
	if cfg.Media.URLExpiry != time.Hour {
		t.Errorf("URLExpiry = %v, want 1h", cfg.Media.URLExpiry)
	}
	if cfg.MediaEnabled() {
		t.Error("MediaEnabled() = true without an endpoint")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("S3_ENDPOINT", "http://minio:9000")
	t.Setenv("S3_USE_SSL", "true")
	t.Setenv("MEDIA_URL_EXPIRY_SECONDS", "120")
	t.Setenv("INSTANCE_NAME", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Port = %q, want 9090", cfg.Port)
	}
	if cfg.StoreBackend != "memory" {
		t.Errorf("StoreBackend = %q, want memory", cfg.StoreBackend)
	}
	if !cfg.MediaEnabled() {
		t.Error("MediaEnabled() = false with an endpoint set")
	}
	if !cfg.Media.UseSSL {
		t.Error("UseSSL = false, want true")
	}
	if cfg.Media.URLExpiry != 2*time.Minute {
		t.Errorf("URLExpiry = %v, want 2m", cfg.Media.URLExpiry)
	}
	if cfg.InstanceName != "" {
		t.Errorf("InstanceName = %q, want empty to disable auto-init", cfg.InstanceName)
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("STORE_BACKEND", "postgres")
	if _, err := Load(); err == nil {
		t.Error("Load accepted unknown store backend")
	}

	t.Setenv("STORE_BACKEND", "sqlite")
	t.Setenv("DB_PATH", "")
	if _, err := Load(); err == nil {
		t.Error("Load accepted empty DB_PATH for sqlite backend")
	}
}
