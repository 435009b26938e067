package config

import (
	"testing"

	"github.com/spf13/pflag"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("port = %d", cfg.Port)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.Path != "lorecore.db" {
		t.Fatalf("unexpected storage defaults: %+v", cfg.Storage)
	}
	if cfg.Media.Driver != "fs" || cfg.Media.Root != "media" {
		t.Fatalf("unexpected media defaults: %+v", cfg.Media)
	}
}

func TestEnvOverridesDefaults(t *testing.T) {
	t.Setenv("LORECORE_PORT", "9090")
	t.Setenv("LORECORE_STORAGE_DRIVER", "memory")
	t.Setenv("LORECORE_MEDIA_DRIVER", "s3")
	t.Setenv("LORECORE_MEDIA_ACCESSKEY", "minio")
	t.Setenv("LORECORE_MEDIA_SECRETKEY", "miniosecret")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 9090 {
		t.Fatalf("port = %d, want env override", cfg.Port)
	}
	if cfg.Storage.Driver != "memory" {
		t.Fatalf("storage driver = %q, want env override", cfg.Storage.Driver)
	}
	if cfg.Media.Driver != "s3" || cfg.Media.AccessKey != "minio" || cfg.Media.SecretKey != "miniosecret" {
		t.Fatalf("media credentials not loaded from env: %+v", cfg.Media)
	}
}

func TestFlagsOverrideEnv(t *testing.T) {
	t.Setenv("LORECORE_PORT", "9090")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("port", 8080, "listen port")
	if err := flags.Parse([]string{"--port", "7070"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load(flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 7070 {
		t.Fatalf("port = %d, want flag override", cfg.Port)
	}
}
