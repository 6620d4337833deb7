package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultMatchesSpecDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Engine.Default != "lsm" || cfg.Engine.Strategy != "fixed" || cfg.Engine.MaxEngines != 5 {
		t.Fatalf("unexpected engine defaults: %+v", cfg.Engine)
	}
	if cfg.Cache.Policy != "lru" || cfg.Cache.CleanupMs != 60_000 {
		t.Fatalf("unexpected cache defaults: %+v", cfg.Cache)
	}
	if cfg.BTree.Order != 100 {
		t.Fatalf("unexpected btree order default: %d", cfg.BTree.Order)
	}
}

func TestLoadOverridesOnlySpecifiedFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "engine:\n  default: btree\nlsm:\n  compression: lz4\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.Default != "btree" {
		t.Fatalf("expected overridden engine.default=btree, got %s", cfg.Engine.Default)
	}
	if cfg.LSM.Compression != "lz4" {
		t.Fatalf("expected overridden lsm.compression=lz4, got %s", cfg.LSM.Compression)
	}
	// Untouched fields keep their spec default.
	if cfg.Engine.Strategy != "fixed" {
		t.Fatalf("expected untouched engine.strategy=fixed, got %s", cfg.Engine.Strategy)
	}
	if cfg.BTree.Order != 100 {
		t.Fatalf("expected untouched btree.order=100, got %d", cfg.BTree.Order)
	}
}

func TestApplyEnvOverridesByPrefixedName(t *testing.T) {
	cfg := Default()
	t.Setenv("CONCORD_ENGINE_DEFAULT", "hash")
	t.Setenv("CONCORD_BTREE_ORDER", "64")

	cfg, err := ApplyEnv(cfg, "CONCORD")
	if err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Engine.Default != "hash" {
		t.Fatalf("expected env override engine.default=hash, got %s", cfg.Engine.Default)
	}
	if cfg.BTree.Order != 64 {
		t.Fatalf("expected env override btree.order=64, got %d", cfg.BTree.Order)
	}
	// An unset variable leaves its field at the spec default.
	if cfg.Cache.Policy != "lru" {
		t.Fatalf("expected untouched cache.policy=lru, got %s", cfg.Cache.Policy)
	}
}
