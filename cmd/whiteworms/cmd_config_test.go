package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigCmd_ShowsEffectiveConfig(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	path := filepath.Join(tmpDir, "custom.yaml")
	if err := os.WriteFile(path, []byte("parameters:\n  beta_w: 3\n"), 0600); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "config", "--config", path)
	if err != nil {
		t.Fatalf("config failed: %v", err)
	}
	if !strings.Contains(out, "beta_w: 3") {
		t.Errorf("expected overridden beta_w in YAML:\n%s", out)
	}

	t.Setenv("WHITEWORMS_TRIALS", "77")
	result := executeJSON(t, "config", "--config", path)
	mc := result["montecarlo"].(map[string]interface{})
	if mc["trials"] != float64(77) {
		t.Errorf("trials = %v, want env override 77", mc["trials"])
	}
}

func TestConfigInitAndPath(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)
	want := filepath.Join(tmpDir, "home", ".whiteworms", "config.yaml")

	result := executeJSON(t, "config", "path")
	if result["path"] != want || result["exists"] != false {
		t.Errorf("config path = %v", result)
	}

	if _, err := execute(t, "config", "init"); err != nil {
		t.Fatalf("config init failed: %v", err)
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if _, err := execute(t, "config", "init"); err == nil {
		t.Error("expected init to refuse overwriting without --force")
	}
	if _, err := execute(t, "config", "init", "--force"); err != nil {
		t.Errorf("config init --force failed: %v", err)
	}

	if result := executeJSON(t, "config", "path"); result["exists"] != true {
		t.Errorf("exists = %v after init", result["exists"])
	}
	if result := executeJSON(t, "config", "validate"); result["valid"] != true {
		t.Errorf("written defaults should validate: %v", result)
	}
}

func TestConfigValidateCmd_Invalid(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	path := filepath.Join(tmpDir, "bad.yaml")
	if err := os.WriteFile(path, []byte("montecarlo:\n  trials: 0\n"), 0600); err != nil {
		t.Fatal(err)
	}
	out, err := execute(t, "config", "validate", "--config", path, "--json")
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(out, `"valid":false`) {
		t.Errorf("unexpected output %q", out)
	}
}
