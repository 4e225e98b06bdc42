package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rhoci.yaml")
	data := []byte(`
jenkins:
  url: https://jenkins.example.com
  user: ci
agent:
  discoveryInterval: 1m
  workers: 2
store:
  path: /var/lib/rhoci/rhoci.db
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("RHOCI_JENKINS_PASSWORD", "secret")
	t.Setenv("RHOCI_AGENT_DETAIL_INTERVAL", "45s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Jenkins.URL != "https://jenkins.example.com" || cfg.Jenkins.User != "ci" {
		t.Fatalf("unexpected jenkins config: %+v", cfg.Jenkins)
	}
	if cfg.Jenkins.Password != "secret" {
		t.Fatalf("expected password from env")
	}
	if cfg.Agent.DiscoveryInterval != time.Minute || cfg.Agent.DetailInterval != 45*time.Second {
		t.Fatalf("unexpected intervals: %+v", cfg.Agent)
	}
	if cfg.Agent.Workers != 2 {
		t.Fatalf("expected workers=2, got %d", cfg.Agent.Workers)
	}
	if cfg.Agent.MaxNotFound != 5 {
		t.Fatalf("expected default maxNotFound to survive partial file, got %d", cfg.Agent.MaxNotFound)
	}
}

func TestLoadRequiresJenkinsURLWhenEnabled(t *testing.T) {
	t.Setenv("RHOCI_CONFIG_FILE", "")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected validation error without jenkins url")
	}
}

func TestLoadDisabledAgentNeedsNoJenkins(t *testing.T) {
	t.Setenv("RHOCI_AGENT_ENABLED", "false")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Agent.Enabled {
		t.Fatalf("expected agent disabled")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
