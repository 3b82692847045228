package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleWorkerConfig = `
broker-uri: "tcp://broker:9657"
broker-ping-interval-ms: 2000
max-broker-liveness: 3
headers:
  env: "c"
  threads: ["1", "2"]
hwgroup: group1
worker-id: 1
file-cache:
  cache-dir: /tmp/recodex-cache-test
file-managers:
  - hostname: "https://fileserver.example/"
limits:
  time: 30
  wall-time: 60
  memory: 262144
  parallel: 1
max-output-length: 65536
max-carboncopy-length: 65536
cleanup-submission: true
`

func TestLoadWorkerConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "worker-config.yml")
	if err := os.WriteFile(path, []byte(sampleWorkerConfig), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	cfg, err := LoadWorkerConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.BrokerURI != "tcp://broker:9657" {
		t.Fatalf("unexpected broker uri: %q", cfg.BrokerURI)
	}
	if cfg.MaxBrokerLiveness != 3 {
		t.Fatalf("expected max-broker-liveness 3, got %d", cfg.MaxBrokerLiveness)
	}
	if len(cfg.Headers["threads"]) != 2 {
		t.Fatalf("expected threads header to carry 2 values, got %+v", cfg.Headers["threads"])
	}
	if len(cfg.Headers["env"]) != 1 || cfg.Headers["env"][0] != "c" {
		t.Fatalf("expected scalar header to be wrapped in a single-element slice, got %+v", cfg.Headers["env"])
	}
	if cfg.Limits.CPUTime != 30 {
		t.Fatalf("expected CPUTime 30, got %v", cfg.Limits.CPUTime)
	}
	if cfg.Limits.ExtraTime != defaultWorkerLimits.ExtraTime {
		t.Fatalf("expected unspecified ExtraTime to fall back to the documented default, got %v", cfg.Limits.ExtraTime)
	}
}

func TestLoadWorkerConfigRequiresBrokerURI(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "worker-config.yml")
	if err := os.WriteFile(path, []byte("hwgroup: g1\nfile-managers:\n  - hostname: x\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := LoadWorkerConfig(path); err == nil {
		t.Fatalf("expected error for missing broker-uri")
	}
}
