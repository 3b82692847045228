package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Headers is the worker's advertised k=v header set, sent to the broker on
// "init". Mirrors the original multimap<string,string>: a YAML value may be
// a scalar or a sequence of scalars, each becoming one repeated k=v pair.
type Headers map[string][]string

func (h *Headers) UnmarshalYAML(value *yaml.Node) error {
	var raw map[string]yaml.Node
	if err := value.Decode(&raw); err != nil {
		return err
	}
	out := make(Headers, len(raw))
	for k, v := range raw {
		switch v.Kind {
		case yaml.SequenceNode:
			var vals []string
			if err := v.Decode(&vals); err != nil {
				return fmt.Errorf("headers.%s: %w", k, err)
			}
			out[k] = vals
		default:
			var val string
			if err := v.Decode(&val); err != nil {
				return fmt.Errorf("headers.%s: %w", k, err)
			}
			out[k] = []string{val}
		}
	}
	*h = out
	return nil
}

// Pairs flattens the header set into ordered k=v strings for the broker
// "init" frame, sorted by key for determinism.
func (h Headers) Pairs() []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out []string
	for _, k := range keys {
		for _, v := range h[k] {
			out = append(out, k+"="+v)
		}
	}
	return out
}

// FileManagerConfig names a secondary (remote) file manager used by the
// fetcher when the local cache misses. Grounded on
// original_source/src/config/worker_config.h's filemans_configs_ list.
type FileManagerConfig struct {
	Hostname string `yaml:"hostname"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// LoggerConfig configures the ambient slog sink, named the way the spec's
// logger section is structured rather than reusing ReCodEx's log4cpp keys.
type LoggerConfig struct {
	File  string `yaml:"file,omitempty"`
	Level string `yaml:"level,omitempty"`
}

// WorkerConfig is the root YAML document read from worker-config.yml.
// Field names follow spec.md section 6's worker config grammar.
type WorkerConfig struct {
	WorkerID            int                 `yaml:"worker-id"`
	WorkerDescription   string              `yaml:"worker-description,omitempty"`
	WorkingDirectory    string              `yaml:"working-directory"`
	BrokerURI           string              `yaml:"broker-uri"`
	Headers             Headers             `yaml:"headers"`
	HWGroup             string              `yaml:"hwgroup"`
	MaxBrokerLiveness   int                 `yaml:"max-broker-liveness"`
	BrokerPingInterval  time.Duration       `yaml:"-"`
	BrokerPingIntervalMs int64              `yaml:"broker-ping-interval-ms"`
	FileCache           FileCacheConfig     `yaml:"file-cache"`
	FileManagers        []FileManagerConfig `yaml:"file-managers,omitempty"`
	Logger              LoggerConfig        `yaml:"logger,omitempty"`
	Limits              SandboxLimits       `yaml:"limits"`
	MaxOutputLength     int                 `yaml:"max-output-length"`
	MaxCarboncopyLength int                 `yaml:"max-carboncopy-length"`
	CleanupSubmission   bool                `yaml:"cleanup-submission"`
}

// FileCacheConfig is the file-cache section of the worker config.
type FileCacheConfig struct {
	CacheDir string `yaml:"cache-dir"`
}

// limitsYAML is the on-the-wire shape of the "limits" section. It is decoded
// separately from SandboxLimits (whose Go zero values would otherwise be
// indistinguishable from an explicit 0): every field omitted from the YAML
// document falls back to its entry in defaultWorkerLimits. All of those are
// concrete values except stack-size, whose default is the UnsetSize
// sentinel.
type limitsYAML struct {
	CPUTime     *float64          `yaml:"time"`
	WallTime    *float64          `yaml:"wall-time"`
	ExtraTime   *float64          `yaml:"extra-time"`
	Memory      *uint64           `yaml:"memory"`
	ExtraMemory *uint64           `yaml:"extra-memory"`
	StackSize   *uint64           `yaml:"stack-size"`
	Processes   *uint64           `yaml:"parallel"`
	DiskQuotas  *bool             `yaml:"disk-quotas"`
	DiskSize    *uint64           `yaml:"disk-size"`
	DiskFiles   *uint64           `yaml:"disk-files"`
	ShareNet    *bool             `yaml:"share-net"`
	Chdir       string            `yaml:"chdir,omitempty"`
	Environ     map[string]string `yaml:"environ-variable,omitempty"`
	BoundDirs   []boundDirYAML    `yaml:"bound-directories,omitempty"`
}

type boundDirYAML struct {
	Src string `yaml:"src"`
	Dst string `yaml:"dst"`
	Mode string `yaml:"mode,omitempty"`
}

// defaultWorkerLimits are applied to any field a worker-config.yml omits.
var defaultWorkerLimits = SandboxLimits{
	CPUTime:     60,
	WallTime:    120,
	ExtraTime:   10,
	Memory:      1 << 20, // 1 GiB in KiB
	ExtraMemory: 1 << 16,
	StackSize:   UnsetSize,
	Processes:   1,
	DiskQuotas:  true,
	DiskSize:    1 << 20,
	DiskFiles:   1000,
}

func (l *SandboxLimits) UnmarshalYAML(value *yaml.Node) error {
	var raw limitsYAML
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*l = defaultWorkerLimits
	if raw.CPUTime != nil {
		l.CPUTime = *raw.CPUTime
	}
	if raw.WallTime != nil {
		l.WallTime = *raw.WallTime
	}
	if raw.ExtraTime != nil {
		l.ExtraTime = *raw.ExtraTime
	}
	if raw.Memory != nil {
		l.Memory = *raw.Memory
	}
	if raw.ExtraMemory != nil {
		l.ExtraMemory = *raw.ExtraMemory
	}
	if raw.StackSize != nil {
		l.StackSize = *raw.StackSize
	}
	if raw.Processes != nil {
		l.Processes = *raw.Processes
	}
	if raw.DiskQuotas != nil {
		l.DiskQuotas = *raw.DiskQuotas
	}
	if raw.DiskSize != nil {
		l.DiskSize = *raw.DiskSize
	}
	if raw.DiskFiles != nil {
		l.DiskFiles = *raw.DiskFiles
	}
	if raw.ShareNet != nil {
		l.ShareNet = *raw.ShareNet
	}
	l.Chdir = raw.Chdir
	for k, v := range raw.Environ {
		l.EnvironVars = append(l.EnvironVars, EnvVar{Key: k, Value: v})
	}
	for _, bd := range raw.BoundDirs {
		perm, err := ParseDirPerm(bd.Mode)
		if err != nil {
			return fmt.Errorf("bound-dirs: %w", err)
		}
		l.BoundDirs = append(l.BoundDirs, BoundDir{Host: bd.Src, Sandbox: bd.Dst, Perm: perm})
	}
	return nil
}

// LoadWorkerConfig reads and validates a worker-config.yml document.
func LoadWorkerConfig(path string) (*WorkerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read worker config: %w", err)
	}
	cfg := &WorkerConfig{MaxBrokerLiveness: 4, CleanupSubmission: true}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse worker config: %w", err)
	}
	if cfg.BrokerPingIntervalMs > 0 {
		cfg.BrokerPingInterval = time.Duration(cfg.BrokerPingIntervalMs) * time.Millisecond
	} else {
		cfg.BrokerPingInterval = time.Second
	}
	if cfg.BrokerURI == "" {
		return nil, fmt.Errorf("worker config: broker-uri is required")
	}
	if cfg.HWGroup == "" {
		return nil, fmt.Errorf("worker config: hwgroup is required")
	}
	if len(cfg.FileManagers) == 0 {
		return nil, fmt.Errorf("worker config: file-managers is required")
	}
	if cfg.WorkingDirectory == "" {
		cfg.WorkingDirectory = filepath.Join(os.TempDir(), "isoeval")
	}
	if cfg.FileCache.CacheDir == "" {
		cfg.FileCache.CacheDir = filepath.Join(os.TempDir(), "recodex-cache")
	}
	if cfg.MaxBrokerLiveness == 0 {
		cfg.MaxBrokerLiveness = 4
	}
	return cfg, nil
}
