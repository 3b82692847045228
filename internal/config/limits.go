package config

import (
	"fmt"
	"math"
)

// Sentinel values marking a SandboxLimits field as "not specified in the job
// config; inherit the worker default". Grounded on
// original_source/src/config/sandbox_limits.h, which uses FLT_MAX for the
// float fields and SIZE_MAX for the size fields.
const (
	UnsetTime = float64(math.MaxFloat32)
	UnsetSize = uint64(math.MaxUint64)
)

// DirPerm is a bitmask of directory-binding permissions.
type DirPerm uint16

const (
	PermRO     DirPerm = 0
	PermRW     DirPerm = 1 << iota
	PermNoExec
	PermFS
	PermMaybe
	PermDev
	PermTmp
	PermNoRec
)

var dirPermNames = map[string]DirPerm{
	"rw":     PermRW,
	"noexec": PermNoExec,
	"fs":     PermFS,
	"maybe":  PermMaybe,
	"dev":    PermDev,
	"tmp":    PermTmp,
	"norec":  PermNoRec,
}

// ParseDirPerm parses a comma-separated permission string (e.g. "rw,noexec").
func ParseDirPerm(s string) (DirPerm, error) {
	var p DirPerm
	if s == "" {
		return PermRO, nil
	}
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			tok := s[start:i]
			start = i + 1
			if tok == "" {
				continue
			}
			bit, ok := dirPermNames[tok]
			if !ok {
				return 0, fmt.Errorf("unknown directory permission %q", tok)
			}
			p |= bit
		}
	}
	return p, nil
}

// EnvVar is an ordered environment variable assignment.
type EnvVar struct {
	Key   string
	Value string
}

// BoundDir is a host-to-sandbox directory binding.
type BoundDir struct {
	Host    string
	Sandbox string
	Perm    DirPerm
}

// SandboxLimits mirrors original_source's sandbox_limits struct. Fields set
// to the Unset* sentinels mean "inherit from the worker default" on a
// per-task (job-supplied) SandboxLimits value. The worker's own
// DefaultLimits are concrete except for a stack-size left out of the worker
// config, which stays at UnsetSize, so a job's stack-size is then never
// rejected as exceeding it.
type SandboxLimits struct {
	CPUTime     float64 // seconds
	WallTime    float64 // seconds
	ExtraTime   float64 // seconds
	Memory      uint64  // KiB
	ExtraMemory uint64  // KiB
	StackSize   uint64  // KiB
	Processes   uint64
	DiskQuotas  bool
	DiskSize    uint64 // KiB
	DiskFiles   uint64
	ShareNet    bool
	Chdir       string
	EnvironVars []EnvVar
	BoundDirs   []BoundDir
}

// NewUnsetLimits returns a SandboxLimits with every numeric field at its
// sentinel, representing "nothing specified at this hwgroup" before YAML
// unmarshalling fills in whatever the job config names explicitly.
func NewUnsetLimits() SandboxLimits {
	return SandboxLimits{
		CPUTime:     UnsetTime,
		WallTime:    UnsetTime,
		ExtraTime:   UnsetTime,
		Memory:      UnsetSize,
		ExtraMemory: UnsetSize,
		StackSize:   UnsetSize,
		Processes:   UnsetSize,
		DiskSize:    UnsetSize,
		DiskFiles:   UnsetSize,
	}
}

// MergeLimits applies the field-by-field merge/validate rule recovered from
// original_source/src/job/job.cpp's process_task_limits: a sentinel field
// inherits the worker default; a non-sentinel field must not exceed the
// worker default, or the build fails with a named-field ConfigInvalid error.
// environ_vars and bound_dirs are unioned (worker defaults appended,
// duplicates removed).
func MergeLimits(job SandboxLimits, worker SandboxLimits) (SandboxLimits, error) {
	eff := worker

	type floatField struct {
		name        string
		jobVal      float64
		workerVal   float64
		assignEff   *float64
	}
	floats := []floatField{
		{"time", job.CPUTime, worker.CPUTime, &eff.CPUTime},
		{"wall-time", job.WallTime, worker.WallTime, &eff.WallTime},
		{"extra-time", job.ExtraTime, worker.ExtraTime, &eff.ExtraTime},
	}
	for _, f := range floats {
		if f.jobVal == UnsetTime {
			*f.assignEff = f.workerVal
			continue
		}
		if f.jobVal > f.workerVal {
			return SandboxLimits{}, fmt.Errorf("%s item is bigger than default worker value", f.name)
		}
		*f.assignEff = f.jobVal
	}

	type sizeField struct {
		name      string
		jobVal    uint64
		workerVal uint64
		assignEff *uint64
	}
	sizes := []sizeField{
		{"stack-size", job.StackSize, worker.StackSize, &eff.StackSize},
		{"memory", job.Memory, worker.Memory, &eff.Memory},
		{"extra-memory", job.ExtraMemory, worker.ExtraMemory, &eff.ExtraMemory},
		{"parallel", job.Processes, worker.Processes, &eff.Processes},
		{"disk-size", job.DiskSize, worker.DiskSize, &eff.DiskSize},
		{"disk-files", job.DiskFiles, worker.DiskFiles, &eff.DiskFiles},
	}
	for _, f := range sizes {
		if f.jobVal == UnsetSize {
			*f.assignEff = f.workerVal
			continue
		}
		if f.jobVal > f.workerVal {
			return SandboxLimits{}, fmt.Errorf("%s item is bigger than default worker value", f.name)
		}
		*f.assignEff = f.jobVal
	}

	eff.DiskQuotas = worker.DiskQuotas
	eff.ShareNet = job.ShareNet || worker.ShareNet
	if job.Chdir != "" {
		eff.Chdir = job.Chdir
	}

	eff.EnvironVars = unionEnv(job.EnvironVars, worker.EnvironVars)
	eff.BoundDirs = unionBoundDirs(job.BoundDirs, worker.BoundDirs)
	return eff, nil
}

func unionEnv(primary, fallback []EnvVar) []EnvVar {
	out := append([]EnvVar{}, primary...)
	for _, v := range fallback {
		if !containsEnv(out, v) {
			out = append(out, v)
		}
	}
	return out
}

func containsEnv(list []EnvVar, v EnvVar) bool {
	for _, e := range list {
		if e == v {
			return true
		}
	}
	return false
}

func unionBoundDirs(primary, fallback []BoundDir) []BoundDir {
	out := append([]BoundDir{}, primary...)
	for _, d := range fallback {
		if !containsBoundDir(out, d) {
			out = append(out, d)
		}
	}
	return out
}

func containsBoundDir(list []BoundDir, d BoundDir) bool {
	for _, e := range list {
		if e == d {
			return true
		}
	}
	return false
}
