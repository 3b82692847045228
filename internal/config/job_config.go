package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// TaskType classifies a task's role in the pipeline. INNER tasks' failures
// (whether a returned non-OK result or a Go error) must always escalate to
// the job as Unrecoverable, regardless of fatal_failure.
type TaskType string

const (
	TaskInner      TaskType = "INNER"
	TaskInitiation TaskType = "INITIATION"
	TaskExecution  TaskType = "EXECUTION"
	TaskEvaluation TaskType = "EVALUATION"
)

// SandboxConfig is the per-task sandbox wrapper configuration.
// Grounded on original_source's sandbox task_metadata's "sandbox" member.
type SandboxConfig struct {
	Name             string
	StdInput         string
	StdOutput        string
	StdError         string
	StderrToStdout   bool
	Chdir            string
	WorkingDirectory string
	CarboncopyStdout string
	CarboncopyStderr string
	Output           bool
	LoadedLimits     map[string]SandboxLimits // keyed by hwgroup-id
}

type sandboxYAML struct {
	Name             string        `yaml:"name"`
	StdInput         string        `yaml:"stdin,omitempty"`
	StdOutput        string        `yaml:"stdout,omitempty"`
	StdError         string        `yaml:"stderr,omitempty"`
	StderrToStdout   bool          `yaml:"stderr-to-stdout,omitempty"`
	Chdir            string        `yaml:"chdir,omitempty"`
	WorkingDirectory string        `yaml:"working-directory,omitempty"`
	CarboncopyStdout string        `yaml:"carboncopy-stdout,omitempty"`
	CarboncopyStderr string        `yaml:"carboncopy-stderr,omitempty"`
	Output           bool          `yaml:"output,omitempty"`
	Limits           []limitEntry  `yaml:"limits,omitempty"`
}

type limitEntry struct {
	HWGroupID string `yaml:"hw-group-id"`
	limitsYAML `yaml:",inline"`
}

func (s *SandboxConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw sandboxYAML
	if err := value.Decode(&raw); err != nil {
		return err
	}
	s.Name = raw.Name
	s.StdInput = raw.StdInput
	s.StdOutput = raw.StdOutput
	s.StdError = raw.StdError
	s.StderrToStdout = raw.StderrToStdout
	s.Chdir = raw.Chdir
	s.WorkingDirectory = raw.WorkingDirectory
	s.CarboncopyStdout = raw.CarboncopyStdout
	s.CarboncopyStderr = raw.CarboncopyStderr
	s.Output = raw.Output
	s.LoadedLimits = make(map[string]SandboxLimits, len(raw.Limits))
	for _, le := range raw.Limits {
		l := NewUnsetLimits()
		if le.CPUTime != nil {
			l.CPUTime = *le.CPUTime
		}
		if le.WallTime != nil {
			l.WallTime = *le.WallTime
		}
		if le.ExtraTime != nil {
			l.ExtraTime = *le.ExtraTime
		}
		if le.Memory != nil {
			l.Memory = *le.Memory
		}
		if le.ExtraMemory != nil {
			l.ExtraMemory = *le.ExtraMemory
		}
		if le.StackSize != nil {
			l.StackSize = *le.StackSize
		}
		if le.Processes != nil {
			l.Processes = *le.Processes
		}
		if le.DiskQuotas != nil {
			l.DiskQuotas = *le.DiskQuotas
		}
		if le.DiskSize != nil {
			l.DiskSize = *le.DiskSize
		}
		if le.DiskFiles != nil {
			l.DiskFiles = *le.DiskFiles
		}
		if le.ShareNet != nil {
			l.ShareNet = *le.ShareNet
		}
		l.Chdir = le.Chdir
		for k, v := range le.Environ {
			l.EnvironVars = append(l.EnvironVars, EnvVar{Key: k, Value: v})
		}
		for _, bd := range le.BoundDirs {
			perm, err := ParseDirPerm(bd.Mode)
			if err != nil {
				return fmt.Errorf("task %s limits[%s].bound-directories: %w", raw.Name, le.HWGroupID, err)
			}
			l.BoundDirs = append(l.BoundDirs, BoundDir{Host: bd.Src, Sandbox: bd.Dst, Perm: perm})
		}
		s.LoadedLimits[le.HWGroupID] = l
	}
	return nil
}

// CmdConfig is a task's executable and argument vector.
type CmdConfig struct {
	Bin  string   `yaml:"bin"`
	Args []string `yaml:"args,omitempty"`
}

// TaskMetadata is one entry of the job config's "tasks" sequence.
type TaskMetadata struct {
	TaskID       string         `yaml:"task-id"`
	Priority     int            `yaml:"priority,omitempty"`
	FatalFailure bool           `yaml:"fatal-failure,omitempty"`
	Dependencies []string       `yaml:"dependencies,omitempty"`
	TestID       string         `yaml:"test-id,omitempty"`
	Type         TaskType       `yaml:"type,omitempty"`
	Cmd          CmdConfig      `yaml:"cmd"`
	Sandbox      *SandboxConfig `yaml:"sandbox,omitempty"`
}

// Binary and CmdArgs mirror spec.md's TaskMetadata field names for callers
// that work against the entity rather than the wire document.
func (t *TaskMetadata) Binary() string     { return t.Cmd.Bin }
func (t *TaskMetadata) CmdArgs() []string  { return t.Cmd.Args }

// submissionYAML is the "submission" section of a job config document.
type submissionYAML struct {
	JobID         string   `yaml:"job-id"`
	FileCollector string   `yaml:"file-collector"`
	Log           bool     `yaml:"log,omitempty"`
	HWGroups      []string `yaml:"hw-groups"`
}

// jobDocument is the raw top-level job config YAML shape.
type jobDocument struct {
	Submission submissionYAML `yaml:"submission"`
	Tasks      []TaskMetadata `yaml:"tasks"`
}

// JobMetadata is the parsed, validated job config.
type JobMetadata struct {
	JobID         string
	FileServerURL string
	Log           bool
	HWGroups      []string
	Tasks         []TaskMetadata
}

// ParseJobConfig parses a job-config.yml document's bytes into a JobMetadata,
// validating structural invariants (every dependency refers to a task in the
// same job). DAG acyclicity is left to the task DAG builder.
func ParseJobConfig(data []byte) (*JobMetadata, error) {
	var doc jobDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse job config: %w", err)
	}
	if doc.Submission.JobID == "" {
		return nil, fmt.Errorf("job config: submission.job-id is required")
	}
	if len(doc.Tasks) == 0 {
		return nil, fmt.Errorf("job config: tasks must not be empty")
	}
	ids := make(map[string]bool, len(doc.Tasks))
	for _, t := range doc.Tasks {
		if t.TaskID == "" {
			return nil, fmt.Errorf("job config: task-id is required")
		}
		if ids[t.TaskID] {
			return nil, fmt.Errorf("job config: duplicate task-id %q", t.TaskID)
		}
		ids[t.TaskID] = true
	}
	for _, t := range doc.Tasks {
		for _, dep := range t.Dependencies {
			if !ids[dep] {
				return nil, fmt.Errorf("job config: task %q depends on unknown task %q", t.TaskID, dep)
			}
		}
	}
	return &JobMetadata{
		JobID:         doc.Submission.JobID,
		FileServerURL: doc.Submission.FileCollector,
		Log:           doc.Submission.Log,
		HWGroups:      doc.Submission.HWGroups,
		Tasks:         doc.Tasks,
	}, nil
}
