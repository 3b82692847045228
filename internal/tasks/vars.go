package tasks

import (
	"fmt"
	"strings"
)

// Vars holds the seven substitution variables recognized inside a
// sandboxed task's binary/args/chdir/IO paths/bound-dir entries.
type Vars struct {
	WorkerID  string
	JobID     string
	SourceDir string
	ResultDir string
	EvalDir   string // sandbox-internal working root, conventionally "/box"
	TempDir   string // host temp directory
	JudgesDir string // host directory containing judge binaries, conventionally "/usr/bin"
}

func (v Vars) lookup(name string) (string, bool) {
	switch name {
	case "WORKER_ID":
		return v.WorkerID, true
	case "JOB_ID":
		return v.JobID, true
	case "SOURCE_DIR":
		return v.SourceDir, true
	case "RESULT_DIR":
		return v.ResultDir, true
	case "EVAL_DIR":
		return v.EvalDir, true
	case "TEMP_DIR":
		return v.TempDir, true
	case "JUDGES_DIR":
		return v.JudgesDir, true
	default:
		return "", false
	}
}

// Substitute rewrites every "${NAME}" occurrence in s. The opener is the
// two-character "${", the closer a single "}"; substitutions never nest.
// An unknown name is left untouched, including its braces. An opener with
// no matching closer is a configuration error.
func (v Vars) Substitute(s string) (string, error) {
	var b strings.Builder
	i := 0
	for {
		open := strings.Index(s[i:], "${")
		if open < 0 {
			b.WriteString(s[i:])
			break
		}
		open += i
		b.WriteString(s[i:open])

		closeIdx := strings.IndexByte(s[open+2:], '}')
		if closeIdx < 0 {
			return "", fmt.Errorf("unclosed variable substitution starting at byte %d", open)
		}
		closeIdx += open + 2

		name := s[open+2 : closeIdx]
		if val, ok := v.lookup(name); ok {
			b.WriteString(val)
		} else {
			b.WriteString(s[open : closeIdx+1])
		}
		i = closeIdx + 1
	}
	return b.String(), nil
}
