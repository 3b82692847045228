package tasks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// cpTask implements "cp": glob-match the filename component of src against
// its directory, copying every match into dst (dst is treated as a
// directory iff it already exists and is one).
type cpTask struct {
	baseTask
	src string
	dst string
}

func (t cpTask) Run(ctx context.Context, env *Env) (Results, error) {
	matches, err := filepath.Glob(t.src)
	if err != nil {
		return Results{Status: StatusFailed, ErrorMessage: err.Error()}, nil
	}
	if len(matches) == 0 {
		return Results{Status: StatusFailed, ErrorMessage: fmt.Sprintf("no files match %q", t.src)}, nil
	}

	dstIsDir := false
	if info, err := os.Stat(t.dst); err == nil && info.IsDir() {
		dstIsDir = true
	}

	hardlinks := make(map[fileIdentity]string)
	for _, src := range matches {
		dst := t.dst
		if dstIsDir {
			dst = filepath.Join(t.dst, filepath.Base(src))
		}
		if err := copyPreservingHardlinks(src, dst, hardlinks); err != nil {
			return Results{Status: StatusFailed, ErrorMessage: err.Error()}, nil
		}
	}
	return Results{Status: StatusOK}, nil
}

// mkdirTask implements "mkdir": create every named path, granting
// group+other write; on any failure, remove whatever this task itself
// created before returning.
type mkdirTask struct {
	baseTask
	paths []string
}

func (t mkdirTask) Run(ctx context.Context, env *Env) (Results, error) {
	var created []string
	for _, p := range t.paths {
		if _, err := os.Stat(p); err == nil {
			continue
		}
		if err := os.MkdirAll(p, 0o775); err != nil {
			for i := len(created) - 1; i >= 0; i-- {
				os.RemoveAll(created[i])
			}
			return Results{Status: StatusFailed, ErrorMessage: err.Error()}, nil
		}
		created = append(created, p)
		os.Chmod(p, 0o775)
	}
	return Results{Status: StatusOK}, nil
}

// renameTask implements "rename": a POSIX rename.
type renameTask struct {
	baseTask
	src, dst string
}

func (t renameTask) Run(ctx context.Context, env *Env) (Results, error) {
	if err := os.Rename(t.src, t.dst); err != nil {
		return Results{Status: StatusFailed, ErrorMessage: err.Error()}, nil
	}
	return Results{Status: StatusOK}, nil
}

// rmTask implements "rm": best-effort remove_all of every named path;
// FAILED if any of them errors.
type rmTask struct {
	baseTask
	paths []string
}

func (t rmTask) Run(ctx context.Context, env *Env) (Results, error) {
	var firstErr error
	for _, p := range t.paths {
		if err := os.RemoveAll(p); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return Results{Status: StatusFailed, ErrorMessage: firstErr.Error()}, nil
	}
	return Results{Status: StatusOK}, nil
}

// existsTask implements "exists": FAILED with stderr=msg if any named path
// is missing.
type existsTask struct {
	baseTask
	msg   string
	paths []string
}

func (t existsTask) Run(ctx context.Context, env *Env) (Results, error) {
	for _, p := range t.paths {
		if _, err := os.Stat(p); err != nil {
			return Results{Status: StatusFailed, Stderr: t.msg, ErrorMessage: t.msg}, nil
		}
	}
	return Results{Status: StatusOK}, nil
}

// truncateTask implements "truncate": shrink path to kilobytes KiB if it is
// currently larger; a no-op otherwise.
type truncateTask struct {
	baseTask
	path       string
	kilobytes  int64
}

func (t truncateTask) Run(ctx context.Context, env *Env) (Results, error) {
	info, err := os.Stat(t.path)
	if err != nil {
		return Results{Status: StatusFailed, ErrorMessage: err.Error()}, nil
	}
	limit := t.kilobytes * 1024
	if info.Size() <= limit {
		return Results{Status: StatusOK}, nil
	}
	if err := os.Truncate(t.path, limit); err != nil {
		return Results{Status: StatusFailed, ErrorMessage: err.Error()}, nil
	}
	return Results{Status: StatusOK}, nil
}

// fetchTask implements "fetch": delegate to the configured fetcher.
type fetchTask struct {
	baseTask
	logicalName string
	dst         string
}

func (t fetchTask) Run(ctx context.Context, env *Env) (Results, error) {
	if env.Fetch == nil {
		return Results{}, fmt.Errorf("fetch task %s: no fetcher configured", t.ID())
	}
	if err := env.Fetch(ctx, t.logicalName, t.dst); err != nil {
		return Results{Status: StatusFailed, ErrorMessage: err.Error()}, nil
	}
	return Results{Status: StatusOK}, nil
}
