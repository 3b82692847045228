package tasks

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/recodex/worker/internal/config"
	"github.com/recodex/worker/internal/sandbox"
)

// sandboxedTask wraps a single external (sandboxed) program invocation.
// Grounded on original_source/src/tasks/external_task.cpp's run(): limit
// merge, variable substitution, IO capture, making the binary executable,
// running the opaque executor, post-processing captured IO, and mapping the
// sandbox verdict back to a TaskResults.
type sandboxedTask struct {
	baseTask
}

func (t sandboxedTask) Run(ctx context.Context, env *Env) (Results, error) {
	meta := t.baseTask.meta
	sb := meta.Sandbox

	jobLimits, ok := sb.LoadedLimits[env.HWGroup]
	if !ok {
		jobLimits = config.NewUnsetLimits()
	}
	limits, err := config.MergeLimits(jobLimits, env.DefaultLimits)
	if err != nil {
		return Results{}, fmt.Errorf("task %s: limit merge: %w", t.ID(), err)
	}
	if meta.Type == config.TaskInitiation {
		limits.ShareNet = true
	}

	sub := func(s string) (string, error) { return env.Vars.Substitute(s) }

	binary, err := sub(meta.Cmd.Bin)
	if err != nil {
		return Results{}, fmt.Errorf("task %s: %w", t.ID(), err)
	}
	args := make([]string, len(meta.Cmd.Args))
	for i, a := range meta.Cmd.Args {
		if args[i], err = sub(a); err != nil {
			return Results{}, fmt.Errorf("task %s: %w", t.ID(), err)
		}
	}
	chdir, err := sub(firstNonEmpty(sb.Chdir, limits.Chdir))
	if err != nil {
		return Results{}, fmt.Errorf("task %s: %w", t.ID(), err)
	}
	stdin, err := sub(sb.StdInput)
	if err != nil {
		return Results{}, err
	}
	stdout, err := sub(sb.StdOutput)
	if err != nil {
		return Results{}, err
	}
	stderr, err := sub(sb.StdError)
	if err != nil {
		return Results{}, err
	}
	carbonOut, err := sub(sb.CarboncopyStdout)
	if err != nil {
		return Results{}, err
	}
	carbonErr, err := sub(sb.CarboncopyStderr)
	if err != nil {
		return Results{}, err
	}

	boundDirs := make([]config.BoundDir, len(limits.BoundDirs))
	for i, bd := range limits.BoundDirs {
		host, err := sub(bd.Host)
		if err != nil {
			return Results{}, err
		}
		inner, err := sub(bd.Sandbox)
		if err != nil {
			return Results{}, err
		}
		boundDirs[i] = config.BoundDir{Host: host, Sandbox: inner, Perm: bd.Perm}
	}

	var cleanupIO []string
	if (sb.Output || carbonOut != "" || carbonErr != "") && stdout == "" {
		stdout = path.Join(env.Vars.EvalDir, randomIOName())
		cleanupIO = append(cleanupIO, stdout)
	}
	if (sb.Output || carbonOut != "" || carbonErr != "") && stderr == "" && !sb.StderrToStdout {
		stderr = path.Join(env.Vars.EvalDir, randomIOName())
		cleanupIO = append(cleanupIO, stderr)
	}

	sourceDir := env.Vars.SourceDir
	if hostBinary := resolvePath(binary, chdir, sourceDir, boundDirs); hostBinary != "" {
		// unix.Access checks the real execute permission (honoring ACLs,
		// not just the mode bits a plain stat would show) before falling
		// back to granting owner/group/other execute.
		if err := unix.Access(hostBinary, unix.X_OK); err != nil {
			if info, statErr := os.Stat(hostBinary); statErr == nil {
				os.Chmod(hostBinary, info.Mode()|0o111)
			}
		}
	}

	req := sandbox.Request{
		Box:            env.NextBoxID(),
		Binary:         binary,
		Args:           args,
		Chdir:          chdir,
		StdInput:       stdin,
		StdOutput:      stdout,
		StdError:       stderr,
		StderrToStdout: sb.StderrToStdout,
		ShareNet:       limits.ShareNet,
		CPUTimeLimit:   limits.CPUTime,
		WallTimeLimit:  limits.WallTime,
		ExtraTimeLimit: limits.ExtraTime,
		MemoryLimit:    limits.Memory,
		ExtraMemoryLimit: limits.ExtraMemory,
		StackSizeLimit: limits.StackSize,
		ProcessesLimit: limits.Processes,
		DiskSizeLimit:  limits.DiskSize,
		DiskFilesLimit: limits.DiskFiles,
	}
	for _, e := range limits.EnvironVars {
		req.Environ = append(req.Environ, e.Key+"="+e.Value)
	}
	for _, bd := range boundDirs {
		req.BoundDirs = append(req.BoundDirs, sandbox.BoundDir{Host: bd.Host, Sandbox: bd.Sandbox, Flags: dirPermFlags(bd.Perm)})
	}

	sbRes, err := env.Executor.Run(ctx, req)
	if err != nil {
		return Results{}, fmt.Errorf("task %s: sandbox executor: %w", t.ID(), err)
	}

	result := Results{Sandbox: &sbRes}
	if stdout != "" {
		result.Stdout = readCapped(resolvePath(stdout, chdir, sourceDir, boundDirs), env.MaxOutputLength)
	}
	if stderr != "" {
		result.Stderr = readCapped(resolvePath(stderr, chdir, sourceDir, boundDirs), env.MaxOutputLength)
	}
	if carbonOut != "" && stdout != "" {
		copyCapped(resolvePath(stdout, chdir, sourceDir, boundDirs), carbonOut, env.MaxCarboncopyLength)
	}
	if carbonErr != "" && stderr != "" {
		copyCapped(resolvePath(stderr, chdir, sourceDir, boundDirs), carbonErr, env.MaxCarboncopyLength)
	}
	for _, p := range cleanupIO {
		if host := resolvePath(p, chdir, sourceDir, boundDirs); host != "" {
			os.Remove(host)
		}
	}

	if sbRes.Status != sandbox.StatusOK {
		result.Status = StatusFailed
		result.ErrorMessage = "Sandboxed program failed: " + sbRes.Message
		return result, nil
	}
	result.Status = StatusOK
	return result, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func randomIOName() string {
	return "io-" + uuid.NewString()
}

// resolvePath turns a sandbox-internal path into a host path: strip the
// "/box" sandbox working-root prefix when insidePath is absolute, then try
// the source directory, then each bound dir whose sandbox-side prefix
// matches. Returns "" if nothing matches.
func resolvePath(insidePath, chdir, sourceDir string, boundDirs []config.BoundDir) string {
	if insidePath == "" {
		return ""
	}
	p := insidePath
	if filepath.IsAbs(p) {
		p = strings.TrimPrefix(p, "/box")
		p = strings.TrimPrefix(p, "/")
	} else if chdir != "" {
		p = filepath.Join(chdir, p)
	}

	candidate := filepath.Join(sourceDir, p)
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	for _, bd := range boundDirs {
		prefix := strings.TrimPrefix(bd.Sandbox, "/")
		if rel, ok := strings.CutPrefix(p, prefix); ok {
			candidate := filepath.Join(bd.Host, strings.TrimPrefix(rel, "/"))
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
	}
	return ""
}

func readCapped(hostPath string, maxBytes int) string {
	if hostPath == "" {
		return ""
	}
	f, err := os.Open(hostPath)
	if err != nil {
		return ""
	}
	defer f.Close()
	buf := make([]byte, maxBytes)
	n, _ := io.ReadFull(f, buf)
	return string(buf[:n])
}

func copyCapped(hostPath, dst string, maxBytes int) {
	if hostPath == "" {
		return
	}
	in, err := os.Open(hostPath)
	if err != nil {
		return
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return
	}
	out, err := os.Create(dst)
	if err != nil {
		return
	}
	defer out.Close()
	io.Copy(out, io.LimitReader(in, int64(maxBytes)))
}

func dirPermFlags(p config.DirPerm) string {
	var flags []string
	if p&config.PermRW != 0 {
		flags = append(flags, "rw")
	}
	if p&config.PermNoExec != 0 {
		flags = append(flags, "noexec")
	}
	if p&config.PermFS != 0 {
		flags = append(flags, "fs")
	}
	if p&config.PermMaybe != 0 {
		flags = append(flags, "maybe")
	}
	if p&config.PermDev != 0 {
		flags = append(flags, "dev")
	}
	if p&config.PermTmp != 0 {
		flags = append(flags, "tmp")
	}
	if p&config.PermNoRec != 0 {
		flags = append(flags, "norec")
	}
	return strings.Join(flags, ",")
}
