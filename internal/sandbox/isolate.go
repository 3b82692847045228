package sandbox

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// Isolate shells out to an "isolate"-style sandbox binary, the way
// original_source/src/sandbox/isolate_sandbox.cpp wraps the real isolate(1)
// tool: init the box, run the program under its --meta accounting file,
// parse that file for the verdict, then clean the box up.
type Isolate struct {
	Binary  string // defaults to "isolate"
	TempDir string // where the --meta file is written
}

// NewIsolate returns a backend invoking the named isolate binary (empty
// defaults to "isolate" resolved via PATH).
func NewIsolate(binary, tempDir string) *Isolate {
	if binary == "" {
		binary = "isolate"
	}
	return &Isolate{Binary: binary, TempDir: tempDir}
}

func (s *Isolate) Run(ctx context.Context, req Request) (Results, error) {
	if err := s.runIsolate(ctx, "--cg", "-b", strconv.Itoa(req.Box), "--init"); err != nil {
		return Results{}, fmt.Errorf("isolate init: %w", err)
	}
	defer s.runIsolate(context.Background(), "--cg", "-b", strconv.Itoa(req.Box), "--cleanup")

	metaPath, err := s.metaFilePath(req.Box)
	if err != nil {
		return Results{}, err
	}
	defer os.Remove(metaPath)

	args := s.buildArgs(req, metaPath)
	cmd := exec.CommandContext(ctx, s.Binary, args...)
	_ = cmd.Run() // isolate's own exit status is secondary to the meta file's verdict

	return parseMetaFile(metaPath)
}

func (s *Isolate) metaFilePath(box int) (string, error) {
	f, err := os.CreateTemp(s.TempDir, fmt.Sprintf("isolate-%d-*.meta", box))
	if err != nil {
		return "", fmt.Errorf("create isolate meta file: %w", err)
	}
	path := f.Name()
	f.Close()
	return path, nil
}

func (s *Isolate) buildArgs(req Request, metaPath string) []string {
	args := []string{"--cg", "-b", strconv.Itoa(req.Box), "--meta=" + metaPath, "--run"}

	if req.CPUTimeLimit > 0 {
		args = append(args, fmt.Sprintf("--time=%g", req.CPUTimeLimit))
	}
	if req.WallTimeLimit > 0 {
		args = append(args, fmt.Sprintf("--wall-time=%g", req.WallTimeLimit))
	}
	if req.ExtraTimeLimit > 0 {
		args = append(args, fmt.Sprintf("--extra-time=%g", req.ExtraTimeLimit))
	}
	if req.MemoryLimit > 0 {
		args = append(args, fmt.Sprintf("--cg-mem=%d", req.MemoryLimit))
	}
	if req.StackSizeLimit > 0 {
		args = append(args, fmt.Sprintf("--stack=%d", req.StackSizeLimit))
	}
	if req.ProcessesLimit > 0 {
		args = append(args, fmt.Sprintf("--processes=%d", req.ProcessesLimit))
	}
	if req.DiskSizeLimit > 0 {
		args = append(args, fmt.Sprintf("--fsize=%d", req.DiskSizeLimit))
	}
	if req.Chdir != "" {
		args = append(args, "--chdir="+req.Chdir)
	}
	if req.ShareNet {
		args = append(args, "--share-net")
	}
	if req.StdInput != "" {
		args = append(args, "--stdin="+req.StdInput)
	}
	if req.StdOutput != "" {
		args = append(args, "--stdout="+req.StdOutput)
	}
	if req.StderrToStdout {
		args = append(args, "--stderr-to-stdout")
	} else if req.StdError != "" {
		args = append(args, "--stderr="+req.StdError)
	}
	for _, e := range req.Environ {
		args = append(args, "--env="+e)
	}
	for _, bd := range req.BoundDirs {
		spec := bd.Sandbox + "=" + bd.Host
		if bd.Flags != "" {
			spec += ":" + bd.Flags
		}
		args = append(args, "--dir="+spec)
	}

	args = append(args, "--", req.Binary)
	args = append(args, req.Args...)
	return args
}

func (s *Isolate) runIsolate(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, s.Binary, args...)
	return cmd.Run()
}

// parseMetaFile reads isolate's --meta accounting file, a flat "key:value"
// text format, into a Results verdict.
func parseMetaFile(path string) (Results, error) {
	f, err := os.Open(path)
	if err != nil {
		return Results{}, fmt.Errorf("open isolate meta file: %w", err)
	}
	defer f.Close()

	res := Results{Status: StatusOK}
	fields := map[string]string{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		fields[k] = v
	}
	if err := scanner.Err(); err != nil {
		return Results{}, fmt.Errorf("read isolate meta file: %w", err)
	}

	if v, ok := fields["time"]; ok {
		res.Time, _ = strconv.ParseFloat(v, 64)
	}
	if v, ok := fields["time-wall"]; ok {
		res.WallTime, _ = strconv.ParseFloat(v, 64)
	}
	if v, ok := fields["max-rss"]; ok {
		res.MaxRSS, _ = strconv.ParseUint(v, 10, 64)
		res.Memory = res.MaxRSS
	}
	if v, ok := fields["cg-mem"]; ok {
		res.Memory, _ = strconv.ParseUint(v, 10, 64)
	}
	if v, ok := fields["exitcode"]; ok {
		res.ExitCode, _ = strconv.Atoi(v)
	}
	if v, ok := fields["exitsig"]; ok {
		res.ExitSignal, _ = strconv.Atoi(v)
	}
	if v, ok := fields["csw-voluntary"]; ok {
		res.CSWVoluntary, _ = strconv.Atoi(v)
	}
	if v, ok := fields["csw-forced"]; ok {
		res.CSWForced, _ = strconv.Atoi(v)
	}

	switch fields["status"] {
	case "":
		if res.ExitCode != 0 {
			res.Status = StatusRuntimeError
			res.Message = fmt.Sprintf("program exited with status %d", res.ExitCode)
		}
	case "RE":
		res.Status = StatusRuntimeError
		res.Message = fields["message"]
	case "SG":
		res.Status = StatusSignaled
		res.Killed = true
		res.Message = fields["message"]
	case "TO":
		res.Status = StatusTimeLimitExceeded
		res.Message = "time limit exceeded"
	case "XX":
		res.Status = StatusInternalError
		res.Message = fields["message"]
	default:
		res.Status = StatusInternalError
		res.Message = "unknown isolate status " + fields["status"]
	}
	return res, nil
}
