package tasks

import (
	"fmt"
	"strconv"

	"github.com/recodex/worker/internal/config"
)

// Build constructs the runnable Task for one job config task entry: an
// internal file operation when meta.Sandbox is absent and meta.Cmd.Bin
// names one of the fixed internal operations, or a sandboxed wrapper when
// meta.Sandbox is present.
func Build(meta config.TaskMetadata) (Task, error) {
	base := baseTask{meta: meta}
	if meta.Sandbox != nil {
		return sandboxedTask{baseTask: base}, nil
	}

	args := meta.Cmd.Args
	switch meta.Cmd.Bin {
	case "cp":
		if len(args) != 2 {
			return nil, fmt.Errorf("task %s: cp requires 2 arguments, got %d", meta.TaskID, len(args))
		}
		return cpTask{baseTask: base, src: args[0], dst: args[1]}, nil
	case "mkdir":
		if len(args) == 0 {
			return nil, fmt.Errorf("task %s: mkdir requires at least 1 argument", meta.TaskID)
		}
		return mkdirTask{baseTask: base, paths: args}, nil
	case "rename":
		if len(args) != 2 {
			return nil, fmt.Errorf("task %s: rename requires 2 arguments, got %d", meta.TaskID, len(args))
		}
		return renameTask{baseTask: base, src: args[0], dst: args[1]}, nil
	case "rm":
		if len(args) == 0 {
			return nil, fmt.Errorf("task %s: rm requires at least 1 argument", meta.TaskID)
		}
		return rmTask{baseTask: base, paths: args}, nil
	case "archivate":
		if len(args) != 2 {
			return nil, fmt.Errorf("task %s: archivate requires 2 arguments, got %d", meta.TaskID, len(args))
		}
		return archivateTask{baseTask: base, dir: args[0], archive: args[1]}, nil
	case "extract":
		if len(args) != 2 {
			return nil, fmt.Errorf("task %s: extract requires 2 arguments, got %d", meta.TaskID, len(args))
		}
		return extractTask{baseTask: base, archive: args[0], dir: args[1]}, nil
	case "fetch":
		if len(args) != 2 {
			return nil, fmt.Errorf("task %s: fetch requires 2 arguments, got %d", meta.TaskID, len(args))
		}
		return fetchTask{baseTask: base, logicalName: args[0], dst: args[1]}, nil
	case "exists":
		if len(args) < 2 {
			return nil, fmt.Errorf("task %s: exists requires a message and at least 1 path", meta.TaskID)
		}
		return existsTask{baseTask: base, msg: args[0], paths: args[1:]}, nil
	case "truncate":
		if len(args) != 2 {
			return nil, fmt.Errorf("task %s: truncate requires 2 arguments, got %d", meta.TaskID, len(args))
		}
		kb, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("task %s: truncate kilobytes %q: %w", meta.TaskID, args[1], err)
		}
		return truncateTask{baseTask: base, path: args[0], kilobytes: kb}, nil
	case "dumpdir":
		if len(args) != 3 {
			return nil, fmt.Errorf("task %s: dumpdir requires 3 arguments, got %d", meta.TaskID, len(args))
		}
		kb, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("task %s: dumpdir kb-limit %q: %w", meta.TaskID, args[2], err)
		}
		return dumpdirTask{baseTask: base, src: args[0], dst: args[1], kbLimit: kb}, nil
	default:
		return nil, fmt.Errorf("task %s: unknown internal task binary %q", meta.TaskID, meta.Cmd.Bin)
	}
}
