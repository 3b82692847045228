package tasks

import (
	"context"
	"os"
	"path/filepath"
	"sort"
)

// dumpdirTask implements "dumpdir": a recursive copy of src into dst,
// visiting files in ascending size order. Once the cumulative copied size
// would exceed kbLimit KiB, every remaining file is replaced by an empty
// "<name>.skipped" placeholder instead of being copied, so operators can
// still see what was omitted without paying its storage cost.
type dumpdirTask struct {
	baseTask
	src      string
	dst      string
	kbLimit  int64
}

type dumpdirEntry struct {
	relPath string
	size    int64
}

func (t dumpdirTask) Run(ctx context.Context, env *Env) (Results, error) {
	var entries []dumpdirEntry
	err := filepath.Walk(t.src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(t.src, path)
		if err != nil {
			return err
		}
		entries = append(entries, dumpdirEntry{relPath: rel, size: info.Size()})
		return nil
	})
	if err != nil {
		return Results{Status: StatusFailed, ErrorMessage: err.Error()}, nil
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].size < entries[j].size })

	limit := t.kbLimit * 1024
	var cumulative int64
	hardlinks := make(map[fileIdentity]string)

	for _, e := range entries {
		srcPath := filepath.Join(t.src, e.relPath)
		dstPath := filepath.Join(t.dst, e.relPath)
		if err := os.MkdirAll(filepath.Dir(dstPath), 0o775); err != nil {
			return Results{Status: StatusFailed, ErrorMessage: err.Error()}, nil
		}

		if cumulative+e.size > limit {
			skipped := dstPath + ".skipped"
			if err := os.WriteFile(skipped, nil, 0o664); err != nil {
				return Results{Status: StatusFailed, ErrorMessage: err.Error()}, nil
			}
			continue
		}

		if err := copyPreservingHardlinks(srcPath, dstPath, hardlinks); err != nil {
			return Results{Status: StatusFailed, ErrorMessage: err.Error()}, nil
		}
		cumulative += e.size
	}
	return Results{Status: StatusOK}, nil
}
