package tasks

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mholt/archives"
)

// archivateTask implements "archivate": zip dir under a single root folder
// named after the archive's base name (without extension).
type archivateTask struct {
	baseTask
	dir     string
	archive string
}

func (t archivateTask) Run(ctx context.Context, env *Env) (Results, error) {
	if err := CreateZip(ctx, t.dir, t.archive); err != nil {
		return Results{Status: StatusFailed, ErrorMessage: err.Error()}, nil
	}
	return Results{Status: StatusOK}, nil
}

// CreateZip zips dir under a single root folder named after archivePath's
// base name (without extension). Shared by the "archivate" internal task
// and the evaluator's own result.zip packing.
func CreateZip(ctx context.Context, dir, archivePath string) error {
	rootName := strings.TrimSuffix(filepath.Base(archivePath), filepath.Ext(archivePath))

	files, err := archives.FilesFromDisk(ctx, nil, map[string]string{dir: rootName})
	if err != nil {
		return err
	}

	out, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("create %s: %w", archivePath, err)
	}
	defer out.Close()

	format := archives.Zip{}
	return format.Archive(ctx, out, files)
}

// extractTask implements "extract": auto-detect zip/tar/tar.gz/tar.bz2,
// rejecting any entry whose name contains a ".." path component.
type extractTask struct {
	baseTask
	archive string
	dir     string
}

func (t extractTask) Run(ctx context.Context, env *Env) (Results, error) {
	if err := ExtractArchive(ctx, t.archive, t.dir); err != nil {
		return Results{Status: StatusFailed, ErrorMessage: err.Error()}, nil
	}
	return Results{Status: StatusOK}, nil
}

// ExtractArchive auto-detects archivePath's format (zip/tar/tar.gz/tar.bz2)
// and extracts it into dir, rejecting any entry whose name contains a ".."
// path component. Shared by the "extract" internal task and the
// evaluator's own submission-archive unpacking.
func ExtractArchive(ctx context.Context, archivePath, dir string) error {
	in, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open %s: %w", archivePath, err)
	}
	defer in.Close()

	format, stream, err := archives.Identify(ctx, archivePath, in)
	if err != nil {
		return err
	}
	extractor, ok := format.(archives.Extractor)
	if !ok {
		return fmt.Errorf("archive format does not support extraction")
	}

	if err := os.MkdirAll(dir, 0o775); err != nil {
		return fmt.Errorf("extract %s: %w", archivePath, err)
	}

	return extractor.Extract(ctx, stream, func(ctx context.Context, f archives.FileInfo) error {
		if hasDotDotComponent(f.NameInArchive) {
			return fmt.Errorf("archive entry %q escapes the destination directory", f.NameInArchive)
		}
		dst := filepath.Join(dir, f.NameInArchive)
		if f.IsDir() {
			return os.MkdirAll(dst, 0o775)
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0o775); err != nil {
			return err
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		defer rc.Close()
		out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, f.Mode()|0o600)
		if err != nil {
			return err
		}
		defer out.Close()
		_, err = io.Copy(out, rc)
		return err
	})
}

func hasDotDotComponent(name string) bool {
	for _, part := range strings.Split(filepath.ToSlash(name), "/") {
		if part == ".." {
			return true
		}
	}
	return false
}

