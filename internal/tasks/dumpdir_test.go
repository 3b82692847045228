package tasks

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestDumpdirOrdersBySizeAndSkipsPastLimit(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()

	if err := os.WriteFile(filepath.Join(src, "small.txt"), []byte("12"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if err := os.WriteFile(filepath.Join(src, "big.txt"), make([]byte, 4096), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	task := dumpdirTask{src: src, dst: dst, kbLimit: 1}
	res, err := task.Run(context.Background(), &Env{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusOK {
		t.Fatalf("expected OK status, got %v: %s", res.Status, res.ErrorMessage)
	}

	smallData, err := os.ReadFile(filepath.Join(dst, "small.txt"))
	if err != nil {
		t.Fatalf("expected small.txt to be copied: %v", err)
	}
	if string(smallData) != "12" {
		t.Fatalf("unexpected small.txt contents: %q", smallData)
	}

	if _, err := os.Stat(filepath.Join(dst, "big.txt")); err == nil {
		t.Fatalf("expected big.txt to be skipped, not copied")
	}
	skipped, err := os.Stat(filepath.Join(dst, "big.txt.skipped"))
	if err != nil {
		t.Fatalf("expected big.txt.skipped placeholder: %v", err)
	}
	if skipped.Size() != 0 {
		t.Fatalf("expected empty placeholder, got size %d", skipped.Size())
	}
}

func TestCopyPreservingHardlinksReusesDestination(t *testing.T) {
	srcDir := t.TempDir()
	a := filepath.Join(srcDir, "a")
	b := filepath.Join(srcDir, "b")
	if err := os.WriteFile(a, []byte("shared"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if err := os.Link(a, b); err != nil {
		t.Skipf("hardlinks unsupported in this environment: %v", err)
	}

	dstDir := t.TempDir()
	seen := make(map[fileIdentity]string)
	if err := copyPreservingHardlinks(a, filepath.Join(dstDir, "a"), seen); err != nil {
		t.Fatalf("copy a: %v", err)
	}
	if err := copyPreservingHardlinks(b, filepath.Join(dstDir, "b"), seen); err != nil {
		t.Fatalf("copy b: %v", err)
	}

	infoA, _ := os.Stat(filepath.Join(dstDir, "a"))
	infoB, _ := os.Stat(filepath.Join(dstDir, "b"))
	if !os.SameFile(infoA, infoB) {
		t.Fatalf("expected destination files to remain hardlinked")
	}
}
