package fsx

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteFileAtomic_SuccessAndNoTempLeft(t *testing.T) {
	dir := t.TempDir()

	if err := WriteFileAtomic(dir, "a.json", []byte("[]")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if err := WriteFileAtomic(dir, "a.json", []byte("[1]")); err != nil {
		t.Fatalf("覆盖写入不期望错误：%v", err)
	}

	b, err := os.ReadFile(filepath.Join(dir, "a.json"))
	if err != nil {
		t.Fatalf("读取文件失败：%v", err)
	}
	if string(b) != "[1]" {
		t.Fatalf("内容不一致：%q", string(b))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir 失败：%v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".a.json.tmp-") {
			t.Fatalf("临时文件未清理：%q", e.Name())
		}
	}
}

func TestWriteFileAtomic_RenameFail_KeepsOldContent(t *testing.T) {
	dir := t.TempDir()
	if err := WriteFileAtomic(dir, "a.json", []byte("old")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	old := renameFunc
	renameFunc = func(oldpath, newpath string) error {
		return os.ErrPermission
	}
	defer func() { renameFunc = old }()

	if err := WriteFileAtomic(dir, "a.json", []byte("new")); err == nil {
		t.Fatalf("期望失败，但得到 nil")
	}

	b, err := os.ReadFile(filepath.Join(dir, "a.json"))
	if err != nil {
		t.Fatalf("读取文件失败：%v", err)
	}
	if string(b) != "old" {
		t.Fatalf("rename 失败后旧内容应保持不变：%q", string(b))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir 失败：%v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".a.json.tmp-") {
			t.Fatalf("临时文件未清理：%q", e.Name())
		}
	}
}

func TestWriteFileAtomic_TargetIsDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "a.json"), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}

	err := WriteFileAtomic(dir, "a.json", []byte("[]"))
	if !IsTargetDir(err) {
		t.Fatalf("期望 TargetIsDirError，实际：%T %v", err, err)
	}
}

func TestWriteFileAtomicPath_CreatesParent(t *testing.T) {
	p := filepath.Join(t.TempDir(), "api", "datos_rayos.json")
	if err := WriteFileAtomicPath(p, []byte("[]")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if _, err := os.Stat(p); err != nil {
		t.Fatalf("期望文件存在：%v", err)
	}
}

func TestWriteFileAtomicPathContext_CanceledKeepsTarget(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "datos_rayos.json")
	if err := os.WriteFile(p, []byte("[]\n"), 0o644); err != nil {
		t.Fatalf("准备旧快照失败：%v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WriteFileAtomicPathContext(ctx, p, []byte("[1]\n"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("期望 context.Canceled，实际：%v", err)
	}
	b, _ := os.ReadFile(p)
	if string(b) != "[]\n" {
		t.Fatalf("取消后旧快照应保持不变：%q", b)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("临时文件未清理：%d 个条目", len(entries))
	}
}
