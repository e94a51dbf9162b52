// Package fsx 负责快照文件的原子替换：读者要么看到旧文件，要么看到完整的新文件。
package fsx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// 测试通过替换该变量模拟 rename 失败。
var renameFunc = os.Rename

// TargetIsDirError 表示目标路径已被目录占用，无法用文件替换。
type TargetIsDirError struct {
	Path string
}

func (e *TargetIsDirError) Error() string {
	return fmt.Sprintf("目标路径是目录，无法写入快照：%q", e.Path)
}

func IsTargetDir(err error) bool {
	var e *TargetIsDirError
	return errors.As(err, &e)
}

// CrossDeviceError 表示 rename 跨越了文件系统（EXDEV）。
// 临时文件与目标同目录，出现该错误通常意味着目标本身是挂载点（例如容器里 bind mount 的单个文件）。
type CrossDeviceError struct {
	Src string
	Dst string
	Err error
}

func (e *CrossDeviceError) Error() string {
	return fmt.Sprintf("跨文件系统替换失败（EXDEV）：%q -> %q：%v", e.Src, e.Dst, e.Err)
}

func (e *CrossDeviceError) Unwrap() error { return e.Err }

func IsCrossDevice(err error) bool {
	var e *CrossDeviceError
	return errors.As(err, &e)
}

// Rename 把 src 原子地移动到 dst；EXDEV 会被包装为 *CrossDeviceError。
func Rename(src, dst string) error {
	err := renameFunc(src, dst)
	if err != nil && isEXDEV(err) {
		return &CrossDeviceError{Src: src, Dst: dst, Err: err}
	}
	return err
}

// WriteFileAtomicPath 原子替换 path 的内容，父目录不存在时自动创建。
func WriteFileAtomicPath(path string, data []byte) error {
	return WriteFileAtomic(filepath.Dir(path), filepath.Base(path), data)
}

// WriteFileAtomicPathContext 与 WriteFileAtomicPath 相同，但 rename 前 ctx 已结束时放弃替换。
func WriteFileAtomicPathContext(ctx context.Context, path string, data []byte) error {
	return writeAtomic(ctx, filepath.Dir(path), filepath.Base(path), data)
}

// WriteFileAtomic 先写同目录临时文件并 fsync，再 rename 覆盖 dir/name。
//
// 任何一步失败都会删除临时文件，dir/name 保持原样。
func WriteFileAtomic(dir, name string, data []byte) error {
	return writeAtomic(context.Background(), dir, name, data)
}

func writeAtomic(ctx context.Context, dir, name string, data []byte) error {
	dir = filepath.Clean(dir)
	dst := filepath.Join(dir, name)
	if fi, err := os.Lstat(dst); err == nil && fi.IsDir() {
		return &TargetIsDirError{Path: dst}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	// 前缀 '.'：静态站点目录里不会被当成快照发布出去。
	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	// rename 是提交点：之后目标文件就是新内容。
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := Rename(tmpName, dst); err != nil {
		return err
	}
	committed = true

	syncDir(dir)
	return nil
}

// syncDir 让 rename 本身落盘；失败不影响结果（部分文件系统不支持目录 fsync）。
func syncDir(dir string) {
	if runtime.GOOS == "windows" {
		return
	}
	f, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = f.Sync()
	_ = f.Close()
}
