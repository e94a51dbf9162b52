//go:build unix

package fsx

import (
	"errors"
	"syscall"
)

// isEXDEV 识别 *os.LinkError 内的 EXDEV。
func isEXDEV(err error) bool {
	return errors.Is(err, syscall.EXDEV)
}
