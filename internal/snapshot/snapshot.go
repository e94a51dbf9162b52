// Package snapshot 负责快照文件的编码、原子写入与回读。
//
// 快照是一个 JSON 数组：[{"lat": 7.2, "lng": -65.35, "age": 15}, ...]，
// 两空格缩进，零个闪电时为 []。每个 cycle 整体替换，不保留历史。
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/John-Robertt/lgtmap/internal/domain"
	"github.com/John-Robertt/lgtmap/internal/infra/fsx"
)

// Encode 把 strikes 编码为快照字节（带结尾换行）。
func Encode(strikes []domain.GeoStrike) ([]byte, error) {
	if strikes == nil {
		strikes = []domain.GeoStrike{}
	}
	b, err := json.MarshalIndent(strikes, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// Decode 解析快照字节；顶层必须是数组。
func Decode(b []byte) ([]domain.GeoStrike, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '[' {
		return nil, fmt.Errorf("快照顶层必须是 JSON 数组")
	}
	var out []domain.GeoStrike
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.GeoStrike{}
	}
	return out, nil
}

// Write 原子替换 path 处的快照；失败时旧文件保持不变。
func Write(path string, strikes []domain.GeoStrike) error {
	return WriteContext(context.Background(), path, strikes)
}

// WriteContext 同 Write；ctx 在替换前结束（cycle 被取代）时返回 ctx.Err()，旧文件不动。
func WriteContext(ctx context.Context, path string, strikes []domain.GeoStrike) error {
	b, err := Encode(strikes)
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomicPathContext(ctx, path, b)
}

// Read 读取本地快照文件。
func Read(path string) ([]domain.GeoStrike, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(b)
}
