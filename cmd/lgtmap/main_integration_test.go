package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/John-Robertt/lgtmap/internal/domain"
)

func TestCLI_NoTTY_StdoutOnlyCycleReportJSON(t *testing.T) {
	// 锁定对外契约：stdout 非 TTY 时只能输出一个 CycleReport JSON（进度/配置必须走 stderr 或直接禁用）。
	if testing.Short() {
		t.Skip("需要 go run")
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(fixtureHTML))
	}))
	defer srv.Close()

	dir := t.TempDir()
	cfg := filepath.Join(dir, "lgtmap.yaml")
	yaml := "source:\n  base_url: " + srv.URL + "\noutput: datos_rayos.json\n"
	if err := os.WriteFile(cfg, []byte(yaml), 0o644); err != nil {
		t.Fatalf("写入配置失败：%v", err)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("读取 cwd 失败：%v", err)
	}
	repoRoot := filepath.Clean(filepath.Join(wd, "..", ".."))

	cmd := exec.Command("go", "run", "./cmd/lgtmap", "run", "--config", cfg)
	cmd.Dir = repoRoot

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		t.Fatalf("命令执行失败：%v\nstderr=%s\nstdout=%s", err, stderr.String(), stdout.String())
	}

	var rr domain.CycleReport
	if err := json.Unmarshal(stdout.Bytes(), &rr); err != nil {
		t.Fatalf("stdout 不是合法的 CycleReport JSON：%v\nstdout=%q", err, stdout.String())
	}
	if strings.Contains(stdout.String(), "配置（生效）") {
		t.Fatalf("stdout 不应包含配置输出：%q", stdout.String())
	}
	if !strings.Contains(stderr.String(), "完成：slug=") {
		t.Fatalf("stderr 缺少完成摘要：%q", stderr.String())
	}
	if _, err := os.Stat(filepath.Join(dir, "datos_rayos.json")); err != nil {
		t.Fatalf("快照应写在配置文件所在目录：%v", err)
	}
}
