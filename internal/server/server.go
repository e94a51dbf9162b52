// Package server 暴露交互会话的 HTTP 接口（chi 路由）。
package server

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/klauspost/compress/gzhttp"

	"github.com/John-Robertt/lgtmap/internal/infra/logx"
	"github.com/John-Robertt/lgtmap/internal/present"
)

// Refresher 由 session 实现：请求一次新的 cycle 并返回其 seq。
type Refresher interface {
	Trigger(reason string) uint64
	Seq() uint64
}

// Server 只读访问 Layer，写操作只有 refresh（转交 session）。
type Server struct {
	Layer     *present.Layer
	Refresher Refresher
	Feed      string
	// Artifact 为快照文件路径；为空时 /api/datos_rayos.json 返回 404。
	Artifact string
	Logger   *slog.Logger
}

type statusResponse struct {
	Feed string `json:"feed"`
	Seq  uint64 `json:"seq"`
	present.Status
}

type strikesResponse struct {
	Count   int              `json:"count"`
	Markers []present.Marker `json:"markers"`
	Legend  []present.Style  `json:"legend"`
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return logx.Discard()
}

// Handler 构建路由；响应按 Accept-Encoding 做 gzip（小响应不压缩）。
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/strikes", s.handleStrikes)
		r.Get("/export", s.handleExport)
		r.Post("/refresh", s.handleRefresh)
		r.Get("/"+artifactName, s.handleArtifact)
	})
	return gzhttp.GzipHandler(r)
}

const artifactName = "datos_rayos.json"

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{Feed: s.Feed, Status: s.Layer.Status()}
	if s.Refresher != nil {
		resp.Seq = s.Refresher.Seq()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStrikes(w http.ResponseWriter, _ *http.Request) {
	m := s.Layer.Markers()
	writeJSON(w, http.StatusOK, strikesResponse{Count: len(m), Markers: m, Legend: present.Legend()})
}

func (s *Server) handleExport(w http.ResponseWriter, _ *http.Request) {
	b, err := s.Layer.Export()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+artifactName+`"`)
	_, _ = w.Write(b)
}

func (s *Server) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	if s.Refresher == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("refresh 不可用"))
		return
	}
	seq := s.Refresher.Trigger("manual")
	s.logger().Info("manual refresh requested", "seq", seq)
	writeJSON(w, http.StatusAccepted, map[string]uint64{"seq": seq})
}

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	if s.Artifact == "" {
		http.NotFound(w, r)
		return
	}
	f, err := os.Open(s.Artifact)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			http.NotFound(w, r)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil || st.IsDir() {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "application/json")
	http.ServeContent(w, r, filepath.Base(s.Artifact), st.ModTime(), f)
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		s.logger().Debug("http",
			"method", r.Method, "path", r.URL.Path,
			"status", ww.Status(), "bytes", ww.BytesWritten(),
			"dur", time.Since(started).String())
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
