// Package api provides the HTTP server and handlers.
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/lanbox/lanbox/internal/auth"
	"github.com/lanbox/lanbox/internal/config"
	"github.com/lanbox/lanbox/internal/drives"
	"github.com/lanbox/lanbox/internal/listing"
	"github.com/lanbox/lanbox/internal/logging"
	"github.com/lanbox/lanbox/internal/metrics"
	"github.com/lanbox/lanbox/internal/sandbox"
	davpkg "github.com/lanbox/lanbox/internal/webdav"
)

// Server is the HTTP server.
type Server struct {
	authority *sandbox.Authority
	gate      *auth.Gate
	cfg       *config.Config
}

// NewServer creates a new server.
func NewServer(cfg *config.Config, authority *sandbox.Authority, gate *auth.Gate) *Server {
	return &Server{authority: authority, gate: gate, cfg: cfg}
}

// Handler assembles the route table. The session gate wraps every page and
// file route; login, health, and the WebDAV mount carry their own access
// rules, so they sit outside it.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Public endpoints (no session required)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /login", s.handleLoginPage)
	mux.HandleFunc("POST /login", s.handleLogin)

	// WebDAV endpoint (has its own auth middleware)
	if s.cfg.EnableDAV {
		dav := davpkg.NewHandler(s.authority, s.gate)
		mux.Handle("/dav/", dav)
		mux.Handle("/dav", dav)
	}

	// Session-gated pages and file routes
	pages := http.NewServeMux()
	pages.HandleFunc("GET /{$}", s.handleLanding)
	pages.HandleFunc("GET /browse", s.handleBrowse)
	pages.HandleFunc("GET /browse/{path...}", s.handleBrowse)
	pages.HandleFunc("GET /search", s.handleSearch)
	pages.HandleFunc("GET /config", s.handleConfig)
	pages.HandleFunc("POST /upload", s.handleUpload)
	pages.HandleFunc("GET /{path...}", s.handleDownload)
	mux.Handle("/", s.gate.Middleware()(pages))

	return metrics.Middleware(logging.Middleware(recoverer(mux)))
}

// ─── Health ─────────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// ─── Pages ──────────────────────────────────────────────────────────────────

func (s *Server) handleLanding(w http.ResponseWriter, r *http.Request) {
	s.render(w, "landing.html", nil)
}

type loginData struct {
	Error string
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, "login.html", loginData{})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	tok, err := s.gate.Login(r.PostFormValue("password"))
	if err != nil {
		logging.Warn("login rejected", zap.String("remote", r.RemoteAddr))
		s.render(w, "login.html", loginData{Error: "Invalid password"})
		return
	}
	auth.SetSessionCookie(w, tok)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// ─── Browse ─────────────────────────────────────────────────────────────────

type entryView struct {
	Name string
	Icon string
	Size string
	Href string
}

type browseData struct {
	Path    string
	Parent  string
	Entries []entryView
}

func (s *Server) handleBrowse(w http.ResponseWriter, r *http.Request) {
	rel, err := sandbox.CleanRequestPath(r.PathValue("path"))
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid path")
		return
	}
	abs, err := s.authority.Resolve(rel)
	if err != nil {
		metrics.RecordSandboxDenial()
		s.sendError(w, http.StatusForbidden, "access denied")
		return
	}
	fi, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			s.sendError(w, http.StatusNotFound, "directory not found")
			return
		}
		s.internalError(w, "stat browse target", err)
		return
	}
	if !fi.IsDir() {
		http.Redirect(w, r, fileHref(rel), http.StatusMovedPermanently)
		return
	}

	entries, err := listing.Build(s.authority, abs)
	if err != nil {
		s.internalError(w, "list directory", err)
		return
	}

	parent := "/"
	if rel != "" {
		if dir := path.Dir(rel); dir == "." {
			parent = "/browse/"
		} else {
			parent = browseHref(dir)
		}
	}

	views := make([]entryView, 0, len(entries))
	for _, e := range entries {
		childRel := e.Name
		if rel != "" {
			childRel = rel + "/" + e.Name
		}
		v := entryView{Name: e.Name}
		if e.IsDir {
			v.Icon = dirIcon
			v.Href = browseHref(childRel)
		} else {
			v.Icon = fileIcon(e.Name)
			v.Href = fileHref(childRel)
			v.Size = humanize.IBytes(uint64(e.Size))
		}
		views = append(views, v)
	}

	s.render(w, "browse.html", browseData{Path: "/" + rel, Parent: parent, Entries: views})
}

// ─── Search ─────────────────────────────────────────────────────────────────

type searchResponse struct {
	Results []string `json:"results"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	dir := r.URL.Query().Get("dir")
	term := r.URL.Query().Get("q")

	abs, err := s.authority.Resolve(dir)
	if err != nil {
		metrics.RecordSandboxDenial()
		s.sendError(w, http.StatusForbidden, "access denied")
		return
	}

	// A directory that vanished since the page rendered, or a path naming a
	// regular file, just yields no hits.
	fi, err := os.Stat(abs)
	if err != nil || !fi.IsDir() {
		writeJSON(w, http.StatusOK, searchResponse{Results: []string{}})
		return
	}

	names, err := listing.Search(s.authority, abs, term)
	if err != nil && !os.IsNotExist(err) {
		s.internalError(w, "search directory", err)
		return
	}

	results := make([]string, 0, len(names))
	for _, name := range names {
		relPath, err := filepath.Rel(s.authority.Root(), filepath.Join(abs, name))
		if err != nil {
			continue
		}
		results = append(results, filepath.ToSlash(relPath))
	}
	writeJSON(w, http.StatusOK, searchResponse{Results: results})
}

// ─── Config ─────────────────────────────────────────────────────────────────

type configResponse struct {
	RootDirectory string   `json:"root_directory"`
	AllowedPaths  []string `json:"allowed_paths"`
	Drives        []string `json:"drives"`
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	detected := drives.Detect()
	if detected == nil {
		detected = []string{}
	}
	writeJSON(w, http.StatusOK, configResponse{
		RootDirectory: s.authority.Root(),
		AllowedPaths:  s.authority.Allowed(),
		Drives:        detected,
	})
}

// ─── Download ───────────────────────────────────────────────────────────────

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	rel, err := sandbox.CleanRequestPath(r.PathValue("path"))
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid path")
		return
	}
	abs, err := s.authority.Resolve(rel)
	if err != nil {
		metrics.RecordSandboxDenial()
		s.sendError(w, http.StatusForbidden, "access denied")
		return
	}
	fi, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			s.sendError(w, http.StatusNotFound, "file not found")
			return
		}
		s.internalError(w, "stat download target", err)
		return
	}

	// Directories browse, files download.
	if fi.IsDir() {
		http.Redirect(w, r, browseHref(rel), http.StatusMovedPermanently)
		return
	}

	f, err := os.Open(abs)
	if err != nil {
		s.internalError(w, "open download target", err)
		return
	}
	defer f.Close()

	ct := mime.TypeByExtension(filepath.Ext(abs))
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Length", strconv.FormatInt(fi.Size(), 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(abs)))

	n, err := io.Copy(w, f)
	if err != nil {
		logging.Warn("download transfer error", zap.String("path", rel), zap.Error(err))
	}
	metrics.RecordDownload(n)
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// render buffers the template output so a mid-render failure can still turn
// into a clean 500 instead of a half-written page.
func (s *Server) render(w http.ResponseWriter, name string, data any) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		logging.Error("render template", zap.String("template", name), zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

func (s *Server) sendError(w http.ResponseWriter, code int, message string) {
	http.Error(w, message, code)
}

// internalError logs the failure detail and responds with a generic message.
func (s *Server) internalError(w http.ResponseWriter, msg string, err error) {
	logging.Error(msg, zap.Error(err))
	s.sendError(w, http.StatusInternalServerError, "internal server error")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("encode response", zap.Error(err))
	}
}

// browseHref builds the escaped browse URL for a root-relative path, always
// with a trailing separator.
func browseHref(rel string) string {
	u := url.URL{Path: "/browse/" + rel}
	p := u.EscapedPath()
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

// fileHref builds the escaped download URL for a root-relative path.
func fileHref(rel string) string {
	u := url.URL{Path: "/" + rel}
	return u.EscapedPath()
}

// recoverer turns a handler panic into a 500 so the client always gets a
// response.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				logging.Error("handler panic",
					zap.Any("panic", v),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Stack("stack"))
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
