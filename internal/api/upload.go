package api

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/lanbox/lanbox/internal/formdata"
	"github.com/lanbox/lanbox/internal/logging"
	"github.com/lanbox/lanbox/internal/metrics"
	"github.com/lanbox/lanbox/internal/sandbox"
)

// ─── Upload ─────────────────────────────────────────────────────────────────

// handleUpload decodes a multipart form and writes each accepted file under
// the submitted target directory. A "path" field switches the target for the
// file parts after it; files with no preceding path field land in the share
// root. Files whose destination the sandbox rejects are skipped; the request
// succeeds when at least one file lands.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		s.sendError(w, http.StatusBadRequest, "expected multipart/form-data")
		return
	}
	boundary := params["boundary"]
	if boundary == "" {
		s.sendError(w, http.StatusBadRequest, "missing multipart boundary")
		return
	}
	if r.ContentLength < 0 {
		s.sendError(w, http.StatusBadRequest, "Content-Length required")
		return
	}
	if s.cfg.MaxUploadBytes > 0 && r.ContentLength > s.cfg.MaxUploadBytes {
		s.sendError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("upload too large: max %d bytes", s.cfg.MaxUploadBytes))
		return
	}

	logging.Info("receiving upload",
		zap.Int64("bytes", r.ContentLength),
		zap.String("remote", r.RemoteAddr))

	body := make([]byte, r.ContentLength)
	if _, err := io.ReadFull(r.Body, body); err != nil {
		s.sendError(w, http.StatusBadRequest, "truncated request body")
		return
	}

	parts, err := formdata.Decode(body, []byte(boundary))
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "malformed multipart body")
		return
	}

	var (
		targetDir string // effective directory for subsequent file parts
		submitted string // last path field value, for the redirect back
		uploaded  int
	)
	for _, p := range parts {
		if !p.File {
			if p.Name == "path" {
				targetDir = string(p.Data)
				submitted = targetDir
			}
			continue
		}
		if p.Filename == "" {
			logging.Warn("skipping file slot with empty filename")
			metrics.RecordUploadedFile(false, 0)
			continue
		}
		dest, err := s.authority.Resolve(targetDir + "/" + p.Filename)
		if err != nil {
			logging.Warn("upload destination denied", zap.String("filename", p.Filename))
			metrics.RecordSandboxDenial()
			metrics.RecordUploadedFile(false, 0)
			continue
		}
		if err := writeFileAtomic(dest, p.Data); err != nil {
			s.internalError(w, "write uploaded file", err)
			return
		}
		logging.Info("file saved", zap.String("path", dest), zap.Int("bytes", len(p.Data)))
		metrics.RecordUploadedFile(true, int64(len(p.Data)))
		uploaded++
	}

	if uploaded == 0 {
		s.sendError(w, http.StatusBadRequest, "no files were uploaded")
		return
	}

	// Clamp the redirect target to a local path; a raw client value like
	// "//host" would read as a protocol-relative URL.
	location := "/"
	if rel, err := sandbox.CleanRequestPath(submitted); err == nil && rel != "" {
		location = "/" + rel
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}

// writeFileAtomic stages content next to dest and renames it into place, so
// a failed write never leaves a half-written file in the share.
func writeFileAtomic(dest string, data []byte) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".lanbox-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}
