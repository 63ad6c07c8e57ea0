package http

import (
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/helloclass/helloclass-lms/internal/rbac"
	"github.com/helloclass/helloclass-lms/internal/storage"
)

const maxImageBytes = 5 << 20

var imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true, ".svg": true}

// MountAssets serves question images. Uploads go under questions/ with a fresh
// name; the response carries the URL to store on the question.
func MountAssets(r chi.Router, bs storage.BlobStore, g *rbac.Guard) {
	// POST /assets/questions  multipart file=
	r.With(g.Require("asset:upload")).Post("/questions", func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes)
		f, hdr, err := r.FormFile("file")
		if err != nil {
			writeErr(w, http.StatusBadRequest, "BAD_INPUT", "file required")
			return
		}
		defer f.Close()

		ext := strings.ToLower(path.Ext(hdr.Filename))
		if !imageExts[ext] {
			writeErr(w, http.StatusBadRequest, "BAD_INPUT", "unsupported image type")
			return
		}
		key, err := bs.Put("questions/"+uuid.NewString()+ext, f)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, "STORE_ERROR", "store error: "+err.Error())
			return
		}
		url, err := bs.SignedURL(key)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"key": key, "url": url})
	})

	// GET /assets/*   -> returns the blob at whatever follows /assets/
	r.With(g.Require("asset:view")).Get("/*", func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
		rc, err := bs.Get(key)
		if err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		defer rc.Close()
		ct := mime.TypeByExtension(path.Ext(key))
		if ct == "" {
			ct = "application/octet-stream"
		}
		w.Header().Set("Content-Type", ct)
		w.Header().Set("Cache-Control", "private, max-age=86400")
		_, _ = io.Copy(w, rc)
	})
}
