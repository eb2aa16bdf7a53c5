// Copyright 2025 The fawa Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package file

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fawa-io/receptacle/pkg/fwlog"
	"github.com/fawa-io/receptacle/pkg/httpkit"
	"github.com/fawa-io/receptacle/pkg/storage"
	"github.com/fawa-io/receptacle/pkg/util"
)

const (
	// MaxUploadBytes caps multipart uploads.
	MaxUploadBytes = 64 << 20

	shareCodeLength = 6
	shareTTL        = 25 * time.Minute
	sharePrefix     = "share:"
)

// ShareCache keeps share codes for uploaded files.
type ShareCache interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Fetch(ctx context.Context, key string, dest any) (bool, error)
}

// Share is what a share code resolves to.
type Share struct {
	Backend  string `json:"backend"`
	Key      string `json:"key"`
	Size     int64  `json:"size"`
	Uploaded int64  `json:"uploaded"`
}

// UploadResponse is returned for a stored file.
type UploadResponse struct {
	Key       string `json:"key"`
	Backend   string `json:"backend"`
	ShareCode string `json:"shareCode,omitempty"`
}

// Handler serves files from the configured storage backends.
type Handler struct {
	backends map[string]storage.Storage
	shares   ShareCache
}

// NewHandler creates a Handler. shares may be nil, which disables share codes.
func NewHandler(backends map[string]storage.Storage, shares ShareCache) *Handler {
	return &Handler{backends: backends, shares: shares}
}

// Register mounts the file and share routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Route("/files/{backend}", func(r chi.Router) {
		r.Post("/", h.upload)
		r.Get("/{key}", h.download)
		r.Delete("/{key}", h.delete)
		r.Get("/{key}/presigned-url", h.presign)
	})
	r.Get("/shares/{code}", h.share)
}

func (h *Handler) backend(w http.ResponseWriter, r *http.Request) (string, storage.Storage, bool) {
	name := chi.URLParam(r, "backend")
	s, ok := h.backends[name]
	if !ok {
		httpkit.Error(w, http.StatusBadRequest, "unsupported storage backend", name)
		return "", nil, false
	}
	return name, s, true
}

// validKey rejects names that could escape the bucket prefix.
func validKey(name string) bool {
	return name != "" && !filepath.IsAbs(name) && !strings.Contains(name, "..") && !strings.ContainsAny(name, `/\`)
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	name, s, ok := h.backend(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	f, header, err := r.FormFile("file")
	if err != nil {
		httpkit.Error(w, http.StatusBadRequest, "missing multipart field 'file'", err.Error())
		return
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			fwlog.Errorf("Failed to close upload %s: %v", header.Filename, closeErr)
		}
	}()

	if !validKey(header.Filename) {
		httpkit.Error(w, http.StatusBadRequest, "invalid file name", header.Filename)
		return
	}

	if !s.Save(r.Context(), &storage.File{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        f,
	}) {
		httpkit.Error(w, http.StatusBadGateway, "file could not be stored", nil)
		return
	}

	resp := UploadResponse{Key: header.Filename, Backend: name}
	if h.shares != nil {
		code := util.RandomString(shareCodeLength)
		share := Share{Backend: name, Key: header.Filename, Size: header.Size, Uploaded: time.Now().Unix()}
		if err := h.shares.Set(r.Context(), sharePrefix+code, share, shareTTL); err != nil {
			fwlog.Warnf("File %s stored without share code: %v", header.Filename, err)
		} else {
			resp.ShareCode = code
		}
	}

	fwlog.Infof("File %s uploaded successfully to %s.", header.Filename, name)
	httpkit.JSON(w, http.StatusCreated, resp)
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	_, s, ok := h.backend(w, r)
	if !ok {
		return
	}
	h.writeObject(w, r, s, chi.URLParam(r, "key"))
}

func (h *Handler) writeObject(w http.ResponseWriter, r *http.Request, s storage.Storage, key string) {
	obj, ok := s.Retrieve(r.Context(), key)
	if !ok {
		httpkit.Error(w, http.StatusNotFound, "file not found", key)
		return
	}

	contentType := obj.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	disposition := obj.ContentDisposition
	if disposition == "" {
		disposition = key
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": disposition}))
	w.Header().Set("Content-Length", strconv.Itoa(len(obj.Content)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(obj.Content); err != nil {
		fwlog.Warnf("Failed to write %s to client: %v", key, err)
	}
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	_, s, ok := h.backend(w, r)
	if !ok {
		return
	}
	key := chi.URLParam(r, "key")
	if !s.Delete(r.Context(), key) {
		httpkit.Error(w, http.StatusNotFound, "file not found", key)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) presign(w http.ResponseWriter, r *http.Request) {
	name, s, ok := h.backend(w, r)
	if !ok {
		return
	}
	p, ok := s.(storage.Presigner)
	if !ok {
		httpkit.Error(w, http.StatusBadRequest, "backend does not support presigned URLs", name)
		return
	}

	method := r.URL.Query().Get("method")
	if method == "" {
		method = http.MethodGet
	}
	url, err := p.PresignURL(r.Context(), chi.URLParam(r, "key"), method)
	if errors.Is(err, storage.ErrUnsupportedMethod) {
		httpkit.Error(w, http.StatusBadRequest, "unsupported method", method)
		return
	}
	if err != nil {
		fwlog.Errorf("Failed to presign %s: %v", chi.URLParam(r, "key"), err)
		httpkit.Error(w, http.StatusInternalServerError, "presigned URL could not be generated", nil)
		return
	}
	httpkit.JSON(w, http.StatusOK, map[string]string{"url": url})
}

func (h *Handler) share(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if h.shares == nil || code == "" {
		httpkit.Error(w, http.StatusNotFound, "share not found", code)
		return
	}

	var sh Share
	found, err := h.shares.Fetch(r.Context(), sharePrefix+code, &sh)
	if err != nil {
		fwlog.Errorf("Failed to resolve share %s: %v", code, err)
		httpkit.Error(w, http.StatusInternalServerError, "share could not be resolved", nil)
		return
	}
	if !found {
		httpkit.Error(w, http.StatusNotFound, "share not found", code)
		return
	}
	s, ok := h.backends[sh.Backend]
	if !ok {
		httpkit.Error(w, http.StatusNotFound, "share not found", code)
		return
	}
	fwlog.Debugf("Request to download shared file: %s", sh.Key)
	h.writeObject(w, r, s, sh.Key)
}
