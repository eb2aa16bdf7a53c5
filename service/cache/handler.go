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

package cache

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fawa-io/receptacle/pkg/fwlog"
	"github.com/fawa-io/receptacle/pkg/httpkit"
)

// Store is implemented by cache.Cache.
type Store interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Update(ctx context.Context, key string, value any) (bool, error)
	Fetch(ctx context.Context, key string, dest any) (bool, error)
	Delete(ctx context.Context, key string) error
}

// Handler exposes the cache as raw JSON values.
type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/cache/{key}", func(r chi.Router) {
		r.Put("/", h.set)
		r.Patch("/", h.update)
		r.Get("/", h.fetch)
		r.Delete("/", h.delete)
	})
}

func readValue(w http.ResponseWriter, r *http.Request) (json.RawMessage, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, httpkit.MaxBodyBytes))
	if err != nil || !json.Valid(data) {
		httpkit.Error(w, http.StatusBadRequest, "body must be a JSON value", nil)
		return nil, false
	}
	return json.RawMessage(data), true
}

func (h *Handler) set(w http.ResponseWriter, r *http.Request) {
	var ttl time.Duration
	if raw := r.URL.Query().Get("ttl"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			httpkit.Error(w, http.StatusBadRequest, "invalid ttl", raw)
			return
		}
		ttl = d
	}
	value, ok := readValue(w, r)
	if !ok {
		return
	}

	key := chi.URLParam(r, "key")
	if err := h.store.Set(r.Context(), key, value, ttl); err != nil {
		fwlog.Errorf("Failed to cache %s: %v", key, err)
		httpkit.Error(w, http.StatusBadGateway, "cache unavailable", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	value, ok := readValue(w, r)
	if !ok {
		return
	}

	key := chi.URLParam(r, "key")
	updated, err := h.store.Update(r.Context(), key, value)
	if err != nil {
		fwlog.Errorf("Failed to update cached %s: %v", key, err)
		httpkit.Error(w, http.StatusBadGateway, "cache unavailable", nil)
		return
	}
	if !updated {
		httpkit.Error(w, http.StatusNotFound, "key not found", key)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fetch(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var value json.RawMessage
	found, err := h.store.Fetch(r.Context(), key, &value)
	if err != nil {
		fwlog.Errorf("Failed to fetch cached %s: %v", key, err)
		httpkit.Error(w, http.StatusBadGateway, "cache unavailable", nil)
		return
	}
	if !found {
		httpkit.Error(w, http.StatusNotFound, "key not found", key)
		return
	}
	httpkit.JSON(w, http.StatusOK, value)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := h.store.Delete(r.Context(), key); err != nil {
		fwlog.Errorf("Failed to delete cached %s: %v", key, err)
		httpkit.Error(w, http.StatusBadGateway, "cache unavailable", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
