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

package user

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/fawa-io/receptacle/pkg/events"
	"github.com/fawa-io/receptacle/pkg/fwlog"
	"github.com/fawa-io/receptacle/pkg/httpkit"
	"github.com/fawa-io/receptacle/pkg/persistence"
)

// Store is implemented by persistence.Service.
type Store interface {
	GetAllCountries(ctx context.Context) ([]persistence.Country, error)
	SaveUser(ctx context.Context, user *persistence.User) (uuid.UUID, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*persistence.User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error
}

// Publisher is implemented by events.Producer.
type Publisher interface {
	PublishCustomerRegistered(ctx context.Context, ev events.CustomerRegistered) error
}

// RegisterRequest creates a user. EmailID is optional; when set, a
// customer-registered event is published.
type RegisterRequest struct {
	FirstName string `json:"firstName" validate:"required,max=100"`
	LastName  string `json:"lastName" validate:"required,max=100"`
	CountryID int64  `json:"countryId" validate:"required,gt=0"`
	EmailID   string `json:"emailId" validate:"omitempty,email"`
}

type Handler struct {
	store     Store
	publisher Publisher
	validate  *validator.Validate
}

// NewHandler creates a Handler. publisher may be nil.
func NewHandler(store Store, publisher Publisher) *Handler {
	return &Handler{store: store, publisher: publisher, validate: validator.New()}
}

// Register mounts the country and user routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/countries", h.countries)
	r.Post("/users", h.create)
	r.Get("/users/{id}", h.get)
	r.Delete("/users/{id}", h.delete)
}

func (h *Handler) countries(w http.ResponseWriter, r *http.Request) {
	countries, err := h.store.GetAllCountries(r.Context())
	if err != nil {
		fwlog.Errorf("Failed to list countries: %v", err)
		httpkit.Error(w, http.StatusInternalServerError, "countries could not be loaded", nil)
		return
	}
	httpkit.JSON(w, http.StatusOK, countries)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := httpkit.Decode(w, r, &req); err != nil {
		httpkit.Error(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpkit.Error(w, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	u := &persistence.User{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Country:   persistence.Country{ID: req.CountryID},
	}
	id, err := h.store.SaveUser(r.Context(), u)
	if err != nil {
		fwlog.Errorf("Failed to save user: %v", err)
		httpkit.Error(w, http.StatusInternalServerError, "user could not be saved", nil)
		return
	}

	if h.publisher != nil && req.EmailID != "" {
		ev := events.CustomerRegistered{
			ID:        id.String(),
			FirstName: req.FirstName,
			LastName:  req.LastName,
			EmailID:   req.EmailID,
		}
		if err := h.publisher.PublishCustomerRegistered(r.Context(), ev); err != nil {
			fwlog.Errorf("User %s saved but registration event was not published: %v", id, err)
		}
	}

	httpkit.JSON(w, http.StatusCreated, map[string]string{"id": id.String()})
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpkit.Error(w, http.StatusBadRequest, "invalid user id", chi.URLParam(r, "id"))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	u, err := h.store.GetUserByID(r.Context(), id)
	if errors.Is(err, persistence.ErrUserNotFound) {
		httpkit.Error(w, http.StatusNotFound, "user not found", id.String())
		return
	}
	if err != nil {
		fwlog.Errorf("Failed to load user %s: %v", id, err)
		httpkit.Error(w, http.StatusInternalServerError, "user could not be loaded", nil)
		return
	}
	httpkit.JSON(w, http.StatusOK, u)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteUser(r.Context(), id); err != nil {
		fwlog.Errorf("Failed to delete user %s: %v", id, err)
		httpkit.Error(w, http.StatusInternalServerError, "user could not be deleted", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
