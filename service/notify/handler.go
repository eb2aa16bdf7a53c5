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

package notify

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fawa-io/receptacle/pkg/fwlog"
	"github.com/fawa-io/receptacle/pkg/httpkit"
	"github.com/fawa-io/receptacle/pkg/notification"
)

// Mailer is implemented by notification.Service.
type Mailer interface {
	SendEmail(ctx context.Context, req notification.EmailDispatchRequest) (bool, error)
}

type Handler struct {
	mailer Mailer
}

func NewHandler(mailer Mailer) *Handler {
	return &Handler{mailer: mailer}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/notifications/email", h.sendEmail)
}

func (h *Handler) sendEmail(w http.ResponseWriter, r *http.Request) {
	var req notification.EmailDispatchRequest
	if err := httpkit.Decode(w, r, &req); err != nil {
		httpkit.Error(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if err := req.Validate(); err != nil {
		httpkit.Error(w, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	sent, err := h.mailer.SendEmail(r.Context(), req)
	var unreachable *notification.APIUnreachableError
	switch {
	case sent:
		httpkit.JSON(w, http.StatusAccepted, map[string]bool{"sent": true})
	case errors.As(err, &unreachable):
		httpkit.Error(w, http.StatusGatewayTimeout, "email gateway unreachable", nil)
	case err != nil:
		fwlog.Errorf("Unexpected error sending email: %v", err)
		httpkit.Error(w, http.StatusInternalServerError, "email could not be sent", nil)
	default:
		httpkit.Error(w, http.StatusBadGateway, "email gateway rejected the request", nil)
	}
}
