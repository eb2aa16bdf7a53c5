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

package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fawa-io/receptacle/pkg/cors"
	"github.com/fawa-io/receptacle/pkg/httpkit"
	"github.com/fawa-io/receptacle/pkg/metrics"
	"github.com/fawa-io/receptacle/pkg/storage"
	cachesvc "github.com/fawa-io/receptacle/service/cache"
	"github.com/fawa-io/receptacle/service/file"
	"github.com/fawa-io/receptacle/service/notify"
	"github.com/fawa-io/receptacle/service/user"
)

// dependencies are the adapters behind the HTTP surface. Nil members switch
// their routes off.
type dependencies struct {
	backends  map[string]storage.Storage
	cache     cachesvc.Store
	users     user.Store
	publisher user.Publisher
	mailer    notify.Mailer
	checks    map[string]func(context.Context) error
}

func newRouter(d dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Get("/healthz", healthz(d.checks))
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		var shares file.ShareCache
		if d.cache != nil {
			shares = d.cache
			cachesvc.NewHandler(d.cache).Register(api)
		}
		file.NewHandler(d.backends, shares).Register(api)

		if d.users != nil {
			user.NewHandler(d.users, d.publisher).Register(api)
		}
		if d.mailer != nil {
			notify.NewHandler(d.mailer).Register(api)
		}
	})

	return cors.NewCORS().Handler(r)
}

func healthz(checks map[string]func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		report := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				report[name] = err.Error()
				continue
			}
			report[name] = "ok"
		}
		httpkit.JSON(w, status, report)
	}
}
