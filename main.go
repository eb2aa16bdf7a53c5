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
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fawa-io/receptacle/pkg/cache"
	"github.com/fawa-io/receptacle/pkg/config"
	"github.com/fawa-io/receptacle/pkg/events"
	"github.com/fawa-io/receptacle/pkg/fwlog"
	"github.com/fawa-io/receptacle/pkg/notification"
	"github.com/fawa-io/receptacle/pkg/persistence"
	"github.com/fawa-io/receptacle/pkg/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := config.InitConfig(); err != nil {
		fwlog.Fatalf("Failed to initialize configuration: %v", err)
	}
	cfg := config.Get()

	level, err := fwlog.ParseLevel(cfg.LogLevel)
	if err != nil {
		fwlog.Warnf("Invalid log level %q, using %s", cfg.LogLevel, level)
	}
	fwlog.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		fwlog.Fatalf("Server exited: %v", err)
	}
	fwlog.Info("Server shutdown complete")
	_ = fwlog.Sync()
}

func run(ctx context.Context, cfg config.Config) error {
	backends, err := storage.Open(ctx, cfg)
	if err != nil {
		return err
	}

	c, err := cache.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			fwlog.Errorf("Error closing redis client: %v", err)
		}
	}()

	deps := dependencies{
		backends: backends,
		cache:    c,
		checks:   map[string]func(context.Context) error{"redis": c.Ping},
	}

	if cfg.Datasource.URL != "" {
		db, err := persistence.Open(ctx, cfg.Datasource.URL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := persistence.Migrate(ctx, db); err != nil {
			return err
		}
		users := persistence.NewService(db)
		deps.users = users
		deps.checks["postgres"] = users.Ping
	} else {
		fwlog.Warnf("datasource.url not set, user routes disabled")
	}

	if cfg.Email.BaseURL != "" {
		deps.mailer = notification.NewService(notification.NewClient(cfg.Email.BaseURL, cfg.Email.APIKey))
	} else {
		fwlog.Warnf("email.baseUrl not set, notification routes disabled")
	}

	var listener *events.Listener
	if len(cfg.Kafka.BootstrapServers) > 0 {
		producer := events.NewProducer(cfg.Kafka)
		defer func() {
			if err := producer.Close(); err != nil {
				fwlog.Errorf("Error closing kafka producer: %v", err)
			}
		}()
		deps.publisher = producer
		listener = events.NewListener(cfg.Kafka, producer)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           newRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fwlog.Infof("Server starting on %v", cfg.Server.Addr)
		var err error
		if cfg.Server.CertFile != "" && cfg.Server.KeyFile != "" {
			err = srv.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		fwlog.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if listener != nil {
		g.Go(func() error {
			defer func() {
				if err := listener.Close(); err != nil {
					fwlog.Errorf("Error closing kafka listener: %v", err)
				}
			}()
			return listener.Run(gctx)
		})
	}

	return g.Wait()
}
