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

package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/fawa-io/receptacle/pkg/config"
)

// Drivers accepted by Open and storage.driver.
const (
	DriverS3    = "s3"
	DriverAzure = "azure"
	DriverMinio = "minio"
)

// ErrUnsupportedMethod is returned when a presigned URL is requested for an
// HTTP method other than GET or PUT.
var ErrUnsupportedMethod = errors.New("storage: unsupported presign method")

// File is an upload. Name doubles as the object key and the content
// disposition.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Object is a stored object as read back from a backend.
type Object struct {
	Key                string
	ContentType        string
	ContentDisposition string
	Content            []byte
}

// Storage is implemented by every object storage backend. Backend errors
// never reach the caller: they are logged and reported as false.
type Storage interface {
	// Save stores the file under its name and reports whether it succeeded.
	Save(ctx context.Context, file *File) bool

	// Retrieve returns the object stored under key, or false if it does not
	// exist or could not be read.
	Retrieve(ctx context.Context, key string) (*Object, bool)

	// Delete removes key and reports whether an object was actually deleted.
	Delete(ctx context.Context, key string) bool
}

// Presigner is implemented by backends that can hand out time-limited URLs.
type Presigner interface {
	PresignURL(ctx context.Context, key, method string) (string, error)
}

// normalizeMethod accepts GET and PUT in any case.
func normalizeMethod(method string) (string, error) {
	switch m := strings.ToUpper(method); m {
	case http.MethodGet, http.MethodPut:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
}

// seekable returns a body the SDKs can rewind for signing and retries.
func seekable(file *File) (io.ReadSeeker, int64, error) {
	if rs, ok := file.Body.(io.ReadSeeker); ok && file.Size > 0 {
		return rs, file.Size, nil
	}
	data, err := io.ReadAll(file.Body)
	if err != nil {
		return nil, 0, err
	}
	return bytes.NewReader(data), int64(len(data)), nil
}

// Open builds every backend that has configuration and returns them by
// driver name.
func Open(ctx context.Context, cfg config.Config) (map[string]Storage, error) {
	backends := make(map[string]Storage)

	if cfg.AWS.S3.BucketName != "" {
		s, err := NewS3Storage(ctx, cfg.AWS)
		if err != nil {
			return nil, fmt.Errorf("s3 storage: %w", err)
		}
		backends[DriverS3] = s
	}
	if cfg.Azure.BlobStorage.ConnectionString != "" {
		s, err := NewAzureStorage(cfg.Azure.BlobStorage)
		if err != nil {
			return nil, fmt.Errorf("azure storage: %w", err)
		}
		backends[DriverAzure] = s
	}
	if cfg.Minio.Endpoint != "" {
		s, err := NewMinioStorage(cfg.Minio, cfg.AWS.S3.Expiry())
		if err != nil {
			return nil, fmt.Errorf("minio storage: %w", err)
		}
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("minio storage: %w", err)
		}
		backends[DriverMinio] = s
	}

	if _, ok := backends[cfg.Storage.Driver]; !ok {
		return nil, fmt.Errorf("default storage driver %q is not configured", cfg.Storage.Driver)
	}
	return backends, nil
}
