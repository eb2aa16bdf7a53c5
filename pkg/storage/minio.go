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
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/fawa-io/receptacle/pkg/config"
	"github.com/fawa-io/receptacle/pkg/fwlog"
	"github.com/fawa-io/receptacle/pkg/metrics"
)

// MinioStorage stores objects in a MinIO bucket.
type MinioStorage struct {
	client     *minio.Client
	bucketName string
	expiry     time.Duration
}

var (
	_ Storage   = (*MinioStorage)(nil)
	_ Presigner = (*MinioStorage)(nil)
)

// NewMinioStorage creates the client. Setting the region up front spares a
// bucket location lookup on every request, presigning included.
func NewMinioStorage(cfg config.MinioConfig, expiry time.Duration) (*MinioStorage, error) {
	fwlog.Infof("Initializing MinIO endpoint %s bucket %s (ssl=%v)", cfg.Endpoint, cfg.BucketName, cfg.UseSSL)

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}

	return &MinioStorage{
		client:     client,
		bucketName: cfg.BucketName,
		expiry:     expiry,
	}, nil
}

// EnsureBucket creates the bucket if it does not exist yet.
func (s *MinioStorage) EnsureBucket(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	exists, err := s.client.BucketExists(ctx, s.bucketName)
	if err != nil {
		return fmt.Errorf("failed to check if MinIO bucket '%s' exists: %w", s.bucketName, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucketName, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create MinIO bucket '%s': %w", s.bucketName, err)
	}
	fwlog.Infof("Successfully created MinIO bucket: %s", s.bucketName)
	return nil
}

// Save implements the Storage interface.
func (s *MinioStorage) Save(ctx context.Context, file *File) bool {
	fwlog.Infof("Saving file %s to MinIO bucket %s", file.Name, s.bucketName)

	body, size, err := seekable(file)
	if err != nil {
		fwlog.Errorf("Unable to read %s for MinIO bucket %s: %v", file.Name, s.bucketName, err)
		metrics.ObserveOperation(DriverMinio, "save", false)
		return false
	}

	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if _, err := s.client.PutObject(ctx, s.bucketName, file.Name, body, size, minio.PutObjectOptions{
		ContentType:        contentType,
		ContentDisposition: file.Name,
	}); err != nil {
		fwlog.Errorf("Unable to store %s in MinIO bucket %s: %v", file.Name, s.bucketName, err)
		metrics.ObserveOperation(DriverMinio, "save", false)
		return false
	}

	fwlog.Infof("File %s stored successfully in MinIO bucket %s", file.Name, s.bucketName)
	metrics.ObserveOperation(DriverMinio, "save", true)
	return true
}

// Retrieve implements the Storage interface.
func (s *MinioStorage) Retrieve(ctx context.Context, key string) (*Object, bool) {
	fwlog.Infof("Retrieving object %s from MinIO bucket %s", key, s.bucketName)

	obj, err := s.client.GetObject(ctx, s.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		fwlog.Errorf("Unable to retrieve object %s from MinIO bucket %s: %v", key, s.bucketName, err)
		metrics.ObserveOperation(DriverMinio, "retrieve", false)
		return nil, false
	}
	defer func() {
		if closeErr := obj.Close(); closeErr != nil {
			fwlog.Warnf("Failed to close MinIO object %s: %v", key, closeErr)
		}
	}()

	// GetObject is lazy; Stat surfaces a missing key.
	info, err := obj.Stat()
	if err != nil {
		fwlog.Errorf("Unable to retrieve object %s from MinIO bucket %s: %v", key, s.bucketName, err)
		metrics.ObserveOperation(DriverMinio, "retrieve", false)
		return nil, false
	}
	content, err := io.ReadAll(obj)
	if err != nil {
		fwlog.Errorf("Unable to read object %s from MinIO bucket %s: %v", key, s.bucketName, err)
		metrics.ObserveOperation(DriverMinio, "retrieve", false)
		return nil, false
	}

	metrics.ObserveOperation(DriverMinio, "retrieve", true)
	return &Object{
		Key:                key,
		ContentType:        info.ContentType,
		ContentDisposition: info.Metadata.Get("Content-Disposition"),
		Content:            content,
	}, true
}

// Delete implements the Storage interface.
func (s *MinioStorage) Delete(ctx context.Context, key string) bool {
	fwlog.Infof("Deleting object %s from MinIO bucket %s", key, s.bucketName)

	if _, err := s.client.StatObject(ctx, s.bucketName, key, minio.StatObjectOptions{}); err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
			fwlog.Warnf("Object %s not found in MinIO bucket %s. No deletion performed.", key, s.bucketName)
			metrics.ObserveOperation(DriverMinio, "delete", true)
			return false
		}
		fwlog.Errorf("Unable to delete object %s from MinIO bucket %s: %v", key, s.bucketName, err)
		metrics.ObserveOperation(DriverMinio, "delete", false)
		return false
	}

	if err := s.client.RemoveObject(ctx, s.bucketName, key, minio.RemoveObjectOptions{}); err != nil {
		fwlog.Errorf("Unable to delete object %s from MinIO bucket %s: %v", key, s.bucketName, err)
		metrics.ObserveOperation(DriverMinio, "delete", false)
		return false
	}

	metrics.ObserveOperation(DriverMinio, "delete", true)
	return true
}

// PresignURL implements the Presigner interface.
func (s *MinioStorage) PresignURL(ctx context.Context, key, method string) (string, error) {
	m, err := normalizeMethod(method)
	if err != nil {
		return "", err
	}

	var u *url.URL
	switch m {
	case http.MethodGet:
		u, err = s.client.PresignedGetObject(ctx, s.bucketName, key, s.expiry, nil)
	case http.MethodPut:
		u, err = s.client.PresignedPutObject(ctx, s.bucketName, key, s.expiry)
	}
	if err != nil {
		metrics.ObserveOperation(DriverMinio, "presign", false)
		return "", fmt.Errorf("presigning %s %s: %w", m, key, err)
	}

	metrics.ObserveOperation(DriverMinio, "presign", true)
	return u.String(), nil
}
