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
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/fawa-io/receptacle/pkg/config"
	"github.com/fawa-io/receptacle/pkg/fwlog"
	"github.com/fawa-io/receptacle/pkg/metrics"
)

// S3Storage stores objects in a single Amazon S3 bucket.
type S3Storage struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	expiry  time.Duration
}

var (
	_ Storage   = (*S3Storage)(nil)
	_ Presigner = (*S3Storage)(nil)
)

// NewS3Storage builds the S3 client from the IAM keys when present and from
// the default credential chain otherwise. A custom endpoint (LocalStack,
// MinIO) switches the client to path-style addressing.
func NewS3Storage(ctx context.Context, cfg config.AWSConfig) (*S3Storage, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3.Region),
	}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3.Endpoint)
			o.UsePathStyle = true
		}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})

	return &S3Storage{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.S3.BucketName,
		expiry:  cfg.S3.Expiry(),
	}, nil
}

// Save implements the Storage interface.
func (s *S3Storage) Save(ctx context.Context, file *File) bool {
	fwlog.Infof("Saving file %s to S3 bucket %s", file.Name, s.bucket)

	body, size, err := seekable(file)
	if err != nil {
		fwlog.Errorf("Unable to read %s for S3 bucket %s: %v", file.Name, s.bucket, err)
		metrics.ObserveOperation(DriverS3, "save", false)
		return false
	}

	input := &s3.PutObjectInput{
		Bucket:             aws.String(s.bucket),
		Key:                aws.String(file.Name),
		Body:               body,
		ContentLength:      aws.Int64(size),
		ContentDisposition: aws.String(file.Name),
	}
	if file.ContentType != "" {
		input.ContentType = aws.String(file.ContentType)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		fwlog.Errorf("Unable to store %s in S3 bucket %s: %v", file.Name, s.bucket, err)
		metrics.ObserveOperation(DriverS3, "save", false)
		return false
	}

	fwlog.Infof("File %s stored successfully in S3 bucket %s", file.Name, s.bucket)
	metrics.ObserveOperation(DriverS3, "save", true)
	return true
}

// Retrieve implements the Storage interface.
func (s *S3Storage) Retrieve(ctx context.Context, key string) (*Object, bool) {
	fwlog.Infof("Retrieving object %s from S3 bucket %s", key, s.bucket)

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		fwlog.Errorf("Unable to retrieve object %s from S3 bucket %s: %v", key, s.bucket, err)
		metrics.ObserveOperation(DriverS3, "retrieve", false)
		return nil, false
	}
	defer func() {
		if closeErr := out.Body.Close(); closeErr != nil {
			fwlog.Warnf("Failed to close S3 object body for %s: %v", key, closeErr)
		}
	}()

	content, err := io.ReadAll(out.Body)
	if err != nil {
		fwlog.Errorf("Unable to read object %s from S3 bucket %s: %v", key, s.bucket, err)
		metrics.ObserveOperation(DriverS3, "retrieve", false)
		return nil, false
	}

	fwlog.Infof("Object %s retrieved successfully from S3 bucket %s", key, s.bucket)
	metrics.ObserveOperation(DriverS3, "retrieve", true)
	return &Object{
		Key:                key,
		ContentType:        aws.ToString(out.ContentType),
		ContentDisposition: aws.ToString(out.ContentDisposition),
		Content:            content,
	}, true
}

// Delete implements the Storage interface. S3 deletes are idempotent, so a
// HEAD request tells an absent key apart from a real deletion.
func (s *S3Storage) Delete(ctx context.Context, key string) bool {
	fwlog.Infof("Deleting object %s from S3 bucket %s", key, s.bucket)

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
			fwlog.Warnf("Object %s not found in S3 bucket %s. No deletion performed.", key, s.bucket)
			metrics.ObserveOperation(DriverS3, "delete", true)
			return false
		}
		fwlog.Errorf("Unable to delete object %s from S3 bucket %s: %v", key, s.bucket, err)
		metrics.ObserveOperation(DriverS3, "delete", false)
		return false
	}

	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		fwlog.Errorf("Unable to delete object %s from S3 bucket %s: %v", key, s.bucket, err)
		metrics.ObserveOperation(DriverS3, "delete", false)
		return false
	}

	fwlog.Infof("Object %s deleted successfully from S3 bucket %s", key, s.bucket)
	metrics.ObserveOperation(DriverS3, "delete", true)
	return true
}

// PresignURL implements the Presigner interface. The URL expires after the
// configured presignedUrl.expirationTime.
func (s *S3Storage) PresignURL(ctx context.Context, key, method string) (string, error) {
	m, err := normalizeMethod(method)
	if err != nil {
		return "", err
	}
	fwlog.Infof("Generating presigned URL to %s object '%s'", m, key)

	expires := func(o *s3.PresignOptions) { o.Expires = s.expiry }

	var req *v4.PresignedHTTPRequest
	switch m {
	case http.MethodGet:
		req, err = s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		}, expires)
	case http.MethodPut:
		req, err = s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		}, expires)
	}
	if err != nil {
		metrics.ObserveOperation(DriverS3, "presign", false)
		return "", fmt.Errorf("presigning %s %s: %w", m, key, err)
	}

	fwlog.Infof("Successfully generated %s presigned URL for object '%s'", m, key)
	metrics.ObserveOperation(DriverS3, "presign", true)
	return req.URL, nil
}
