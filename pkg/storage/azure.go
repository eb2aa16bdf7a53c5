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

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/fawa-io/receptacle/pkg/config"
	"github.com/fawa-io/receptacle/pkg/fwlog"
	"github.com/fawa-io/receptacle/pkg/metrics"
)

// blobAPI is the subset of *azblob.Client used by AzureStorage.
type blobAPI interface {
	UploadBuffer(ctx context.Context, containerName, blobName string, buffer []byte, o *azblob.UploadBufferOptions) (azblob.UploadBufferResponse, error)
	DownloadStream(ctx context.Context, containerName, blobName string, o *azblob.DownloadStreamOptions) (azblob.DownloadStreamResponse, error)
	DeleteBlob(ctx context.Context, containerName, blobName string, o *azblob.DeleteBlobOptions) (azblob.DeleteBlobResponse, error)
}

var _ blobAPI = (*azblob.Client)(nil)

// AzureStorage stores objects as block blobs in one container.
type AzureStorage struct {
	client    blobAPI
	container string
}

var _ Storage = (*AzureStorage)(nil)

// NewAzureStorage connects with the account connection string.
func NewAzureStorage(cfg config.AzureBlobStorageConfig) (*AzureStorage, error) {
	client, err := azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("creating blob client: %w", err)
	}
	return newAzureStorage(client, cfg.Container), nil
}

func newAzureStorage(client blobAPI, container string) *AzureStorage {
	return &AzureStorage{client: client, container: container}
}

// Save implements the Storage interface.
func (s *AzureStorage) Save(ctx context.Context, file *File) bool {
	fwlog.Infof("Saving file %s to Azure Blob container %s", file.Name, s.container)

	data, err := io.ReadAll(file.Body)
	if err != nil {
		fwlog.Errorf("Unable to read %s for Azure Blob container %s: %v", file.Name, s.container, err)
		metrics.ObserveOperation(DriverAzure, "save", false)
		return false
	}

	headers := &blob.HTTPHeaders{BlobContentDisposition: &file.Name}
	if file.ContentType != "" {
		headers.BlobContentType = &file.ContentType
	}
	if _, err := s.client.UploadBuffer(ctx, s.container, file.Name, data, &azblob.UploadBufferOptions{
		HTTPHeaders: headers,
	}); err != nil {
		fwlog.Errorf("Unable to store %s in Azure Blob container %s: %v", file.Name, s.container, err)
		metrics.ObserveOperation(DriverAzure, "save", false)
		return false
	}

	fwlog.Infof("File %s stored successfully in Azure Blob container %s", file.Name, s.container)
	metrics.ObserveOperation(DriverAzure, "save", true)
	return true
}

// Retrieve implements the Storage interface.
func (s *AzureStorage) Retrieve(ctx context.Context, key string) (*Object, bool) {
	fwlog.Infof("Retrieving blob %s from Azure Blob container %s", key, s.container)

	resp, err := s.client.DownloadStream(ctx, s.container, key, nil)
	if err != nil {
		fwlog.Errorf("Unable to retrieve blob %s from Azure Blob container %s: %v", key, s.container, err)
		metrics.ObserveOperation(DriverAzure, "retrieve", false)
		return nil, false
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			fwlog.Warnf("Failed to close blob body for %s: %v", key, closeErr)
		}
	}()

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		fwlog.Errorf("Unable to read blob %s from Azure Blob container %s: %v", key, s.container, err)
		metrics.ObserveOperation(DriverAzure, "retrieve", false)
		return nil, false
	}

	fwlog.Infof("Blob %s retrieved successfully from Azure Blob container %s", key, s.container)
	metrics.ObserveOperation(DriverAzure, "retrieve", true)
	obj := &Object{Key: key, Content: content}
	if resp.ContentType != nil {
		obj.ContentType = *resp.ContentType
	}
	if resp.ContentDisposition != nil {
		obj.ContentDisposition = *resp.ContentDisposition
	}
	return obj, true
}

// Delete implements the Storage interface.
func (s *AzureStorage) Delete(ctx context.Context, key string) bool {
	fwlog.Infof("Deleting blob %s from Azure Blob container %s", key, s.container)

	if _, err := s.client.DeleteBlob(ctx, s.container, key, nil); err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			fwlog.Warnf("Blob %s not found in Azure Blob container %s. No deletion performed.", key, s.container)
			metrics.ObserveOperation(DriverAzure, "delete", true)
			return false
		}
		fwlog.Errorf("Unable to delete blob %s from Azure Blob container %s: %v", key, s.container, err)
		metrics.ObserveOperation(DriverAzure, "delete", false)
		return false
	}

	fwlog.Infof("Blob %s deleted successfully from Azure Blob container %s", key, s.container)
	metrics.ObserveOperation(DriverAzure, "delete", true)
	return true
}
