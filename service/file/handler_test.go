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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fawa-io/receptacle/pkg/storage"
)

type memStorage struct {
	mu      sync.Mutex
	objects map[string]*storage.Object
	failAll bool
}

func newMemStorage() *memStorage {
	return &memStorage{objects: make(map[string]*storage.Object)}
}

func (m *memStorage) Save(_ context.Context, f *storage.File) bool {
	if m.failAll {
		return false
	}
	data, err := io.ReadAll(f.Body)
	if err != nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[f.Name] = &storage.Object{Key: f.Name, ContentType: f.ContentType, ContentDisposition: f.Name, Content: data}
	return true
}

func (m *memStorage) Retrieve(_ context.Context, key string) (*storage.Object, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	return obj, ok
}

func (m *memStorage) Delete(_ context.Context, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return false
	}
	delete(m.objects, key)
	return true
}

type presigningStorage struct {
	*memStorage
}

func (p presigningStorage) PresignURL(_ context.Context, key, method string) (string, error) {
	m := strings.ToUpper(method)
	if m != http.MethodGet && m != http.MethodPut {
		return "", storage.ErrUnsupportedMethod
	}
	return fmt.Sprintf("https://bucket.example/%s?method=%s", key, m), nil
}

type memShares struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func (m *memShares) Set(_ context.Context, key string, value any, _ time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = data
	return nil
}

func (m *memShares) Fetch(_ context.Context, key string, dest any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.entries[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, dest)
}

func newTestServer(t *testing.T, backends map[string]storage.Storage, shares ShareCache) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	NewHandler(backends, shares).Register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func multipartBody(t *testing.T, field, filename, contentType, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func upload(t *testing.T, srv *httptest.Server, backend, filename, content string) *http.Response {
	t.Helper()
	body, ct := multipartBody(t, "file", filename, "text/plain", content)
	resp, err := http.Post(srv.URL+"/files/"+backend, ct, body)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestUploadDownloadDelete(t *testing.T) {
	store := newMemStorage()
	srv := newTestServer(t, map[string]storage.Storage{"s3": store}, nil)

	resp := upload(t, srv, "s3", "notes.txt", "hello receptacle")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var up UploadResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&up))
	assert.Equal(t, UploadResponse{Key: "notes.txt", Backend: "s3"}, up)

	get, err := http.Get(srv.URL + "/files/s3/notes.txt")
	require.NoError(t, err)
	defer get.Body.Close()
	body, err := io.ReadAll(get.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, get.StatusCode)
	assert.Equal(t, "hello receptacle", string(body))
	assert.Equal(t, "text/plain", get.Header.Get("Content-Type"))
	assert.Equal(t, `attachment; filename=notes.txt`, get.Header.Get("Content-Disposition"))

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/files/s3/notes.txt", nil)
	require.NoError(t, err)
	del, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	del.Body.Close()
	assert.Equal(t, http.StatusNoContent, del.StatusCode)

	del, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	del.Body.Close()
	assert.Equal(t, http.StatusNotFound, del.StatusCode)

	missing, err := http.Get(srv.URL + "/files/s3/notes.txt")
	require.NoError(t, err)
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestDownloadDisposition(t *testing.T) {
	testCases := []struct {
		name     string
		key      string
		filename string
	}{
		{name: "plain token", key: "report.pdf", filename: "report.pdf"},
		{name: "space", key: "q3 report.pdf", filename: "q3 report.pdf"},
		{name: "quote", key: `a"b.txt`, filename: `a"b.txt`},
		{name: "non ascii", key: "résumé.pdf", filename: "résumé.pdf"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store := newMemStorage()
			store.objects[tc.key] = &storage.Object{Key: tc.key, ContentDisposition: tc.filename, Content: []byte("x")}
			srv := newTestServer(t, map[string]storage.Storage{"s3": store}, nil)

			resp, err := http.Get(srv.URL + "/files/s3/" + url.PathEscape(tc.key))
			require.NoError(t, err)
			resp.Body.Close()
			require.Equal(t, http.StatusOK, resp.StatusCode)

			kind, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition"))
			require.NoError(t, err)
			assert.Equal(t, "attachment", kind)
			assert.Equal(t, tc.filename, params["filename"])
		})
	}
}

func TestUploadRejected(t *testing.T) {
	failing := newMemStorage()
	failing.failAll = true
	srv := newTestServer(t, map[string]storage.Storage{"s3": newMemStorage(), "azure": failing}, nil)

	testCases := []struct {
		name     string
		backend  string
		filename string
		want     int
	}{
		{name: "unknown backend", backend: "ftp", filename: "a.txt", want: http.StatusBadRequest},
		{name: "parent directory name", backend: "s3", filename: "..", want: http.StatusBadRequest},
		{name: "backend failure", backend: "azure", filename: "a.txt", want: http.StatusBadGateway},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp := upload(t, srv, tc.backend, tc.filename, "data")
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}
}

func TestUploadMissingField(t *testing.T) {
	srv := newTestServer(t, map[string]storage.Storage{"s3": newMemStorage()}, nil)

	body, ct := multipartBody(t, "attachment", "a.txt", "text/plain", "data")
	resp, err := http.Post(srv.URL+"/files/s3", ct, body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPresign(t *testing.T) {
	srv := newTestServer(t, map[string]storage.Storage{
		"s3":    presigningStorage{newMemStorage()},
		"azure": newMemStorage(),
	}, nil)

	testCases := []struct {
		name    string
		path    string
		want    int
		wantURL string
	}{
		{name: "default get", path: "/files/s3/a.txt/presigned-url", want: http.StatusOK, wantURL: "https://bucket.example/a.txt?method=GET"},
		{name: "put", path: "/files/s3/a.txt/presigned-url?method=put", want: http.StatusOK, wantURL: "https://bucket.example/a.txt?method=PUT"},
		{name: "unsupported method", path: "/files/s3/a.txt/presigned-url?method=POST", want: http.StatusBadRequest},
		{name: "backend without presign", path: "/files/azure/a.txt/presigned-url", want: http.StatusBadRequest},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tc.path)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tc.want, resp.StatusCode)
			if tc.wantURL == "" {
				return
			}
			var got map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
			assert.Equal(t, tc.wantURL, got["url"])
		})
	}
}

func TestShareCode(t *testing.T) {
	shares := &memShares{entries: make(map[string][]byte)}
	srv := newTestServer(t, map[string]storage.Storage{"minio": newMemStorage()}, shares)

	resp := upload(t, srv, "minio", "shared.txt", "for a friend")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var up UploadResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&up))
	require.Len(t, up.ShareCode, shareCodeLength)

	get, err := http.Get(srv.URL + "/shares/" + up.ShareCode)
	require.NoError(t, err)
	defer get.Body.Close()
	body, err := io.ReadAll(get.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, get.StatusCode)
	assert.Equal(t, "for a friend", string(body))

	unknown, err := http.Get(srv.URL + "/shares/zzzzzz")
	require.NoError(t, err)
	unknown.Body.Close()
	assert.Equal(t, http.StatusNotFound, unknown.StatusCode)
}
