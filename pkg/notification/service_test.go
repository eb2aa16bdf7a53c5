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

package notification

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type senderFunc func(ctx context.Context, req EmailDispatchRequest) error

func (f senderFunc) SendEmail(ctx context.Context, req EmailDispatchRequest) error {
	return f(ctx, req)
}

func TestServiceSendEmail(t *testing.T) {
	unreachable := &APIUnreachableError{Cause: errors.New("dial tcp: i/o timeout")}

	testCases := []struct {
		name    string
		req     EmailDispatchRequest
		sendErr error
		want    bool
		wantErr error
	}{
		{name: "delivered", req: welcome, want: true},
		{name: "gateway rejects", req: welcome, sendErr: &APIFailureError{StatusCode: 500}, want: false},
		{name: "gateway unreachable", req: welcome, sendErr: unreachable, want: false, wantErr: unreachable},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			svc := NewService(senderFunc(func(context.Context, EmailDispatchRequest) error { return tc.sendErr }))

			got, err := svc.SendEmail(context.Background(), tc.req)
			assert.Equal(t, tc.want, got)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestServiceRejectsInvalidRequest(t *testing.T) {
	called := false
	svc := NewService(senderFunc(func(context.Context, EmailDispatchRequest) error {
		called = true
		return nil
	}))

	ok, err := svc.SendEmail(context.Background(), EmailDispatchRequest{Recipient: "not-an-address", Subject: "s", Body: "b"})
	assert.False(t, ok)
	assert.Error(t, err)
	assert.False(t, called)
}
