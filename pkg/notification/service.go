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

	"github.com/fawa-io/receptacle/pkg/fwlog"
	"github.com/fawa-io/receptacle/pkg/metrics"
)

const adapterName = "email"

// Sender is implemented by Client.
type Sender interface {
	SendEmail(ctx context.Context, req EmailDispatchRequest) error
}

// Service reports gateway rejections as false. Unreachability and invalid
// requests are returned as errors.
type Service struct {
	sender Sender
}

func NewService(sender Sender) *Service {
	return &Service{sender: sender}
}

// SendEmail dispatches req and reports whether the gateway accepted it.
func (s *Service) SendEmail(ctx context.Context, req EmailDispatchRequest) (bool, error) {
	if err := req.Validate(); err != nil {
		return false, err
	}

	fwlog.Infof("Sending email to %s", req.Recipient)
	err := s.sender.SendEmail(ctx, req)
	if err == nil {
		fwlog.Infof("Email sent successfully to %s", req.Recipient)
		metrics.ObserveOperation(adapterName, "send", true)
		return true, nil
	}
	metrics.ObserveOperation(adapterName, "send", false)

	var failure *APIFailureError
	if errors.As(err, &failure) {
		fwlog.Errorf("Failed to send email to %s: %v", req.Recipient, failure)
		return false, nil
	}
	fwlog.Errorf("Email gateway could not be reached for %s: %v", req.Recipient, err)
	return false, err
}
