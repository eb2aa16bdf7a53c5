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

package persistence

import (
	"github.com/google/uuid"
)

// Country is a row of the read-only countries lookup table.
type Country struct {
	ID   int64  `json:"id" validate:"required"`
	Name string `json:"name,omitempty"`
	Code string `json:"code,omitempty"`
}

// User belongs to exactly one country.
type User struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"firstName" validate:"required"`
	LastName  string    `json:"lastName" validate:"required"`
	Country   Country   `json:"country"`
}
