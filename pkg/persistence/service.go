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
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/fawa-io/receptacle/pkg/fwlog"
	"github.com/fawa-io/receptacle/pkg/metrics"
)

const adapterName = "postgres"

// ErrUserNotFound is returned by GetUserByID for an unknown id.
var ErrUserNotFound = errors.New("user not found")

var validate = validator.New()

const (
	selectCountries = `SELECT id, name, code FROM countries ORDER BY name`

	insertUser = `INSERT INTO users (id, first_name, last_name, country_id) VALUES ($1, $2, $3, $4)`

	selectUserWithCountry = `SELECT u.id, u.first_name, u.last_name, c.id, c.name, c.code
FROM users u
JOIN countries c ON c.id = u.country_id
WHERE u.id = $1`

	deleteUser = `DELETE FROM users WHERE id = $1`
)

type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// Ping checks the database connection.
func (s *Service) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Service) GetAllCountries(ctx context.Context) ([]Country, error) {
	fwlog.Infof("Fetching list of all countries")

	rows, err := s.db.QueryContext(ctx, selectCountries)
	if err != nil {
		metrics.ObserveOperation(adapterName, "countries", false)
		return nil, fmt.Errorf("select countries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	countries := make([]Country, 0)
	for rows.Next() {
		var c Country
		if err := rows.Scan(&c.ID, &c.Name, &c.Code); err != nil {
			return nil, fmt.Errorf("scan country: %w", err)
		}
		countries = append(countries, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate countries: %w", err)
	}

	metrics.ObserveOperation(adapterName, "countries", true)
	fwlog.Infof("Successfully fetched %d country records from the datasource", len(countries))
	return countries, nil
}

// SaveUser assigns a new id to user, inserts it and returns the id. The
// country must already exist; the foreign key rejects unknown ones.
func (s *Service) SaveUser(ctx context.Context, user *User) (uuid.UUID, error) {
	if user == nil {
		return uuid.Nil, errors.New("user cannot be nil")
	}
	if err := validate.Struct(user); err != nil {
		return uuid.Nil, fmt.Errorf("invalid user: %w", err)
	}

	user.ID = uuid.New()
	_, err := s.db.ExecContext(ctx, insertUser, user.ID, user.FirstName, user.LastName, user.Country.ID)
	metrics.ObserveOperation(adapterName, "save_user", err == nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert user: %w", err)
	}

	fwlog.Infof("User record with ID '%s' saved successfully", user.ID)
	return user.ID, nil
}

// GetUserByID loads the user and its country in one read-only transaction.
func (s *Service) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	fwlog.Infof("Fetching user by ID '%s'", id)

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin read-only tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var u User
	err = tx.QueryRowContext(ctx, selectUserWithCountry, id).Scan(
		&u.ID, &u.FirstName, &u.LastName,
		&u.Country.ID, &u.Country.Name, &u.Country.Code,
	)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.ObserveOperation(adapterName, "get_user", true)
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, id)
	}
	if err != nil {
		metrics.ObserveOperation(adapterName, "get_user", false)
		return nil, fmt.Errorf("select user %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit read-only tx: %w", err)
	}

	metrics.ObserveOperation(adapterName, "get_user", true)
	fwlog.Infof("User record with ID '%s' fetched successfully", id)
	return &u, nil
}

// DeleteUser removes the user. Deleting an unknown id is not an error.
func (s *Service) DeleteUser(ctx context.Context, id uuid.UUID) error {
	fwlog.Infof("Deleting user by ID '%s'", id)

	_, err := s.db.ExecContext(ctx, deleteUser, id)
	metrics.ObserveOperation(adapterName, "delete_user", err == nil)
	if err != nil {
		return fmt.Errorf("delete user %s: %w", id, err)
	}

	fwlog.Infof("User record with ID '%s' deleted successfully", id)
	return nil
}
