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

package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/segmentio/kafka-go"

	"github.com/fawa-io/receptacle/pkg/config"
	"github.com/fawa-io/receptacle/pkg/fwlog"
)

// ConsumerGroup is the group id of the customer-registered consumer.
const ConsumerGroup = "customer-registered-event-consumer"

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type riskAssessor interface {
	InitiateRiskAssessment(ctx context.Context, ev CustomerRegistered) error
}

// Listener consumes customer-registered events and forwards each one to the
// risk assessment topic.
type Listener struct {
	reader   messageReader
	assessor riskAssessor
}

// NewListener joins the consumer group on the customer-registered topic.
func NewListener(cfg config.KafkaConfig, assessor *Producer) *Listener {
	return newListener(kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.BootstrapServers,
		GroupID:  ConsumerGroup,
		Topic:    cfg.TopicName.CustomerRegisteredEvent,
		MinBytes: 1,
		MaxBytes: 10e6,
	}), assessor)
}

func newListener(r messageReader, assessor riskAssessor) *Listener {
	return &Listener{reader: r, assessor: assessor}
}

// Run blocks until ctx is canceled. Group commits are per-partition offsets,
// so a message that fails to forward stops the listener rather than being
// committed past; the group resumes from the last committed offset.
func (l *Listener) Run(ctx context.Context) error {
	fwlog.Infof("Listening for customer registrations as group %s", ConsumerGroup)
	for {
		msg, err := l.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("fetching customer registration: %w", err)
		}

		if err := l.Handle(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fwlog.Errorf("Failed to handle message at %s/%d/%d: %v", msg.Topic, msg.Partition, msg.Offset, err)
			return fmt.Errorf("handling customer registration at offset %d: %w", msg.Offset, err)
		}
	}
}

// Handle forwards one message and commits it. Undecodable payloads are
// logged and committed so they do not block the partition.
func (l *Listener) Handle(ctx context.Context, msg kafka.Message) error {
	var ev CustomerRegistered
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		fwlog.Warnf("Skipping malformed customer registration at offset %d: %v", msg.Offset, err)
		return l.commit(ctx, msg)
	}

	fwlog.Infof("Customer %s registered, initiating risk assessment", ev.ID)
	if err := l.assessor.InitiateRiskAssessment(ctx, ev); err != nil {
		return err
	}
	return l.commit(ctx, msg)
}

func (l *Listener) commit(ctx context.Context, msg kafka.Message) error {
	if err := l.reader.CommitMessages(ctx, msg); err != nil {
		return fmt.Errorf("committing offset %d: %w", msg.Offset, err)
	}
	return nil
}

func (l *Listener) Close() error {
	return l.reader.Close()
}
