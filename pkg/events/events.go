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

// Package events relays customer registrations to the risk assessment topic.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/fawa-io/receptacle/pkg/config"
	"github.com/fawa-io/receptacle/pkg/fwlog"
	"github.com/fawa-io/receptacle/pkg/metrics"
)

const adapterName = "kafka"

// CustomerRegistered is published when a customer signs up.
type CustomerRegistered struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	EmailID   string `json:"emailId"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes events. Messages are keyed by customer id so events of
// one customer stay on one partition.
type Producer struct {
	writer messageWriter
	topics config.KafkaTopicName
}

// NewProducer creates a producer for every topic in cfg.
func NewProducer(cfg config.KafkaConfig) *Producer {
	return newProducer(&kafka.Writer{
		Addr:                   kafka.TCP(cfg.BootstrapServers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}, cfg.TopicName)
}

func newProducer(w messageWriter, topics config.KafkaTopicName) *Producer {
	return &Producer{writer: w, topics: topics}
}

// PublishCustomerRegistered announces a new customer.
func (p *Producer) PublishCustomerRegistered(ctx context.Context, ev CustomerRegistered) error {
	return p.publish(ctx, p.topics.CustomerRegisteredEvent, ev)
}

// InitiateRiskAssessment asks the risk service to assess the customer.
func (p *Producer) InitiateRiskAssessment(ctx context.Context, ev CustomerRegistered) error {
	return p.publish(ctx, p.topics.CustomerAccountRiskAssessment, ev)
}

func (p *Producer) publish(ctx context.Context, topic string, ev CustomerRegistered) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event for %s: %w", topic, err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(ev.ID),
		Value: value,
	})
	metrics.ObserveOperation(adapterName, "publish", err == nil)
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	fwlog.Infof("Published customer %s to topic %s", ev.ID, topic)
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
