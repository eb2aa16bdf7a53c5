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
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fawa-io/receptacle/pkg/config"
)

var topics = config.KafkaTopicName{
	CustomerRegisteredEvent:       "customer-registered",
	CustomerAccountRiskAssessment: "risk-assessment-initiation",
}

type fakeWriter struct {
	mu    sync.Mutex
	msgs  []kafka.Message
	err   error
	fails int
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	if w.fails > 0 {
		w.fails--
		return errors.New("leader not available")
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func (w *fakeWriter) written() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.msgs...)
}

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []kafka.Message
	fetchErr  error
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if r.fetchErr != nil {
		err := r.fetchErr
		r.mu.Unlock()
		return kafka.Message{}, err
	}
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) commits() []kafka.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]kafka.Message(nil), r.committed...)
}

func TestProducerPublish(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, topics)
	ev := CustomerRegistered{ID: "c-1", FirstName: "Ada", LastName: "Lovelace", EmailID: "ada@example.com"}

	require.NoError(t, p.PublishCustomerRegistered(context.Background(), ev))
	require.NoError(t, p.InitiateRiskAssessment(context.Background(), ev))

	msgs := w.written()
	require.Len(t, msgs, 2)
	assert.Equal(t, "customer-registered", msgs[0].Topic)
	assert.Equal(t, "risk-assessment-initiation", msgs[1].Topic)
	assert.Equal(t, []byte("c-1"), msgs[1].Key)
	assert.JSONEq(t, `{"id":"c-1","firstName":"Ada","lastName":"Lovelace","emailId":"ada@example.com"}`, string(msgs[1].Value))

	w.err = errors.New("broker down")
	assert.Error(t, p.InitiateRiskAssessment(context.Background(), ev))
}

func TestListenerHandle(t *testing.T) {
	testCases := []struct {
		name       string
		value      string
		writeErr   error
		wantErr    bool
		wantOut    int
		wantCommit int
	}{
		{
			name:       "forwards registration",
			value:      `{"id":"c-2","firstName":"Alan","lastName":"Turing","emailId":"alan@example.com"}`,
			wantOut:    1,
			wantCommit: 1,
		},
		{
			name:       "skips malformed payload",
			value:      `{not json`,
			wantOut:    0,
			wantCommit: 1,
		},
		{
			name:       "publish failure is not committed",
			value:      `{"id":"c-3"}`,
			writeErr:   errors.New("broker down"),
			wantErr:    true,
			wantOut:    0,
			wantCommit: 0,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := &fakeWriter{err: tc.writeErr}
			r := &fakeReader{}
			l := newListener(r, newProducer(w, topics))

			err := l.Handle(context.Background(), kafka.Message{Topic: topics.CustomerRegisteredEvent, Value: []byte(tc.value)})
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Len(t, w.written(), tc.wantOut)
			assert.Len(t, r.commits(), tc.wantCommit)
		})
	}
}

func TestListenerRun(t *testing.T) {
	testCases := []struct {
		name        string
		failWrites  int
		wantErr     bool
		wantKeys    []string
		wantCommits []int64
	}{
		{
			name:        "forwards and commits every message",
			wantKeys:    []string{"a", "b"},
			wantCommits: []int64{1, 2},
		},
		{
			name:       "stops on the first failed forward",
			failWrites: 1,
			wantErr:    true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := &fakeWriter{fails: tc.failWrites}
			r := &fakeReader{queue: []kafka.Message{
				{Partition: 0, Offset: 1, Value: []byte(`{"id":"a"}`)},
				{Partition: 0, Offset: 2, Value: []byte(`{"id":"b"}`)},
			}}
			l := newListener(r, newProducer(w, topics))

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			done := make(chan error, 1)
			go func() { done <- l.Run(ctx) }()

			if !tc.wantErr {
				require.Eventually(t, func() bool { return len(r.commits()) == len(tc.wantCommits) }, time.Second, 5*time.Millisecond)
				cancel()
			}

			select {
			case err := <-done:
				if tc.wantErr {
					assert.Error(t, err)
				} else {
					assert.NoError(t, err)
				}
			case <-time.After(time.Second):
				t.Fatal("listener did not stop")
			}

			var keys []string
			for _, m := range w.written() {
				keys = append(keys, string(m.Key))
			}
			assert.Equal(t, tc.wantKeys, keys)

			var offsets []int64
			for _, m := range r.commits() {
				offsets = append(offsets, m.Offset)
			}
			assert.Equal(t, tc.wantCommits, offsets, "nothing past a failed message is committed")
		})
	}
}

func TestListenerRunFetchError(t *testing.T) {
	r := &fakeReader{fetchErr: errors.New("group coordinator unavailable")}
	l := newListener(r, newProducer(&fakeWriter{}, topics))

	assert.Error(t, l.Run(context.Background()))
}
