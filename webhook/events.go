// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package webhook

import (
	"encoding/json"
	"time"

	"github.com/absmach/memq/queue/types"
	"github.com/google/uuid"
)

// TypeMessageDeadLettered is emitted when a message is moved to the dead-letter queue.
const TypeMessageDeadLettered = "message.dead_lettered"

// Event is the common interface for all webhook events.
type Event interface {
	// Type returns the event type identifier (e.g., "message.dead_lettered")
	Type() string

	// Queue returns the name of the queue the event originated from
	Queue() string

	// Wrap wraps the event in a common envelope with metadata
	Wrap(instanceID string) *Envelope
}

// Envelope is the common wrapper for all webhook events.
type Envelope struct {
	EventType  string `json:"event_type"`
	EventID    string `json:"event_id"`
	Timestamp  string `json:"timestamp"`
	InstanceID string `json:"instance_id"`
	Data       any    `json:"data"`
}

// MarshalJSON serializes the envelope to JSON.
func (e *Envelope) MarshalJSON() ([]byte, error) {
	type plain Envelope
	return json.Marshal((*plain)(e))
}

// MessageDeadLettered describes a message that was dead-lettered.
type MessageDeadLettered struct {
	QueueName     string    `json:"queue"`
	MessageID     string    `json:"message_id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	MessageType   string    `json:"message_type"`
	SentTime      time.Time `json:"sent_time"`
	Payload       string    `json:"payload,omitempty"`
}

// NewMessageDeadLettered builds an event from a dead-lettered envelope.
func NewMessageDeadLettered(queueName string, env *types.Envelope, includePayload bool) MessageDeadLettered {
	e := MessageDeadLettered{
		QueueName:     queueName,
		MessageID:     env.ID,
		CorrelationID: env.CorrelationID,
		MessageType:   env.Type,
		SentTime:      env.SentTime,
	}
	if includePayload {
		e.Payload = env.PayloadAsString()
	}
	return e
}

func (e MessageDeadLettered) Type() string  { return TypeMessageDeadLettered }
func (e MessageDeadLettered) Queue() string { return e.QueueName }
func (e MessageDeadLettered) Wrap(instanceID string) *Envelope {
	return &Envelope{
		EventType:  e.Type(),
		EventID:    uuid.New().String(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		InstanceID: instanceID,
		Data:       e,
	}
}
