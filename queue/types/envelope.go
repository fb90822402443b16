// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LockToken identifies a single in-flight delivery of an envelope.
// Tokens are minted by the queue on receive and are unique per queue instance.
type LockToken uint64

// Envelope wraps a payload with identity and tracing metadata.
//
// The lock reference is set by the queue while the envelope is in flight
// and cleared once the delivery is completed, abandoned or dead-lettered.
// It is never serialized.
type Envelope struct {
	ID            string    `json:"message_id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Type          string    `json:"message_type"`
	SentTime      time.Time `json:"sent_time"`
	Payload       []byte    `json:"message,omitempty"`

	lockRef *LockToken
}

// NewEnvelope creates an envelope with a freshly generated ID.
func NewEnvelope(correlationID, messageType string, payload []byte) *Envelope {
	return &Envelope{
		ID:            uuid.New().String(),
		CorrelationID: correlationID,
		Type:          messageType,
		Payload:       payload,
	}
}

// NewEnvelopeFromString creates an envelope carrying a UTF-8 string payload.
func NewEnvelopeFromString(correlationID, messageType, payload string) *Envelope {
	return NewEnvelope(correlationID, messageType, []byte(payload))
}

// NewEnvelopeFromJSON creates an envelope carrying the JSON encoding of v.
func NewEnvelopeFromJSON(correlationID, messageType string, v any) (*Envelope, error) {
	env := NewEnvelope(correlationID, messageType, nil)
	if err := env.SetPayloadAsJSON(v); err != nil {
		return nil, err
	}
	return env, nil
}

// PayloadAsString returns the payload interpreted as a UTF-8 string.
func (e *Envelope) PayloadAsString() string {
	return string(e.Payload)
}

// SetPayloadAsString replaces the payload with the bytes of s.
func (e *Envelope) SetPayloadAsString(s string) {
	e.Payload = []byte(s)
}

// PayloadAsJSON decodes the payload into v.
func (e *Envelope) PayloadAsJSON(v any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}
	return nil
}

// SetPayloadAsJSON replaces the payload with the JSON encoding of v.
func (e *Envelope) SetPayloadAsJSON(v any) error {
	if v == nil {
		e.Payload = nil
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	e.Payload = data
	return nil
}

// LockReference returns the lock token of an in-flight envelope.
// The second result is false when the envelope is not in flight.
func (e *Envelope) LockReference() (LockToken, bool) {
	if e.lockRef == nil {
		return 0, false
	}
	return *e.lockRef, true
}

// SetLockReference marks the envelope as in flight under token.
func (e *Envelope) SetLockReference(token LockToken) {
	e.lockRef = &token
}

// ClearLockReference drops the lock reference.
func (e *Envelope) ClearLockReference() {
	e.lockRef = nil
}

// maxLoggedPayload is the number of payload runes String keeps.
const maxLoggedPayload = 50

// String renders the envelope for log lines.
func (e *Envelope) String() string {
	payload := e.PayloadAsString()
	if r := []rune(payload); len(r) > maxLoggedPayload {
		payload = string(r[:maxLoggedPayload]) + "..."
	}
	return fmt.Sprintf("[%s,%s,%s]", e.CorrelationID, e.Type, payload)
}
