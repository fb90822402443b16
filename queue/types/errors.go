// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package types

import "errors"

var (
	ErrInvalidConfig      = errors.New("invalid queue configuration")
	ErrQueueNotFound      = errors.New("queue not found")
	ErrQueueAlreadyExists = errors.New("queue already exists")
	ErrUnknownKind        = errors.New("unknown queue kind")
	ErrAlreadyListening   = errors.New("queue is already listening")
	ErrInvalidBatchSize   = errors.New("batch size cannot be negative")
)
