// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package nats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewClientRequiresAddress(t *testing.T) {
	_, err := NewClient(NatsConfig{})
	assert.Error(t, err)
}

func TestNewClientFailsFastOnUnreachableServer(t *testing.T) {
	_, err := NewClient(NatsConfig{Address: "nats://127.0.0.1:1"})
	assert.Error(t, err)
}
