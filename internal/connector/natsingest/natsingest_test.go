// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package natsingest

import (
	"context"
	"testing"

	"github.com/plantdata/rtds/internal/connector"
	"github.com/plantdata/rtds/internal/tag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubscriber struct {
	handler func(subject string, data []byte)
}

func (f *fakeSubscriber) Subscribe(subject string, handler func(subject string, data []byte)) error {
	f.handler = handler
	return nil
}

func TestDecodesLineProtocolIntoOwnedTags(t *testing.T) {
	spec := connector.Spec{
		Name: "ingest0",
		Tags: []*tag.Tag{
			{Name: "temp", Type: tag.Float, Source: "field=temperature"},
		},
	}
	impl, err := build(spec, map[string]string{"subject": "telemetry.raw"}, nil)
	require.NoError(t, err)

	n := impl.(*NatsIngest)
	fake := &fakeSubscriber{}
	n.SetSubscriber(fake)
	require.NoError(t, n.Open(context.Background()))

	fake.handler("telemetry.raw", []byte("sensor temperature=21.5 1700000000000000000\n"))

	values, err := n.Read(context.Background())
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, "temp", values[0].Name)
	assert.InDelta(t, 21.5, values[0].Value.Float, 1e-9)
}

func TestMissingSubjectIsConstructionError(t *testing.T) {
	spec := connector.Spec{Name: "ingest0"}
	_, err := build(spec, map[string]string{}, nil)
	assert.Error(t, err)
}
