// Copyright The Jaegercat Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//       http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package thriftdecode

import (
	"context"
	"testing"

	"github.com/jaegertracing/jaeger/thrift-gen/zipkincore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srenatus/jaegercat/internal/config"
	"github.com/srenatus/jaegercat/internal/testutil"
)

func TestDecodeCompact(t *testing.T) {
	batch := testutil.SpanBatch("checkout")
	payload := testutil.EncodeEmitBatch(t, config.ProtocolCompact, batch)

	got, err := NewDecoder(config.ProtocolCompact).Decode(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, batch, got)
}

func TestDecodeBinary(t *testing.T) {
	batch := testutil.SpanBatch("billing")
	payload := testutil.EncodeEmitBatch(t, config.ProtocolBinary, batch)

	got, err := NewDecoder(config.ProtocolBinary).Decode(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, batch, got)
}

func TestDecodeWrongProtocol(t *testing.T) {
	// A compact-encoded datagram handed to the binary decoder must fail,
	// never misdecode into a batch.
	payload := testutil.EncodeEmitBatch(t, config.ProtocolCompact, testutil.SpanBatch("checkout"))

	_, err := NewDecoder(config.ProtocolBinary).Decode(context.Background(), payload)
	assert.Error(t, err)
}

func TestDecodeGarbage(t *testing.T) {
	d := NewDecoder(config.ProtocolCompact)
	for _, payload := range [][]byte{
		nil,
		{0x00},
		{0xde, 0xad, 0xbe, 0xef},
	} {
		_, err := d.Decode(context.Background(), payload)
		assert.Error(t, err)
	}
}

func TestDecodeTruncated(t *testing.T) {
	payload := testutil.EncodeEmitBatch(t, config.ProtocolCompact, testutil.SpanBatch("checkout"))

	d := NewDecoder(config.ProtocolCompact)
	_, err := d.Decode(context.Background(), payload[:len(payload)/2])
	assert.Error(t, err)

	// The decoder keeps working after a failure.
	got, err := d.Decode(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, "checkout", got.Process.ServiceName)
}

func TestDecodeZipkinBatchRejected(t *testing.T) {
	spans := []*zipkincore.Span{{ID: 7, Name: "get"}}
	payload := testutil.EncodeEmitZipkinBatch(t, config.ProtocolCompact, spans)

	_, err := NewDecoder(config.ProtocolCompact).Decode(context.Background(), payload)
	assert.Error(t, err)
}
