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

// Package testutil builds wire-accurate agent datagrams for tests, using
// the same thrift stack the decoder uses.
package testutil

import (
	"context"
	"testing"

	"github.com/apache/thrift/lib/go/thrift"
	"github.com/jaegertracing/jaeger/thrift-gen/agent"
	"github.com/jaegertracing/jaeger/thrift-gen/jaeger"
	"github.com/jaegertracing/jaeger/thrift-gen/zipkincore"
	"github.com/stretchr/testify/require"

	"github.com/srenatus/jaegercat/internal/config"
)

func protocolFactory(t *testing.T, p config.Protocol) thrift.TProtocolFactory {
	t.Helper()
	switch p {
	case config.ProtocolCompact:
		return thrift.NewTCompactProtocolFactoryConf(nil)
	case config.ProtocolBinary:
		return thrift.NewTBinaryProtocolFactoryConf(nil)
	default:
		t.Fatalf("unknown protocol %v", p)
		return nil
	}
}

// EncodeEmitBatch renders the one-way emitBatch call an instrumented
// application would send to the agent UDP port.
func EncodeEmitBatch(t *testing.T, p config.Protocol, batch *jaeger.Batch) []byte {
	t.Helper()
	ctx := context.Background()
	buf := thrift.NewTMemoryBufferLen(1024)
	proto := protocolFactory(t, p).GetProtocol(buf)
	require.NoError(t, proto.WriteMessageBegin(ctx, "emitBatch", thrift.ONEWAY, 1))
	args := agent.AgentEmitBatchArgs{Batch: batch}
	require.NoError(t, args.Write(ctx, proto))
	require.NoError(t, proto.WriteMessageEnd(ctx))
	require.NoError(t, proto.Flush(ctx))
	return append([]byte(nil), buf.Bytes()...)
}

// EncodeEmitZipkinBatch renders an emitZipkinBatch call, which the
// decoder must reject without crashing.
func EncodeEmitZipkinBatch(t *testing.T, p config.Protocol, spans []*zipkincore.Span) []byte {
	t.Helper()
	ctx := context.Background()
	buf := thrift.NewTMemoryBufferLen(1024)
	proto := protocolFactory(t, p).GetProtocol(buf)
	require.NoError(t, proto.WriteMessageBegin(ctx, "emitZipkinBatch", thrift.ONEWAY, 1))
	args := agent.AgentEmitZipkinBatchArgs{Spans: spans}
	require.NoError(t, args.Write(ctx, proto))
	require.NoError(t, proto.WriteMessageEnd(ctx))
	require.NoError(t, proto.Flush(ctx))
	return append([]byte(nil), buf.Bytes()...)
}

// SpanBatch is a minimal well-formed batch for the given service.
func SpanBatch(service string) *jaeger.Batch {
	return &jaeger.Batch{
		Process: &jaeger.Process{ServiceName: service},
		Spans: []*jaeger.Span{{
			TraceIdLow:    1042,
			SpanId:        2042,
			OperationName: "get-checkout",
			Flags:         1,
			StartTime:     1542158650536343,
			Duration:      2000,
		}},
	}
}
