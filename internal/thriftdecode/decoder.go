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

// Package thriftdecode turns raw agent datagrams into Jaeger span batches.
//
// Instrumented applications send span batches to the agent UDP ports as
// one-way Thrift RPC calls (`emitBatch`). Decoding therefore goes through
// the generated agent service processor rather than reading a bare Batch
// struct: the processor consumes the RPC envelope and hands the decoded
// batch to the registered handler.
package thriftdecode

import (
	"context"
	"errors"
	"fmt"

	"github.com/apache/thrift/lib/go/thrift"
	"github.com/jaegertracing/jaeger/thrift-gen/agent"
	"github.com/jaegertracing/jaeger/thrift-gen/jaeger"
	"github.com/jaegertracing/jaeger/thrift-gen/zipkincore"

	"github.com/srenatus/jaegercat/internal/config"
)

var (
	errNoBatch            = errors.New("datagram did not carry an emitBatch call")
	errZipkinNotSupported = errors.New("emitZipkinBatch messages are not supported")
)

// Decoder decodes emitBatch datagrams for one wire protocol. It is not
// safe for concurrent use; every listener owns exactly one Decoder and
// decodes sequentially.
type Decoder struct {
	factory   thrift.TProtocolFactory
	processor *agent.AgentProcessor
	capture   *batchCapture
}

// NewDecoder returns a Decoder for the given wire protocol variant.
func NewDecoder(p config.Protocol) *Decoder {
	var factory thrift.TProtocolFactory
	switch p {
	case config.ProtocolCompact:
		factory = thrift.NewTCompactProtocolFactoryConf(nil)
	case config.ProtocolBinary:
		factory = thrift.NewTBinaryProtocolFactoryConf(nil)
	default:
		panic(fmt.Sprintf("unknown protocol %v", p))
	}
	capture := &batchCapture{}
	return &Decoder{
		factory:   factory,
		processor: agent.NewAgentProcessor(capture),
		capture:   capture,
	}
}

// Decode parses one datagram payload. The returned batch aliases nothing
// in payload; the caller may reuse the payload buffer immediately.
func (d *Decoder) Decode(ctx context.Context, payload []byte) (*jaeger.Batch, error) {
	in := thrift.NewTMemoryBufferLen(len(payload))
	if _, err := in.Write(payload); err != nil {
		return nil, err
	}
	// The agent service is one-way; nothing meaningful is ever written to
	// the output protocol, but the processor requires one.
	out := thrift.NewTMemoryBufferLen(0)

	d.capture.batch = nil
	ok, err := d.processor.Process(ctx, d.factory.GetProtocol(in), d.factory.GetProtocol(out))
	if err != nil {
		return nil, err
	}
	if !ok || d.capture.batch == nil {
		return nil, errNoBatch
	}
	return d.capture.batch, nil
}

// batchCapture implements agent.Agent by remembering the batch of the
// last emitBatch call.
type batchCapture struct {
	batch *jaeger.Batch
}

func (c *batchCapture) EmitBatch(_ context.Context, batch *jaeger.Batch) error {
	c.batch = batch
	return nil
}

func (c *batchCapture) EmitZipkinBatch(context.Context, []*zipkincore.Span) error {
	return errZipkinNotSupported
}
