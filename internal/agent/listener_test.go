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

package agent

import (
	"bytes"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/srenatus/jaegercat/internal/config"
	"github.com/srenatus/jaegercat/internal/emit"
	"github.com/srenatus/jaegercat/internal/testutil"
)

const waitFor = 5 * time.Second

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func startListener(t *testing.T, protocol config.Protocol, bufferSize int, format config.Format, out *syncBuffer) *Listener {
	t.Helper()
	cfg := config.ListenerConfig{Port: 0, Protocol: protocol, BufferSize: bufferSize}
	l, err := Bind(cfg, emit.NewEmitter(format, out), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	go l.Run()
	return l
}

func send(t *testing.T, l *Listener, payload []byte) {
	t.Helper()
	port := l.Addr().(*net.UDPAddr).Port
	conn, err := net.Dial("udp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	defer conn.Close()
	n, err := conn.Write(payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
}

func lineCount(out *syncBuffer) int {
	return strings.Count(out.String(), "\n")
}

func TestListenerMalformedDatagramsAreIsolated(t *testing.T) {
	var out syncBuffer
	l := startListener(t, config.ProtocolCompact, config.DefaultUDPBufferSize, config.FormatJSON, &out)

	good := testutil.EncodeEmitBatch(t, config.ProtocolCompact, testutil.SpanBatch("checkout"))

	send(t, l, good)
	send(t, l, []byte{0xde, 0xad, 0xbe, 0xef})
	send(t, l, good)

	assert.Eventually(t, func() bool { return lineCount(&out) == 2 }, waitFor, 10*time.Millisecond)

	// Exactly one line per well-formed datagram, none for the malformed one.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 2, lineCount(&out))
	for _, line := range strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n") {
		assert.Contains(t, line, `"checkout"`)
	}
}

func TestListenerRawOutputIsByteIdentical(t *testing.T) {
	var out syncBuffer
	l := startListener(t, config.ProtocolCompact, config.DefaultUDPBufferSize, config.FormatRaw, &out)

	payload := testutil.EncodeEmitBatch(t, config.ProtocolCompact, testutil.SpanBatch("checkout"))
	send(t, l, payload)

	assert.Eventually(t, func() bool { return out.String() == string(payload) }, waitFor, 10*time.Millisecond)
}

func TestListenerTruncatesOversizedDatagrams(t *testing.T) {
	const bufferSize = 512
	var out syncBuffer
	l := startListener(t, config.ProtocolCompact, bufferSize, config.FormatJSON, &out)

	// Larger than the receive buffer: the kernel truncates it to
	// bufferSize bytes and decoding the prefix fails, with no output.
	big := testutil.SpanBatch("checkout")
	big.Spans[0].OperationName = strings.Repeat("x", 4*bufferSize)
	send(t, l, testutil.EncodeEmitBatch(t, config.ProtocolCompact, big))

	// Ingestion continues afterwards.
	send(t, l, testutil.EncodeEmitBatch(t, config.ProtocolCompact, testutil.SpanBatch("checkout")))

	assert.Eventually(t, func() bool { return lineCount(&out) == 1 }, waitFor, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, lineCount(&out))
}

func TestListenersDecodeWithTheirOwnProtocol(t *testing.T) {
	var out syncBuffer
	compact := startListener(t, config.ProtocolCompact, config.DefaultUDPBufferSize, config.FormatJSON, &out)
	binary := startListener(t, config.ProtocolBinary, config.DefaultUDPBufferSize, config.FormatJSON, &out)

	compactPayload := testutil.EncodeEmitBatch(t, config.ProtocolCompact, testutil.SpanBatch("compact-svc"))
	binaryPayload := testutil.EncodeEmitBatch(t, config.ProtocolBinary, testutil.SpanBatch("binary-svc"))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			send(t, compact, compactPayload)
		}()
		go func() {
			defer wg.Done()
			send(t, binary, binaryPayload)
		}()
	}
	wg.Wait()

	assert.Eventually(t, func() bool { return lineCount(&out) == 10 }, waitFor, 10*time.Millisecond)
	assert.Equal(t, 5, strings.Count(out.String(), `"compact-svc"`))
	assert.Equal(t, 5, strings.Count(out.String(), `"binary-svc"`))
}

func TestListenerCloseStopsRun(t *testing.T) {
	var out syncBuffer
	cfg := config.ListenerConfig{Port: 0, Protocol: config.ProtocolCompact, BufferSize: config.DefaultUDPBufferSize}
	l, err := Bind(cfg, emit.NewEmitter(config.FormatJSON, &out), zap.NewNop())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- l.Run() }()

	require.NoError(t, l.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("Run did not return after Close")
	}
}

func TestListenerBindPortInUse(t *testing.T) {
	var out syncBuffer
	l := startListener(t, config.ProtocolCompact, config.DefaultUDPBufferSize, config.FormatJSON, &out)

	cfg := config.ListenerConfig{
		Port:       l.Addr().(*net.UDPAddr).Port,
		Protocol:   config.ProtocolBinary,
		BufferSize: config.DefaultUDPBufferSize,
	}
	_, err := Bind(cfg, emit.NewEmitter(config.FormatJSON, &out), zap.NewNop())
	assert.Error(t, err)
}
