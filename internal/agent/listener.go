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

// Package agent implements the UDP ingestion listeners, one per Thrift
// protocol variant. Receive, decode, and emit are fused into a single
// sequential loop per listener: UDP gives no delivery guarantee, so a
// queue between receive and emit would add nothing but complexity.
package agent

import (
	"context"
	"errors"
	"net"

	"go.uber.org/zap"

	"github.com/srenatus/jaegercat/internal/config"
	"github.com/srenatus/jaegercat/internal/emit"
	"github.com/srenatus/jaegercat/internal/thriftdecode"
)

// Listener owns one bound UDP socket and a fixed-size receive buffer.
type Listener struct {
	conn    *net.UDPConn
	cfg     config.ListenerConfig
	decoder *thriftdecode.Decoder
	emitter *emit.Emitter
	logger  *zap.Logger
}

// Bind opens the listener's UDP socket on 0.0.0.0:<port>. A bind failure
// is a startup error; the caller must not continue with partial startup.
func Bind(cfg config.ListenerConfig, emitter *emit.Emitter, logger *zap.Logger) (*Listener, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: cfg.Port})
	if err != nil {
		return nil, err
	}
	l := &Listener{
		conn:    conn,
		cfg:     cfg,
		decoder: thriftdecode.NewDecoder(cfg.Protocol),
		emitter: emitter,
		logger: logger.With(
			zap.Int("port", cfg.Port),
			zap.Stringer("thrift_protocol", cfg.Protocol),
		),
	}
	l.logger.Info("UDP server started")
	return l, nil
}

// Addr returns the bound address of the listener socket.
func (l *Listener) Addr() net.Addr {
	return l.conn.LocalAddr()
}

// Run receives datagrams until the socket fails or is closed. Datagrams
// larger than the configured buffer size are truncated by the kernel to
// that size before decoding; that is accepted lossy behavior, and the
// decoder will normally reject the truncated payload like any other
// malformed one. A malformed datagram is logged and skipped, never
// escalated: one bad payload must not stop ingestion of the next.
//
// Run returns nil after Close, and an error for any receive or emit
// failure. Such failures mean the listener can no longer deliver decoded
// data and are treated as fatal by the supervisor.
func (l *Listener) Run() error {
	ctx := context.Background()
	buf := make([]byte, l.cfg.BufferSize)
	for {
		n, peer, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		l.logger.Debug("received datagram", zap.Int("bytes", n), zap.Stringer("peer", peer))

		payload := buf[:n]
		batch, err := l.decoder.Decode(ctx, payload)
		if err != nil {
			l.logger.Error("received malformed or unknown message", zap.Error(err))
			l.logger.Debug("message payload", zap.Binary("bytes", payload))
			continue
		}
		if err := l.emitter.Emit(payload, batch); err != nil {
			return err
		}
	}
}

// Close unblocks a pending receive and makes Run return nil.
func (l *Listener) Close() error {
	return l.conn.Close()
}
