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

// Package sampling answers Jaeger agent sampling strategy queries for an
// operator-controlled allow-list of service names. It is a minimal
// control-plane stub: allow-listed services get a fixed always-sample
// probabilistic strategy, everything else gets 404.
package sampling

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// DefaultAddr is the standard Jaeger agent sampling endpoint address.
const DefaultAddr = "127.0.0.1:5778"

// strategyAllResponse is the only strategy this server ever grants.
const strategyAllResponse = `{"strategyType": "PROBABILISTIC", "probabilisticSampling": {"samplingRate": 1}}`

// A request without a service parameter is looked up under this name. It
// never matches unless an operator explicitly allow-lists the literal.
const unknownService = "unknown"

// Server serves GET /sampling against an immutable allow-list.
type Server struct {
	addr    string
	enabled map[string]struct{}
	logger  *zap.Logger
	ln      net.Listener
	srv     *http.Server
}

// NewServer builds a Server for the given allow-list. Matching is exact
// and case-sensitive; no normalization is applied to configured names or
// queried names.
func NewServer(addr string, services []string, logger *zap.Logger) *Server {
	enabled := make(map[string]struct{}, len(services))
	for _, svc := range services {
		enabled[svc] = struct{}{}
	}
	s := &Server{
		addr:    addr,
		enabled: enabled,
		logger:  logger,
	}

	r := mux.NewRouter()
	r.HandleFunc("/sampling", s.handleSampling).Methods(http.MethodGet)
	// Everything else, including method mismatches, is an empty 404.
	r.NotFoundHandler = http.HandlerFunc(notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(notFound)
	s.srv = &http.Server{Handler: r}
	return s
}

// Start binds the HTTP listener. Bind failures are startup errors.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.logger.Info("sampling server started", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound listener address. Only valid after Start.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Serve blocks serving requests. It returns nil after Shutdown and an
// error for any other serve failure.
func (s *Server) Serve() error {
	if err := s.srv.Serve(s.ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server and unblocks Serve.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleSampling(w http.ResponseWriter, r *http.Request) {
	service := r.URL.Query().Get("service")
	if service == "" {
		service = unknownService
	}
	if _, ok := s.enabled[service]; !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	s.logger.Info("enabling sampling for service", zap.String("service", service))
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(strategyAllResponse))
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNotFound)
}
