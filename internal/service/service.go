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

// Package service assembles and supervises the concurrent units of the
// process: one UDP listener per Thrift protocol plus the sampling server.
package service

import (
	"context"
	"io"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/srenatus/jaegercat/internal/agent"
	"github.com/srenatus/jaegercat/internal/config"
	"github.com/srenatus/jaegercat/internal/emit"
	"github.com/srenatus/jaegercat/internal/sampling"
)

// Service owns every network unit of the process. All sockets are bound
// during New; Run only starts the serving goroutines.
type Service struct {
	listeners []*agent.Listener
	sampling  *sampling.Server

	goroutines sync.WaitGroup
	errc       chan error
	closeOnce  sync.Once
}

// New binds every socket the process needs. The first bind failure
// aborts with that error after releasing anything already bound; there
// is no partial startup.
func New(cfg *config.Config, logger *zap.Logger, out io.Writer) (*Service, error) {
	s := &Service{
		sampling: sampling.NewServer(sampling.DefaultAddr, cfg.SampleServices, logger),
		errc:     make(chan error, 1),
	}

	emitter := emit.NewEmitter(cfg.Format, out)
	for _, lc := range cfg.Listeners() {
		l, err := agent.Bind(lc, emitter, logger)
		if err != nil {
			s.close()
			return nil, err
		}
		s.listeners = append(s.listeners, l)
	}

	if err := s.sampling.Start(); err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

// Run starts one goroutine per unit and blocks. Under normal operation
// no unit ever finishes, so Run never returns. It returns the first
// fatal unit error, or nil if the service was shut down deliberately.
// Units are never restarted; any unit exit is surfaced, not masked.
func (s *Service) Run() error {
	for _, l := range s.listeners {
		s.goroutines.Add(1)
		go func(l *agent.Listener) {
			defer s.goroutines.Done()
			s.report(l.Run())
		}(l)
	}

	s.goroutines.Add(1)
	go func() {
		defer s.goroutines.Done()
		s.report(s.sampling.Serve())
	}()

	done := make(chan struct{})
	go func() {
		s.goroutines.Wait()
		close(done)
	}()

	select {
	case err := <-s.errc:
		return err
	case <-done:
		select {
		case err := <-s.errc:
			return err
		default:
			return nil
		}
	}
}

// Shutdown closes every unit and waits for their goroutines to finish.
func (s *Service) Shutdown(ctx context.Context) error {
	err := multierr.Append(s.close(), s.sampling.Shutdown(ctx))
	s.goroutines.Wait()
	return err
}

func (s *Service) report(err error) {
	if err == nil {
		return
	}
	select {
	case s.errc <- err:
	default:
	}
}

func (s *Service) close() error {
	var err error
	s.closeOnce.Do(func() {
		for _, l := range s.listeners {
			err = multierr.Append(err, l.Close())
		}
	})
	return err
}
