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

// Package emit renders decoded batches to the output sink.
package emit

import (
	"fmt"
	"io"

	"github.com/jaegertracing/jaeger/thrift-gen/jaeger"
	jsoniter "github.com/json-iterator/go"

	"github.com/srenatus/jaegercat/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Emitter writes one record per decoded datagram to a shared sink.
// Every record is a single Write call, so concurrent listeners sharing
// the sink rely only on the platform's per-write atomicity; no
// application-level locking is added.
type Emitter struct {
	format config.Format
	w      io.Writer
}

func NewEmitter(format config.Format, w io.Writer) *Emitter {
	return &Emitter{format: format, w: w}
}

// Emit writes the batch in the configured format. The raw format writes
// the original datagram bytes verbatim, not a re-encoding. Write errors
// are returned to the caller and are fatal: if the sink is gone the
// process can no longer honor its contract.
func (e *Emitter) Emit(raw []byte, batch *jaeger.Batch) error {
	switch e.format {
	case config.FormatRaw:
		_, err := e.w.Write(raw)
		return err
	case config.FormatJSON:
		buf, err := json.Marshal(batch)
		if err != nil {
			return fmt.Errorf("marshaling batch: %w", err)
		}
		_, err = e.w.Write(append(buf, '\n'))
		return err
	case config.FormatJSONPretty:
		buf, err := json.MarshalIndent(batch, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling batch: %w", err)
		}
		_, err = e.w.Write(append(buf, '\n'))
		return err
	default:
		return fmt.Errorf("unknown format %v", e.format)
	}
}
