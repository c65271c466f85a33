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

// Command jaegercat prints Jaeger trace batches sent to the agent UDP
// ports, and serves the agent sampling endpoint for an allow-list of
// services.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/srenatus/jaegercat/internal/config"
	"github.com/srenatus/jaegercat/internal/service"
)

const shutdownTimeout = 5 * time.Second

// rawFlags holds flag values before validation turns them into a Config.
type rawFlags struct {
	compactThriftPort int
	binaryThriftPort  int
	format            string
	udpBufferSize     int
	logLevel          string
	sampleServices    []string
}

func newCommand() *cobra.Command {
	var flags rawFlags
	cmd := &cobra.Command{
		SilenceUsage:  true, // Don't print usage on Run error.
		SilenceErrors: true, // Don't print errors; main does it.
		Use:           "jaegercat",
		Short:         "Print Jaeger trace batches arriving on the agent UDP ports",
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.config()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.LogLevel)
			if err != nil {
				return fmt.Errorf("building logger: %w", err)
			}
			defer logger.Sync()
			return run(cfg, logger)
		},
	}

	cmd.Flags().IntVar(&flags.compactThriftPort, "compact-thrift-port", config.DefaultCompactThriftPort, "UDP port for the compact thrift protocol listener")
	cmd.Flags().IntVar(&flags.binaryThriftPort, "binary-thrift-port", config.DefaultBinaryThriftPort, "UDP port for the binary thrift protocol listener")
	cmd.Flags().StringVarP(&flags.format, "format", "f", "json", "output format, one of raw, json, json-pretty")
	cmd.Flags().IntVarP(&flags.udpBufferSize, "udp-buffer-size", "b", config.DefaultUDPBufferSize, "receive buffer size in bytes for each UDP listener")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "info", "log level, one of debug, info, error")
	cmd.Flags().StringSliceVarP(&flags.sampleServices, "sample-services", "S", nil, "comma-delimited services granted the always-sample strategy")
	return cmd
}

func (f *rawFlags) config() (*config.Config, error) {
	format, err := config.ParseFormat(f.format)
	if err != nil {
		return nil, err
	}
	level, err := config.ParseLogLevel(f.logLevel)
	if err != nil {
		return nil, err
	}
	cfg := &config.Config{
		CompactThriftPort: f.compactThriftPort,
		BinaryThriftPort:  f.binaryThriftPort,
		Format:            format,
		UDPBufferSize:     f.udpBufferSize,
		LogLevel:          level,
		SampleServices:    f.sampleServices,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(level zapcore.Level) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	// Stdout carries decoded batches only; diagnostics go to stderr.
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	return zcfg.Build()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	svc, err := service.New(cfg, logger, os.Stdout)
	if err != nil {
		return err
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)

	errc := make(chan error, 1)
	go func() {
		errc <- svc.Run()
	}()

	select {
	case err := <-errc:
		return err
	case sig := <-sigc:
		logger.Info("shutting down", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := svc.Shutdown(ctx); err != nil {
			return err
		}
		return <-errc
	}
}

func main() {
	if err := newCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
