package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/esshka/binance-stream-go/internal/app"
	"github.com/esshka/binance-stream-go/internal/config"
	"github.com/esshka/binance-stream-go/internal/logging"
	"github.com/esshka/binance-stream-go/internal/metrics"
	"github.com/esshka/binance-stream-go/internal/sink"
	"github.com/esshka/binance-stream-go/internal/ws"
)

func main() {
	var configPath string
	var streamFlags multiStream
	var multiplex bool

	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.Var(&streamFlags, "stream", "Stream name such as bnbusdt@aggTrade or a listen key (repeatable)")
	flag.BoolVar(&multiplex, "multiplex", false, "Use the combined-stream endpoint even for a single stream")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if len(streamFlags) > 0 {
		cfg.Stream.Streams = streamFlags
	}
	if multiplex {
		cfg.Stream.Multiplex = true
	}

	if len(cfg.Stream.Streams) == 0 {
		fmt.Fprintln(os.Stderr, "no streams configured; set stream.streams in the config file or pass --stream NAME")
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging)
	logger.Info().Strs("streams", cfg.Stream.Streams).Bool("multiplex", cfg.Stream.UseMultiplex()).Msg("starting binstream")

	metricsCollector := metrics.NewCollector()

	router, err := sink.NewRouter(cfg.Sinks, logging.Component(logger, "sink"), metricsCollector)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise sink router")
	}
	forwarder := sink.NewForwarder(router)

	dialer := ws.NewDialer(cfg.Stream, metricsCollector, logging.Component(logger, "ws"))
	supervisor := app.NewSupervisor(cfg, dialer, forwarder.Register, metricsCollector, logging.Component(logger, "stream"))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return router.Run(ctx)
	})

	group.Go(func() error {
		return metricsCollector.StartServer(ctx, cfg.Metrics.ListenAddr, logging.Component(logger, "metrics"))
	})

	group.Go(func() error {
		if err := supervisor.Run(ctx); err != nil {
			return err
		}
		// A session that ended on its own stops the process.
		return errSessionEnded
	})

	err = group.Wait()
	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.Is(err, sink.ErrStopped), errors.Is(err, errSessionEnded):
		logger.Info().Msg("binstream stopped")
	default:
		logger.Error().Err(err).Msg("binstream shutting down with error")
		os.Exit(1)
	}
}

var errSessionEnded = errors.New("stream session ended")

// multiStream is a flag.Value implementation for repeated stream names.
type multiStream []string

func (m *multiStream) String() string {
	return strings.Join(*m, ",")
}

func (m *multiStream) Set(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("stream cannot be empty")
	}
	*m = append(*m, value)
	return nil
}
