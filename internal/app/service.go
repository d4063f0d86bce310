package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"opsalert/internal/api"
	"opsalert/internal/clock"
	"opsalert/internal/collect"
	"opsalert/internal/config"
	"opsalert/internal/dispatch"
	"opsalert/internal/domain"
	"opsalert/internal/escalate"
	"opsalert/internal/ledger"
	"opsalert/internal/logging"
	"opsalert/internal/monitor"
	"opsalert/internal/notify"
	"opsalert/internal/rules"
)

// Service composes runtime dependencies and process lifecycle.
// Params: config snapshot and shared runtime components.
// Returns: runnable alert engine service.
type Service struct {
	cfg          config.Config
	logger       *slog.Logger
	closeLog     func()
	closeSenders func()
	ledger       *ledger.Ledger
	dispatcher   *dispatch.Dispatcher
	scheduler    *escalate.Scheduler
	loop         *monitor.Loop
	httpSrv      *http.Server
	readyFlag    atomic.Bool
	clock        clock.Clock
}

// NewService builds a service instance from a config source.
// Params: config source and clock implementation.
// Returns: initialized service or setup error.
func NewService(source config.ConfigSource, clk clock.Clock) (*Service, error) {
	cfg, err := config.LoadSnapshot(source)
	if err != nil {
		return nil, err
	}

	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	ruleList, err := config.BuildRules(cfg)
	if err != nil {
		closeLog()
		return nil, err
	}
	ruleSet, err := rules.NewRuleSet(ruleList, logger)
	if err != nil {
		closeLog()
		return nil, err
	}

	senders, closeSenders, err := notify.BuildSenders(cfg.Notify, logger)
	if err != nil {
		closeLog()
		return nil, err
	}

	led := ledger.New(cfg.Service.Name, clk, logger, cfg.Service.HistoryMax)
	dispatcher := dispatch.New(senders, cfg.Service.DispatchTimeout(), logger)
	scheduler := escalate.NewScheduler(led, dispatcher, clk, logger, alwaysChannels(cfg.Escalation))
	led.SetResolveHook(scheduler.Cancel)

	collector, err := collect.NewHTTPCollector(cfg.Collector.URL, cfg.Collector.Headers, cfg.Collector.Timeout())
	if err != nil {
		closeSenders()
		closeLog()
		return nil, err
	}

	loop := monitor.New(
		collector,
		ruleSet,
		led,
		dispatcher,
		scheduler,
		clk,
		logger,
		cfg.Service.PollInterval(),
		cfg.Service.CollectTimeout(),
	)

	service := &Service{
		cfg:          cfg,
		logger:       logger,
		closeLog:     closeLog,
		closeSenders: closeSenders,
		ledger:       led,
		dispatcher:   dispatcher,
		scheduler:    scheduler,
		loop:         loop,
		clock:        clk,
	}
	service.buildHTTPServer()
	return service, nil
}

// buildHTTPServer prepares the operator API server when enabled.
// Params: none.
// Returns: server stored on the service.
func (s *Service) buildHTTPServer() {
	if !s.cfg.API.Enabled {
		return
	}
	handler := api.NewHandler(s.ledger, s.readyFlag.Load, s.logger)
	s.httpSrv = &http.Server{
		Addr:              s.cfg.API.Listen,
		Handler:           handler.Router(s.cfg.API),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Run starts the service lifecycle and blocks until a shutdown signal
// or context cancellation.
// Params: root context for service runtime.
// Returns: terminal run error.
func (s *Service) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errChan := make(chan error, 1)
	if s.httpSrv != nil {
		go func() {
			s.logger.Info("api server starting", "listen", s.cfg.API.Listen)
			err := s.httpSrv.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()
	}

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		_ = s.loop.Run(runCtx)
	}()

	s.readyFlag.Store(true)
	s.logger.Info("alert engine started",
		"service", s.cfg.Service.Name,
		"poll_interval_sec", s.cfg.Service.PollIntervalSec,
		"channels", len(s.dispatcher.Channels()))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		return s.shutdown(cancel, loopDone)
	case err := <-errChan:
		_ = s.shutdown(cancel, loopDone)
		return fmt.Errorf("api server failed: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
		return s.shutdown(cancel, loopDone)
	}
}

// shutdown stops components in dependency order: monitor loop first so
// no new alerts fire, then escalation timers, in-flight deliveries,
// the API server, and finally channel resources and log sinks.
// Params: loop cancel function and loop completion channel.
// Returns: first close error.
func (s *Service) shutdown(cancelLoop context.CancelFunc, loopDone <-chan struct{}) error {
	s.readyFlag.Store(false)
	var firstErr error

	cancelLoop()
	select {
	case <-loopDone:
	case <-time.After(10 * time.Second):
		s.logger.Error("monitor loop did not stop in time")
	}

	s.scheduler.Close()
	s.dispatcher.Wait()

	if s.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("api shutdown failed", "error", err.Error())
			firstErr = fmt.Errorf("api shutdown: %w", err)
		}
	}

	if s.closeSenders != nil {
		s.closeSenders()
	}
	s.logger.Info("alert engine stopped")
	if s.closeLog != nil {
		s.closeLog()
	}
	return firstErr
}

// alwaysChannels converts configured escalation channel names.
// Params: escalation section validated at load.
// Returns: parsed channel list.
func alwaysChannels(cfg config.EscalationConfig) []domain.AlertChannel {
	channels := make([]domain.AlertChannel, 0, len(cfg.AlwaysChannels))
	for _, name := range cfg.AlwaysChannels {
		channel, err := domain.ParseChannel(name)
		if err != nil {
			continue
		}
		channels = append(channels, channel)
	}
	return channels
}
