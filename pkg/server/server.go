package server

import (
	"context"
	"fmt"

	"github.com/fwsync/fwsync/pkg/config"
	"github.com/fwsync/fwsync/pkg/firewall"
	"github.com/fwsync/fwsync/pkg/statewatch"
	"go.uber.org/zap"
)

// Server coordinates all modules and manages the overall service lifecycle.
type Server struct {
	configMgr  *config.Manager
	fwMgr      *firewall.Manager
	reconciler *firewall.Reconciler
	stateMgr   *statewatch.Manager
	logger     *zap.Logger
}

// NewServer initializes all modules and returns a ready-to-run Server.
func NewServer(configPath string, logger *zap.Logger) (*Server, error) {
	fwMgr, err := firewall.NewManager(logger.Named("firewall"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firewalld manager: %w", err)
	}

	return newServerWithManager(configPath, fwMgr, logger)
}

// newServerWithManager initializes a Server with a pre-created firewall
// Manager. This allows tests to inject a platform-appropriate Manager.
func newServerWithManager(configPath string, fwMgr *firewall.Manager, logger *zap.Logger) (*Server, error) {
	configMgr, err := config.NewManager(configPath, logger.Named("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize config manager: %w", err)
	}

	server := &Server{
		configMgr: configMgr,
		fwMgr:     fwMgr,
		logger:    logger,
	}

	// The state watcher re-applies desired state when the daemon comes
	// back up, since a restart discards all runtime rules.
	server.stateMgr = statewatch.NewManager(daemonChecker{fwMgr}, func() {
		server.triggerReconcile()
	}, logger.Named("statewatch"))

	server.reconciler = firewall.NewReconciler(fwMgr, logger.Named("reconciler"))

	return server, nil
}

// daemonChecker adapts the firewall Manager to the statewatch Checker.
type daemonChecker struct {
	mgr *firewall.Manager
}

func (c daemonChecker) Check() error {
	running, err := c.mgr.Running()
	if err != nil {
		return err
	}
	if !running {
		return firewall.ErrBackendUnavailable
	}
	return nil
}

// Run starts the server in daemon mode: performs an initial apply, starts
// the daemon state watcher and config watching, then enters the main event
// loop until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	cfg := s.configMgr.GetConfig()

	interval := cfg.Global.GetCheckInterval()
	s.stateMgr.Start(ctx, interval)

	if err := s.apply(cfg); err != nil {
		s.logger.Error("initial apply failed", zap.Error(err))
	}

	s.configMgr.WatchConfig()
	s.logger.Info("config watcher started")

	s.logger.Info("server started, entering main loop")
	for {
		select {
		case <-s.configMgr.OnChange():
			s.logger.Info("config change detected, applying desired state")
			cfg := s.configMgr.GetConfig()
			if err := s.apply(cfg); err != nil {
				s.logger.Error("apply after config change failed", zap.Error(err))
			}
			// Pick up a reloaded probe interval as well.
			if next := cfg.Global.GetCheckInterval(); next != interval {
				s.stateMgr.Stop()
				s.stateMgr.Start(ctx, next)
				interval = next
				s.logger.Info("daemon state watcher restarted", zap.Duration("interval", next))
			}

		case <-ctx.Done():
			s.logger.Info("shutdown signal received, stopping server")
			s.shutdown()
			return nil
		}
	}
}

// RunOnce performs a single apply pass and then shuts down.
// This is used for manual one-shot reconciliation (e.g., via CLI or cron).
func (s *Server) RunOnce() error {
	err := s.apply(s.configMgr.GetConfig())
	s.shutdown()

	if err != nil {
		return fmt.Errorf("reconcile failed: %w", err)
	}
	return nil
}

// apply reconciles every configured rule and logs the aggregate outcome.
func (s *Server) apply(cfg *config.Config) error {
	report := s.reconciler.ReconcileAll(cfg.Rules)
	if report.Changed() {
		s.logger.Info("applied changes", zap.String("msg", report.Message()))
	}
	return report.Err()
}

// triggerReconcile is called by the state watcher when the firewalld
// daemon recovers after a restart.
func (s *Server) triggerReconcile() {
	if err := s.apply(s.configMgr.GetConfig()); err != nil {
		s.logger.Error("apply after daemon recovery failed", zap.Error(err))
	}
}

// shutdown gracefully stops all modules.
func (s *Server) shutdown() {
	s.stateMgr.Stop()
	s.fwMgr.Close()
	s.logger.Info("server stopped")
}
