package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/psicometria/bat7-api/internal/models"
	"github.com/psicometria/bat7-api/pkg/database"
	appErrors "github.com/psicometria/bat7-api/pkg/errors"
)

type sessionSweeper interface {
	DeleteCancelledBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CancelStartedBefore(ctx context.Context, cutoff time.Time, reason string, at time.Time) (int64, error)
}

// ExpiredSessionReason is recorded on started sessions cancelled by the sweep.
const ExpiredSessionReason = "sesion expirada"

type fileJanitor interface {
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// MaintenanceConfig tunes the sweep.
type MaintenanceConfig struct {
	Interval           time.Duration
	CancelledRetention time.Duration
	// ReportRetention removes stored report files older than this. Zero keeps them.
	ReportRetention time.Duration
	// StaleAfter cancels started sessions opened longer ago than this. Zero
	// leaves them open.
	StaleAfter time.Duration
}

// SweepResult summarises one sweep.
type SweepResult struct {
	Cutoff          time.Time `json:"cutoff"`
	SessionsDeleted int64     `json:"sessions_deleted"`
	SessionsExpired int64     `json:"sessions_expired"`
	ReportsDeleted  int       `json:"reports_deleted"`
}

// MaintenanceService physically deletes old cancelled sessions and cancels
// started sessions nobody closed. It is the only path that removes test
// session rows.
type MaintenanceService struct {
	sessions sessionSweeper
	reports  fileJanitor
	features featureChecker
	logger   *zap.Logger
	cfg      MaintenanceConfig
	now      func() time.Time
}

// NewMaintenanceService constructs a MaintenanceService. reports may be nil.
func NewMaintenanceService(sessions sessionSweeper, reports fileJanitor, features featureChecker, logger *zap.Logger, cfg MaintenanceConfig) *MaintenanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 6 * time.Hour
	}
	if cfg.CancelledRetention <= 0 {
		cfg.CancelledRetention = 30 * 24 * time.Hour
	}
	return &MaintenanceService{sessions: sessions, reports: reports, features: features, logger: logger, cfg: cfg, now: time.Now}
}

// Sweep cancels stale started sessions, then deletes cancelled sessions older
// than olderThan, or the configured retention when olderThan is not positive.
func (s *MaintenanceService) Sweep(ctx context.Context, olderThan time.Duration) (*SweepResult, error) {
	if olderThan <= 0 {
		olderThan = s.cfg.CancelledRetention
	}
	result := &SweepResult{Cutoff: s.now().UTC().Add(-olderThan)}

	if s.features.Available(models.FeatureTestSessions) && s.cfg.StaleAfter > 0 {
		now := s.now().UTC()
		expired, err := s.sessions.CancelStartedBefore(ctx, now.Add(-s.cfg.StaleAfter), ExpiredSessionReason, now)
		switch {
		case err != nil && database.IsUndefinedTable(err):
			s.features.MarkUnavailable(models.FeatureTestSessions)
		case err != nil:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to expire started sessions")
		default:
			result.SessionsExpired = expired
		}
	}

	if s.features.Available(models.FeatureTestSessions) {
		deleted, err := s.sessions.DeleteCancelledBefore(ctx, result.Cutoff)
		switch {
		case err != nil && database.IsUndefinedTable(err):
			s.features.MarkUnavailable(models.FeatureTestSessions)
		case err != nil:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sweep cancelled sessions")
		default:
			result.SessionsDeleted = deleted
		}
	}

	if s.reports != nil && s.cfg.ReportRetention > 0 {
		removed, err := s.reports.CleanupOlderThan(s.cfg.ReportRetention)
		if err != nil {
			s.logger.Warn("report cleanup failed", zap.Error(err))
		}
		result.ReportsDeleted = len(removed)
	}

	s.logger.Info("maintenance sweep finished",
		zap.Time("cutoff", result.Cutoff),
		zap.Int64("sessions_deleted", result.SessionsDeleted),
		zap.Int64("sessions_expired", result.SessionsExpired),
		zap.Int("reports_deleted", result.ReportsDeleted))
	return result, nil
}

// Start runs Sweep every configured interval until ctx ends.
func (s *MaintenanceService) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Sweep(ctx, 0); err != nil {
					s.logger.Error("maintenance sweep failed", zap.Error(err))
				}
			}
		}
	}()
}
