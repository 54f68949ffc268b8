package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psicometria/bat7-api/internal/models"
	appErrors "github.com/psicometria/bat7-api/pkg/errors"
)

type sweeperStub struct {
	cutoff      time.Time
	deleted     int64
	err         error
	staleCutoff time.Time
	reason      string
	expired     int64
	expireErr   error
}

func (s *sweeperStub) DeleteCancelledBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.cutoff = cutoff
	return s.deleted, s.err
}

func (s *sweeperStub) CancelStartedBefore(_ context.Context, cutoff time.Time, reason string, _ time.Time) (int64, error) {
	s.staleCutoff, s.reason = cutoff, reason
	return s.expired, s.expireErr
}

type janitorStub struct {
	ttl     time.Duration
	removed []string
}

func (j *janitorStub) CleanupOlderThan(ttl time.Duration) ([]string, error) {
	j.ttl = ttl
	return j.removed, nil
}

func TestMaintenanceSweep(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	sweeper := &sweeperStub{deleted: 4}
	janitor := &janitorStub{removed: []string{"a.csv"}}
	svc := NewMaintenanceService(sweeper, janitor, &stubFeatures{}, nil, MaintenanceConfig{
		CancelledRetention: 48 * time.Hour,
		ReportRetention:    time.Hour,
	})
	svc.now = func() time.Time { return now }

	result, err := svc.Sweep(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-48*time.Hour), sweeper.cutoff)
	assert.Equal(t, int64(4), result.SessionsDeleted)
	assert.Equal(t, 1, result.ReportsDeleted)
	assert.Equal(t, time.Hour, janitor.ttl)

	_, err = svc.Sweep(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-24*time.Hour), sweeper.cutoff)
}

func TestMaintenanceSweepFailures(t *testing.T) {
	features := &stubFeatures{}
	sweeper := &sweeperStub{err: errors.New("timeout")}
	svc := NewMaintenanceService(sweeper, nil, features, nil, MaintenanceConfig{})

	_, err := svc.Sweep(context.Background(), 0)
	assert.ErrorIs(t, err, appErrors.ErrInternal)

	sweeper.err = &pq.Error{Code: "42P01"}
	result, err := svc.Sweep(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, result.SessionsDeleted)
	assert.False(t, features.Available(models.FeatureTestSessions))
}

func TestMaintenanceSweepExpiresStaleSessions(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	sweeper := &sweeperStub{expired: 2}
	svc := NewMaintenanceService(sweeper, nil, &stubFeatures{}, nil, MaintenanceConfig{StaleAfter: 12 * time.Hour})
	svc.now = func() time.Time { return now }

	result, err := svc.Sweep(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-12*time.Hour), sweeper.staleCutoff)
	assert.Equal(t, ExpiredSessionReason, sweeper.reason)
	assert.Equal(t, int64(2), result.SessionsExpired)

	sweeper.expireErr = errors.New("lock timeout")
	_, err = svc.Sweep(context.Background(), 0)
	assert.ErrorIs(t, err, appErrors.ErrInternal)
}

func TestMaintenanceSweepLeavesStartedSessionsWithoutStaleAfter(t *testing.T) {
	sweeper := &sweeperStub{expired: 2}
	svc := NewMaintenanceService(sweeper, nil, &stubFeatures{}, nil, MaintenanceConfig{})

	result, err := svc.Sweep(context.Background(), 0)
	require.NoError(t, err)
	assert.True(t, sweeper.staleCutoff.IsZero())
	assert.Zero(t, result.SessionsExpired)
}
