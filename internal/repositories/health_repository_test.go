package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/spikeboom/love-cosmetics-website-sub000/internal/domain"
)

func healthy(context.Context) error { return nil }

func failing(msg string) func(context.Context) error {
	return func(context.Context) error { return errors.New(msg) }
}

func hangs(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestDependencyHealthCollect(t *testing.T) {
	cases := []struct {
		name   string
		checks []DependencyCheck
		status string
		detail map[string]string
	}{
		{
			name: "all healthy",
			checks: []DependencyCheck{
				{Name: "firestore", Critical: true, Check: healthy},
				{Name: "redis", Check: healthy},
			},
			status: domain.HealthStatusOK,
			detail: map[string]string{"firestore": "ok", "redis": "ok"},
		},
		{
			name: "optional cms down",
			checks: []DependencyCheck{
				{Name: "firestore", Critical: true, Check: healthy},
				{Name: "cms", Check: failing("cms unreachable")},
			},
			status: domain.HealthStatusDegraded,
			detail: map[string]string{"cms": "cms unreachable"},
		},
		{
			name: "critical store times out",
			checks: []DependencyCheck{
				{Name: "firestore", Critical: true, Timeout: 5 * time.Millisecond, Check: hangs},
				{Name: "redis", Check: failing("connection refused")},
			},
			status: domain.HealthStatusError,
			detail: map[string]string{"firestore": "timeout", "redis": "connection refused"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
			repo, err := NewDependencyHealthRepository(tc.checks, WithDependencyClock(func() time.Time { return now }))
			require.NoError(t, err)

			report, err := repo.Collect(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tc.status, report.Status)
			assert.Equal(t, now, report.GeneratedAt)
			assert.Len(t, report.Checks, len(tc.checks))
			for name, detail := range tc.detail {
				assert.Equal(t, detail, report.Checks[name].Detail, name)
			}
		})
	}
}

func TestDependencyHealthMarksCriticalFailures(t *testing.T) {
	repo, err := NewDependencyHealthRepository([]DependencyCheck{
		{Name: "firestore", Critical: true, Check: failing("permission denied")},
		{Name: "pubsub", Check: failing("topic missing")},
	}, WithDependencyTimeout(time.Second))
	require.NoError(t, err)

	report, err := repo.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.SystemHealthCheck{
		Status:    domain.HealthStatusError,
		Detail:    "permission denied",
		Error:     "permission denied",
		Critical:  true,
		Latency:   report.Checks["firestore"].Latency,
		CheckedAt: report.Checks["firestore"].CheckedAt,
	}, report.Checks["firestore"])
	assert.Equal(t, domain.HealthStatusDegraded, report.Checks["pubsub"].Status)
}

func TestNewDependencyHealthRepositoryValidatesChecks(t *testing.T) {
	cases := map[string][]DependencyCheck{
		"empty":        nil,
		"missing name": {{Check: healthy}},
		"missing func": {{Name: "redis"}},
		"duplicate":    {{Name: "redis", Check: healthy}, {Name: " redis ", Check: healthy}},
	}
	for name, checks := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewDependencyHealthRepository(checks)
			assert.Error(t, err)
		})
	}
}
