package health

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregate(t *testing.T) {
	tests := []struct {
		name string
		subs []Status
		want string
	}{
		{
			name: "empty is healthy",
			want: StatusHealthy,
		},
		{
			name: "all healthy",
			subs: []Status{NewHealthy("a", ""), NewHealthy("b", "")},
			want: StatusHealthy,
		},
		{
			name: "one degraded",
			subs: []Status{NewHealthy("a", ""), NewDegraded("b", "slow")},
			want: StatusDegraded,
		},
		{
			name: "unhealthy wins over degraded",
			subs: []Status{NewDegraded("a", ""), NewUnhealthy("b", "down")},
			want: StatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate("system", tt.subs)
			assert.Equal(t, tt.want, got.Status)
			assert.Equal(t, tt.want == StatusHealthy, got.Healthy)
			assert.Len(t, got.SubStatuses, len(tt.subs))
		})
	}
}

func TestMonitorRunChecks(t *testing.T) {
	m := NewMonitor()
	m.Register("store", func(context.Context) error { return nil })
	m.Register("bus", func(context.Context) error { return errors.New("connection refused") })

	m.RunChecks(context.Background())

	store, ok := m.Get("store")
	require.True(t, ok)
	assert.True(t, store.IsHealthy())

	bus, ok := m.Get("bus")
	require.True(t, ok)
	assert.True(t, bus.IsUnhealthy())

	agg := m.AggregateHealth("socialgate")
	assert.True(t, agg.IsUnhealthy())
}

func TestMonitorSanitizesCheckErrors(t *testing.T) {
	m := NewMonitor()
	m.Register("store", func(context.Context) error {
		return errors.New("dial postgres://user:hunter2@db:5432/app failed")
	})
	m.RunChecks(context.Background())

	status, ok := m.Get("store")
	require.True(t, ok)
	assert.NotContains(t, status.Message, "hunter2")
	assert.Contains(t, status.Message, "[URL]")
}

func TestMonitorRegisteredStartsHealthy(t *testing.T) {
	m := NewMonitor()
	m.Register("store", func(context.Context) error { return errors.New("boom") })

	status, ok := m.Get("store")
	require.True(t, ok)
	assert.True(t, status.IsHealthy())
}

func TestSanitizeMessage(t *testing.T) {
	assert.Equal(t, "", sanitizeMessage(""))
	assert.Equal(t, "connect to [URL] refused", sanitizeMessage("connect to nats://broker:4222 refused"))
	assert.Contains(t, sanitizeMessage("auth failed: password=abc123"), "[REDACTED]")
}
