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
		name     string
		subs     []Status
		expected State
	}{
		{"empty", nil, StateHealthy},
		{"all healthy", []Status{NewHealthy("a", ""), NewHealthy("b", "")}, StateHealthy},
		{"one degraded", []Status{NewHealthy("a", ""), NewDegraded("b", "")}, StateDegraded},
		{"unhealthy wins", []Status{NewDegraded("a", ""), NewUnhealthy("b", ""), NewHealthy("c", "")}, StateUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := Aggregate("ikg", tt.subs)
			assert.Equal(t, tt.expected, status.State)
			assert.Equal(t, tt.expected == StateHealthy, status.Healthy)
			assert.Len(t, status.SubStatuses, len(tt.subs))
		})
	}
}

func TestAggregate_SortsSubStatuses(t *testing.T) {
	status := Aggregate("ikg", []Status{NewHealthy("nats", ""), NewHealthy("graph", ""), NewHealthy("listener.people", "")})
	require.Len(t, status.SubStatuses, 3)
	assert.Equal(t, "graph", status.SubStatuses[0].Component)
	assert.Equal(t, "listener.people", status.SubStatuses[1].Component)
	assert.Equal(t, "nats", status.SubStatuses[2].Component)
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		contains string
		absent   string
	}{
		{"bolt url", "connect bolt://neo4j:secret@db:7687 refused", "[URL]", "db:7687"},
		{"nats url", "dial nats://broker:4222: timeout", "[URL]", "broker"},
		{"password", "auth failed password=hunter2", "[REDACTED]", "hunter2"},
		{"plain", "no route", "no route", "[URL]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Sanitize(tt.in)
			assert.Contains(t, out, tt.contains)
			assert.NotContains(t, out, tt.absent)
		})
	}
	assert.Equal(t, "", Sanitize(""))
}

func TestMonitor_UpdateAndGet(t *testing.T) {
	m := NewMonitor()
	m.UpdateHealthy("listener.people", "listening")

	status, ok := m.Get("listener.people")
	require.True(t, ok)
	assert.True(t, status.IsHealthy())
	assert.Equal(t, "listening", status.Message)
	assert.False(t, status.Timestamp.IsZero())

	m.UpdateDegraded("listener.people", "connecting")
	status, _ = m.Get("listener.people")
	assert.True(t, status.IsDegraded())

	m.Remove("listener.people")
	_, ok = m.Get("listener.people")
	assert.False(t, ok)
}

func TestMonitor_Check(t *testing.T) {
	m := NewMonitor()
	m.UpdateHealthy("listener.people", "listening")

	var graphErr error
	m.Register("graph", func(context.Context) error { return graphErr })

	status := m.Check(context.Background(), "ikg")
	assert.True(t, status.IsHealthy())
	assert.Len(t, status.SubStatuses, 2)

	graphErr = errors.New("dial bolt://localhost:7687: connection refused")
	status = m.Check(context.Background(), "ikg")
	assert.True(t, status.IsUnhealthy())

	graph, ok := m.Get("graph")
	require.True(t, ok)
	assert.True(t, graph.IsUnhealthy())
	assert.NotContains(t, graph.Message, "localhost")
}
