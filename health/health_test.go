package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
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
		{"empty", nil, StateHealthy},
		{"all healthy", []Status{NewHealthy("a", ""), NewHealthy("b", "")}, StateHealthy},
		{"one degraded", []Status{NewHealthy("a", ""), NewDegraded("b", "")}, StateDegraded},
		{"unhealthy wins", []Status{NewUnhealthy("a", ""), NewDegraded("b", ""), NewHealthy("c", "")}, StateUnhealthy},
		{"degraded after unhealthy", []Status{NewUnhealthy("a", ""), NewDegraded("b", "")}, StateUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate("eventflow", tt.subs)
			assert.Equal(t, tt.want, got.Status)
			assert.Equal(t, tt.want == StateHealthy, got.Healthy)
			assert.Len(t, got.SubStatuses, len(tt.subs))
		})
	}
}

func TestAggregate_CopiesInput(t *testing.T) {
	subs := []Status{NewHealthy("a", "ok")}
	got := Aggregate("eventflow", subs)
	got.SubStatuses[0].Message = "changed"
	assert.Equal(t, "ok", subs[0].Message)
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"connect nats://user:pw@10.0.0.1:4222 refused", "connect [URL] refused"},
		{"open /var/log/eventflow/out.jsonl: permission denied", "open [PATH]: permission denied"},
		{"dial 192.168.1.10 failed", "dial [IP] failed"},
		{"listen on :5140", "listen on [PORT]"},
		{"auth failed token=abc123", "auth failed [REDACTED]"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Sanitize(tt.input), tt.input)
	}
}

func TestMonitor(t *testing.T) {
	m := NewMonitor()
	m.UpdateHealthy("syslog_in", "source running")
	m.UpdateDegraded("archive", "sink stopped")

	s, ok := m.Get("archive")
	require.True(t, ok)
	assert.True(t, s.IsDegraded())
	assert.Equal(t, "archive", s.Component)
	assert.False(t, s.Timestamp.IsZero())

	m.Update("renamed", Status{Component: "other", Status: StateHealthy})
	s, _ = m.Get("renamed")
	assert.Equal(t, "renamed", s.Component)

	agg := m.AggregateHealth("eventflow")
	assert.True(t, agg.IsDegraded())
	names := []string{}
	for _, sub := range agg.SubStatuses {
		names = append(names, sub.Component)
	}
	assert.Equal(t, []string{"archive", "renamed", "syslog_in"}, names)

	m.Remove("archive")
	assert.True(t, m.AggregateHealth("eventflow").IsHealthy())
}

func TestMonitor_NilIsSafe(t *testing.T) {
	var m *Monitor
	m.UpdateHealthy("x", "")
	m.Remove("x")
	_, ok := m.Get("x")
	assert.False(t, ok)
	assert.True(t, m.AggregateHealth("eventflow").IsHealthy())
}

func TestMonitor_Handler(t *testing.T) {
	m := NewMonitor()
	m.UpdateHealthy("in", "running")

	rec := httptest.NewRecorder()
	m.Handler("eventflow").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	var body Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "eventflow", body.Component)
	assert.Len(t, body.SubStatuses, 1)

	m.UpdateUnhealthy("out", "write failed")
	rec = httptest.NewRecorder()
	m.Handler("eventflow").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMonitor_ConcurrentAccess(t *testing.T) {
	m := NewMonitor()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if j%2 == 0 {
					m.UpdateHealthy("c", "ok")
				} else {
					m.UpdateDegraded("c", "slow")
				}
				_ = m.AggregateHealth("eventflow")
			}
		}(i)
	}
	wg.Wait()
	_, ok := m.Get("c")
	assert.True(t, ok)
}
