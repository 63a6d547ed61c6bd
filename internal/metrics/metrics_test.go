package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"supreme-bot/internal/flow"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.FlowEvent(context.Background(), flow.Event{Flow: "application", Name: flow.EventStarted})
	m.FlowEvent(context.Background(), flow.Event{Flow: "application", Name: flow.EventStarted})
	m.Reply("trained")
	m.Generative(300*time.Millisecond, true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.flowEvents.WithLabelValues("application", "started")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.replies.WithLabelValues("trained")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.generative))
}
