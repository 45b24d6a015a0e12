package core

import (
	"io"
	"os"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

func TestEventSystemFire(t *testing.T) {
	es := NewEventSystem()
	listener := &struct{}{}

	var got EventContext
	ok := es.Register(EVENT_CODE_SCENE_LOADED, listener, func(code SystemEventCode, sender, inst interface{}, data EventContext) bool {
		got = data
		return true
	})
	require.True(t, ok)
	assert.False(t, es.Register(EVENT_CODE_SCENE_LOADED, listener, func(SystemEventCode, interface{}, interface{}, EventContext) bool { return false }))

	handled := es.Fire(EVENT_CODE_SCENE_LOADED, nil, "payload")
	assert.True(t, handled)
	assert.Equal(t, EVENT_CODE_SCENE_LOADED, got.Type)
	assert.Equal(t, "payload", got.Data)

	assert.True(t, es.Unregister(EVENT_CODE_SCENE_LOADED, listener))
	assert.False(t, es.Fire(EVENT_CODE_SCENE_LOADED, nil, nil))
}

func TestEventSystemStopsAtFirstHandler(t *testing.T) {
	es := NewEventSystem()
	calls := 0
	for i := 0; i < 2; i++ {
		es.Register(EVENT_CODE_LOAD_FAILED, i, func(SystemEventCode, interface{}, interface{}, EventContext) bool {
			calls++
			return true
		})
	}
	es.Fire(EVENT_CODE_LOAD_FAILED, nil, nil)
	assert.Equal(t, 1, calls)
	require.NoError(t, es.Shutdown())
	assert.False(t, es.Fire(EVENT_CODE_LOAD_FAILED, nil, nil))
}

func TestClockWithMockSource(t *testing.T) {
	mock := clock.NewMock()
	c := NewClock(mock)

	c.Update()
	assert.Zero(t, c.Elapsed())

	c.Start()
	mock.Add(1500 * time.Millisecond)
	c.Update()
	assert.InDelta(t, 1.5, c.Elapsed(), 1e-9)

	c.Stop()
	mock.Add(time.Second)
	c.Update()
	assert.InDelta(t, 1.5, c.Elapsed(), 1e-9)
}

func TestLoaderMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLoaderMetrics(reg)

	m.Loads.WithLabelValues("asset").Inc()
	m.Loads.WithLabelValues("asset").Inc()
	m.Failures.WithLabelValues("bundle").Inc()
	m.Loading.Set(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Loads.WithLabelValues("asset")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Failures.WithLabelValues("bundle")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Loading))

	count, err := testutil.GatherAndCount(reg, "anima_content_loads_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestFrameMetrics(t *testing.T) {
	m := NewFrameMetrics()
	for i := 0; i < int(AVG_COUNT); i++ {
		m.Update(0.010)
	}
	assert.InDelta(t, 10.0, m.FrameTime(), 1e-9)
}

func TestParseLogLevel(t *testing.T) {
	level, err := ParseLogLevel("warn")
	require.NoError(t, err)
	assert.Equal(t, WarnLevel, level)

	_, err = ParseLogLevel("loud")
	assert.Error(t, err)
}
