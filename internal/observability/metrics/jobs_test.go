package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedMetric struct {
	name string
	tags map[string]string
}

type fakeSink struct {
	counts  []capturedMetric
	timings []capturedMetric
}

func (s *fakeSink) Count(name string, _ int64, tags map[string]string) {
	s.counts = append(s.counts, capturedMetric{name: name, tags: tags})
}

func (s *fakeSink) Gauge(string, float64, map[string]string) {}

func (s *fakeSink) Timing(name string, _ time.Duration, tags map[string]string) {
	s.timings = append(s.timings, capturedMetric{name: name, tags: tags})
}

func TestEmitJobLifecycle(t *testing.T) {
	sink := &fakeSink{}

	EmitJobLifecycle(sink, JobMetric{
		AreaCode:   "major/csci",
		Transition: "claim",
		Result:     ResultSuccess,
		Duration:   120 * time.Millisecond,
	})

	require.Len(t, sink.counts, 1)
	assert.Equal(t, "job.transition", sink.counts[0].name)
	assert.Equal(t, "claim", sink.counts[0].tags["transition"])
	assert.Equal(t, ResultSuccess, sink.counts[0].tags["result"])

	require.Len(t, sink.timings, 1)
	assert.Equal(t, "job.duration", sink.timings[0].name)
}

func TestEmitJobLifecycleTagsErrorClass(t *testing.T) {
	sink := &fakeSink{}

	EmitJobLifecycle(sink, JobMetric{
		Transition: "fail",
		Result:     ResultError,
		Err:        errors.New("boom"),
	})

	require.Len(t, sink.counts, 1)
	assert.NotEmpty(t, sink.counts[0].tags["error_class"])
	assert.Empty(t, sink.timings)
}

func TestEmitJobLifecycleNilSink(t *testing.T) {
	EmitJobLifecycle(nil, JobMetric{Transition: "enqueue", Result: ResultSuccess})
}

func TestCloneTags(t *testing.T) {
	src := map[string]string{"a": "1"}
	out := CloneTags(src)
	require.Equal(t, src, out)

	out["a"] = "2"
	assert.Equal(t, "1", src["a"])

	assert.Nil(t, CloneTags(nil))
}
