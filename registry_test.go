package signflow

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryCreateAndGet(t *testing.T) {
	r := NewRegistry(testConfig(t))

	job := r.Create()
	assert.True(t, strings.HasPrefix(job.ID, "job-"))
	assert.Equal(t, JobPending, job.Status())
	assert.False(t, job.StartedAt.IsZero())

	got, ok := r.Get(job.ID)
	require.True(t, ok)
	assert.Same(t, job, got)

	_, ok = r.Get("job-0-deadbeef")
	assert.False(t, ok)
}

func TestRegistryIDsAreUnique(t *testing.T) {
	r := NewRegistry(testConfig(t))
	seen := make(map[string]bool)
	for range 200 {
		job := r.Create()
		require.False(t, seen[job.ID], "duplicate id %s", job.ID)
		seen[job.ID] = true
	}
}

func TestRegistryEvictIsIdempotent(t *testing.T) {
	r := NewRegistry(testConfig(t))
	job := r.Create()

	r.Evict(job.ID)
	_, ok := r.Get(job.ID)
	assert.False(t, ok)

	r.Evict(job.ID) // no-op
	assert.Equal(t, 0, r.Len())
}

func TestRegistryScheduledEviction(t *testing.T) {
	r := NewRegistry(testConfig(t))
	job := r.Create()

	r.ScheduleEviction(job.ID, 10*time.Millisecond)

	_, ok := r.Get(job.ID)
	assert.True(t, ok, "job evicted before the grace window")

	require.Eventually(t, func() bool {
		_, ok := r.Get(job.ID)
		return !ok
	}, time.Second, 5*time.Millisecond)
}
