package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// bucketRing keeps the most recent interval buckets. Requests are counted
// lock-free into the open interval; close seals it into the ring.
type bucketRing struct {
	mu      sync.RWMutex
	buckets []Bucket
	head    int
	count   int
	last    time.Time

	requests atomic.Int64
	failures atomic.Int64
}

func newBucketRing(size int) *bucketRing {
	if size <= 0 {
		size = 3600
	}
	return &bucketRing{buckets: make([]Bucket, size), last: time.Now()}
}

func (r *bucketRing) record(success bool) {
	r.requests.Add(1)
	if !success {
		r.failures.Add(1)
	}
}

func (r *bucketRing) close(total int64, p50, p95, p99 time.Duration, phase Phase) Bucket {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	n := r.requests.Swap(0)
	secs := now.Sub(r.last).Seconds()
	if secs <= 0 {
		secs = 1
	}

	b := Bucket{
		Timestamp:        now,
		TotalRequests:    total,
		IntervalRequests: n,
		IntervalFailures: r.failures.Swap(0),
		IntervalRPS:      float64(n) / secs,
		P50:              p50,
		P95:              p95,
		P99:              p99,
		Phase:            phase,
	}

	r.buckets[r.head] = b
	r.head = (r.head + 1) % len(r.buckets)
	if r.count < len(r.buckets) {
		r.count++
	}
	r.last = now
	return b
}

// all returns the buckets oldest first.
func (r *bucketRing) all() []Bucket {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Bucket, 0, r.count)
	start := 0
	if r.count == len(r.buckets) {
		start = r.head
	}
	for i := 0; i < r.count; i++ {
		out = append(out, r.buckets[(start+i)%len(r.buckets)])
	}
	return out
}

// rateIn averages the interval rate of the buckets tagged with phase.
func (r *bucketRing) rateIn(phase Phase) float64 {
	var n, sum float64
	for _, b := range r.all() {
		if b.Phase == phase {
			sum += b.IntervalRPS
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / n
}
