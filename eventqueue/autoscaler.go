package eventqueue

import (
	"context"
	"sync"
	"time"
)

const (
	autoscalerHistoryCap  = 50
	defaultTargetEventsPS = 1000.0
)

// sample is one point in the autoscaler's bounded history.
type sample struct {
	at               time.Time
	memoryUsage      float64
	cpuUsage         float64
	depth            int
	processingRate   float64
	avgProcessingTime time.Duration
}

// adjustment records one autoscaler decision for observability.
type adjustment struct {
	at        time.Time
	field     string
	before    float64
	after     float64
	rationale string
}

// autoscaler periodically samples queue depth and host resource usage and
// retunes batch size and concurrency. All adjustments are recorded with
// before/after values and a rationale string.
type autoscaler struct {
	q        *Queue
	interval time.Duration
	target   float64

	mu          sync.Mutex
	history     []sample
	adjustments []adjustment
	lastDepth   int
	lastSampled time.Time
}

func newAutoscaler(q *Queue, interval time.Duration) *autoscaler {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &autoscaler{q: q, interval: interval, target: defaultTargetEventsPS}
}

func (a *autoscaler) run(stop <-chan struct{}) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			a.tick()
		}
	}
}

func (a *autoscaler) tick() {
	mem := a.q.resource.MemoryUsage()
	cpuUsage := a.q.resource.CPUUsage()
	depth := a.q.Len()
	now := time.Now()

	a.mu.Lock()
	rate := 0.0
	var avg time.Duration
	if !a.lastSampled.IsZero() {
		elapsed := now.Sub(a.lastSampled).Seconds()
		if elapsed > 0 {
			processed := float64(a.lastDepth - depth)
			if processed < 0 {
				processed = 0
			}
			rate = processed / elapsed
			if processed > 0 {
				avg = time.Duration(elapsed/processed*float64(time.Second))
			}
		}
	}
	a.history = append(a.history, sample{
		at: now, memoryUsage: mem, cpuUsage: cpuUsage, depth: depth,
		processingRate: rate, avgProcessingTime: avg,
	})
	if len(a.history) > autoscalerHistoryCap {
		a.history = a.history[len(a.history)-autoscalerHistoryCap:]
	}
	a.lastDepth = depth
	a.lastSampled = now
	a.mu.Unlock()

	a.applyRules(rate, cpuUsage, mem, depth)
}

func (a *autoscaler) applyRules(rate, cpuUsage, mem float64, depth int) {
	maxCPU := a.q.cfg.MaxCPUUsage
	if maxCPU <= 0 {
		maxCPU = 0.85
	}

	currentBatch := float64(a.q.batchSize.Load())
	switch {
	case rate < 0.8*a.target:
		a.setBatchSize(currentBatch, maxFloat(currentBatch*0.8, 10), "processing rate below 80% of target")
	case rate > 1.2*a.target && cpuUsage < 0.7:
		a.setBatchSize(currentBatch, minFloat(currentBatch*1.2, 2000), "processing rate above 120% of target with CPU headroom")
	}

	currentConcurrency := float64(a.q.semResizer.Current().Capacity())
	switch {
	case cpuUsage < 0.5*maxCPU && depth > 100:
		a.setConcurrency(currentConcurrency, minFloat(currentConcurrency*1.5, 200), "low CPU with growing backlog")
	case cpuUsage > 0.9*maxCPU || mem > 0.8:
		a.setConcurrency(currentConcurrency, maxFloat(currentConcurrency*0.7, 5), "CPU or memory pressure")
	}

	currentConcurrency = float64(a.q.semResizer.Current().Capacity())
	if depth > 5000 && currentConcurrency < 100 {
		a.setConcurrency(currentConcurrency, minFloat(currentConcurrency*2, 300), "emergency: backlog exceeds 5000 with low concurrency")
	}
}

func (a *autoscaler) setBatchSize(before, after float64, rationale string) {
	if int64(after) == a.q.batchSize.Load() {
		return
	}
	a.q.batchSize.Store(int64(after))
	a.record("batchSize", before, after, rationale)
}

func (a *autoscaler) setConcurrency(before, after float64, rationale string) {
	if int(after) == int(before) {
		return
	}
	a.q.semResizer.Resize(int(after))
	a.record("maxConcurrent", before, after, rationale)
}

func (a *autoscaler) record(field string, before, after float64, rationale string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.adjustments = append(a.adjustments, adjustment{
		at: time.Now(), field: field, before: before, after: after, rationale: rationale,
	})
	a.q.logger.Info(context.Background(), "autoscaler adjustment",
		"field", field, "before", before, "after", after, "rationale", rationale)
}

// Adjustments returns a snapshot of every adjustment made so far, oldest
// first.
func (a *autoscaler) Adjustments() []adjustment {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]adjustment(nil), a.adjustments...)
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
