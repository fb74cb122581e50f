package spc

// History is the length-bounded control chart series. Limits are recomputed
// over every retained sample on each Append.
type History struct {
	capacity   int
	minSamples int
	samples    []Sample
	limits     Limits
}

// NewHistory constructs an empty history. A capacity below 1 is treated as 1.
func NewHistory(capacity, minSamples int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{
		capacity:   capacity,
		minSamples: minSamples,
		samples:    make([]Sample, 0, capacity),
		limits:     Limits{Provisional: true},
	}
}

// Append adds s, evicts the oldest samples beyond capacity, and returns the
// recomputed limits.
func (h *History) Append(s Sample) Limits {
	h.samples = append(h.samples, s)
	if over := len(h.samples) - h.capacity; over > 0 {
		n := copy(h.samples, h.samples[over:])
		h.samples = h.samples[:n]
	}
	h.recompute()
	h.limits.ComputedAt = s.Timestamp
	return h.limits
}

// CurrentLimits returns the most recently derived limits. An empty history
// reports zero provisional limits.
func (h *History) CurrentLimits() Limits {
	return h.limits
}

// Samples returns a copy of the retained samples, oldest first.
func (h *History) Samples() []Sample {
	return append([]Sample(nil), h.samples...)
}

// Len returns the number of retained samples.
func (h *History) Len() int { return len(h.samples) }

// Capacity returns the sample bound.
func (h *History) Capacity() int { return h.capacity }

// Latest returns the newest sample.
func (h *History) Latest() (Sample, bool) {
	if len(h.samples) == 0 {
		return Sample{}, false
	}
	return h.samples[len(h.samples)-1], true
}

// Restore replaces the history with samples (oldest first). When stored is
// non-nil its bands are kept as the last computed limits; otherwise limits
// are recomputed.
func (h *History) Restore(samples []Sample, stored *Limits) {
	if len(samples) > h.capacity {
		samples = samples[len(samples)-h.capacity:]
	}
	h.samples = append(h.samples[:0], samples...)
	if stored == nil || len(h.samples) == 0 {
		h.recompute()
		if latest, ok := h.Latest(); ok {
			h.limits.ComputedAt = latest.Timestamp
		}
		return
	}
	h.limits = *stored
	h.limits.SampleCount = len(h.samples)
	h.limits.Provisional = len(h.samples) < h.minSamples
}

// Reset drops every sample.
func (h *History) Reset() {
	h.samples = h.samples[:0]
	h.limits = Limits{Provisional: true}
}

func (h *History) recompute() {
	rates := make([]float64, len(h.samples))
	for i, s := range h.samples {
		rates[i] = s.DefectRate
	}
	h.limits = ComputeLimits(rates, h.minSamples)
}
