package logging

import "strings"

// ProgressSampler suppresses repetitive progress logs during long folder walks.
// It emits when the running count crosses a bucket boundary or when the scope
// (for example the folder being walked) changes.
type ProgressSampler struct {
	every      int
	lastScope  string
	lastBucket int
}

// NewProgressSampler constructs a sampler that emits every `every` items
// (default 100) or on a scope change.
func NewProgressSampler(every int) *ProgressSampler {
	if every <= 0 {
		every = 100
	}
	return &ProgressSampler{every: every, lastBucket: -1}
}

// ShouldLog reports whether a progress event should be logged.
func (s *ProgressSampler) ShouldLog(count int, scope string) bool {
	if s == nil {
		return true
	}
	scope = strings.TrimSpace(scope)
	emit := false
	if scope != "" && scope != s.lastScope {
		s.lastScope = scope
		emit = true
	}
	if count >= 0 {
		bucket := count / s.every
		if bucket > s.lastBucket {
			s.lastBucket = bucket
			emit = true
		}
	}
	return emit
}

// Reset clears the sampler state (e.g. when a new scan starts).
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.lastScope = ""
	s.lastBucket = -1
}
