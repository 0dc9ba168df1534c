package logging

import "testing"

func TestNewProgressSampler(t *testing.T) {
	tests := []struct {
		name  string
		every int
		want  int
	}{
		{"default for zero", 0, 100},
		{"default for negative", -3, 100},
		{"custom", 25, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewProgressSampler(tt.every)
			if s.every != tt.want {
				t.Errorf("every = %d, want %d", s.every, tt.want)
			}
			if s.lastBucket != -1 {
				t.Errorf("lastBucket = %d, want -1", s.lastBucket)
			}
		})
	}
}

func TestProgressSampler_NilSampler(t *testing.T) {
	var s *ProgressSampler
	if !s.ShouldLog(5, "Section 1") {
		t.Error("ShouldLog on nil sampler should always return true")
	}
	s.Reset()
}

func TestProgressSampler_Buckets(t *testing.T) {
	s := NewProgressSampler(10)

	if !s.ShouldLog(1, "") {
		t.Error("first event should log")
	}
	for count := 2; count < 10; count++ {
		if s.ShouldLog(count, "") {
			t.Errorf("count %d inside first bucket should not log", count)
		}
	}
	if !s.ShouldLog(10, "") {
		t.Error("crossing into the next bucket should log")
	}
	if s.ShouldLog(11, "") {
		t.Error("same bucket should not log twice")
	}
}

func TestProgressSampler_ScopeChange(t *testing.T) {
	s := NewProgressSampler(100)

	if !s.ShouldLog(1, "Section 1") {
		t.Error("first scope should log")
	}
	if s.ShouldLog(2, "Section 1") {
		t.Error("same scope and bucket should not log")
	}
	if !s.ShouldLog(3, "Section 2") {
		t.Error("scope change should log")
	}
	if s.lastScope != "Section 2" {
		t.Errorf("lastScope = %q, want Section 2", s.lastScope)
	}

	s.Reset()
	if !s.ShouldLog(4, "Section 2") {
		t.Error("reset should allow the scope to log again")
	}
}
