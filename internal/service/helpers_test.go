package service

import (
	"sync"
	"time"
)

type sample struct {
	kind string
	name string
	tags map[string]string
}

type recordingSink struct {
	mu      sync.Mutex
	samples []sample
}

func (s *recordingSink) add(kind, name string, tags map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, sample{kind: kind, name: name, tags: tags})
}

func (s *recordingSink) Count(name string, _ int64, tags map[string]string) {
	s.add("count", name, tags)
}

func (s *recordingSink) Gauge(name string, _ float64, tags map[string]string) {
	s.add("gauge", name, tags)
}

func (s *recordingSink) Timing(name string, _ time.Duration, tags map[string]string) {
	s.add("timing", name, tags)
}

func (s *recordingSink) named(kind, name string) []sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sample
	for _, smp := range s.samples {
		if smp.kind == kind && smp.name == name {
			out = append(out, smp)
		}
	}
	return out
}

func (s *recordingSink) countNamed(name string) int { return len(s.named("count", name)) }

func (s *recordingSink) gaugeNamed(name string) int { return len(s.named("gauge", name)) }

func ptr[T any](v T) *T { return &v }

type fixedIDs string

func (f fixedIDs) NewID() string { return string(f) }
