package calibration

import "time"

// Sample pairs one robot-chain transform with one optical-tracking
// transform, both read at the same tracking-time instant. Samples are
// created whole by a take-sample operation and never mutated.
type Sample struct {
	Robot   RigidTransform
	Optical RigidTransform
	At      time.Time
}

// SampleStore holds the samples of one calibration session in insertion
// order. It is not safe for concurrent use; the owning service serializes
// access.
type SampleStore struct {
	samples []Sample
}

func NewSampleStore() *SampleStore {
	return &SampleStore{}
}

func (s *SampleStore) Append(sample Sample) {
	s.samples = append(s.samples, sample)
}

// RemoveAt deletes the sample at index i, reporting whether anything was
// removed. An out-of-range index is a no-op: a stale index from a UI must
// not fail the session.
func (s *SampleStore) RemoveAt(i int) bool {
	if i < 0 || i >= len(s.samples) {
		return false
	}
	s.samples = append(s.samples[:i], s.samples[i+1:]...)
	return true
}

func (s *SampleStore) Count() int {
	return len(s.samples)
}

// Samples returns a snapshot copy in insertion order.
func (s *SampleStore) Samples() []Sample {
	out := make([]Sample, len(s.samples))
	copy(out, s.samples)
	return out
}

// Clear drops every sample and reports how many were dropped.
func (s *SampleStore) Clear() int {
	n := len(s.samples)
	s.samples = nil
	return n
}

// Aligned returns the robot and optical halves as two sequences in
// insertion order. Index i of both refers to the same original sample;
// the solver depends on that correspondence. The store keeps its samples,
// so a failed solve can be retried without re-collecting.
func (s *SampleStore) Aligned() ([]RigidTransform, []RigidTransform) {
	robot := make([]RigidTransform, len(s.samples))
	optical := make([]RigidTransform, len(s.samples))
	for i, sample := range s.samples {
		robot[i] = sample.Robot
		optical[i] = sample.Optical
	}
	return robot, optical
}
