package frames

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"

	"handeyecalibration/calibration"
)

// StaticSource serves transforms from a fixed in-memory table, keyed by
// frame pair. It exists for offline runs and tests: the error contract
// matches the machine source, but a missing pair fails immediately instead
// of waiting out a timeout it can never satisfy.
type StaticSource struct {
	clock      clock.Clock
	transforms map[[2]string]calibration.RigidTransform
}

func NewStaticSource() *StaticSource {
	return &StaticSource{
		clock:      clock.New(),
		transforms: map[[2]string]calibration.RigidTransform{},
	}
}

// Set installs the transform served for the pair.
func (s *StaticSource) Set(from, to string, tf calibration.RigidTransform) {
	s.transforms[[2]string{from, to}] = tf
}

func (s *StaticSource) Now() time.Time {
	return s.clock.Now()
}

func (s *StaticSource) AwaitTransform(ctx context.Context, from, to string, timeout time.Duration) error {
	if _, ok := s.transforms[[2]string{from, to}]; ok {
		return nil
	}
	return &calibration.TransformTimeoutError{From: from, To: to, Timeout: timeout}
}

func (s *StaticSource) Transform(ctx context.Context, from, to string, at time.Time) (calibration.RigidTransform, error) {
	tf, ok := s.transforms[[2]string{from, to}]
	if !ok {
		return calibration.RigidTransform{}, &calibration.TransformUnavailableError{From: from, To: to, At: at}
	}
	return tf, nil
}
