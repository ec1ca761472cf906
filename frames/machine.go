// Package frames resolves named coordinate frames to rigid transforms.
package frames

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/referenceframe"
	"go.viam.com/rdk/spatialmath"
	goutils "go.viam.com/utils"

	"handeyecalibration/calibration"
)

const (
	defaultPollInterval = 100 * time.Millisecond

	// The frame system answers lookups live; it keeps no history. A
	// requested instant is honored as long as it is within this window of
	// the present, beyond that the lookup cannot be answered at all.
	defaultStaleWindow = 5 * time.Second
)

// PoseTransformer is the slice of robot.Robot a machine source needs.
type PoseTransformer interface {
	TransformPose(ctx context.Context, pose *referenceframe.PoseInFrame, dst string,
		additionalTransforms []*referenceframe.LinkInFrame) (*referenceframe.PoseInFrame, error)
}

// MachineSource resolves transforms through a machine's frame system.
type MachineSource struct {
	machine PoseTransformer
	logger  logging.Logger
	clock   clock.Clock
	poll    time.Duration
	stale   time.Duration
}

func NewMachineSource(machine PoseTransformer, logger logging.Logger) *MachineSource {
	return &MachineSource{
		machine: machine,
		logger:  logger,
		clock:   clock.New(),
		poll:    defaultPollInterval,
		stale:   defaultStaleWindow,
	}
}

// Now reports tracking time. Lookups are answered at the moment they are
// made, so tracking time is machine-local wall time.
func (m *MachineSource) Now() time.Time {
	return m.clock.Now()
}

// AwaitTransform polls the live pair until it resolves or the timeout
// elapses. Availability is checked against the present, not a pinned
// instant: the caller picks its read instant after the await succeeds, so
// a marker that takes a minute to first acquire still resolves within a
// minute-long wait. A pair that never resolves reports
// *calibration.TransformTimeoutError; the context error is returned as-is
// when the caller gives up first.
func (m *MachineSource) AwaitTransform(ctx context.Context, from, to string, timeout time.Duration) error {
	deadline := m.clock.Now().Add(timeout)
	for {
		_, err := m.Transform(ctx, from, to, time.Time{})
		if err == nil {
			return nil
		}
		if !m.clock.Now().Before(deadline) {
			m.logger.Debugf("transform from %q to %q still unresolved: %v", from, to, err)
			return &calibration.TransformTimeoutError{From: from, To: to, Timeout: timeout}
		}
		if !goutils.SelectContextOrWait(ctx, m.poll) {
			return ctx.Err()
		}
	}
}

// Transform returns the rigid transform carrying poses in the from frame
// into the to frame: the zero pose of from, expressed in to. A zero instant
// means "now"; a non-zero instant is answered live while it is within the
// stale window and rejected after.
func (m *MachineSource) Transform(ctx context.Context, from, to string, at time.Time) (calibration.RigidTransform, error) {
	if !at.IsZero() {
		if age := m.clock.Now().Sub(at); age > m.stale || age < -m.stale {
			return calibration.RigidTransform{}, &calibration.TransformUnavailableError{
				From: from, To: to, At: at,
				Cause: errors.Errorf("instant is %v from the present; the frame system only answers live", age),
			}
		}
	}

	origin := referenceframe.NewPoseInFrame(from, spatialmath.NewZeroPose())
	pif, err := m.machine.TransformPose(ctx, origin, to, []*referenceframe.LinkInFrame{})
	if err != nil {
		return calibration.RigidTransform{}, &calibration.TransformUnavailableError{
			From: from, To: to, At: at, Cause: err,
		}
	}
	return calibration.TransformFromPose(pif.Pose()), nil
}
