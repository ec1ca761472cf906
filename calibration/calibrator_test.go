package calibration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"go.viam.com/rdk/logging"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"
)

// fakeFrameSource answers transform lookups from a fixed table keyed by
// "from->to". Unset hooks mean "always succeeds".
type fakeFrameSource struct {
	now        time.Time
	transforms map[string]RigidTransform

	awaitFunc     func(ctx context.Context, from, to string, timeout time.Duration) error
	transformFunc func(ctx context.Context, from, to string, at time.Time) (RigidTransform, error)

	awaitCalls     []framePair
	transformCalls []frameCall
}

type framePair struct {
	from, to string
}

type frameCall struct {
	from, to string
	at       time.Time
}

func newFakeFrameSource() *fakeFrameSource {
	return &fakeFrameSource{
		now: time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
		transforms: map[string]RigidTransform{
			"base_link->tool0":               NewRigidTransform(r3.Vector{X: 1}, quat.Number{Real: 1}),
			"tool0->base_link":               NewRigidTransform(r3.Vector{X: -1}, quat.Number{Real: 1}),
			"optical_origin->optical_target": NewRigidTransform(r3.Vector{Y: 2}, quat.Number{Real: 1}),
		},
	}
}

func (f *fakeFrameSource) Now() time.Time { return f.now }

func (f *fakeFrameSource) AwaitTransform(ctx context.Context, from, to string, timeout time.Duration) error {
	f.awaitCalls = append(f.awaitCalls, framePair{from, to})
	if f.awaitFunc != nil {
		return f.awaitFunc(ctx, from, to, timeout)
	}
	return nil
}

func (f *fakeFrameSource) Transform(ctx context.Context, from, to string, at time.Time) (RigidTransform, error) {
	f.transformCalls = append(f.transformCalls, frameCall{from, to, at})
	if f.transformFunc != nil {
		return f.transformFunc(ctx, from, to, at)
	}
	tf, ok := f.transforms[from+"->"+to]
	if !ok {
		return RigidTransform{}, &TransformUnavailableError{From: from, To: to, At: at}
	}
	return tf, nil
}

type funcSolver func(ctx context.Context, robot, optical []RigidTransform) (RigidTransform, error)

func (f funcSolver) Solve(ctx context.Context, robot, optical []RigidTransform) (RigidTransform, error) {
	return f(ctx, robot, optical)
}

func identitySolver() funcSolver {
	return func(ctx context.Context, robot, optical []RigidTransform) (RigidTransform, error) {
		return IdentityTransform(), nil
	}
}

func TestTakeSampleRecordsAlignedPair(t *testing.T) {
	frames := newFakeFrameSource()
	cal := NewCalibrator(Config{}, frames, identitySolver(), logging.NewTestLogger(t))
	test.That(t, cal.State(), test.ShouldEqual, StateIdle)

	sample, err := cal.TakeSample(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, sample.At, test.ShouldResemble, frames.now)
	test.That(t, sample.Robot, test.ShouldResemble, frames.transforms["tool0->base_link"])
	test.That(t, sample.Optical, test.ShouldResemble, frames.transforms["optical_origin->optical_target"])

	test.That(t, cal.SampleCount(), test.ShouldEqual, 1)
	test.That(t, cal.State(), test.ShouldEqual, StateCollecting)
}

func TestTakeSampleFrameDirections(t *testing.T) {
	// Eye on base: the robot half reads tool relative to base inverted,
	// so the lookup runs tool0 -> base_link.
	frames := newFakeFrameSource()
	cal := NewCalibrator(Config{EyeOnHand: false}, frames, identitySolver(), logging.NewTestLogger(t))
	_, err := cal.TakeSample(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, frames.transformCalls[0].from, test.ShouldEqual, "tool0")
	test.That(t, frames.transformCalls[0].to, test.ShouldEqual, "base_link")
	test.That(t, frames.transformCalls[1].from, test.ShouldEqual, "optical_origin")
	test.That(t, frames.transformCalls[1].to, test.ShouldEqual, "optical_target")

	// Eye on hand flips the robot half to base_link -> tool0. The optical
	// half never flips.
	frames = newFakeFrameSource()
	cal = NewCalibrator(Config{EyeOnHand: true}, frames, identitySolver(), logging.NewTestLogger(t))
	_, err = cal.TakeSample(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, frames.transformCalls[0].from, test.ShouldEqual, "base_link")
	test.That(t, frames.transformCalls[0].to, test.ShouldEqual, "tool0")
	test.That(t, frames.transformCalls[1].from, test.ShouldEqual, "optical_origin")
	test.That(t, frames.transformCalls[1].to, test.ShouldEqual, "optical_target")
}

func TestTakeSampleUsesOneSharedInstant(t *testing.T) {
	frames := newFakeFrameSource()
	cal := NewCalibrator(Config{}, frames, identitySolver(), logging.NewTestLogger(t))

	sample, err := cal.TakeSample(context.Background())
	test.That(t, err, test.ShouldBeNil)

	// Both lookups and the sample share one instant.
	test.That(t, frames.awaitCalls, test.ShouldHaveLength, 2)
	test.That(t, frames.transformCalls, test.ShouldHaveLength, 2)
	for _, call := range frames.transformCalls {
		test.That(t, call.at, test.ShouldResemble, frames.now)
	}
	test.That(t, sample.At, test.ShouldResemble, frames.now)
}

func TestTakeSamplePinsInstantAfterSlowAcquisition(t *testing.T) {
	// The optical pair takes half a minute of tracking time to first
	// acquire. The lookup instant must be picked after the awaits succeed,
	// or it would be stale before its own lookup ran.
	frames := newFakeFrameSource()
	started := frames.now
	frames.awaitFunc = func(ctx context.Context, from, to string, timeout time.Duration) error {
		if from == "optical_origin" {
			frames.now = frames.now.Add(30 * time.Second)
		}
		return nil
	}
	cal := NewCalibrator(Config{}, frames, identitySolver(), logging.NewTestLogger(t))

	sample, err := cal.TakeSample(context.Background())
	test.That(t, err, test.ShouldBeNil)

	acquired := started.Add(30 * time.Second)
	for _, call := range frames.transformCalls {
		test.That(t, call.at, test.ShouldResemble, acquired)
	}
	test.That(t, sample.At, test.ShouldResemble, acquired)
}

func TestTakeSampleAwaitTimeouts(t *testing.T) {
	frames := newFakeFrameSource()
	var timeouts []time.Duration
	frames.awaitFunc = func(ctx context.Context, from, to string, timeout time.Duration) error {
		timeouts = append(timeouts, timeout)
		return nil
	}
	cfg := Config{RobotWait: 3 * time.Second, OpticalWait: 45 * time.Second}
	cal := NewCalibrator(cfg, frames, identitySolver(), logging.NewTestLogger(t))

	_, err := cal.TakeSample(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, timeouts, test.ShouldResemble, []time.Duration{3 * time.Second, 45 * time.Second})
}

func TestTakeSampleAwaitTimeoutLeavesNoSample(t *testing.T) {
	frames := newFakeFrameSource()
	frames.awaitFunc = func(ctx context.Context, from, to string, timeout time.Duration) error {
		if from == "optical_origin" {
			return &TransformTimeoutError{From: from, To: to, Timeout: timeout}
		}
		return nil
	}
	cal := NewCalibrator(Config{}, frames, identitySolver(), logging.NewTestLogger(t))

	_, err := cal.TakeSample(context.Background())
	var timeoutErr *TransformTimeoutError
	test.That(t, errors.As(err, &timeoutErr), test.ShouldBeTrue)
	test.That(t, timeoutErr.From, test.ShouldEqual, "optical_origin")

	test.That(t, cal.SampleCount(), test.ShouldEqual, 0)
	test.That(t, cal.State(), test.ShouldEqual, StateIdle)
	// The optical await failed, so no lookup should have run at all.
	test.That(t, frames.transformCalls, test.ShouldHaveLength, 0)
}

func TestTakeSampleLookupFailureLeavesNoSample(t *testing.T) {
	frames := newFakeFrameSource()
	delete(frames.transforms, "optical_origin->optical_target")
	cal := NewCalibrator(Config{}, frames, identitySolver(), logging.NewTestLogger(t))

	_, err := cal.TakeSample(context.Background())
	var unavailErr *TransformUnavailableError
	test.That(t, errors.As(err, &unavailErr), test.ShouldBeTrue)

	// The robot lookup succeeded, but no half-sample may be recorded.
	test.That(t, cal.SampleCount(), test.ShouldEqual, 0)
}

func TestComputeInsufficientSamples(t *testing.T) {
	frames := newFakeFrameSource()
	solverCalled := false
	sol := funcSolver(func(ctx context.Context, robot, optical []RigidTransform) (RigidTransform, error) {
		solverCalled = true
		return IdentityTransform(), nil
	})
	cal := NewCalibrator(Config{}, frames, sol, logging.NewTestLogger(t))

	_, err := cal.TakeSample(context.Background())
	test.That(t, err, test.ShouldBeNil)

	result, err := cal.Compute(context.Background())
	test.That(t, result, test.ShouldBeNil)
	var insufficientErr *InsufficientSamplesError
	test.That(t, errors.As(err, &insufficientErr), test.ShouldBeTrue)
	test.That(t, insufficientErr.Have, test.ShouldEqual, 1)
	test.That(t, insufficientErr.Min, test.ShouldEqual, 2)
	test.That(t, insufficientErr.Needed(), test.ShouldEqual, 1)

	test.That(t, solverCalled, test.ShouldBeFalse)
	test.That(t, cal.SampleCount(), test.ShouldEqual, 1)
}

func TestComputeSuccess(t *testing.T) {
	frames := newFakeFrameSource()
	solved := NewRigidTransform(r3.Vector{X: 12, Y: 34, Z: 56}, quat.Number{Real: 1})
	var gotRobot, gotOptical []RigidTransform
	sol := funcSolver(func(ctx context.Context, robot, optical []RigidTransform) (RigidTransform, error) {
		gotRobot, gotOptical = robot, optical
		return solved, nil
	})
	cal := NewCalibrator(Config{EyeOnHand: true}, frames, sol, logging.NewTestLogger(t))

	for i := 0; i < 3; i++ {
		_, err := cal.TakeSample(context.Background())
		test.That(t, err, test.ShouldBeNil)
	}
	test.That(t, cal.State(), test.ShouldEqual, StateReady)

	result, err := cal.Compute(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, result.Transform, test.ShouldResemble, solved)
	test.That(t, result.EyeOnHand, test.ShouldBeTrue)
	test.That(t, result.BaseLinkFrame, test.ShouldEqual, "base_link")
	test.That(t, result.ToolFrame, test.ShouldEqual, "tool0")
	test.That(t, result.OpticalOriginFrame, test.ShouldEqual, "optical_origin")
	test.That(t, cal.State(), test.ShouldEqual, StateCalibrated)
	test.That(t, cal.Result(), test.ShouldEqual, result)

	// The solver saw one robot and one optical entry per sample, aligned.
	test.That(t, gotRobot, test.ShouldHaveLength, 3)
	test.That(t, gotOptical, test.ShouldHaveLength, 3)
	test.That(t, gotRobot[0], test.ShouldResemble, frames.transforms["base_link->tool0"])
	test.That(t, gotOptical[0], test.ShouldResemble, frames.transforms["optical_origin->optical_target"])

	// Samples survive a successful solve; more can still be added.
	test.That(t, cal.SampleCount(), test.ShouldEqual, 3)
}

func TestComputeEyeOnBaseIdentityScenario(t *testing.T) {
	frames := newFakeFrameSource()
	var gotLens [2]int
	sol := funcSolver(func(ctx context.Context, robot, optical []RigidTransform) (RigidTransform, error) {
		gotLens = [2]int{len(robot), len(optical)}
		return IdentityTransform(), nil
	})
	cal := NewCalibrator(Config{EyeOnHand: false}, frames, sol, logging.NewTestLogger(t))

	for i := 0; i < 2; i++ {
		_, err := cal.TakeSample(context.Background())
		test.That(t, err, test.ShouldBeNil)
	}

	result, err := cal.Compute(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, gotLens, test.ShouldResemble, [2]int{2, 2})
	test.That(t, result.Transform, test.ShouldResemble, IdentityTransform())
	test.That(t, result.EyeOnHand, test.ShouldBeFalse)
}

func TestComputeSolverFailureKeepsSamples(t *testing.T) {
	frames := newFakeFrameSource()
	sol := funcSolver(func(ctx context.Context, robot, optical []RigidTransform) (RigidTransform, error) {
		return RigidTransform{}, errors.New("singular configuration")
	})
	cal := NewCalibrator(Config{}, frames, sol, logging.NewTestLogger(t))

	for i := 0; i < 2; i++ {
		_, err := cal.TakeSample(context.Background())
		test.That(t, err, test.ShouldBeNil)
	}

	result, err := cal.Compute(context.Background())
	test.That(t, result, test.ShouldBeNil)
	var solverErr *SolverFailureError
	test.That(t, errors.As(err, &solverErr), test.ShouldBeTrue)
	test.That(t, solverErr.Error(), test.ShouldContainSubstring, "singular configuration")

	test.That(t, cal.SampleCount(), test.ShouldEqual, 2)
	test.That(t, cal.State(), test.ShouldEqual, StateReady)
	test.That(t, cal.Result(), test.ShouldBeNil)
}

func TestComputeDoesNotDoubleWrapSolverErrors(t *testing.T) {
	frames := newFakeFrameSource()
	typed := &SolverFailureError{Cause: errors.New("no answer")}
	sol := funcSolver(func(ctx context.Context, robot, optical []RigidTransform) (RigidTransform, error) {
		return RigidTransform{}, typed
	})
	cal := NewCalibrator(Config{}, frames, sol, logging.NewTestLogger(t))

	for i := 0; i < 2; i++ {
		_, err := cal.TakeSample(context.Background())
		test.That(t, err, test.ShouldBeNil)
	}

	_, err := cal.Compute(context.Background())
	var solverErr *SolverFailureError
	test.That(t, errors.As(err, &solverErr), test.ShouldBeTrue)
	test.That(t, solverErr, test.ShouldEqual, typed)
}

func TestRemoveSampleMovesStateBack(t *testing.T) {
	frames := newFakeFrameSource()
	cal := NewCalibrator(Config{}, frames, identitySolver(), logging.NewTestLogger(t))

	for i := 0; i < 2; i++ {
		_, err := cal.TakeSample(context.Background())
		test.That(t, err, test.ShouldBeNil)
	}
	test.That(t, cal.State(), test.ShouldEqual, StateReady)

	test.That(t, cal.RemoveSample(0), test.ShouldBeTrue)
	test.That(t, cal.State(), test.ShouldEqual, StateCollecting)

	test.That(t, cal.RemoveSample(7), test.ShouldBeFalse)
	test.That(t, cal.SampleCount(), test.ShouldEqual, 1)

	test.That(t, cal.RemoveSample(0), test.ShouldBeTrue)
	test.That(t, cal.State(), test.ShouldEqual, StateIdle)
}

func TestResultSurvivesSampleMutations(t *testing.T) {
	frames := newFakeFrameSource()
	cal := NewCalibrator(Config{}, frames, identitySolver(), logging.NewTestLogger(t))

	for i := 0; i < 2; i++ {
		_, err := cal.TakeSample(context.Background())
		test.That(t, err, test.ShouldBeNil)
	}
	result, err := cal.Compute(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cal.State(), test.ShouldEqual, StateCalibrated)

	// Clearing drops the samples and the calibrated state, but the last
	// result stays readable for anyone still holding the session.
	test.That(t, cal.ClearSamples(), test.ShouldEqual, 2)
	test.That(t, cal.State(), test.ShouldEqual, StateIdle)
	test.That(t, cal.Result(), test.ShouldEqual, result)
}

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{}.WithDefaults()
	test.That(t, cfg.BaseLinkFrame, test.ShouldEqual, DefaultBaseLinkFrame)
	test.That(t, cfg.ToolFrame, test.ShouldEqual, DefaultToolFrame)
	test.That(t, cfg.OpticalOriginFrame, test.ShouldEqual, DefaultOpticalOriginFrame)
	test.That(t, cfg.OpticalTargetFrame, test.ShouldEqual, DefaultOpticalTargetFrame)
	test.That(t, cfg.MinSamples, test.ShouldEqual, DefaultMinSamples)
	test.That(t, cfg.RobotWait, test.ShouldEqual, DefaultRobotWait)
	test.That(t, cfg.OpticalWait, test.ShouldEqual, DefaultOpticalWait)

	// Set values are left alone.
	custom := Config{ToolFrame: "gripper", MinSamples: 5}.WithDefaults()
	test.That(t, custom.ToolFrame, test.ShouldEqual, "gripper")
	test.That(t, custom.MinSamples, test.ShouldEqual, 5)
}

func TestMinSamplesConfigurable(t *testing.T) {
	frames := newFakeFrameSource()
	cal := NewCalibrator(Config{MinSamples: 4}, frames, identitySolver(), logging.NewTestLogger(t))

	for i := 0; i < 3; i++ {
		_, err := cal.TakeSample(context.Background())
		test.That(t, err, test.ShouldBeNil)
	}
	test.That(t, cal.State(), test.ShouldEqual, StateCollecting)

	_, err := cal.Compute(context.Background())
	var insufficientErr *InsufficientSamplesError
	test.That(t, errors.As(err, &insufficientErr), test.ShouldBeTrue)
	test.That(t, insufficientErr.Needed(), test.ShouldEqual, 1)

	_, err = cal.TakeSample(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cal.State(), test.ShouldEqual, StateReady)

	_, err = cal.Compute(context.Background())
	test.That(t, err, test.ShouldBeNil)
}
