package calibration

import (
	"context"
	"errors"
	"time"

	"go.viam.com/rdk/logging"
)

// Frame-name defaults matching the usual robot setup.
const (
	DefaultToolFrame          = "tool0"
	DefaultBaseLinkFrame      = "base_link"
	DefaultOpticalOriginFrame = "optical_origin"
	DefaultOpticalTargetFrame = "optical_target"
)

// DefaultMinSamples is the two-pose minimum the solver's paper states.
// TODO: confirm two poses are actually enough; the paper says so but
// results with so few pairs are poor in practice.
const DefaultMinSamples = 2

// The kinematic chain reports almost immediately; optical marker tracking
// can take much longer to first acquire the target.
const (
	DefaultRobotWait   = 10 * time.Second
	DefaultOpticalWait = 60 * time.Second
)

// State describes where a calibration session is in its lifecycle.
type State string

const (
	StateIdle       State = "idle"
	StateCollecting State = "collecting"
	StateReady      State = "ready"
	StateComputing  State = "computing"
	StateCalibrated State = "calibrated"
)

// FrameSource resolves rigid transforms between named coordinate frames.
type FrameSource interface {
	// Now reports the current tracking time, used to pick the single
	// instant shared by both lookups of one sampling operation.
	Now() time.Time
	// AwaitTransform blocks until a transform between the two frames is
	// resolvable or the timeout elapses. A pair that never resolves is a
	// *TransformTimeoutError, not a hang. A pair that resolves late is
	// simply a longer wait; the caller reads at an instant it picks once
	// availability is confirmed.
	AwaitTransform(ctx context.Context, from, to string, timeout time.Duration) error
	// Transform returns the rigid transform carrying poses in the from
	// frame into the to frame at the given instant.
	Transform(ctx context.Context, from, to string, at time.Time) (RigidTransform, error)
}

// Solver computes a hand-eye calibration from two index-aligned pose
// sequences: the robot-chain transforms and the optical transforms.
type Solver interface {
	Solve(ctx context.Context, robot, optical []RigidTransform) (RigidTransform, error)
}

// Config is the immutable per-session configuration. Zero values take the
// package defaults.
type Config struct {
	// EyeOnHand is true when the camera rides the end effector, false when
	// it is fixed relative to the robot base.
	EyeOnHand          bool
	BaseLinkFrame      string
	ToolFrame          string
	OpticalOriginFrame string
	OpticalTargetFrame string
	MinSamples         int
	RobotWait          time.Duration
	OpticalWait        time.Duration
}

// WithDefaults returns a copy with zero values replaced by the package
// defaults.
func (c Config) WithDefaults() Config {
	if c.BaseLinkFrame == "" {
		c.BaseLinkFrame = DefaultBaseLinkFrame
	}
	if c.ToolFrame == "" {
		c.ToolFrame = DefaultToolFrame
	}
	if c.OpticalOriginFrame == "" {
		c.OpticalOriginFrame = DefaultOpticalOriginFrame
	}
	if c.OpticalTargetFrame == "" {
		c.OpticalTargetFrame = DefaultOpticalTargetFrame
	}
	if c.MinSamples == 0 {
		c.MinSamples = DefaultMinSamples
	}
	if c.RobotWait == 0 {
		c.RobotWait = DefaultRobotWait
	}
	if c.OpticalWait == 0 {
		c.OpticalWait = DefaultOpticalWait
	}
	return c
}

// Result records a successful calibration: the solved transform plus the
// configuration context needed to interpret it.
type Result struct {
	EyeOnHand          bool
	BaseLinkFrame      string
	ToolFrame          string
	OpticalOriginFrame string
	Transform          RigidTransform
}

func (r *Result) AsMap() map[string]interface{} {
	return map[string]interface{}{
		"eye_on_hand":          r.EyeOnHand,
		"base_link_frame":      r.BaseLinkFrame,
		"tool_frame":           r.ToolFrame,
		"optical_origin_frame": r.OpticalOriginFrame,
		"transform":            r.Transform.AsMap(),
	}
}

// Calibrator runs one hand-eye calibration session: it collects paired
// robot/optical samples against a frame source and, on demand, submits them
// to a solver. Not safe for concurrent use; callers serialize access.
type Calibrator struct {
	cfg    Config
	frames FrameSource
	solver Solver
	logger logging.Logger

	store  *SampleStore
	state  State
	result *Result
}

func NewCalibrator(cfg Config, frames FrameSource, solver Solver, logger logging.Logger) *Calibrator {
	return &Calibrator{
		cfg:    cfg.WithDefaults(),
		frames: frames,
		solver: solver,
		logger: logger,
		store:  NewSampleStore(),
		state:  StateIdle,
	}
}

// robotFramePair returns the lookup direction for the robot half of a
// sample. Eye-on-hand reads base to tool; eye-on-base reads tool to base.
// The chain inverts because the camera's frame of reference relative to the
// moving part flips with the mount point.
func (c *Calibrator) robotFramePair() (string, string) {
	if c.cfg.EyeOnHand {
		return c.cfg.BaseLinkFrame, c.cfg.ToolFrame
	}
	return c.cfg.ToolFrame, c.cfg.BaseLinkFrame
}

// TakeSample reads the robot and optical transforms at one shared instant
// and appends them as a new sample. Both pairs are awaited first, then one
// instant is pinned for both lookups: pinning before the awaits would let a
// slow optical acquisition age the instant out from under its own lookup.
// On any failure nothing is recorded, so a timed-out attempt never leaves a
// partial sample behind.
func (c *Calibrator) TakeSample(ctx context.Context) (Sample, error) {
	robotFrom, robotTo := c.robotFramePair()

	if err := c.frames.AwaitTransform(ctx, robotFrom, robotTo, c.cfg.RobotWait); err != nil {
		return Sample{}, err
	}
	if err := c.frames.AwaitTransform(ctx, c.cfg.OpticalOriginFrame, c.cfg.OpticalTargetFrame, c.cfg.OpticalWait); err != nil {
		return Sample{}, err
	}

	at := c.frames.Now()
	robot, err := c.frames.Transform(ctx, robotFrom, robotTo, at)
	if err != nil {
		return Sample{}, err
	}
	optical, err := c.frames.Transform(ctx, c.cfg.OpticalOriginFrame, c.cfg.OpticalTargetFrame, at)
	if err != nil {
		return Sample{}, err
	}

	sample := Sample{Robot: robot, Optical: optical, At: at}
	c.store.Append(sample)
	c.state = c.countState()
	c.logger.Infof("sample %d: robot %q to %q, optical %q to %q",
		c.store.Count(), robotFrom, robotTo, c.cfg.OpticalOriginFrame, c.cfg.OpticalTargetFrame)
	return sample, nil
}

// RemoveSample drops the sample at the given index, reporting whether
// anything was removed. May move the session state backward.
func (c *Calibrator) RemoveSample(i int) bool {
	removed := c.store.RemoveAt(i)
	c.state = c.countState()
	return removed
}

// ClearSamples ends the sample set, reporting how many were dropped. The
// last result, if any, stays readable.
func (c *Calibrator) ClearSamples() int {
	n := c.store.Clear()
	c.state = c.countState()
	return n
}

func (c *Calibrator) SampleCount() int { return c.store.Count() }

func (c *Calibrator) Samples() []Sample { return c.store.Samples() }

func (c *Calibrator) State() State { return c.state }

// Result returns the record of the last successful computation, or nil.
func (c *Calibrator) Result() *Result { return c.result }

func (c *Calibrator) Config() Config { return c.cfg }

// Quality assesses how well the current samples span the workspace.
func (c *Calibrator) Quality() SampleQuality { return AssessSamples(c.store.Samples()) }

// Compute submits the collected samples to the solver. With fewer than the
// configured minimum it reports *InsufficientSamplesError without invoking
// the solver. On solver failure the samples stay intact so the caller can
// retry or collect more first. No partial result is ever produced.
func (c *Calibrator) Compute(ctx context.Context) (*Result, error) {
	if n := c.store.Count(); n < c.cfg.MinSamples {
		err := &InsufficientSamplesError{Have: n, Min: c.cfg.MinSamples}
		c.logger.Warn(err.Error())
		return nil, err
	}

	robot, optical := c.store.Aligned()
	if len(robot) != len(optical) {
		err := &MisalignedSamplesError{Robot: len(robot), Optical: len(optical)}
		c.logger.Errorf("refusing to solve: %v", err)
		return nil, err
	}

	for _, w := range c.Quality().Warnings {
		c.logger.Warnf("sample quality: %s", w)
	}

	c.state = StateComputing
	c.logger.Infof("requesting calibration from solver with %d sample pairs", len(robot))
	tf, err := c.solver.Solve(ctx, robot, optical)
	if err != nil {
		c.state = c.countState()
		var solveErr *SolverFailureError
		if !errors.As(err, &solveErr) {
			solveErr = &SolverFailureError{Cause: err}
		}
		c.logger.Warnf("calibration attempt failed, %d samples kept: %v", c.store.Count(), solveErr)
		return nil, solveErr
	}

	c.result = &Result{
		EyeOnHand:          c.cfg.EyeOnHand,
		BaseLinkFrame:      c.cfg.BaseLinkFrame,
		ToolFrame:          c.cfg.ToolFrame,
		OpticalOriginFrame: c.cfg.OpticalOriginFrame,
		Transform:          tf,
	}
	c.state = StateCalibrated
	c.logger.Infof("calibration complete: translation (%.3f, %.3f, %.3f)",
		tf.Translation.X, tf.Translation.Y, tf.Translation.Z)
	return c.result, nil
}

// countState derives the collect-phase state from the sample count.
func (c *Calibrator) countState() State {
	switch n := c.store.Count(); {
	case n == 0:
		return StateIdle
	case n < c.cfg.MinSamples:
		return StateCollecting
	default:
		return StateReady
	}
}
