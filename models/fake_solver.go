package models

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	genericservice "go.viam.com/rdk/services/generic"
	goutils "go.viam.com/utils"

	"handeyecalibration/calibration"
)

var (
	FakeSolver = resource.NewModel("viam", "hand-eye-calibration", "fake-solver")
)

func init() {
	resource.RegisterService(genericservice.API, FakeSolver,
		resource.Registration[resource.Resource, *FakeSolverConfig]{
			Constructor: newFakeSolver,
		},
	)
}

// FakeSolverConfig configures a stand-in solver. It answers every solve
// request with a fixed transform, so sessions can be exercised end to end
// without the real solver process running.
type FakeSolverConfig struct {
	Transform map[string]interface{} `json:"transform"`
	LatencyMs int                    `json:"latency_ms"`
	Fail      bool                   `json:"fail"`
}

// Validate ensures all parts of the config are valid and important fields exist.
// Returns implicit required (first return) and optional (second return) dependencies based on the config.
// The path is the JSON path in your robot's config (not the `Config` struct) to the
// resource being validated; e.g. "components.0".
func (cfg *FakeSolverConfig) Validate(path string) ([]string, []string, error) {
	if cfg.Transform != nil {
		if _, err := calibration.RigidTransformFromMap(cfg.Transform); err != nil {
			return nil, nil, fmt.Errorf("transform is invalid: %w", err)
		}
	}
	if cfg.LatencyMs < 0 {
		return nil, nil, errors.New("latency_ms must not be negative")
	}
	return nil, nil, nil
}

type fakeSolver struct {
	resource.TriviallyCloseable
	resource.TriviallyReconfigurable

	name     resource.Name
	logger   logging.Logger
	response calibration.RigidTransform
	latency  time.Duration
	fail     bool

	mu         sync.Mutex
	solveCalls int
}

func newFakeSolver(ctx context.Context, deps resource.Dependencies, rawConf resource.Config, logger logging.Logger) (resource.Resource, error) {
	conf, err := resource.NativeConfig[*FakeSolverConfig](rawConf)
	if err != nil {
		return nil, err
	}
	return NewFakeSolver(rawConf.ResourceName(), conf, logger)
}

// NewFakeSolver builds the stand-in solver directly, for tests and offline runs.
func NewFakeSolver(name resource.Name, conf *FakeSolverConfig, logger logging.Logger) (resource.Resource, error) {
	response := calibration.IdentityTransform()
	if conf.Transform != nil {
		tf, err := calibration.RigidTransformFromMap(conf.Transform)
		if err != nil {
			return nil, err
		}
		response = tf
	}
	return &fakeSolver{
		name:     name,
		logger:   logger,
		response: response,
		latency:  time.Duration(conf.LatencyMs) * time.Millisecond,
		fail:     conf.Fail,
	}, nil
}

func (s *fakeSolver) Name() resource.Name {
	return s.name
}

func (s *fakeSolver) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	switch cmd["command"] {
	case "status":
		s.mu.Lock()
		calls := s.solveCalls
		s.mu.Unlock()
		return map[string]interface{}{"ready": true, "solve_calls": calls}, nil

	case "solve":
		return s.solve(ctx, cmd)

	default:
		return nil, fmt.Errorf("invalid command: %v", cmd["command"])
	}
}

func (s *fakeSolver) solve(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	if s.latency > 0 {
		if !goutils.SelectContextOrWait(ctx, s.latency) {
			return nil, ctx.Err()
		}
	}

	hand, ok := cmd["hand_world_samples"].([]interface{})
	if !ok {
		return nil, errors.New("hand_world_samples is required")
	}
	marker, ok := cmd["camera_marker_samples"].([]interface{})
	if !ok {
		return nil, errors.New("camera_marker_samples is required")
	}
	if len(hand) != len(marker) {
		return nil, fmt.Errorf("sample lists differ in length: %d vs %d", len(hand), len(marker))
	}
	if len(hand) < 2 {
		return nil, fmt.Errorf("at least 2 sample pairs are required, got %d", len(hand))
	}

	if s.fail {
		return nil, errors.New("solve failed")
	}

	s.mu.Lock()
	s.solveCalls++
	s.mu.Unlock()

	s.logger.Debugf("solved with %d sample pairs for frame %v", len(hand), cmd["frame_id"])
	return map[string]interface{}{
		"effector_camera": s.response.AsMap(),
		"sample_count":    len(hand),
	}, nil
}
