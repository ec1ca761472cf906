package models

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/erh/vmodutils"
	"github.com/erh/vmodutils/touch"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/robot"
	genericservice "go.viam.com/rdk/services/generic"

	"handeyecalibration/calibration"
	"handeyecalibration/frames"
	"handeyecalibration/solver"
)

var (
	Calibrator = resource.NewModel("viam", "hand-eye-calibration", "calibrator")
)

func init() {
	resource.RegisterService(genericservice.API, Calibrator,
		resource.Registration[resource.Resource, *Config]{
			Constructor: newCalibrator,
		},
	)
}

type Config struct {
	SolverService      string  `json:"solver_service"`
	EyeOnHand          bool    `json:"eye_on_hand"`
	BaseLinkFrame      string  `json:"base_link_frame"`
	ToolFrame          string  `json:"tool_frame"`
	OpticalOriginFrame string  `json:"optical_origin_frame"`
	OpticalTargetFrame string  `json:"optical_target_frame"`
	MinSamples         int     `json:"min_samples"`
	RobotWaitSec       float64 `json:"robot_wait_sec"`
	OpticalWaitSec     float64 `json:"optical_wait_sec"`
}

// Validate ensures all parts of the config are valid and important fields exist.
// Returns implicit required (first return) and optional (second return) dependencies based on the config.
// The path is the JSON path in your robot's config (not the `Config` struct) to the
// resource being validated; e.g. "components.0".
func (cfg *Config) Validate(path string) ([]string, []string, error) {
	if cfg.SolverService == "" {
		return nil, nil, errors.New("solver_service is required")
	}
	if cfg.MinSamples != 0 && cfg.MinSamples < 2 {
		return nil, nil, errors.New("min_samples must be at least 2")
	}
	if cfg.RobotWaitSec < 0 {
		return nil, nil, errors.New("robot_wait_sec must not be negative")
	}
	if cfg.OpticalWaitSec < 0 {
		return nil, nil, errors.New("optical_wait_sec must not be negative")
	}
	return nil, nil, nil
}

// domainConfig maps the resource config onto the session config. Unset
// values stay zero so the session defaults apply.
func (cfg *Config) domainConfig() calibration.Config {
	c := calibration.Config{
		EyeOnHand:          cfg.EyeOnHand,
		BaseLinkFrame:      cfg.BaseLinkFrame,
		ToolFrame:          cfg.ToolFrame,
		OpticalOriginFrame: cfg.OpticalOriginFrame,
		OpticalTargetFrame: cfg.OpticalTargetFrame,
		MinSamples:         cfg.MinSamples,
	}
	if cfg.RobotWaitSec > 0 {
		c.RobotWait = time.Duration(cfg.RobotWaitSec * float64(time.Second))
	}
	if cfg.OpticalWaitSec > 0 {
		c.OpticalWait = time.Duration(cfg.OpticalWaitSec * float64(time.Second))
	}
	return c
}

// calibratorService exposes one calibration session as a generic service.
// Sample-taking, removal, and compute can arrive as concurrent gRPC
// requests, so one mutex serializes every operation against the session.
type calibratorService struct {
	resource.AlwaysRebuild

	name   resource.Name
	logger logging.Logger

	mu  sync.Mutex
	cal *calibration.Calibrator

	machine robot.Robot // nil when collaborators were injected directly
}

func newCalibrator(ctx context.Context, deps resource.Dependencies, rawConf resource.Config, logger logging.Logger) (resource.Resource, error) {
	conf, err := resource.NativeConfig[*Config](rawConf)
	if err != nil {
		return nil, err
	}

	machine, err := vmodutils.ConnectToMachineFromEnv(ctx, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to machine: %w", err)
	}

	solverRes, err := machine.ResourceByName(genericservice.Named(conf.SolverService))
	if err != nil {
		machine.Close(ctx)
		return nil, fmt.Errorf("failed to find solver service %q: %w", conf.SolverService, err)
	}

	domainCfg := conf.domainConfig().WithDefaults()
	solverClient := solver.NewClient(solverRes, domainCfg.OpticalOriginFrame, logger)

	// The solver must answer before the session accepts any work; a wrong
	// name or dead service should fail here, not after an hour of sampling.
	if err := solverClient.Ping(ctx); err != nil {
		machine.Close(ctx)
		return nil, err
	}

	return NewCalibrationService(rawConf.ResourceName(), domainCfg,
		frames.NewMachineSource(machine, logger), solverClient, machine, logger), nil
}

// NewCalibrationService wires a calibration session over explicit
// collaborators. machine may be nil when the source and solver come from
// somewhere else (offline runs, tests); when set it is closed with the
// service.
func NewCalibrationService(name resource.Name, cfg calibration.Config, source calibration.FrameSource,
	solve calibration.Solver, machine robot.Robot, logger logging.Logger,
) resource.Resource {
	return &calibratorService{
		name:    name,
		logger:  logger,
		cal:     calibration.NewCalibrator(cfg, source, solve, logger),
		machine: machine,
	}
}

func (s *calibratorService) Name() resource.Name {
	return s.name
}

func (s *calibratorService) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Debugf("DoCommand: %+v", cmd)
	switch cmd["command"] {
	case "take-sample":
		sample, err := s.cal.TakeSample(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"status":       "sampled",
			"sample_count": s.cal.SampleCount(),
			"state":        string(s.cal.State()),
			"robot":        sample.Robot.AsMap(),
			"optical":      sample.Optical.AsMap(),
			"taken_at":     sample.At.Format(time.RFC3339Nano),
		}, nil

	case "remove-sample":
		idx, ok := cmd["index"].(float64) // numbers arrive as float64 over DoCommand
		if !ok {
			return nil, fmt.Errorf("index is required and must be a number")
		}
		removed := s.cal.RemoveSample(int(idx))
		return map[string]interface{}{
			"removed":      removed,
			"sample_count": s.cal.SampleCount(),
			"state":        string(s.cal.State()),
		}, nil

	case "sample-count":
		return map[string]interface{}{"sample_count": s.cal.SampleCount()}, nil

	case "list-samples":
		samples := s.cal.Samples()
		out := make([]interface{}, len(samples))
		for i, smp := range samples {
			out[i] = map[string]interface{}{
				"index":    i,
				"robot":    smp.Robot.AsMap(),
				"optical":  smp.Optical.AsMap(),
				"taken_at": smp.At.Format(time.RFC3339Nano),
			}
		}
		return map[string]interface{}{"samples": out, "sample_count": len(samples)}, nil

	case "clear-samples":
		n := s.cal.ClearSamples()
		return map[string]interface{}{
			"status":       "cleared",
			"removed":      n,
			"state":        string(s.cal.State()),
			"sample_count": s.cal.SampleCount(),
		}, nil

	case "sample-quality":
		return s.cal.Quality().AsMap(), nil

	case "compute-calibration":
		result, err := s.cal.Compute(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"status":      "calibrated",
			"state":       string(s.cal.State()),
			"calibration": result.AsMap(),
		}, nil

	case "status":
		return s.status(ctx), nil

	default:
		return nil, fmt.Errorf("invalid command: %v", cmd["command"])
	}
}

func (s *calibratorService) status(ctx context.Context) map[string]interface{} {
	cfg := s.cal.Config()
	out := map[string]interface{}{
		"state":                string(s.cal.State()),
		"sample_count":         s.cal.SampleCount(),
		"min_samples":          cfg.MinSamples,
		"eye_on_hand":          cfg.EyeOnHand,
		"base_link_frame":      cfg.BaseLinkFrame,
		"tool_frame":           cfg.ToolFrame,
		"optical_origin_frame": cfg.OpticalOriginFrame,
		"optical_target_frame": cfg.OpticalTargetFrame,
	}
	if needed := cfg.MinSamples - s.cal.SampleCount(); needed > 0 {
		out["samples_needed"] = needed
	}
	if result := s.cal.Result(); result != nil {
		out["calibration"] = result.AsMap()
	}
	if s.machine != nil {
		out["frames_present"] = s.framesPresent(ctx)
	}
	return out
}

// framesPresent reports which configured frames exist in the machine's
// frame system, for operators debugging a session that will not sample.
func (s *calibratorService) framesPresent(ctx context.Context) map[string]interface{} {
	fsc, err := s.machine.FrameSystemConfig(ctx)
	if err != nil {
		s.logger.Warnf("failed to get frame system config: %v", err)
		return nil
	}
	cfg := s.cal.Config()
	present := map[string]interface{}{}
	for _, frame := range []string{cfg.BaseLinkFrame, cfg.ToolFrame, cfg.OpticalOriginFrame, cfg.OpticalTargetFrame} {
		present[frame] = touch.FindPart(fsc, frame) != nil
	}
	return present
}

func (s *calibratorService) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.machine != nil {
		return s.machine.Close(ctx)
	}
	return nil
}
