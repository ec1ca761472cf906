package main

import (
	"context"
	"fmt"

	"handeyecalibration/calibration"
	"handeyecalibration/frames"
	"handeyecalibration/models"
	"handeyecalibration/solver"

	"github.com/golang/geo/r3"
	"go.viam.com/rdk/logging"
	genericservice "go.viam.com/rdk/services/generic"
	"gonum.org/v1/gonum/num/quat"
)

func main() {
	err := realMain()
	if err != nil {
		panic(err)
	}
}

func realMain() error {
	ctx := context.Background()
	logger := logging.NewLogger("cli")

	// Offline run against a static frame layout and the stand-in solver;
	// point the frame source at a live machine if you need real poses.
	solverRes, err := models.NewFakeSolver(genericservice.Named("fake-solver"), &models.FakeSolverConfig{}, logger)
	if err != nil {
		return err
	}
	defer solverRes.Close(ctx)

	source := frames.NewStaticSource()
	source.Set(calibration.DefaultToolFrame, calibration.DefaultBaseLinkFrame,
		calibration.NewRigidTransform(r3.Vector{X: 100, Y: 0, Z: 250}, quat.Number{Real: 1}))
	source.Set(calibration.DefaultOpticalOriginFrame, calibration.DefaultOpticalTargetFrame,
		calibration.NewRigidTransform(r3.Vector{X: 0, Y: 50, Z: 400}, quat.Number{Real: 1}))

	cfg := calibration.Config{}.WithDefaults()
	cal := calibration.NewCalibrator(cfg, source, solver.NewClient(solverRes, cfg.OpticalOriginFrame, logger), logger)

	for i := 0; i < 3; i++ {
		sample, err := cal.TakeSample(ctx)
		if err != nil {
			return err
		}
		logger.Infof("sample %d taken at %v", i, sample.At)
	}

	result, err := cal.Compute(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("calibration: %+v\n", result.AsMap())

	return nil
}
