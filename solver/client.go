// Package solver speaks to an external hand-eye calibration solver exposed
// as a generic service.
//
// The wire contract, over DoCommand:
//
//	{"command": "status"}
//	  -> any non-error response; answered once at startup as the readiness
//	     handshake.
//
//	{"command": "solve",
//	 "frame_id": "<optical origin frame>",
//	 "hand_world_samples": [<transform>, ...],
//	 "camera_marker_samples": [<transform>, ...]}
//	  -> {"effector_camera": <transform>}
//
// where <transform> is {"translation": {x,y,z}, "rotation": {w,x,y,z}}.
// Field names follow the upstream hand-eye solver service so any module
// wrapping one can answer unchanged.
package solver

import (
	"context"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"

	"handeyecalibration/calibration"
)

// Client submits solve requests to a solver resource. Stateless: no retry
// logic lives here, since re-solving identical input is idempotent and
// retries belong to the caller.
type Client struct {
	res     resource.Resource
	frameID string
	logger  logging.Logger
}

// NewClient wraps a solver resource. frameID labels the optical samples
// with the frame they are expressed in.
func NewClient(res resource.Resource, frameID string, logger logging.Logger) *Client {
	return &Client{res: res, frameID: frameID, logger: logger}
}

// Ping verifies the solver answers commands at all. Run once at startup so
// a misconfigured solver name fails the session before any samples are
// collected against it.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.res.DoCommand(ctx, map[string]interface{}{"command": "status"}); err != nil {
		return errors.Wrapf(err, "solver %s not answering", c.res.Name())
	}
	return nil
}

// Solve submits the aligned sequences and decodes the resulting transform.
// Every transport or solver-side failure surfaces as a
// *calibration.SolverFailureError wrapping the cause.
func (c *Client) Solve(ctx context.Context, robot, optical []calibration.RigidTransform) (calibration.RigidTransform, error) {
	handWorld := make([]interface{}, len(robot))
	for i, tf := range robot {
		handWorld[i] = tf.AsMap()
	}
	cameraMarker := make([]interface{}, len(optical))
	for i, tf := range optical {
		cameraMarker[i] = tf.AsMap()
	}

	resp, err := c.res.DoCommand(ctx, map[string]interface{}{
		"command":               "solve",
		"frame_id":              c.frameID,
		"hand_world_samples":    handWorld,
		"camera_marker_samples": cameraMarker,
	})
	if err != nil {
		return calibration.RigidTransform{}, &calibration.SolverFailureError{Cause: err}
	}

	raw, ok := resp["effector_camera"].(map[string]interface{})
	if !ok {
		return calibration.RigidTransform{}, &calibration.SolverFailureError{
			Cause: errors.New("response is missing effector_camera"),
		}
	}
	tf, err := calibration.RigidTransformFromMap(raw)
	if err != nil {
		return calibration.RigidTransform{}, &calibration.SolverFailureError{Cause: err}
	}
	return tf, nil
}
