package calibration

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/rdk/spatialmath"
	"gonum.org/v1/gonum/num/quat"
)

// RigidTransform is a translation plus a rotation quaternion. It is a plain
// value: copies are independent and nothing mutates one after construction.
//
// The rotation is stored exactly as given. A non-unit quaternion is the
// caller's bug to surface, not ours to hide behind normalization.
type RigidTransform struct {
	Translation r3.Vector
	Rotation    quat.Number
}

// NewRigidTransform builds a transform from its components as-is.
func NewRigidTransform(translation r3.Vector, rotation quat.Number) RigidTransform {
	return RigidTransform{Translation: translation, Rotation: rotation}
}

// IdentityTransform returns the do-nothing transform.
func IdentityTransform() RigidTransform {
	return RigidTransform{Rotation: quat.Number{Real: 1}}
}

// TransformFromPose converts a spatialmath pose.
func TransformFromPose(p spatialmath.Pose) RigidTransform {
	return RigidTransform{Translation: p.Point(), Rotation: p.Orientation().Quaternion()}
}

// Pose converts to a spatialmath pose.
func (t RigidTransform) Pose() spatialmath.Pose {
	q := spatialmath.Quaternion(t.Rotation)
	return spatialmath.NewPose(t.Translation, &q)
}

// Compose returns the transform equivalent to applying t, then other,
// following spatialmath.Compose ordering.
func (t RigidTransform) Compose(other RigidTransform) RigidTransform {
	return TransformFromPose(spatialmath.Compose(t.Pose(), other.Pose()))
}

// Inverse returns the transform that undoes t.
func (t RigidTransform) Inverse() RigidTransform {
	return TransformFromPose(spatialmath.PoseInverse(t.Pose()))
}

// ApproxEqual reports whether both transforms are the same within tol:
// translation by euclidean distance, rotation by quaternion dot product.
// q and -q describe the same rotation, so the sign of the dot is ignored.
func (t RigidTransform) ApproxEqual(other RigidTransform, tol float64) bool {
	if t.Translation.Sub(other.Translation).Norm() > tol {
		return false
	}
	dot := t.Rotation.Real*other.Rotation.Real +
		t.Rotation.Imag*other.Rotation.Imag +
		t.Rotation.Jmag*other.Rotation.Jmag +
		t.Rotation.Kmag*other.Rotation.Kmag
	return math.Abs(dot) >= 1-tol
}

// AsMap renders the transform in the shape DoCommand payloads use:
// {"translation": {x,y,z}, "rotation": {w,x,y,z}}. Everything is float64,
// so the trip through a structpb boundary is lossless.
func (t RigidTransform) AsMap() map[string]interface{} {
	return map[string]interface{}{
		"translation": map[string]interface{}{
			"x": t.Translation.X,
			"y": t.Translation.Y,
			"z": t.Translation.Z,
		},
		"rotation": map[string]interface{}{
			"w": t.Rotation.Real,
			"x": t.Rotation.Imag,
			"y": t.Rotation.Jmag,
			"z": t.Rotation.Kmag,
		},
	}
}

// RigidTransformFromMap parses the AsMap shape back into a transform.
func RigidTransformFromMap(m map[string]interface{}) (RigidTransform, error) {
	translation, ok := m["translation"].(map[string]interface{})
	if !ok {
		return RigidTransform{}, errors.New("translation is required and must be a map")
	}
	rotation, ok := m["rotation"].(map[string]interface{})
	if !ok {
		return RigidTransform{}, errors.New("rotation is required and must be a map")
	}

	var t RigidTransform
	var err error
	if t.Translation.X, err = floatField(translation, "translation", "x"); err != nil {
		return RigidTransform{}, err
	}
	if t.Translation.Y, err = floatField(translation, "translation", "y"); err != nil {
		return RigidTransform{}, err
	}
	if t.Translation.Z, err = floatField(translation, "translation", "z"); err != nil {
		return RigidTransform{}, err
	}
	if t.Rotation.Real, err = floatField(rotation, "rotation", "w"); err != nil {
		return RigidTransform{}, err
	}
	if t.Rotation.Imag, err = floatField(rotation, "rotation", "x"); err != nil {
		return RigidTransform{}, err
	}
	if t.Rotation.Jmag, err = floatField(rotation, "rotation", "y"); err != nil {
		return RigidTransform{}, err
	}
	if t.Rotation.Kmag, err = floatField(rotation, "rotation", "z"); err != nil {
		return RigidTransform{}, err
	}
	return t, nil
}

func floatField(m map[string]interface{}, parent, key string) (float64, error) {
	v, ok := m[key].(float64)
	if !ok {
		return 0, errors.Errorf("%s.%s is required and must be a float64", parent, key)
	}
	return v, nil
}
