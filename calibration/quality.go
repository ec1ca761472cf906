package calibration

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

// Spread thresholds below which the solver is poorly conditioned. The
// hand-eye problem needs robot poses that differ in both position and
// orientation; near-identical poses give it nothing to work with.
const (
	minTranslationSpreadMM = 10.0
	minRotationSpanDeg     = 10.0
)

// SampleQuality summarizes how well a sample set spans the workspace.
type SampleQuality struct {
	Count int
	// TranslationSpreads are the standard deviations of the robot
	// translations along their principal axes, largest first, in mm.
	TranslationSpreads [3]float64
	// RotationSpanDeg is the widest angle between any two robot rotations.
	RotationSpanDeg float64
	Warnings        []string
}

func (q SampleQuality) AsMap() map[string]interface{} {
	warnings := make([]interface{}, len(q.Warnings))
	for i, w := range q.Warnings {
		warnings[i] = w
	}
	return map[string]interface{}{
		"sample_count": q.Count,
		"translation_spreads_mm": []interface{}{
			q.TranslationSpreads[0], q.TranslationSpreads[1], q.TranslationSpreads[2],
		},
		"rotation_span_deg": q.RotationSpanDeg,
		"warnings":          warnings,
	}
}

// AssessSamples measures the pose diversity of a sample set and flags
// arrangements known to produce bad calibrations.
func AssessSamples(samples []Sample) SampleQuality {
	q := SampleQuality{Count: len(samples)}
	if len(samples) < 2 {
		q.Warnings = append(q.Warnings, "fewer than two samples; nothing to assess")
		return q
	}

	points := make([]r3.Vector, len(samples))
	for i, s := range samples {
		points[i] = s.Robot.Translation
	}
	q.TranslationSpreads = principalSpreads(points)
	q.RotationSpanDeg = rotationSpanDeg(samples)

	if q.TranslationSpreads[0] < minTranslationSpreadMM {
		q.Warnings = append(q.Warnings, fmt.Sprintf(
			"robot positions barely move (largest spread %.1fmm); spread the poses out", q.TranslationSpreads[0]))
	} else if q.TranslationSpreads[1] < minTranslationSpreadMM {
		q.Warnings = append(q.Warnings,
			"robot positions are nearly collinear; vary them in more directions")
	}
	if q.RotationSpanDeg < minRotationSpanDeg {
		q.Warnings = append(q.Warnings, fmt.Sprintf(
			"robot orientations span only %.1f degrees; rotate the tool between samples", q.RotationSpanDeg))
	}
	return q
}

// principalSpreads returns the standard deviations of the points along
// their principal axes, largest first.
func principalSpreads(points []r3.Vector) [3]float64 {
	centroid := r3.Vector{}
	for _, p := range points {
		centroid = centroid.Add(p)
	}
	centroid = centroid.Mul(1.0 / float64(len(points)))

	covData := make([]float64, 9)
	for _, p := range points {
		d := p.Sub(centroid)
		covData[0] += d.X * d.X
		covData[1] += d.X * d.Y
		covData[2] += d.X * d.Z
		covData[4] += d.Y * d.Y
		covData[5] += d.Y * d.Z
		covData[8] += d.Z * d.Z
	}
	covData[3], covData[6], covData[7] = covData[1], covData[2], covData[5]
	for i := range covData {
		covData[i] /= float64(len(points))
	}

	var eig mat.EigenSym
	if !eig.Factorize(mat.NewSymDense(3, covData), false) {
		return [3]float64{}
	}

	values := eig.Values(nil) // ascending
	var spreads [3]float64
	for i, v := range values {
		if v < 0 {
			v = 0 // tiny negative eigenvalues from float error
		}
		spreads[2-i] = math.Sqrt(v)
	}
	return spreads
}

func rotationSpanDeg(samples []Sample) float64 {
	span := 0.0
	for i := 0; i < len(samples); i++ {
		for j := i + 1; j < len(samples); j++ {
			a := rotationAngleDeg(samples[i].Robot.Rotation, samples[j].Robot.Rotation)
			if a > span {
				span = a
			}
		}
	}
	return span
}

// rotationAngleDeg is the angle of the relative rotation between two unit
// quaternions, insensitive to the q/-q double cover.
func rotationAngleDeg(a, b quat.Number) float64 {
	dot := a.Real*b.Real + a.Imag*b.Imag + a.Jmag*b.Jmag + a.Kmag*b.Kmag
	dot = math.Abs(dot)
	if dot > 1 {
		dot = 1
	}
	return 2 * math.Acos(dot) * 180 / math.Pi
}
