package multicam

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Observation pairs a retained 2D measurement with its 3D point and camera.
type Observation struct {
	PointIndex  int
	CameraIndex int
	Pixel       r2.Point
	Weight      float64
}

// aggregateObservations collects, camera-major, every correspondence in
// [start,end] whose weight is nonzero, along with per-camera retained
// counts.
func aggregateObservations(
	points3d []r3.Vector,
	points2d [][]r2.Point,
	weights [][]float64,
	start, end int,
) ([]Observation, []int) {
	numCameras := len(weights)
	observations := make([]Observation, 0, numCameras*(end-start+1))
	counts := make([]int, numCameras)
	for cameraIndex := 0; cameraIndex < numCameras; cameraIndex++ {
		for pointIndex := start; pointIndex <= end; pointIndex++ {
			w := weights[cameraIndex][pointIndex]
			if w == 0 {
				continue
			}
			observations = append(observations, Observation{
				PointIndex:  pointIndex,
				CameraIndex: cameraIndex,
				Pixel:       points2d[cameraIndex][pointIndex],
				Weight:      w,
			})
			counts[cameraIndex]++
		}
	}
	return observations, counts
}

// observationStats returns the smallest and largest per-camera retained
// counts and the camera achieving the largest.
func observationStats(counts []int) (minCount, maxCount, maxCamera int) {
	for i, c := range counts {
		if i == 0 || c < minCount {
			minCount = c
		}
		if i == 0 || c > maxCount {
			maxCount = c
			maxCamera = i
		}
	}
	return minCount, maxCount, maxCamera
}

// checkConsistency validates that the per-camera arrays and the camera set
// agree in shape and that enough 3D points are present. All independent
// findings are reported together.
func checkConsistency(
	points3d []r3.Vector,
	points2d [][]r2.Point,
	weights [][]float64,
	cameras []Camera,
) error {
	if len(points3d) < 3 {
		return errors.Wrapf(ErrInsufficientData, "got %d 3D points", len(points3d))
	}

	var err error
	if len(points2d) != len(cameras) {
		err = multierr.Append(err, errors.Errorf(
			"%d sets of 2D points for %d cameras", len(points2d), len(cameras)))
	}
	if len(weights) != len(cameras) {
		err = multierr.Append(err, errors.Errorf(
			"%d sets of weights for %d cameras", len(weights), len(cameras)))
	}
	if err != nil {
		return multierr.Append(ErrInconsistentInput, err)
	}

	for i := range cameras {
		if len(points2d[i]) != len(points3d) {
			err = multierr.Append(err, errors.Errorf(
				"camera %d has %d 2D points for %d 3D points", i, len(points2d[i]), len(points3d)))
		}
		if len(weights[i]) != len(points3d) {
			err = multierr.Append(err, errors.Errorf(
				"camera %d has %d weights for %d 3D points", i, len(weights[i]), len(points3d)))
		}
	}
	if err != nil {
		return multierr.Append(ErrInconsistentInput, err)
	}
	return nil
}
