// Package main contains a command to run hand-eye calibration on recorded
// pose sequences.
package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/num/quat"

	"github.com/SternenKinder/utcore/calibration/handeye"
	"github.com/SternenKinder/utcore/spatialmath"
)

var logger = golog.NewDevelopmentLogger("handeye")

func main() {
	utils.ContextualMain(mainWithArgs, logger)
}

// Arguments for the command.
type Arguments struct {
	InputFile string `flag:"0,required,usage=JSON file with hand/eye pose sequences"`
	AllPairs  bool   `flag:"all-pairs,usage=use every i<j sample pair instead of adjacent pairs"`
	Online    bool   `flag:"online,usage=also run the online rotation-only estimator over the pair stream"`
}

type poseRecord struct {
	Quaternion  [4]float64 `json:"quaternion"` // w, x, y, z
	Translation [3]float64 `json:"translation"`
}

type sequenceFile struct {
	Hand []poseRecord `json:"hand"`
	Eye  []poseRecord `json:"eye"`
}

func (r poseRecord) pose() spatialmath.Pose {
	return spatialmath.NewPose(
		quat.Number{Real: r.Quaternion[0], Imag: r.Quaternion[1], Jmag: r.Quaternion[2], Kmag: r.Quaternion[3]},
		r3.Vector{X: r.Translation[0], Y: r.Translation[1], Z: r.Translation[2]},
	)
}

func mainWithArgs(ctx context.Context, args []string, logger golog.Logger) error {
	var argsParsed Arguments
	if err := utils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}
	return runCalibration(argsParsed, logger)
}

func runCalibration(args Arguments, logger golog.Logger) (err error) {
	f, err := os.Open(args.InputFile)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()

	var seq sequenceFile
	if err := json.NewDecoder(f).Decode(&seq); err != nil {
		return errors.Wrap(err, "decoding pose sequences")
	}
	hand := make([]spatialmath.Pose, len(seq.Hand))
	for i, rec := range seq.Hand {
		hand[i] = rec.pose()
	}
	eye := make([]spatialmath.Pose, len(seq.Eye))
	for i, rec := range seq.Eye {
		eye[i] = rec.pose()
	}

	result, err := handeye.Solve(hand, eye, args.AllPairs)
	if err != nil {
		return err
	}
	logger.Infow("hand-eye calibration",
		"samples", len(hand),
		"rotation", result.Rotation,
		"translation", result.Translation,
	)

	if args.Online {
		est := handeye.NewOnlineRotHec()
		for i := 1; i < len(hand); i++ {
			a := hand[i].Invert().Compose(hand[i-1]).Rotation
			b := eye[i].Compose(eye[i-1].Invert()).Rotation
			est.AddMeasurement(a, b)
		}
		logger.Infow("online rotation estimate", "rotation", est.ComputeResult())
	}
	return nil
}
