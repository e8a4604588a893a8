package handeye

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"

	"github.com/SternenKinder/utcore/spatialmath"
)

const (
	priorVariance       = 1e6
	measurementVariance = 1.0
)

// OnlineRotHec incrementally estimates the rotation x satisfying a*x = x*b
// over a stream of relative-rotation pairs (a, b), without keeping the
// measurement history. Later measurements refine rather than replace earlier
// state, which makes the estimator usable in long-running tracking sessions.
// Instances are not safe for concurrent use without external
// synchronization.
type OnlineRotHec struct {
	state      *mat.VecDense // modified Rodrigues vector of the estimate
	covariance *mat.Dense    // running 3x3 uncertainty
}

// NewOnlineRotHec returns an estimator whose initial estimate is the
// identity rotation under a broad prior.
func NewOnlineRotHec() *OnlineRotHec {
	cov := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		cov.Set(i, i, priorVariance)
	}
	return &OnlineRotHec{state: mat.NewVecDense(3, nil), covariance: cov}
}

// AddMeasurement folds one pair of relative rotations into the running
// estimate with a Kalman measurement update. Each pair contributes the
// linearized constraint skew(va+vb)*x = vb-va on the modified Rodrigues
// vector of the unknown rotation; the constraint is exact for consistent
// pairs.
func (h *OnlineRotHec) AddMeasurement(a, b quat.Number) {
	va := quatVector(spatialmath.Normalize(a))
	vb := quatVector(spatialmath.Normalize(b))
	obs := spatialmath.Skew(va.Add(vb))
	y := mat.NewVecDense(3, []float64{vb.X - va.X, vb.Y - va.Y, vb.Z - va.Z})

	// innovation covariance S = H P H^T + R
	var pht, s mat.Dense
	pht.Mul(h.covariance, obs.T())
	s.Mul(obs, &pht)
	for i := 0; i < 3; i++ {
		s.Set(i, i, s.At(i, i)+measurementVariance)
	}
	var sInv mat.Dense
	if err := sInv.Inverse(&s); err != nil {
		// the pair carries no usable rotation information
		return
	}

	// gain K = P H^T S^-1
	var gain mat.Dense
	gain.Mul(&pht, &sInv)

	// x += K (y - H x)
	var hx, innovation, dx mat.VecDense
	hx.MulVec(obs, h.state)
	innovation.SubVec(y, &hx)
	dx.MulVec(&gain, &innovation)
	h.state.AddVec(h.state, &dx)

	// P = (I - K H) P
	var kh mat.Dense
	kh.Mul(&gain, obs)
	kh.Scale(-1, &kh)
	for i := 0; i < 3; i++ {
		kh.Set(i, i, kh.At(i, i)+1)
	}
	var cov mat.Dense
	cov.Mul(&kh, h.covariance)
	h.covariance = &cov
}

// ComputeResult returns the currently estimated rotation. It may be called
// at any time; before any measurement has been added it returns the
// identity.
func (h *OnlineRotHec) ComputeResult() quat.Number {
	p := r3.Vector{X: h.state.AtVec(0), Y: h.state.AtVec(1), Z: h.state.AtVec(2)}
	w := 1 / math.Sqrt(1+p.Norm2())
	return quat.Number{Real: w, Imag: w * p.X, Jmag: w * p.Y, Kmag: w * p.Z}
}
