package motion

import (
	"fmt"
	"math"

	"github.com/google/uuid"
)

// LongTermTrajectory is the fixed-sample-rate buffer of Motion samples the
// robot is currently committed to. It is read-only after construction: a new
// plan is committed by swapping in a whole new trajectory, never by mutating
// samples in place.
type LongTermTrajectory struct {
	id         uuid.UUID
	samples    []Motion
	sampleTime float64

	// Per-sample per-joint maxima of |velocity| and |acceleration| over the
	// next windowK samples. Reachability uses these to bound how fast each
	// joint can still move within the stop horizon starting at any index.
	windowK int
	maxVel  [][]float64
	maxAcc  [][]float64
}

// NewLongTermTrajectory builds a trajectory from samples spaced sampleTime
// apart. windowK is the stop horizon in samples for the velocity/acceleration
// window aggregates (0 disables them).
func NewLongTermTrajectory(samples []Motion, sampleTime float64, windowK int) (*LongTermTrajectory, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("motion: trajectory needs at least one sample")
	}
	if sampleTime <= 0 {
		return nil, fmt.Errorf("motion: non-positive sample time %g", sampleTime)
	}
	nb := samples[0].NbJoints()
	for i, s := range samples {
		if s.NbJoints() != nb || len(s.DQ) != nb || len(s.DDQ) != nb {
			return nil, fmt.Errorf("motion: sample %d has %d joints, want %d", i, s.NbJoints(), nb)
		}
	}
	ltt := &LongTermTrajectory{
		id:         uuid.New(),
		samples:    samples,
		sampleTime: sampleTime,
		windowK:    windowK,
	}
	if windowK > 0 {
		ltt.buildWindows()
	}
	return ltt, nil
}

func (l *LongTermTrajectory) buildWindows() {
	n := len(l.samples)
	nb := l.samples[0].NbJoints()
	l.maxVel = make([][]float64, n)
	l.maxAcc = make([][]float64, n)
	for i := 0; i < n; i++ {
		mv := make([]float64, nb)
		ma := make([]float64, nb)
		end := i + l.windowK
		if end >= n {
			end = n - 1
		}
		for k := i; k <= end; k++ {
			for j := 0; j < nb; j++ {
				if v := math.Abs(l.samples[k].DQ[j]); v > mv[j] {
					mv[j] = v
				}
				if a := math.Abs(l.samples[k].DDQ[j]); a > ma[j] {
					ma[j] = a
				}
			}
		}
		l.maxVel[i] = mv
		l.maxAcc[i] = ma
	}
}

// ID identifies this trajectory instance across commits.
func (l *LongTermTrajectory) ID() uuid.UUID { return l.id }

// Len returns the number of stored samples.
func (l *LongTermTrajectory) Len() int { return len(l.samples) }

// SampleTime returns the spacing between samples in seconds.
func (l *LongTermTrajectory) SampleTime() float64 { return l.sampleTime }

// Duration returns the nominal length of the trajectory in seconds.
func (l *LongTermTrajectory) Duration() float64 {
	return float64(len(l.samples)-1) * l.sampleTime
}

// NbJoints returns the joint count of the trajectory's samples.
func (l *LongTermTrajectory) NbJoints() int { return l.samples[0].NbJoints() }

// Sample returns the stored sample at index idx.
func (l *LongTermTrajectory) Sample(idx int) Motion { return l.samples[idx] }

// Goal returns the final sample of the trajectory.
func (l *LongTermTrajectory) Goal() Motion { return l.samples[len(l.samples)-1] }

// MaxVelocityWindow returns the per-joint maximum |velocity| over the stop
// horizon starting at sample idx. Nil when windows are disabled.
func (l *LongTermTrajectory) MaxVelocityWindow(idx int) []float64 {
	if l.maxVel == nil {
		return nil
	}
	return l.maxVel[idx]
}

// MaxAccelerationWindow returns the per-joint maximum |acceleration| over the
// stop horizon starting at sample idx. Nil when windows are disabled.
func (l *LongTermTrajectory) MaxAccelerationWindow(idx int) []float64 {
	if l.maxAcc == nil {
		return nil
	}
	return l.maxAcc[idx]
}

// interpEps absorbs floating-point drift when s lands on a sample grid point.
const interpEps = 1e-10

// Interpolate extracts the motion at progress s, scaled to the commanded
// path velocity ds and path acceleration dds.
//
// The buffer stores nominal-speed time derivatives, so the output is produced
// by chain-rule rescaling of the stored values:
//
//	velocity_out     = ds · v̂(s)
//	acceleration_out = dds · v̂(s) + ds² · â(s)
//
// where v̂ and â are the linearly interpolated stored velocity and
// acceleration. At an exact grid point the result reduces to the stored
// sample (for ds=1, dds=0) with no drift.
//
// s outside [0, Duration] is a programmer error and panics: the shield clamps
// progress before ever interpolating, so an out-of-range s means the caller's
// bookkeeping is broken and no safe motion can be derived.
func (l *LongTermTrajectory) Interpolate(s, ds, dds float64) Motion {
	if s < -interpEps || s > l.Duration()+interpEps {
		panic(fmt.Sprintf("motion: interpolation out of range: s=%g, domain [0, %g]", s, l.Duration()))
	}
	if s < 0 {
		s = 0
	}
	idx := int(math.Floor(s / l.sampleTime))
	frac := s/l.sampleTime - float64(idx)
	if idx >= len(l.samples)-1 {
		idx = len(l.samples) - 1
		frac = 0
	}
	if frac < interpEps {
		frac = 0
	}

	nb := l.NbJoints()
	out := New(nb)
	out.S, out.DS, out.DDS = s, ds, dds
	lo := l.samples[idx]
	out.Time = lo.Time + frac*l.sampleTime
	if frac == 0 {
		for j := 0; j < nb; j++ {
			out.Q[j] = lo.Q[j]
			out.DQ[j] = ds * lo.DQ[j]
			out.DDQ[j] = dds*lo.DQ[j] + ds*ds*lo.DDQ[j]
		}
		return out
	}
	hi := l.samples[idx+1]
	for j := 0; j < nb; j++ {
		out.Q[j] = lo.Q[j] + frac*(hi.Q[j]-lo.Q[j])
		vHat := lo.DQ[j] + frac*(hi.DQ[j]-lo.DQ[j])
		aHat := lo.DDQ[j] + frac*(hi.DDQ[j]-lo.DDQ[j])
		out.DQ[j] = ds * vHat
		out.DDQ[j] = dds*vHat + ds*ds*aHat
	}
	return out
}
