package gesture

import (
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"
)

// BezierControlPoints is the number of interior control points used for drag
// curves (a cubic curve).
const BezierControlPoints = 2

// Synthesizer generates randomized points, paths and timings. It is safe for
// concurrent use.
type Synthesizer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSynthesizer returns a synthesizer drawing from src, or from a
// time-seeded source when src is nil.
func NewSynthesizer(src rand.Source) *Synthesizer {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &Synthesizer{rng: rand.New(src)}
}

// Seeded returns a deterministic synthesizer.
func Seeded(seed int64) *Synthesizer {
	return NewSynthesizer(rand.NewSource(seed))
}

func (s *Synthesizer) float() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

func (s *Synthesizer) intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(n)
}

// Uniform samples r. A reversed range is swapped.
func (s *Synthesizer) Uniform(r Range) float64 {
	lo, hi := r.Min, r.Max
	if hi < lo {
		lo, hi = hi, lo
	}
	return lo + s.float()*(hi-lo)
}

// Seconds samples r as a duration in seconds.
func (s *Synthesizer) Seconds(r Range) time.Duration {
	return seconds(s.Uniform(r))
}

// signed samples a magnitude from r and gives it a random sign.
func (s *Synthesizer) signed(r Range) float64 {
	v := s.Uniform(r)
	if s.intn(2) == 0 {
		return -v
	}
	return v
}

// RandomOffset moves p by an independent magnitude in r on each axis, each
// with a random sign.
func (s *Synthesizer) RandomOffset(p Point, r Range) Point {
	return Point{X: p.X + s.signed(r), Y: p.Y + s.signed(r)}
}

// BezierCurve samples a curve from start to end whose controlCount interior
// control points sit at evenly spaced positions along the chord, each pushed
// sideways by up to max(0.3*distance, 30) pixels. The result has
// sampleCount+1 points and begins and ends exactly on start and end.
func (s *Synthesizer) BezierCurve(start, end Point, controlCount, sampleCount int) []Point {
	if sampleCount < 1 {
		sampleCount = 1
	}
	if controlCount < 0 {
		controlCount = 0
	}
	chord := end.Sub(start)
	spread := math.Max(0.3*chord.Mag(), 30)
	normal := chord.Normalize().Perp()

	ctrl := make([]Point, 0, controlCount+2)
	ctrl = append(ctrl, start)
	for i := 1; i <= controlCount; i++ {
		t := float64(i) / float64(controlCount+1)
		shift := s.Uniform(Range{Min: -spread, Max: spread})
		ctrl = append(ctrl, start.Lerp(end, t).Add(normal.Mul(shift)))
	}
	ctrl = append(ctrl, end)

	out := make([]Point, sampleCount+1)
	work := make([]Point, len(ctrl))
	for i := range out {
		out[i] = casteljau(ctrl, work, float64(i)/float64(sampleCount))
	}
	out[0], out[sampleCount] = start, end
	return out
}

func casteljau(ctrl, work []Point, t float64) Point {
	copy(work, ctrl)
	for n := len(work) - 1; n > 0; n-- {
		for i := 0; i < n; i++ {
			work[i] = work[i].Lerp(work[i+1], t)
		}
	}
	return work[0]
}

// LinearWithJitter samples the straight segment from start to end with
// sampleCount+1 points, jittering every interior point on each axis.
func (s *Synthesizer) LinearWithJitter(start, end Point, sampleCount int, jitter Range) []Point {
	if sampleCount < 1 {
		sampleCount = 1
	}
	out := make([]Point, sampleCount+1)
	for i := range out {
		p := start.Lerp(end, float64(i)/float64(sampleCount))
		if i > 0 && i < sampleCount {
			p = s.RandomOffset(p, jitter)
		}
		out[i] = p
	}
	out[0], out[sampleCount] = start, end
	return out
}

// ResampleBySpeed redistributes a path so that equal time steps cover
// distances shaped by mode. It walks the cumulative arc length, interpolates
// within the hit segment, nudges interior points by up to one pixel, and
// returns exactly targetCount+1 points with the original endpoints.
func (s *Synthesizer) ResampleBySpeed(points []Point, mode SpeedMode, targetCount int) []Point {
	if len(points) == 0 {
		return nil
	}
	if targetCount < 1 {
		targetCount = 1
	}
	first, last := points[0], points[len(points)-1]

	cum := make([]float64, len(points))
	for i := 1; i < len(points); i++ {
		cum[i] = cum[i-1] + points[i].Dist(points[i-1])
	}
	total := cum[len(cum)-1]

	out := make([]Point, targetCount+1)
	prev := 0.0
	for i := range out {
		t := float64(i) / float64(targetCount)
		progress := ease(mode, t)
		if mode == Random {
			progress = math.Min(1, math.Max(0, t+s.Uniform(Range{Min: -0.05, Max: 0.05})))
			progress = math.Max(progress, prev)
		}
		prev = progress

		p := locate(points, cum, progress*total)
		if i > 0 && i < targetCount {
			p.X += float64(s.intn(3) - 1)
			p.Y += float64(s.intn(3) - 1)
		}
		out[i] = p
	}
	out[0], out[targetCount] = first, last
	return out
}

// locate finds the point at arc length d along points.
func locate(points []Point, cum []float64, d float64) Point {
	j := sort.SearchFloat64s(cum, d)
	if j == 0 {
		return points[0]
	}
	if j >= len(points) {
		return points[len(points)-1]
	}
	seg := cum[j] - cum[j-1]
	if seg <= 0 {
		return points[j]
	}
	return points[j-1].Lerp(points[j], (d-cum[j-1])/seg)
}

// SegmentDuration splits total evenly across the gaps between pointCount
// points.
func SegmentDuration(total time.Duration, pointCount int) time.Duration {
	if pointCount < 2 {
		return total
	}
	return total / time.Duration(pointCount-1)
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}
