package ppg

// DefaultSeriesCapacity is the number of points kept by each rolling output
// series.
const DefaultSeriesCapacity = 300

// Series is a bounded time series. Once full, each append drops the oldest
// point.
type Series struct {
	points []Point
	start  int
	size   int
}

// NewSeries creates a series holding at most capacity points. A capacity
// below 1 falls back to DefaultSeriesCapacity.
func NewSeries(capacity int) *Series {
	if capacity < 1 {
		capacity = DefaultSeriesCapacity
	}
	return &Series{points: make([]Point, capacity)}
}

// Append adds a point at the end of the series.
func (s *Series) Append(p Point) {
	idx := (s.start + s.size) % len(s.points)
	s.points[idx] = p
	if s.size < len(s.points) {
		s.size++
		return
	}
	s.start = (s.start + 1) % len(s.points)
}

// Len returns the number of points held.
func (s *Series) Len() int {
	return s.size
}

// Last returns the newest point.
func (s *Series) Last() (Point, bool) {
	if s.size == 0 {
		return Point{}, false
	}
	return s.points[(s.start+s.size-1)%len(s.points)], true
}

// Snapshot returns the points oldest first.
func (s *Series) Snapshot() []Point {
	out := make([]Point, s.size)
	for i := 0; i < s.size; i++ {
		out[i] = s.points[(s.start+i)%len(s.points)]
	}
	return out
}

// Tail returns up to n of the newest points, oldest first.
func (s *Series) Tail(n int) []Point {
	if n > s.size {
		n = s.size
	}
	if n <= 0 {
		return nil
	}
	out := make([]Point, n)
	first := s.size - n
	for i := 0; i < n; i++ {
		out[i] = s.points[(s.start+first+i)%len(s.points)]
	}
	return out
}

// Reset empties the series.
func (s *Series) Reset() {
	s.start = 0
	s.size = 0
}
