package ppg

import "gonum.org/v1/gonum/stat"

// Window is a fixed-capacity circular buffer of instantaneous BPM values.
//
// All slots exist from construction and start at zero. A write always lands
// on the cursor and evicts whatever was there, so the buffer never grows and
// Add never allocates.
type Window struct {
	slots  []float64
	cursor int
	filled int // number of slots written at least once
}

// NewWindow allocates a window with size slots. A size below 1 is treated
// as 1.
func NewWindow(size int) *Window {
	if size < 1 {
		size = 1
	}
	return &Window{slots: make([]float64, size)}
}

// Add writes v at the cursor and advances it modulo the capacity.
func (w *Window) Add(v float64) {
	w.slots[w.cursor] = v
	w.cursor = (w.cursor + 1) % len(w.slots)
	if w.filled < len(w.slots) {
		w.filled++
	}
}

// Mean returns the average over all slots, zero seeds included.
func (w *Window) Mean() float64 {
	return stat.Mean(w.slots, nil)
}

// FilledMean returns the average over written slots only, or 0 when
// nothing has been written.
func (w *Window) FilledMean() float64 {
	if w.filled == 0 {
		return 0
	}
	// The cursor starts at 0, so before the first wrap the written slots
	// are exactly [0, filled).
	return stat.Mean(w.slots[:w.filled], nil)
}

// Cap returns the number of slots.
func (w *Window) Cap() int {
	return len(w.slots)
}

// Filled returns how many slots hold a written value.
func (w *Window) Filled() int {
	return w.filled
}

// Cursor returns the index of the next write.
func (w *Window) Cursor() int {
	return w.cursor
}

// Values returns a copy of the slots in storage order.
func (w *Window) Values() []float64 {
	out := make([]float64, len(w.slots))
	copy(out, w.slots)
	return out
}

// Reset zeroes every slot and rewinds the cursor.
func (w *Window) Reset() {
	for i := range w.slots {
		w.slots[i] = 0
	}
	w.cursor = 0
	w.filled = 0
}
