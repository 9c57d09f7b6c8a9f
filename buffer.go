package main

// Store is the circular scrollback buffer. It holds one character per
// cell and mirrors the live screen in its newest region.
//
// origin and show are absolute cell offsets that only ever grow; they
// are reduced modulo the capacity on access. origin marks the top-left
// cell of the live screen and advances by one row of cells every time
// the live cursor wraps past the bottom row. show is the offset
// currently rendered: equal to origin in live mode, behind it while
// scrolled back. origin-show is always a non-negative multiple of the
// column count.
type Store struct {
	cells []rune
	rows  int
	cols  int

	origin int64
	show   int64
}

// NewStore creates a blank store. The capacity must exceed one
// screenful; it is rounded down to a whole number of rows so that the
// ring wraps on row boundaries.
func NewStore(capacity, rows, cols int) *Store {
	if capacity < rows*cols+cols {
		capacity = rows*cols + cols
	}
	capacity -= capacity % cols
	s := &Store{
		cells: make([]rune, capacity),
		rows:  rows,
		cols:  cols,
	}
	for i := range s.cells {
		s.cells[i] = ' '
	}
	return s
}

func (s *Store) index(off int64) int {
	return int(off % int64(len(s.cells)))
}

// Cell returns the character at the given offset from the start of the
// shown region.
func (s *Store) Cell(i int) rune {
	return s.cells[s.index(s.show+int64(i))]
}

// WriteAt places a character at a live-screen position.
func (s *Store) WriteAt(row, col int, r rune) {
	s.cells[s.index(s.origin+int64(row*s.cols+col))] = r
}

// EraseRegion blanks [startCol, endCol) on the given live row and every
// cell on the rows below it through the bottom of the live screen.
func (s *Store) EraseRegion(row, startCol, endCol int) {
	start := row * s.cols
	for i := start + startCol; i < start+endCol; i++ {
		s.cells[s.index(s.origin+int64(i))] = ' '
	}
	for i := start + s.cols; i < s.rows*s.cols; i++ {
		s.cells[s.index(s.origin+int64(i))] = ' '
	}
}

// AdvanceOrigin scrolls the live screen up by one row: the origin moves
// down a row of cells, scrolling is cancelled, and the newly exposed
// bottom row is blanked.
func (s *Store) AdvanceOrigin() {
	s.origin += int64(s.cols)
	s.show = s.origin
	s.EraseRegion(s.rows-1, 0, s.cols)
}

// Scrolled reports whether a history window is being shown instead of
// the live screen.
func (s *Store) Scrolled() bool {
	return s.show != s.origin
}

// EndScroll snaps the view back to the live screen.
func (s *Store) EndScroll() {
	s.show = s.origin
}

// maxHistoryRows is how many rows of history the ring can retain beyond
// the live screen.
func (s *Store) maxHistoryRows() int {
	return (len(s.cells) - s.rows*s.cols) / s.cols
}

// ScrollBy moves the shown region by deltaRows (negative is further
// back in time). The result is clamped to the retained history on one
// side and the live screen on the other. Reports whether show moved.
func (s *Store) ScrollBy(deltaRows int) bool {
	pos := s.show + int64(deltaRows*s.cols)
	if pos >= s.origin {
		pos = s.origin
	}
	if pos < 0 {
		pos = 0
	}
	if oldest := s.origin - int64(s.maxHistoryRows()*s.cols); pos < oldest {
		pos = oldest
	}
	if pos == s.show {
		return false
	}
	s.show = pos
	return true
}

// CanScrollUp reports whether older rows than the shown ones are still
// retained.
func (s *Store) CanScrollUp() bool {
	if s.show < int64(s.cols) {
		return false
	}
	return s.maxHistoryRows() > s.HiddenRows()
}

// HiddenRows is the number of rows between the shown region and the
// live screen.
func (s *Store) HiddenRows() int {
	return int((s.origin - s.show) / int64(s.cols))
}

// OldestRetained is the offset of the oldest row still reachable by
// scrolling back.
func (s *Store) OldestRetained() int64 {
	oldest := s.origin - int64(s.maxHistoryRows()*s.cols)
	if oldest < 0 {
		oldest = 0
	}
	return oldest
}

// Rows renders whole rows, oldest first, starting at the given absolute
// offset. Used by the history dump and the watch snapshot.
func (s *Store) Rows(from int64, count int) [][]rune {
	out := make([][]rune, 0, count)
	for r := 0; r < count; r++ {
		row := make([]rune, s.cols)
		for c := 0; c < s.cols; c++ {
			row[c] = s.cells[s.index(from+int64(r*s.cols+c))]
		}
		out = append(out, row)
	}
	return out
}
