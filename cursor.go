package main

import (
	"fmt"
	"time"
)

// The cursor position is not tracked across the many movement commands
// a program can emit. Whenever the position is needed it is learned by
// asking the terminal with ESC[6n and intercepting the ESC[row;colR
// reply before it reaches the program. While waiting, only the terminal
// side is read, with a short timeout so a mute terminal cannot wedge
// the session.

type cursorStatus int

const (
	cursorUnknown cursorStatus = iota
	cursorKnown
	// cursorUncertain means the terminal reported the last column,
	// which is ambiguous between "end of this row" and "start of the
	// next" until the next printed character.
	cursorUncertain
)

func (c cursorStatus) String() string {
	switch c {
	case cursorKnown:
		return "known"
	case cursorUncertain:
		return "uncertain"
	}
	return "unknown"
}

// CursorState is the tracked cursor of the live screen, zero-based.
type CursorState struct {
	row    int
	col    int
	status cursorStatus
}

const (
	positionRetries = 4
	positionTimeout = 100 * time.Millisecond
)

// ensureKnown makes the tracked position trustworthy before it is used.
//
// With force false it is a no-op unless the position is unknown;
// otherwise it emits the position query itself. An uncertain position
// counts as usable: its ambiguity is resolved by the wrap rule in the
// outbound interpreter, not by asking again. With force true the
// program has already sent its own query, which was forwarded to the
// terminal, so no second query is emitted and the wait is skipped only
// if nothing is pending.
//
// The wait drains terminal-only input through the Bridge so that scroll
// keys or unrelated bytes arriving meanwhile are processed normally.
// After the retry budget is exhausted the session carries on with
// whatever position it has; buffer placement is best-effort until the
// next confirmed reply.
func (s *Session) ensureKnown(force bool) {
	if !force {
		if s.cursor.status != cursorUnknown {
			return
		}
		s.term.WriteString(askPosition)
	}
	s.Flush()
	s.debugf("position query (force=%v)", force)

	for i := 0; i < positionRetries && s.cursor.status == cursorUnknown; i++ {
		if s.drain == nil {
			break
		}
		if err := s.drain(positionTimeout); err != nil {
			break
		}
	}
	s.debugf("position answer: %d,%d (%s)", s.cursor.row, s.cursor.col, s.cursor.status)
}

// readPosition parses a position report of the form ESC[row;colR and,
// when valid for the current geometry, adopts it as the tracked cursor.
// Reports whether the sequence was a position report.
func (s *Session) readPosition(seq []byte) bool {
	row, col, ok := parsePositionReply(seq)
	if !ok {
		return false
	}
	if row < 1 || row > s.geo.Rows || col < 1 || col > s.geo.Cols {
		// A report, but not one that fits the screen. Consume it
		// anyway; adopting it would corrupt buffer placement.
		s.debugf("position report out of range: %d,%d", row, col)
		return true
	}
	s.cursor.row = row - 1
	if col == s.geo.Cols {
		// A last-column report is ambiguous: the terminal may already
		// be in a pending wrap. Treat the row as full so the next
		// printed character opens the following row.
		s.cursor.col = s.geo.Cols
		s.cursor.status = cursorUncertain
	} else {
		s.cursor.col = col - 1
		s.cursor.status = cursorKnown
	}
	return true
}

// answerPosition writes a synthesized position report to the program,
// built from the tracked cursor rather than the terminal's literal
// reply: during a history overlay the terminal's own idea of the cursor
// is not the program's.
func (s *Session) answerPosition() {
	col := s.cursor.col
	if col >= s.geo.Cols {
		col = s.geo.Cols - 1
	}
	fmt.Fprintf(s.program, "\x1b[%d;%dR", s.cursor.row+1, col+1)
}

// parsePositionReply matches ESC[row;colR with 1-based coordinates.
func parsePositionReply(seq []byte) (row, col int, ok bool) {
	if len(seq) < 6 || seq[0] != escByte || seq[1] != '[' || seq[len(seq)-1] != 'R' {
		return 0, 0, false
	}
	body := seq[2 : len(seq)-1]
	semi := -1
	for i, c := range body {
		if c == ';' {
			if semi >= 0 {
				return 0, 0, false
			}
			semi = i
			continue
		}
		if c < '0' || c > '9' {
			return 0, 0, false
		}
	}
	if semi <= 0 || semi == len(body)-1 {
		return 0, 0, false
	}
	for _, c := range body[:semi] {
		row = row*10 + int(c-'0')
	}
	for _, c := range body[semi+1:] {
		col = col*10 + int(c-'0')
	}
	return row, col, true
}
