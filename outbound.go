package main

import (
	"strconv"
	"strings"
)

// Program-to-terminal direction. Nearly everything passes through
// unchanged; printed characters are additionally mirrored into the
// scrollback store at the tracked cursor cell, and a handful of
// sequences are recognized for their side effects.

// ProgramByte classifies and processes one byte coming from the program
// side of the pty.
func (s *Session) ProgramByte(c byte) {
	// Program output cancels scrolling: snap back to the live screen
	// before anything else touches it.
	if s.store.Scrolled() {
		s.store.EndScroll()
		s.Render()
	}

	// Control bytes other than ESC, backspace, newline, carriage
	// return and form feed pass through untouched but make the tracked
	// position worthless and cut short any sequence or multi-byte
	// character in flight.
	if c < 0x20 && c != escByte && c != bsByte && c != nlByte && c != crByte && c != ffByte {
		s.term.WriteByte(c)
		s.out.reset()
		s.dec.reset()
		s.cursor.status = cursorUnknown
		return
	}

	if !s.out.active && c == escByte {
		s.out.start()
	}
	if s.out.active {
		s.accumulateOutbound(c)
		return
	}

	s.printByte(c)
}

// accumulateOutbound extends the in-progress escape sequence. The bytes
// are buffered, not streamed: a completed sequence is either forwarded
// whole or consumed with a side effect, and an overlong one is dropped
// entirely.
func (s *Session) accumulateOutbound(c byte) {
	if !s.out.add(c) {
		s.cursor.status = cursorUnknown
		s.debugf("outbound sequence overflow, abandoned")
		return
	}
	if s.out.n == 2 {
		// ESC [ and ESC ] introduce longer sequences. ESC 7, ESC 8 and
		// friends are complete one-shot forms.
		if c == '[' || c == ']' {
			return
		}
		if c >= '0' && c <= '9' {
			seq := append([]byte(nil), s.out.bytes()...)
			s.out.reset()
			s.forward(seq)
			s.cursor.status = cursorUnknown
			s.debugf("one-shot sequence %q", seq)
			return
		}
	}
	if s.out.n >= 2 && c >= 0x40 && c <= 0x7E {
		seq := append([]byte(nil), s.out.bytes()...)
		s.out.reset()
		s.dispatchOutbound(seq, c)
	}
}

// dispatchOutbound handles a completed sequence from the program.
func (s *Session) dispatchOutbound(seq []byte, final byte) {
	s.debugf("outbound sequence %q", seq)

	switch string(seq) {
	case eraseDisplay:
		s.store.EraseRegion(0, 0, s.geo.Cols)
		s.forward(seq)
		s.cursor.status = cursorUnknown
		return
	case eraseToEnd:
		s.forward(seq)
		s.ensureKnown(false)
		s.store.EraseRegion(s.cursor.row, s.cursor.col, s.geo.Cols)
		s.cursor.status = cursorUnknown
		return
	case askPosition:
		// The program wants the cursor position. Its query has to
		// reach the terminal so a reply comes back, but the answer the
		// program sees is synthesized from tracked state: the
		// terminal's literal reply may describe a history overlay.
		s.forward(seq)
		s.ensureKnown(true)
		s.answerPosition()
		s.debugf("answered position %d,%d", s.cursor.row+1, s.cursor.col+1)
		return
	}

	if row, col, ok := parseMoveAbsolute(seq); ok {
		if row >= 1 && row <= s.geo.Rows && col >= 1 && col <= s.geo.Cols {
			s.cursor.row = row - 1
			s.cursor.col = col - 1
			s.cursor.status = cursorKnown
		} else {
			s.cursor.status = cursorUnknown
		}
		s.forward(seq)
		return
	}

	if pid, ok := parseHandoff(seq); ok {
		// Not forwarded: the terminal is about to be driven directly
		// by the helper.
		s.runHandoff(pid)
		return
	}

	s.forward(seq)
	if seq[1] == '[' && (final == 'm' || final == 'K') {
		// Attribute and erase-in-line sequences leave the cursor
		// where it was.
		return
	}
	s.cursor.status = cursorUnknown
}

// printByte handles ordinary output: forward the byte, feed the decoder
// and mirror the resulting character into the store.
func (s *Session) printByte(c byte) {
	s.ensureKnown(false)
	s.term.WriteByte(c)

	// Decode the byte into a cell character. In single-byte mode every
	// byte is its own cell.
	var cell rune
	if s.cfg.SingleChar || c < 0x80 {
		s.dec.reset()
		cell = rune(c)
	} else {
		r, st := s.dec.decode(c)
		switch st {
		case decodeChar:
			cell = r
		case decodeInvalid:
			s.debugf("dropped stray byte %#02x", c)
			return
		default:
			return
		}
	}

	switch {
	case c == bsByte || c == delByte:
		if s.cursor.col > 0 {
			s.cursor.col--
			s.store.WriteAt(s.cursor.row, s.cursor.col, ' ')
		}
	case c == nlByte || c == ffByte:
		s.advanceRow()
	case c == crByte:
		s.cursor.col = 0
	default:
		if s.cursor.col >= s.geo.Cols {
			s.cursor.col = 0
			s.advanceRow()
		}
		s.store.WriteAt(s.cursor.row, s.cursor.col, cell)
		s.cursor.col++
		if s.cursor.status == cursorUncertain {
			// The wrap decision has been made; the position is firm
			// again.
			s.cursor.status = cursorKnown
		}
	}
	s.debugf("cell %q stored, next position %d,%d", cell, s.cursor.row, s.cursor.col)
}

// advanceRow moves the live cursor down one row, scrolling the store
// when the cursor is already on the bottom row.
func (s *Session) advanceRow() {
	if s.cursor.row < s.geo.Rows-1 {
		s.cursor.row++
		return
	}
	s.store.AdvanceOrigin()
}

// forward writes a completed sequence through to the terminal.
func (s *Session) forward(seq []byte) {
	s.term.Write(seq)
}

// parseMoveAbsolute matches ESC[row;colH and ESC[H (home). Missing
// parameters default to 1.
func parseMoveAbsolute(seq []byte) (row, col int, ok bool) {
	if len(seq) < 3 || seq[0] != escByte || seq[1] != '[' || seq[len(seq)-1] != 'H' {
		return 0, 0, false
	}
	row, col = 1, 1
	body := string(seq[2 : len(seq)-1])
	if body == "" {
		return row, col, true
	}
	parts := strings.SplitN(body, ";", 2)
	if n, err := strconv.Atoi(parts[0]); err == nil && parts[0] != "" {
		row = n
	} else if parts[0] != "" {
		return 0, 0, false
	}
	if len(parts) == 2 {
		if n, err := strconv.Atoi(parts[1]); err == nil && parts[1] != "" {
			col = n
		} else if parts[1] != "" {
			return 0, 0, false
		}
	}
	return row, col, true
}

// parseHandoff matches the direct-terminal-access request ESC[0;PIDv.
// The pid may be absent or zero.
func parseHandoff(seq []byte) (pid int, ok bool) {
	if len(seq) < 4 || seq[0] != escByte || seq[1] != '[' || seq[len(seq)-1] != 'v' {
		return 0, false
	}
	body := seq[2 : len(seq)-1]
	if body[0] != '0' {
		return 0, false
	}
	rest := body[1:]
	if len(rest) == 0 {
		return 0, true
	}
	if rest[0] != ';' {
		return 0, false
	}
	for _, c := range rest[1:] {
		if c < '0' || c > '9' {
			return 0, false
		}
		pid = pid*10 + int(c-'0')
	}
	return pid, true
}
