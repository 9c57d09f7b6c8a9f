package main

import (
	"bytes"
	"strings"
	"time"
)

// Shared helpers for the interpreter tests: an in-memory session whose
// terminal and program sides are plain buffers, scripted position
// replies standing in for the real terminal, and plain-text views of
// the store.

func newTestSession(rows, cols int) (*Session, *bytes.Buffer, *bytes.Buffer) {
	termBuf := &bytes.Buffer{}
	progBuf := &bytes.Buffer{}
	cfg := &Config{
		BufferCells: rows * cols * 4,
		ScrollLines: rows / 2,
	}
	s := NewSession(cfg, Geometry{Rows: rows, Cols: cols}, termBuf, progBuf)
	return s, termBuf, progBuf
}

// feedProgram pushes bytes through the outbound interpreter.
func feedProgram(s *Session, data string) {
	for i := 0; i < len(data); i++ {
		s.ProgramByte(data[i])
	}
	s.Flush()
}

// feedTerminal pushes bytes through the inbound interpreter as one
// read block.
func feedTerminal(s *Session, data string) {
	for i := 0; i < len(data); i++ {
		s.TerminalByte(data[i], i < len(data)-1)
	}
	s.Flush()
}

// scriptReplies makes the oracle's drain deliver the given position
// reports, one per query, the way the real terminal would.
func scriptReplies(s *Session, replies ...string) {
	i := 0
	s.drain = func(time.Duration) error {
		if i < len(replies) {
			r := replies[i]
			i++
			feedTerminal(s, r)
		}
		return nil
	}
}

// placeCursor pins the tracked cursor so tests that are not about the
// oracle never trigger a query.
func placeCursor(s *Session, row, col int) {
	s.cursor = CursorState{row: row, col: col, status: cursorKnown}
}

// liveScreen renders the live screen region of the store as text, one
// line per row, trailing blanks trimmed.
func liveScreen(s *Session) string {
	return rowsToText(s.store.Rows(s.store.origin, s.geo.Rows))
}

// shownScreen renders whatever the store is currently showing.
func shownScreen(s *Session, rows int) string {
	return rowsToText(s.store.Rows(s.store.show, rows))
}

func rowsToText(rows [][]rune) string {
	lines := make([]string, len(rows))
	for i, row := range rows {
		lines[i] = strings.TrimRight(string(row), " ")
	}
	return strings.Join(lines, "\n")
}
