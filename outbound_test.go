package main

import (
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/x/vt"
)

// --- Mirroring Tests ---

// TestProgramTextMirrored verifies plain output lands in the store and
// passes through to the terminal unchanged
func TestProgramTextMirrored(t *testing.T) {
	s, termBuf, _ := newTestSession(5, 10)
	scriptReplies(s, "\x1b[1;1R")

	feedProgram(s, "hello")

	if got := liveScreen(s); got != "hello\n\n\n\n" {
		t.Errorf("Store content wrong. Got: %q", got)
	}
	if !strings.Contains(termBuf.String(), "hello") {
		t.Errorf("Terminal did not receive the text. Got: %q", termBuf.String())
	}
	if !strings.Contains(termBuf.String(), "\x1b[6n") {
		t.Error("First print should have asked for the cursor position")
	}
}

// TestProgramLineDiscipline verifies CR, LF and wrapping placement
func TestProgramLineDiscipline(t *testing.T) {
	s, _, _ := newTestSession(5, 10)
	placeCursor(s, 0, 0)

	feedProgram(s, "one\r\ntwo\r\nabcdefghijXY")

	want := "one\ntwo\nabcdefghij\nXY\n"
	if got := liveScreen(s); got != want {
		t.Errorf("Screen after wrap wrong. Got: %q Want: %q", got, want)
	}
	if s.cursor.row != 3 || s.cursor.col != 2 {
		t.Errorf("Cursor wrong after wrap: %d,%d", s.cursor.row, s.cursor.col)
	}
}

// TestProgramBottomRowScroll verifies a newline on the bottom row pushes
// the top row into history
func TestProgramBottomRowScroll(t *testing.T) {
	s, _, _ := newTestSession(3, 10)
	placeCursor(s, 0, 0)

	feedProgram(s, "aa\r\nbb\r\ncc\r\ndd")

	if got := liveScreen(s); got != "bb\ncc\ndd" {
		t.Errorf("Live screen wrong after scroll. Got: %q", got)
	}
	if s.store.origin != int64(s.geo.Cols) {
		t.Errorf("Origin should have advanced one row, got offset %d", s.store.origin)
	}
	if !s.store.CanScrollUp() {
		t.Error("History should be reachable after the scroll")
	}
}

// TestBackspaceBlanksCell verifies backspace steps left and clears, and
// is ignored at the left margin
func TestBackspaceBlanksCell(t *testing.T) {
	s, _, _ := newTestSession(3, 10)
	placeCursor(s, 0, 0)

	feedProgram(s, "abc\bX")
	if got := liveScreen(s); got != "abX\n\n" {
		t.Errorf("Backspace overwrite wrong. Got: %q", got)
	}

	placeCursor(s, 1, 0)
	feedProgram(s, "\bz")
	if got := liveScreen(s); got != "abX\nz\n" {
		t.Errorf("Backspace at margin should do nothing. Got: %q", got)
	}
}

// TestProgramOutputEndsScrolling verifies new output snaps the view back
// to the live screen
func TestProgramOutputEndsScrolling(t *testing.T) {
	s, termBuf, _ := newTestSession(3, 10)
	placeCursor(s, 0, 0)
	feedProgram(s, "aa\r\nbb\r\ncc\r\ndd\r\nee")
	s.store.ScrollBy(-1)
	if !s.store.Scrolled() {
		t.Fatal("Setup failed: store not scrolled")
	}
	termBuf.Reset()

	feedProgram(s, "f")

	if s.store.Scrolled() {
		t.Error("Program output should have ended scrolling")
	}
	if !strings.Contains(termBuf.String(), restoreCursor) {
		t.Error("Live redraw should restore the saved cursor")
	}
}

// --- Cursor Oracle Tests ---

// TestPositionQueryAnswered verifies the program's ESC[6n reaches the
// terminal and the reply it sees is synthesized from tracked state
func TestPositionQueryAnswered(t *testing.T) {
	s, termBuf, progBuf := newTestSession(24, 80)
	scriptReplies(s, "\x1b[5;10R")

	feedProgram(s, "\x1b[2J\x1b[6n")

	if s.cursor.row != 4 || s.cursor.col != 9 || s.cursor.status != cursorKnown {
		t.Errorf("Tracked cursor wrong: %d,%d (%s)",
			s.cursor.row, s.cursor.col, s.cursor.status)
	}
	if got := progBuf.String(); got != "\x1b[5;10R" {
		t.Errorf("Program reply wrong. Got: %q", got)
	}
	if !strings.Contains(termBuf.String(), "\x1b[2J") {
		t.Error("Erase-display was not forwarded")
	}
	if !strings.Contains(termBuf.String(), "\x1b[6n") {
		t.Error("Position query was not forwarded")
	}
}

// TestPositionReplyLastColumn verifies the ambiguous last-column report
// resolves to the start of the next row on the next printed character
func TestPositionReplyLastColumn(t *testing.T) {
	s, _, progBuf := newTestSession(24, 80)
	scriptReplies(s, "\x1b[5;80R")

	feedProgram(s, "\x1b[6n")
	if s.cursor.status != cursorUncertain {
		t.Fatalf("Expected uncertain cursor, got %s", s.cursor.status)
	}
	if got := progBuf.String(); got != "\x1b[5;80R" {
		t.Errorf("Synthesized reply should stay within the screen. Got: %q", got)
	}

	feedProgram(s, "AB")
	if s.cursor.row != 5 || s.cursor.col != 2 || s.cursor.status != cursorKnown {
		t.Errorf("Cursor wrong after resolving wrap: %d,%d (%s)",
			s.cursor.row, s.cursor.col, s.cursor.status)
	}
	rows := s.store.Rows(s.store.origin, s.geo.Rows)
	if string(rows[5][:2]) != "AB" {
		t.Errorf("Characters placed on wrong row. Row 5: %q", string(rows[5][:2]))
	}
}

// TestPositionReplyOutOfRange verifies an implausible report is consumed
// but never adopted
func TestPositionReplyOutOfRange(t *testing.T) {
	s, _, progBuf := newTestSession(24, 80)
	scriptReplies(s, "\x1b[99;200R")

	feedProgram(s, "\x1b[6n")

	if s.cursor.status != cursorUnknown {
		t.Errorf("Out-of-range report was adopted: %d,%d", s.cursor.row, s.cursor.col)
	}
	if strings.Contains(progBuf.String(), "99") {
		t.Errorf("Literal garbage reply leaked to the program: %q", progBuf.String())
	}
}

// TestPositionRetryBudget verifies a mute terminal cannot wedge the
// session
func TestPositionRetryBudget(t *testing.T) {
	s, _, _ := newTestSession(24, 80)
	calls := 0
	s.drain = func(time.Duration) error {
		calls++
		return nil
	}

	feedProgram(s, "x")

	if calls != positionRetries {
		t.Errorf("Expected %d drain attempts, got %d", positionRetries, calls)
	}
	if s.cursor.status != cursorUnknown {
		t.Error("Cursor should stay unknown when the terminal never answers")
	}
}

// --- Escape Classification Tests ---

// TestEraseDisplayClearsStore verifies ESC[2J blanks the live screen
func TestEraseDisplayClearsStore(t *testing.T) {
	s, termBuf, _ := newTestSession(3, 10)
	placeCursor(s, 0, 0)
	feedProgram(s, "abc\r\ndef")

	feedProgram(s, "\x1b[2J")

	if got := liveScreen(s); got != "\n\n" {
		t.Errorf("Screen not blanked. Got: %q", got)
	}
	if s.cursor.status != cursorUnknown {
		t.Error("Erase-display should invalidate the tracked position")
	}
	if !strings.Contains(termBuf.String(), "\x1b[2J") {
		t.Error("Erase-display was not forwarded")
	}
}

// TestEraseToEndClearsBelowCursor verifies ESC[J blanks from the cursor
// to the bottom of the screen
func TestEraseToEndClearsBelowCursor(t *testing.T) {
	s, _, _ := newTestSession(3, 10)
	placeCursor(s, 0, 0)
	feedProgram(s, "abcdef\r\nghijkl\r\nmnopqr")
	placeCursor(s, 1, 2)

	feedProgram(s, "\x1b[J")

	if got := liveScreen(s); got != "abcdef\ngh\n" {
		t.Errorf("Erase-to-end wrong. Got: %q", got)
	}
}

// TestMoveAbsoluteTracked verifies ESC[row;colH updates tracked state
// without a query
func TestMoveAbsoluteTracked(t *testing.T) {
	s, termBuf, _ := newTestSession(24, 80)

	feedProgram(s, "\x1b[3;7H")
	if s.cursor.row != 2 || s.cursor.col != 6 || s.cursor.status != cursorKnown {
		t.Errorf("Cursor wrong after move: %d,%d (%s)",
			s.cursor.row, s.cursor.col, s.cursor.status)
	}

	feedProgram(s, "\x1b[H")
	if s.cursor.row != 0 || s.cursor.col != 0 {
		t.Errorf("Home did not reset the cursor: %d,%d", s.cursor.row, s.cursor.col)
	}

	feedProgram(s, "\x1b[99;7H")
	if s.cursor.status != cursorUnknown {
		t.Error("Off-screen move should invalidate the tracked position")
	}
	if !strings.Contains(termBuf.String(), "\x1b[99;7H") {
		t.Error("Off-screen move must still be forwarded")
	}
}

// TestAttributeSequencesKeepPosition verifies SGR and erase-in-line do
// not invalidate the tracked cursor
func TestAttributeSequencesKeepPosition(t *testing.T) {
	s, _, _ := newTestSession(24, 80)
	placeCursor(s, 2, 3)

	feedProgram(s, "\x1b[1;31m\x1b[K\x1b[0m")

	if s.cursor.status != cursorKnown || s.cursor.row != 2 || s.cursor.col != 3 {
		t.Errorf("Attribute sequences moved the cursor: %d,%d (%s)",
			s.cursor.row, s.cursor.col, s.cursor.status)
	}
}

// TestUnrecognizedSequenceForwarded verifies unknown sequences pass
// through whole and invalidate the position
func TestUnrecognizedSequenceForwarded(t *testing.T) {
	s, termBuf, _ := newTestSession(24, 80)
	placeCursor(s, 2, 3)

	feedProgram(s, "\x1b[2A")

	if !strings.Contains(termBuf.String(), "\x1b[2A") {
		t.Errorf("Sequence not forwarded. Got: %q", termBuf.String())
	}
	if s.cursor.status != cursorUnknown {
		t.Error("Cursor movement should invalidate the tracked position")
	}
	if got := liveScreen(s); got != strings.Repeat("\n", 23) {
		t.Errorf("Sequence bytes leaked into the store. Got: %q", got)
	}
}

// TestOneShotEscapeForwarded verifies ESC 7 / ESC 8 complete after a
// single parameter byte
func TestOneShotEscapeForwarded(t *testing.T) {
	s, termBuf, _ := newTestSession(24, 80)
	placeCursor(s, 2, 3)

	feedProgram(s, "\x1b7")

	if !strings.Contains(termBuf.String(), "\x1b7") {
		t.Errorf("One-shot sequence not forwarded. Got: %q", termBuf.String())
	}
	if s.out.active {
		t.Error("Accumulator still active after a one-shot sequence")
	}
	if s.cursor.status != cursorUnknown {
		t.Error("Save-cursor should invalidate the tracked position")
	}
}

// TestCharsetSequencePassesThrough verifies ESC ( B is forwarded whole
// and the final byte never becomes a cell
func TestCharsetSequencePassesThrough(t *testing.T) {
	s, termBuf, _ := newTestSession(24, 80)
	placeCursor(s, 0, 0)

	feedProgram(s, "\x1b(B")

	if !strings.Contains(termBuf.String(), "\x1b(B") {
		t.Errorf("Charset sequence not forwarded. Got: %q", termBuf.String())
	}
	if got := liveScreen(s); got != strings.Repeat("\n", 23) {
		t.Errorf("Final byte leaked into the store. Got: %q", got)
	}
}

// TestOverlongSequenceAbandoned verifies a runaway sequence is dropped
// rather than forwarded as garbage
func TestOverlongSequenceAbandoned(t *testing.T) {
	s, termBuf, _ := newTestSession(24, 80)
	placeCursor(s, 0, 0)

	feedProgram(s, "\x1b["+strings.Repeat("9", 39))

	if termBuf.Len() != 0 {
		t.Errorf("Overlong sequence leaked to the terminal: %q", termBuf.String())
	}
	if s.out.active {
		t.Error("Accumulator still active after the overflow")
	}
	if s.cursor.status != cursorUnknown {
		t.Error("Abandoned sequence should invalidate the tracked position")
	}
}

// TestControlByteInvalidatesPosition verifies stray control bytes pass
// through but reset tracking state
func TestControlByteInvalidatesPosition(t *testing.T) {
	s, termBuf, _ := newTestSession(24, 80)
	placeCursor(s, 2, 3)

	feedProgram(s, "\x07")

	if !strings.Contains(termBuf.String(), "\x07") {
		t.Error("Control byte not forwarded")
	}
	if s.cursor.status != cursorUnknown {
		t.Error("Control byte should invalidate the tracked position")
	}
}

// TestHandoffSequenceConsumed verifies ESC[0;PIDv suspends the bridge
// and never reaches the terminal
func TestHandoffSequenceConsumed(t *testing.T) {
	s, termBuf, _ := newTestSession(24, 80)
	placeCursor(s, 0, 0)
	gotPid := -1
	s.suspend = func(pid int) error {
		gotPid = pid
		return nil
	}

	feedProgram(s, "\x1b[0;1234v")

	if gotPid != 1234 {
		t.Errorf("Suspend hook saw pid %d, want 1234", gotPid)
	}
	if strings.Contains(termBuf.String(), "1234v") {
		t.Errorf("Handoff sequence leaked to the terminal: %q", termBuf.String())
	}
	if s.cursor.status != cursorUnknown {
		t.Error("Position must be re-learned after direct terminal access")
	}
}

// --- Reference Terminal Tests ---

// TestMirrorsReferenceTerminal feeds the same stream to the store and to
// a real terminal emulator and compares what each composed
func TestMirrorsReferenceTerminal(t *testing.T) {
	const rows, cols = 6, 20
	streams := []string{
		"plain text",
		"first\r\nsecond\r\nthird",
		"overwrite\rX",
		"wrapping a line longer than twenty columns",
		"one\r\ntwo\x1b[2J\x1b[1;1Hfresh",
	}
	for _, stream := range streams {
		s, _, _ := newTestSession(rows, cols)
		scriptReplies(s, "\x1b[1;1R")
		feedProgram(s, stream)

		emu := vt.NewSafeEmulator(cols, rows)
		emu.Write([]byte(stream))

		want := rowsToText(splitScreen(emu.String(), rows))
		got := liveScreen(s)
		if got != want {
			t.Errorf("Stream %q diverged from the emulator.\nGot:  %q\nWant: %q",
				stream, got, want)
		}
	}
}

// splitScreen turns an emulator dump into rune rows for comparison.
// The dump terminates its rows with \r\n.
func splitScreen(screen string, rows int) [][]rune {
	lines := strings.Split(screen, "\n")
	out := make([][]rune, rows)
	for i := 0; i < rows; i++ {
		if i < len(lines) {
			out[i] = []rune(strings.TrimRight(lines[i], "\r"))
		} else {
			out[i] = nil
		}
	}
	return out
}
