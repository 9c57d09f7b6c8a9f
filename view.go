package main

import (
	"fmt"
	"os"
	"strings"
)

// History overlay rendering. The overlay repaints the whole screen from
// the store: a "more above" bar when older rows remain, a window of
// stored rows, and a "below" bar counting the rows hidden between the
// window and the live screen. Leaving history mode repaints the live
// screen and restores the terminal cursor saved when scrolling began.

const (
	barUp   = "            " + blueBackground + "↑↑↑↑↑↑↑↑↑" + normalBack
	barDown = "            " + blueBackground + "↓↓↓↓↓↓↓↓↓" + normalBack
)

// Render paints the shown region of the store onto the terminal. In
// live mode that is the full screen followed by a cursor restore; in
// history mode two rows are given up to the scroll indicators.
func (s *Session) Render() {
	scrolled := s.store.Scrolled()
	size := s.geo.Rows * s.geo.Cols
	if scrolled {
		size = (s.geo.Rows - 2) * s.geo.Cols
	}

	s.term.WriteString(homePosition)
	s.term.WriteString(eraseDisplay)
	if scrolled {
		if s.store.CanScrollUp() {
			s.term.WriteString(barUp)
		}
		s.term.WriteString("\r\n")
	}

	var scratch [4]byte
	for i := 0; i < size; i++ {
		cell := s.store.Cell(i)
		if s.cfg.SingleChar {
			s.term.WriteByte(byte(cell))
		} else {
			s.term.Write(encodeUTF8(scratch[:0], cell))
		}
	}

	if scrolled {
		fmt.Fprintf(s.term, "%s       %d lines below", barDown, s.store.HiddenRows())
	} else {
		s.term.WriteString(restoreCursor)
	}
	s.Flush()
}

// HistoryText serializes the reachable history window, oldest retained
// row through the bottom of the live screen, as plain text in the
// configured cell encoding. Trailing blanks are trimmed per row.
func (s *Session) HistoryText() string {
	from := s.store.OldestRetained()
	count := int((s.store.origin-from)/int64(s.geo.Cols)) + s.geo.Rows

	var b strings.Builder
	for _, row := range s.store.Rows(from, count) {
		line := make([]byte, 0, s.geo.Cols)
		for _, cell := range row {
			if s.cfg.SingleChar {
				line = append(line, byte(cell))
			} else {
				line = encodeUTF8(line, cell)
			}
		}
		b.WriteString(strings.TrimRight(string(line), " "))
		b.WriteByte('\n')
	}
	return b.String()
}

// SaveHistory dumps the history window to the per-user history file.
// With page set, the configured pager is then run on the file with the
// real terminal; the overlay is repainted afterwards. All failures are
// reported inline on the overlay and never end the session.
func (s *Session) SaveHistory(page bool) {
	path := historyFilePath()
	if err := os.WriteFile(path, []byte(s.HistoryText()), 0600); err != nil {
		s.inlineReport(fmt.Sprintf("history save failed: %v", err))
		return
	}
	if !page {
		s.inlineReport(fmt.Sprintf("history saved to %s", path))
		return
	}
	if s.pager == nil {
		s.inlineReport("no pager available")
		return
	}
	s.Flush()
	err := s.pager(path)
	// The pager owned the screen; put the overlay back either way.
	s.Render()
	if err != nil {
		s.inlineReport(fmt.Sprintf("pager failed: %v", err))
	}
}

// inlineReport appends a short status note at the cursor, which after a
// history render sits on the indicator row.
func (s *Session) inlineReport(msg string) {
	fmt.Fprintf(s.term, " [%s]", msg)
	s.Flush()
}
