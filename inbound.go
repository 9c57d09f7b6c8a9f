package main

import "bytes"

// Terminal-to-program direction. Keystrokes and any other terminal
// traffic are forwarded verbatim to the program, except: the scroll
// keys, which move the history view; position reports, which feed the
// cursor oracle; and, while a history window is shown, the two save
// hot-keys.

// TerminalByte classifies and processes one byte coming from the real
// terminal. more tells whether further bytes of the same read block
// follow: a lone ESC at the end of a block is the ESC key, not the
// start of a sequence, and is forwarded immediately.
func (s *Session) TerminalByte(c byte, more bool) {
	if !s.in.active && c == escByte && more {
		s.in.start()
	}
	if s.in.active {
		s.accumulateInbound(c)
		return
	}

	if s.store.Scrolled() {
		switch c {
		case keySaveHistory:
			s.SaveHistory(false)
			return
		case keyPageHistory:
			s.SaveHistory(true)
			return
		}
	}

	s.program.Write([]byte{c})
}

func (s *Session) accumulateInbound(c byte) {
	if !s.in.add(c) {
		s.debugf("inbound sequence overflow, abandoned")
		return
	}
	if s.in.n == 2 && (c == '[' || c == ']') {
		return
	}
	if s.in.n >= 2 && c >= 0x40 && c <= 0x7E {
		seq := append([]byte(nil), s.in.bytes()...)
		s.in.reset()
		s.dispatchInbound(seq)
	}
}

// dispatchInbound handles a completed sequence from the terminal.
func (s *Session) dispatchInbound(seq []byte) {
	switch {
	case bytes.Equal(seq, s.scrollUp):
		s.debugf("scroll up")
		s.scrollHistory(-s.cfg.ScrollLines)
	case bytes.Equal(seq, s.scrollDown):
		s.debugf("scroll down")
		s.scrollHistory(s.cfg.ScrollLines)
	case s.readPosition(seq):
		// Consumed: position reports answer our own query, or one the
		// program asked and will get a synthesized answer for.
	default:
		s.program.Write(seq)
	}
}

// scrollHistory moves the history view by the given number of rows and
// repaints when the view actually moved. The first transition out of
// live mode saves the terminal cursor so it can be restored when the
// view returns to the live screen.
func (s *Session) scrollHistory(deltaRows int) {
	wasLive := !s.store.Scrolled()
	if !s.store.ScrollBy(deltaRows) {
		// Already at the clamp; nothing to repaint.
		return
	}
	if wasLive {
		s.term.WriteString(saveCursor)
	}
	s.Render()
}
