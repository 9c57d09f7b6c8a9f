package main

import (
	"bufio"
	"io"
	"log"
	"time"
)

// Control bytes and escape sequences recognized by the interpreters.
const (
	escByte = 0x1B
	bsByte  = 0x08
	nlByte  = 0x0A
	ffByte  = 0x0C
	crByte  = 0x0D
	delByte = 0x7F

	askPosition    = "\x1b[6n"
	eraseDisplay   = "\x1b[2J"
	eraseToEnd     = "\x1b[J"
	homePosition   = "\x1b[H"
	saveCursor     = "\x1b[s"
	restoreCursor  = "\x1b[u"
	blueBackground = "\x1b[44m"
	normalBack     = "\x1b[49m"

	keyF11 = "\x1b[23~"
	keyF12 = "\x1b[24~"

	// Hot-keys active only while a history window is shown.
	keySaveHistory = 's'
	keyPageHistory = 'p'
)

// seqMax bounds an in-progress escape sequence in either direction.
// Longer sequences are abandoned, never forwarded as garbage.
const seqMax = 40

// seqAccumulator collects the bytes of an escape sequence under way.
type seqAccumulator struct {
	buf    [seqMax]byte
	n      int
	active bool
}

func (a *seqAccumulator) start() {
	a.n = 0
	a.active = true
}

func (a *seqAccumulator) reset() {
	a.n = 0
	a.active = false
}

// add appends a byte; reports false when the bound is exceeded, in
// which case the accumulator resets itself.
func (a *seqAccumulator) add(c byte) bool {
	if a.n >= seqMax {
		a.reset()
		return false
	}
	a.buf[a.n] = c
	a.n++
	return true
}

func (a *seqAccumulator) bytes() []byte {
	return a.buf[:a.n]
}

// Geometry is the fixed screen size for the session. Resize is not
// supported: the size is captured once at startup.
type Geometry struct {
	Rows int
	Cols int
}

// Session is the shared state of one bridged terminal session: the
// scrollback store, the tracked cursor, the two sequence accumulators
// and the decoder state. It is owned by the Bridge and touched only
// from the bridge's single thread.
type Session struct {
	geo    Geometry
	cfg    *Config
	store  *Store
	cursor CursorState
	dec    utf8Decoder
	out    seqAccumulator // program -> terminal direction
	in     seqAccumulator // terminal -> program direction

	term    *bufio.Writer // the real terminal
	program io.Writer     // the pty master

	scrollUp   []byte
	scrollDown []byte

	// drain processes terminal-only input with a timeout. Set by the
	// Bridge; the cursor oracle borrows it while waiting for a
	// position reply.
	drain func(timeout time.Duration) error

	// suspend blocks until the direct-access helper with the given pid
	// has finished. Set by the Bridge.
	suspend func(pid int) error

	// publish, when set, receives a plain-text snapshot after the
	// program direction has been processed. Feeds the watch server.
	publish func(snapshot string)

	// pager runs the external pager on a saved history file with the
	// real terminal. Set by main; nil in tests.
	pager func(path string) error

	debug *log.Logger // escape tracing, nil when disabled
}

// NewSession builds the session state around a blank store. term
// receives everything destined for the real terminal; program receives
// everything destined for the pty master.
func NewSession(cfg *Config, geo Geometry, term io.Writer, program io.Writer) *Session {
	s := &Session{
		geo:        geo,
		cfg:        cfg,
		store:      NewStore(cfg.BufferCells, geo.Rows, geo.Cols),
		term:       bufio.NewWriter(term),
		program:    program,
		scrollUp:   []byte(keyF11),
		scrollDown: []byte(keyF12),
	}
	s.cursor.status = cursorUnknown
	return s
}

// SetScrollKeys installs the byte strings the terminal sends for the
// scroll-up and scroll-down keys.
func (s *Session) SetScrollKeys(up, down []byte) {
	if len(up) > 0 {
		s.scrollUp = up
	}
	if len(down) > 0 {
		s.scrollDown = down
	}
}

func (s *Session) debugf(format string, args ...any) {
	if s.debug != nil {
		s.debug.Printf(format, args...)
	}
}

// Flush pushes buffered terminal output out. The Bridge calls it after
// each processed block and the oracle before waiting for a reply.
func (s *Session) Flush() error {
	return s.term.Flush()
}
