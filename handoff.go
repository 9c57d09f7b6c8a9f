package main

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"golang.org/x/sys/unix"
)

// Direct terminal access. Some tools need the real terminal device, not
// the pty this proxy puts in front of it. The wrap mode of this binary
// is handed an inherited descriptor for the real terminal (VT_FILENO),
// announces itself to the proxy with ESC[0;PIDv on its pty stdout, and
// execs the target with the real terminal as stdin/stdout/stderr. The
// proxy recognizes the announcement, stops bridging while the wrapper
// pid lives, then repaints and resumes.

const (
	vtFdEnv = "VT_FILENO"

	// The descriptor number the real terminal is passed to children
	// on; the first ExtraFiles slot.
	vtChildFd = 3
)

// runHandoff suspends the bridge around the helper identified by the
// handoff sequence. Called by the outbound interpreter; the sequence
// itself is consumed, never forwarded.
func (s *Session) runHandoff(pid int) {
	s.debugf("handoff to pid %d", pid)
	s.term.WriteString(saveCursor)
	s.Flush()

	var failed error
	if s.suspend != nil {
		failed = s.suspend(pid)
	}

	// The helper drove the terminal directly; nothing tracked survives.
	s.cursor.status = cursorUnknown
	s.dec.reset()
	s.Render()
	if failed != nil {
		s.inlineReport(fmt.Sprintf("direct access helper: %v", failed))
	}
}

// RunWrap is the --wrap mode: run a program with the real terminal as
// its standard descriptors. Must be started under the proxy, which
// provides VT_FILENO in the environment.
func RunWrap(argv []string) error {
	if len(argv) == 0 {
		return fmt.Errorf("program to run missing")
	}
	vtEnv := os.Getenv(vtFdEnv)
	if vtEnv == "" {
		return fmt.Errorf("no environment variable %s; not running under scrollback", vtFdEnv)
	}
	vt, err := strconv.Atoi(vtEnv)
	if err != nil || vt < 3 {
		return fmt.Errorf("bad %s value %q", vtFdEnv, vtEnv)
	}

	path, err := exec.LookPath(argv[0])
	if err != nil {
		return err
	}

	// Announce the handoff on the pty before stdout is redirected, so
	// the proxy stands down while we run.
	fmt.Printf("\x1b[0;%dv", os.Getpid())
	os.Stdout.Sync()

	for _, fd := range []int{0, 1, 2} {
		if err := unix.Dup2(vt, fd); err != nil {
			return fmt.Errorf("dup2: %w", err)
		}
	}
	unix.Close(vt)

	// The real terminal sits in raw mode for the proxy; give the
	// program the line discipline it expects.
	if tio, err := unix.IoctlGetTermios(0, unix.TCGETS); err == nil {
		tio.Iflag |= unix.ICRNL
		tio.Oflag |= unix.OPOST
		unix.IoctlSetTermios(0, unix.TCSETS, tio)
	}

	return unix.Exec(path, argv, os.Environ())
}
