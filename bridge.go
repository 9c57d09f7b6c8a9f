package main

import (
	"fmt"
	"io"
	"time"

	"golang.org/x/sys/unix"
)

// Bridge owns the two descriptors — the real terminal and the pty
// master — and runs the readiness loop that feeds the interpreters.
// Everything happens on one thread: the only suspension points are the
// select itself, the oracle's bounded terminal-only drain, and the
// direct-access handoff.
type Bridge struct {
	session  *Session
	ttyFd    int
	masterFd int

	readBuf [1024]byte
}

// NewBridge wires a session to its descriptors. tty is the real
// terminal's input; master is the pty master side.
func NewBridge(s *Session, ttyFd, masterFd int) *Bridge {
	b := &Bridge{
		session:  s,
		ttyFd:    ttyFd,
		masterFd: masterFd,
	}
	s.drain = b.drainTerminal
	s.suspend = waitForPid
	return b
}

// Run bridges both directions until a read fails or either side hits
// end of stream.
func (b *Bridge) Run() error {
	for {
		if err := b.exchange(true, nil); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

// exchange waits for readiness and processes one block from each ready
// descriptor. With readProgram false only the terminal is read, and the
// timeout bounds the wait — the shape the cursor oracle borrows.
func (b *Bridge) exchange(readProgram bool, timeout *unix.Timeval) error {
	var fds unix.FdSet
	fds.Zero()
	fds.Set(b.ttyFd)
	nfds := b.ttyFd
	if readProgram {
		fds.Set(b.masterFd)
		if b.masterFd > nfds {
			nfds = b.masterFd
		}
	}

	n, err := unix.Select(nfds+1, &fds, nil, nil, timeout)
	if err == unix.EINTR {
		return nil
	}
	if err != nil {
		return fmt.Errorf("select: %w", err)
	}
	if n == 0 {
		// Timed out: only happens during an oracle drain.
		b.session.debugf("drain timeout")
		return nil
	}

	if fds.IsSet(b.ttyFd) {
		if err := b.readTerminal(); err != nil {
			return err
		}
	}
	if readProgram && fds.IsSet(b.masterFd) {
		if err := b.readProgram(); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bridge) readTerminal() error {
	n, err := unix.Read(b.ttyFd, b.readBuf[:])
	if err != nil {
		return fmt.Errorf("terminal read: %w", err)
	}
	if n == 0 {
		return io.EOF
	}
	for i := 0; i < n; i++ {
		b.session.TerminalByte(b.readBuf[i], i < n-1)
	}
	return b.session.Flush()
}

func (b *Bridge) readProgram() error {
	n, err := unix.Read(b.masterFd, b.readBuf[:])
	if err != nil {
		// A pty master reports EIO when the child side is gone;
		// treat it as a clean end of stream.
		if err == unix.EIO {
			return io.EOF
		}
		return fmt.Errorf("program read: %w", err)
	}
	if n == 0 {
		return io.EOF
	}
	for i := 0; i < n; i++ {
		b.session.ProgramByte(b.readBuf[i])
	}
	if err := b.session.Flush(); err != nil {
		return err
	}
	if b.session.publish != nil {
		b.session.publish(b.session.HistoryText())
	}
	return nil
}

// drainTerminal is the oracle's nested wait: one bounded terminal-only
// exchange. It reuses the exact byte classification of the outer loop,
// so scroll keys or unrelated input arriving while the oracle waits are
// handled normally instead of being discarded.
func (b *Bridge) drainTerminal(d time.Duration) error {
	tv := unix.NsecToTimeval(d.Nanoseconds())
	return b.exchange(false, &tv)
}

// waitForPid blocks until the process with the given pid has exited.
// The helper is not our child, so poll for existence. A zero pid means
// the requester supplied none; give the helper one polling interval.
func waitForPid(pid int) error {
	if pid <= 0 {
		time.Sleep(handoffPoll)
		return nil
	}
	for {
		if err := unix.Kill(pid, 0); err != nil {
			if err == unix.ESRCH {
				return nil
			}
			return fmt.Errorf("waiting for pid %d: %w", pid, err)
		}
		time.Sleep(handoffPoll)
	}
}

const handoffPoll = 100 * time.Millisecond
