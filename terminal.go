package main

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// RealTerminal is the character terminal the user is sitting at. It is
// switched to raw mode for the lifetime of the session so every byte
// reaches the interpreters unmangled.
type RealTerminal struct {
	In       *os.File
	Out      *os.File
	geo      Geometry
	oldState *term.State
}

// OpenRealTerminal captures the terminal geometry and enters raw mode.
func OpenRealTerminal() (*RealTerminal, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("standard input is not a terminal")
	}

	geo, err := terminalGeometry(os.Stdin)
	if err != nil {
		return nil, err
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("raw mode: %w", err)
	}

	return &RealTerminal{
		In:       os.Stdin,
		Out:      os.Stdout,
		geo:      geo,
		oldState: oldState,
	}, nil
}

// Geometry is the screen size captured at startup. It stays fixed for
// the session; resize is not supported.
func (r *RealTerminal) Geometry() Geometry {
	return r.geo
}

// Restore puts the terminal back into the mode it was found in.
func (r *RealTerminal) Restore() {
	if r.oldState != nil {
		term.Restore(int(r.In.Fd()), r.oldState)
		r.oldState = nil
	}
}

func terminalGeometry(f *os.File) (Geometry, error) {
	if ws, err := pty.GetsizeFull(f); err == nil && ws.Rows > 0 && ws.Cols > 0 {
		return Geometry{Rows: int(ws.Rows), Cols: int(ws.Cols)}, nil
	}
	cols, rows, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return Geometry{}, fmt.Errorf("terminal size: %w", err)
	}
	return Geometry{Rows: rows, Cols: cols}, nil
}

// Terminal manages the program running inside the pty.
type Terminal struct {
	ptmx *os.File
	cmd  *exec.Cmd
}

// SpawnShell starts the given command line inside a fresh pty sized to
// the real terminal. The real terminal is additionally passed to the
// child as an inherited descriptor so the wrap helper can take it over.
func SpawnShell(argv []string, geo Geometry, realTTY *os.File) (*Terminal, error) {
	if len(argv) == 0 {
		shell := os.Getenv("SHELL")
		if shell == "" {
			shell = "/bin/bash"
			if _, err := os.Stat(shell); err != nil {
				shell = "/bin/sh"
			}
		}
		argv = []string{shell}
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(),
		"SCROLLBACK=true",
		fmt.Sprintf("%s=%d", vtFdEnv, vtChildFd),
	)
	cmd.ExtraFiles = []*os.File{realTTY}

	ws := &pty.Winsize{Rows: uint16(geo.Rows), Cols: uint16(geo.Cols)}
	ptmx, err := pty.StartWithSize(cmd, ws)
	if err != nil {
		return nil, fmt.Errorf("pty start: %w", err)
	}

	t := &Terminal{ptmx: ptmx, cmd: cmd}
	t.childLineDiscipline()
	return t, nil
}

// Master exposes the pty master side.
func (t *Terminal) Master() *os.File {
	return t.ptmx
}

// childLineDiscipline adjusts the pty line discipline: break generates
// SIGINT instead of being ignored.
func (t *Terminal) childLineDiscipline() {
	fd := int(t.ptmx.Fd())
	tio, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return
	}
	tio.Iflag &^= unix.IGNBRK
	tio.Iflag |= unix.BRKINT
	unix.IoctlSetTermios(fd, unix.TCSETS, tio)
}

// Close terminates the shell and its session group and reaps the child.
func (t *Terminal) Close() {
	if t.cmd != nil && t.cmd.Process != nil && t.cmd.Process.Pid > 0 {
		// The child leads its own session; signal the whole group.
		syscall.Kill(-t.cmd.Process.Pid, syscall.SIGHUP)
		time.Sleep(100 * time.Millisecond)
		t.cmd.Process.Signal(syscall.SIGTERM)
		time.Sleep(50 * time.Millisecond)
		t.cmd.Process.Kill()
		t.cmd.Wait()
	}
	if t.ptmx != nil {
		t.ptmx.Close()
	}
}

// Wait reaps the child without signaling it first, for the normal path
// where the shell already exited.
func (t *Terminal) Wait() {
	if t.cmd != nil {
		t.cmd.Wait()
	}
}
