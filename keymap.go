package main

import (
	"fmt"
	"log"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Scroll-key resolution. The history view is driven by two opaque byte
// strings the terminal sends for the scroll keys. On a Linux console
// the shifted page-up/page-down strings can be read out of the kernel
// keymap, so those keys scroll; everywhere else the defaults are the
// F11/F12 function strings.

// ScrollKeyResolver turns keyboard keycodes into the byte strings the
// terminal will send for them. It is the only capability the session
// needs from the keyboard layer.
type ScrollKeyResolver interface {
	FunctionString(keycode int) ([]byte, error)
}

// Default keycodes: page up / page down on a PC keyboard.
const (
	defaultKeycodeUp   = 104
	defaultKeycodeDown = 109
)

// ResolveScrollKeys maps the configured keycodes through the resolver,
// falling back to F11/F12 when the resolver cannot serve (not a
// console, unmapped key). Each key falls back on its own.
func ResolveScrollKeys(r ScrollKeyResolver, upCode, downCode int) (up, down []byte) {
	up = []byte(keyF11)
	down = []byte(keyF12)
	if r == nil {
		return up, down
	}
	if s, err := r.FunctionString(upCode); err == nil && len(s) > 0 {
		up = s
		log.Printf("scroll up bound to shifted keycode %d", upCode)
	} else {
		log.Printf("scroll up is F11")
	}
	if s, err := r.FunctionString(downCode); err == nil && len(s) > 0 {
		down = s
		log.Printf("scroll down bound to shifted keycode %d", downCode)
	} else {
		log.Printf("scroll down is F12")
	}
	return up, down
}

// Console keymap ioctls, from <linux/kd.h>.
const (
	ioctlKDGKBENT  = 0x4B46
	ioctlKDGKBSENT = 0x4B48

	// Shift modifier table index.
	shiftTable = 1

	// Key type extracted from a keymap entry; KT_FN entries carry a
	// function string.
	ktFn = 1
)

type kbEntry struct {
	table byte
	index byte
	value uint16
}

type kbSEntry struct {
	fn  byte
	str [512]byte
}

// ConsoleKeymap reads function strings from the Linux console keymap
// of the given descriptor (normally the real terminal).
type ConsoleKeymap struct {
	Fd int
}

// FunctionString looks up the shifted binding of a keycode and returns
// the byte string the console sends for it. Non-function bindings and
// holes report an error so the caller falls back to a default.
func (k *ConsoleKeymap) FunctionString(keycode int) ([]byte, error) {
	ent := kbEntry{table: shiftTable, index: byte(keycode)}
	if err := ioctlPtr(k.Fd, ioctlKDGKBENT, unsafe.Pointer(&ent)); err != nil {
		return nil, fmt.Errorf("KDGKBENT: %w", err)
	}
	if ent.value>>8 != ktFn {
		return nil, fmt.Errorf("keycode %d is not bound to a function key", keycode)
	}

	sent := kbSEntry{fn: byte(ent.value)}
	if err := ioctlPtr(k.Fd, ioctlKDGKBSENT, unsafe.Pointer(&sent)); err != nil {
		return nil, fmt.Errorf("KDGKBSENT: %w", err)
	}
	end := 0
	for end < len(sent.str) && sent.str[end] != 0 {
		end++
	}
	if end == 0 {
		return nil, fmt.Errorf("keycode %d has an empty function string", keycode)
	}
	out := make([]byte, end)
	copy(out, sent.str[:end])
	return out, nil
}

func ioctlPtr(fd int, req uint, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}
