package main

// Cell character codec. The scrollback buffer stores one Unicode scalar
// per cell; bytes arrive from the pty one at a time, so decoding has to
// be incremental. In single-byte mode every byte is its own cell and no
// multi-byte interpretation happens at all.

const (
	// utf8Max is the longest UTF-8 sequence in bytes.
	utf8Max = 4

	// utf8Placeholder stands in for accumulated bytes that claimed to
	// be a character but decoded to nothing valid.
	utf8Placeholder = '_'
)

// decodeStatus is the outcome of feeding one byte to the decoder.
type decodeStatus int

const (
	decodeChar    decodeStatus = iota // a complete character is available
	decodeMore                        // waiting for continuation bytes
	decodeInvalid                     // byte dropped, decoder resynchronized
)

// utf8Decoder accumulates the bytes of a multi-byte UTF-8 sequence.
// The zero value is ready to use.
type utf8Decoder struct {
	buf  [utf8Max]byte
	pos  int
	need int
}

func (d *utf8Decoder) reset() {
	d.pos = 0
	d.need = 0
}

// decode consumes one byte. ASCII yields a character immediately. A lead
// byte opens a pending sequence; continuation bytes (10xxxxxx) extend it
// until the promised length is reached. A continuation byte with no
// pending lead is invalid and is discarded, resynchronizing the stream.
func (d *utf8Decoder) decode(c byte) (rune, decodeStatus) {
	if c < 0x80 {
		d.reset()
		return rune(c), decodeChar
	}
	switch {
	case c&0xC0 == 0xC0:
		// Lead byte. An unfinished previous sequence is abandoned.
		switch {
		case c&0xE0 == 0xC0:
			d.need = 1
		case c&0xF0 == 0xE0:
			d.need = 2
		case c&0xF8 == 0xF0:
			d.need = 3
		default:
			// 0xF8..0xFF: not a valid lead byte
			d.reset()
			return 0, decodeInvalid
		}
		d.pos = 0
		d.buf[d.pos] = c
		d.pos++
		return 0, decodeMore
	case c&0xC0 == 0x80:
		if d.pos == 0 || d.need == 0 {
			return 0, decodeInvalid
		}
		d.buf[d.pos] = c
		d.pos++
		d.need--
		if d.need > 0 {
			return 0, decodeMore
		}
		r := decodeUTF8(d.buf[:d.pos])
		d.reset()
		if r < 0 {
			return utf8Placeholder, decodeChar
		}
		return r, decodeChar
	}
	d.reset()
	return 0, decodeInvalid
}

// pending reports whether a multi-byte sequence is in progress.
func (d *utf8Decoder) pending() bool {
	return d.pos > 0 && d.need > 0
}

// decodeUTF8 converts a complete UTF-8 byte sequence to a scalar value.
// Returns -1 if the bytes do not form a valid sequence.
func decodeUTF8(b []byte) rune {
	switch {
	case len(b) == 1 && b[0]&0x80 == 0:
		return rune(b[0])
	case len(b) == 2 && b[0]&0xE0 == 0xC0 && b[1]&0xC0 == 0x80:
		return rune(b[0]&0x1F)<<6 |
			rune(b[1]&0x3F)
	case len(b) == 3 && b[0]&0xF0 == 0xE0 && b[1]&0xC0 == 0x80 && b[2]&0xC0 == 0x80:
		return rune(b[0]&0x0F)<<12 |
			rune(b[1]&0x3F)<<6 |
			rune(b[2]&0x3F)
	case len(b) == 4 && b[0]&0xF8 == 0xF0 && b[1]&0xC0 == 0x80 && b[2]&0xC0 == 0x80 && b[3]&0xC0 == 0x80:
		return rune(b[0]&0x07)<<18 |
			rune(b[1]&0x3F)<<12 |
			rune(b[2]&0x3F)<<6 |
			rune(b[3]&0x3F)
	}
	return -1
}

// encodeUTF8 appends the exact UTF-8 form of a scalar value to dst.
func encodeUTF8(dst []byte, r rune) []byte {
	switch {
	case r < 0x80:
		return append(dst, byte(r))
	case r < 0x800:
		return append(dst,
			0xC0|byte(r>>6)&0x1F,
			0x80|byte(r)&0x3F)
	case r < 0x10000:
		return append(dst,
			0xE0|byte(r>>12)&0x0F,
			0x80|byte(r>>6)&0x3F,
			0x80|byte(r)&0x3F)
	default:
		return append(dst,
			0xF0|byte(r>>18)&0x07,
			0x80|byte(r>>12)&0x3F,
			0x80|byte(r>>6)&0x3F,
			0x80|byte(r)&0x3F)
	}
}
