// Package skin implements the signal-conditioning engine for a capacitive
// touch-sensor matrix. Raw frames arrive from the acquisition layer once per
// sampling cycle; the engine maintains an adaptive per-cell baseline, extracts
// touch deltas, gates sensor noise, auto-scales the intensity mapping to the
// observed dynamic range, and blanks the output when the whole matrix has been
// quiet for several consecutive cycles.
package skin

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// Matrix dimensions for the Unipd flexible skin. The controller multiplexes
// 21 TX (row) lines against 12 RX (column) sensing lines, so one frame carries
// 252 cells.
const (
	DefaultRows = 21
	DefaultCols = 12
)

// MaxReading is the largest raw value the controller can report per cell
// (two bytes, high<<8|low).
const MaxReading = 0xFFFF

// Frame is one complete scan of the sensor matrix: an ordered sequence of
// rows*cols unsigned readings in row-major order. The engine never mutates a
// Frame after ingesting it.
type Frame []uint16

// ParseFrameLine decodes one line from the serial bridge into a Frame. The
// bridge emits one frame per line as comma-separated decimal readings. A line
// with the wrong cell count or a malformed value yields an error; the caller
// treats that cycle as "no frame" and drops it.
func ParseFrameLine(line string, cells int) (Frame, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) != cells {
		return nil, fmt.Errorf("frame has %d cells, want %d", len(fields), cells)
	}
	frame := make(Frame, cells)
	for i, f := range fields {
		v, err := strconv.ParseUint(strings.TrimSpace(f), 10, 16)
		if err != nil {
			return nil, fmt.Errorf("cell %d: %w", i, err)
		}
		frame[i] = uint16(v)
	}
	return frame, nil
}

// EncodeFrameBlob packs a frame as two big-endian bytes per cell, the same
// layout the controller uses on the wire. Used when recording raw frames for
// later replay.
func EncodeFrameBlob(frame Frame) []byte {
	blob := make([]byte, 2*len(frame))
	for i, v := range frame {
		binary.BigEndian.PutUint16(blob[2*i:], v)
	}
	return blob
}

// DecodeFrameBlob unpacks a recorded frame blob. The blob length must be
// exactly 2*cells bytes.
func DecodeFrameBlob(blob []byte, cells int) (Frame, error) {
	if len(blob) != 2*cells {
		return nil, fmt.Errorf("frame blob is %d bytes, want %d", len(blob), 2*cells)
	}
	frame := make(Frame, cells)
	for i := range frame {
		frame[i] = binary.BigEndian.Uint16(blob[2*i:])
	}
	return frame, nil
}
