// Package vgm parses VGM and VGZ files into timed OPL register writes.
//
// Supported chips (events extracted as register writes):
//   - YMF262 / OPL3 (cmd 0x5E port 0, 0x5F port 1)
//   - YM3812 / OPL2 (cmd 0x5A), mapped onto OPL3 bank 0
//
// All other chip commands are skipped with their documented operand
// widths so mixed-chip files still play their OPL part.
package vgm

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// Event is one register write, stamped with its position in the VGM's
// 44100 Hz sample timeline.
type Event struct {
	Sample uint64
	Reg    uint16 // 9-bit OPL3 address (bit 8 = register bank)
	Value  uint8
}

// File is a parsed VGM: the OPL event stream plus the header fields a
// player needs for timing and looping.
type File struct {
	Events       []Event
	Version      uint32
	ClockHz      uint32 // YMF262 clock, or YM3812 clock for OPL2 files
	TotalSamples uint64
	LoopSamples  uint64
	LoopSample   uint64 // timeline position of the loop point (0 = no loop)
}

// ParseFile reads and parses a VGM or VGZ file from disk.
func ParseFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse parses VGM data. Gzip-compressed input (VGZ) is detected by its
// magic bytes and decompressed transparently.
func Parse(data []byte) (*File, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("vgm: file too short")
	}
	if data[0] == 0x1F && data[1] == 0x8B {
		gz, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		data, err = io.ReadAll(gz)
		if err != nil {
			return nil, err
		}
	}
	if len(data) < 0x40 {
		return nil, fmt.Errorf("vgm: file too short")
	}
	if !bytes.Equal(data[0:4], []byte("Vgm ")) {
		return nil, fmt.Errorf("vgm: bad magic")
	}

	f := &File{
		Version:      binary.LittleEndian.Uint32(data[0x08:0x0C]),
		TotalSamples: uint64(binary.LittleEndian.Uint32(data[0x18:0x1C])),
		LoopSamples:  uint64(binary.LittleEndian.Uint32(data[0x20:0x24])),
	}

	// Relative data offset landed in 1.50; older files start at 0x40.
	dataStart := uint32(0x40)
	if off := binary.LittleEndian.Uint32(data[0x34:0x38]); off != 0 {
		dataStart = 0x34 + off
	}
	if int(dataStart) > len(data) {
		return nil, fmt.Errorf("vgm: data offset out of range")
	}

	// YM3812 clock at 0x50, YMF262 clock at 0x5C; both fields only exist
	// when the data block starts past them.
	if dataStart >= 0x54 {
		f.ClockHz = binary.LittleEndian.Uint32(data[0x50:0x54])
	}
	if dataStart >= 0x60 {
		if clk := binary.LittleEndian.Uint32(data[0x5C:0x60]); clk != 0 {
			f.ClockHz = clk
		}
	}

	loopStart := uint32(0)
	if off := binary.LittleEndian.Uint32(data[0x1C:0x20]); off != 0 {
		loopStart = 0x1C + off
	}

	events := make([]Event, 0, 1024)
	samplePos := uint64(0)

	for i := int(dataStart); i < len(data); {
		if loopStart != 0 && f.LoopSample == 0 && uint32(i) == loopStart {
			f.LoopSample = samplePos
		}
		cmd := data[i]
		switch {
		case cmd == 0x66: // end of sound data
			i = len(data)
			continue

		case cmd == 0x5A: // YM3812 write -> bank 0
			if i+2 >= len(data) {
				return nil, truncated(cmd)
			}
			events = append(events, Event{samplePos, uint16(data[i+1]), data[i+2]})
			i += 3

		case cmd == 0x5E: // YMF262 port 0
			if i+2 >= len(data) {
				return nil, truncated(cmd)
			}
			events = append(events, Event{samplePos, uint16(data[i+1]), data[i+2]})
			i += 3

		case cmd == 0x5F: // YMF262 port 1
			if i+2 >= len(data) {
				return nil, truncated(cmd)
			}
			events = append(events, Event{samplePos, 0x100 | uint16(data[i+1]), data[i+2]})
			i += 3

		case cmd == 0x61: // wait n samples
			if i+2 >= len(data) {
				return nil, truncated(cmd)
			}
			samplePos += uint64(binary.LittleEndian.Uint16(data[i+1 : i+3]))
			i += 3

		case cmd == 0x62: // wait 1/60 s
			samplePos += 735
			i++

		case cmd == 0x63: // wait 1/50 s
			samplePos += 882
			i++

		case cmd == 0x64: // override wait length for 0x62/0x63
			i += 4

		case cmd >= 0x70 && cmd <= 0x7F: // wait 1-16 samples
			samplePos += uint64(cmd&0x0F) + 1
			i++

		case cmd >= 0x80 && cmd <= 0x8F: // YM2612 DAC write + wait
			samplePos += uint64(cmd & 0x0F)
			i++

		case cmd == 0x67: // data block
			if i+6 >= len(data) {
				return nil, truncated(cmd)
			}
			if data[i+1] != 0x66 {
				return nil, fmt.Errorf("vgm: malformed data block at 0x%X", i)
			}
			size := binary.LittleEndian.Uint32(data[i+3 : i+7])
			i += 7 + int(size)

		case cmd == 0x68: // PCM RAM write
			i += 12

		case cmd == 0x4F || cmd == 0x50: // SN76489 family
			i += 2

		case cmd >= 0x30 && cmd <= 0x3F: // one-operand reserved range
			i += 2

		case cmd >= 0x40 && cmd <= 0x4E: // two-operand reserved range
			i += 3

		case cmd >= 0x51 && cmd <= 0x5D: // other FM chips
			i += 3

		case cmd >= 0x90 && cmd <= 0x95: // DAC stream control
			i += dacStreamLen(cmd)

		case cmd >= 0xA0 && cmd <= 0xBF: // two-operand chip writes
			i += 3

		case cmd >= 0xC0 && cmd <= 0xDF: // three-operand chip writes
			i += 4

		case cmd >= 0xE0: // four-operand seek/meta commands
			i += 5

		default:
			// Unknown command, skip a byte and resynchronize
			i++
		}
	}

	f.Events = events
	if f.TotalSamples == 0 {
		f.TotalSamples = samplePos
	}
	return f, nil
}

func truncated(cmd uint8) error {
	return fmt.Errorf("vgm: truncated command 0x%02X", cmd)
}

// dacStreamLen returns the full length of a DAC stream control command
// (0x90-0x95) including the command byte.
func dacStreamLen(cmd uint8) int {
	switch cmd {
	case 0x90:
		return 5
	case 0x91:
		return 5
	case 0x92:
		return 6
	case 0x93:
		return 11
	case 0x94:
		return 2
	default: // 0x95
		return 5
	}
}
