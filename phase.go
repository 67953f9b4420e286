package ymf262

// multTable maps the 4-bit multiplier register to twice the frequency
// multiple: MULT 0 means x0.5, and 11/13/14 alias to 10/12/15's neighbors
// exactly as the hardware decodes them.
var multTable = [16]uint8{
	1, 2, 4, 6, 8, 10, 12, 14,
	16, 18, 20, 20, 24, 24, 30, 30,
}

// phaseGenerate advances one slot's phase accumulator and latches its
// 10-bit phase output. slotNum is the chip-wide slot index; the rhythm
// generator taps phase bits of the hi-hat (13) and top cymbal (17) slots
// and overrides the hi-hat/snare/cymbal phase with noise-derived values.
func (c *YMF262) phaseGenerate(ch *channel, s *slot, slotNum int) {
	fnum := ch.fnum
	if s.vib {
		// Vibrato depth tracks the three top F-number bits, stepped
		// through an 8-position triangle.
		rng := int16((fnum >> 7) & 0x07)
		switch {
		case c.vibPos&0x03 == 0:
			rng = 0
		case c.vibPos&0x01 != 0:
			rng >>= 1
		}
		rng >>= c.vibShift
		if c.vibPos&0x04 != 0 {
			rng = -rng
		}
		fnum = uint16(int16(fnum) + rng)
	}

	basefreq := (uint32(fnum) << ch.block) >> 1
	phase := uint16(s.phase >> 9)
	if s.pgReset {
		s.phase = 0
	}
	s.phase += (basefreq * uint32(multTable[s.mult])) >> 1
	s.phaseOut = phase

	noise := c.noise
	if slotNum == 13 {
		c.rmHHBit2 = uint8(phase>>2) & 0x01
		c.rmHHBit3 = uint8(phase>>3) & 0x01
		c.rmHHBit7 = uint8(phase>>7) & 0x01
		c.rmHHBit8 = uint8(phase>>8) & 0x01
	}
	if slotNum == 17 && c.rhy&0x20 != 0 {
		c.rmTCBit3 = uint8(phase>>3) & 0x01
		c.rmTCBit5 = uint8(phase>>5) & 0x01
	}
	if c.rhy&0x20 != 0 {
		rmXor := (c.rmHHBit2 ^ c.rmHHBit7) |
			(c.rmHHBit3 ^ c.rmTCBit5) |
			(c.rmTCBit3 ^ c.rmTCBit5)
		switch slotNum {
		case 13: // hi-hat
			s.phaseOut = uint16(rmXor) << 9
			if rmXor^uint8(noise&0x01) != 0 {
				s.phaseOut |= 0xD0
			} else {
				s.phaseOut |= 0x34
			}
		case 16: // snare drum
			s.phaseOut = uint16(c.rmHHBit8)<<9 |
				uint16(c.rmHHBit8^uint8(noise&0x01))<<8
		case 17: // top cymbal
			s.phaseOut = uint16(rmXor)<<9 | 0x80
		}
	}

	// 23-bit noise LFSR, clocked once per slot evaluation.
	nBit := ((noise >> 14) ^ noise) & 0x01
	c.noise = noise>>1 | nBit<<22
}
