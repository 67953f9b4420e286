package ymf262

import "math"

// logSinTable is a quarter-sine log table: 256 entries of
// -log2(sin((2i+1)/512 * pi/2)) in 4.8 fixed-point, value-identical to the
// chip's log-sin ROM.
var logSinTable [256]uint16

// expTable holds 2^(1-(i+1)/256) scaled to 11 bits, value-identical to the
// chip's exponent ROM. Used to convert log-domain attenuation back to a
// linear amplitude.
var expTable [256]uint16

func init() {
	for i := 0; i < 256; i++ {
		angle := float64(2*i+1) / 512.0 * math.Pi / 2.0
		logSinTable[i] = uint16(math.Round(-math.Log2(math.Sin(angle)) * 256.0))
	}
	for i := 0; i < 256; i++ {
		expTable[i] = uint16(math.Round(math.Pow(2.0, 1.0-float64(i+1)/256.0) * 1024.0))
	}
}

// envelopeCalcExp converts a total log-domain attenuation (4.8 fixed-point)
// to a linear 13-bit magnitude. Attenuations beyond 0x1FFF all floor to
// silence through the final shift.
func envelopeCalcExp(level uint32) int16 {
	if level > 0x1FFF {
		level = 0x1FFF
	}
	return int16((uint32(expTable[level&0xFF]) << 1) >> (level >> 8))
}

// envelopeSin computes a slot's signed output for one of the eight OPL3
// waveforms given the 10-bit phase and the slot's total attenuation.
// Negative halves are produced by XOR (one's complement), matching the
// DAC's behavior rather than arithmetic negation.
func envelopeSin(wf uint8, phase uint16, envelope uint16) int16 {
	phase &= 0x3FF
	var out uint16
	var neg uint16

	switch wf {
	case 0: // sine
		if phase&0x200 != 0 {
			neg = 0xFFFF
		}
		if phase&0x100 != 0 {
			out = logSinTable[(phase&0xFF)^0xFF]
		} else {
			out = logSinTable[phase&0xFF]
		}
	case 1: // half sine
		if phase&0x200 != 0 {
			out = 0x1000
		} else if phase&0x100 != 0 {
			out = logSinTable[(phase&0xFF)^0xFF]
		} else {
			out = logSinTable[phase&0xFF]
		}
	case 2: // absolute sine
		if phase&0x100 != 0 {
			out = logSinTable[(phase&0xFF)^0xFF]
		} else {
			out = logSinTable[phase&0xFF]
		}
	case 3: // pulse sine (rising quarters only)
		if phase&0x100 != 0 {
			out = 0x1000
		} else {
			out = logSinTable[phase&0xFF]
		}
	case 4: // alternating sine (double frequency, first half)
		if phase&0x300 == 0x100 {
			neg = 0xFFFF
		}
		if phase&0x200 != 0 {
			out = 0x1000
		} else if phase&0x80 != 0 {
			out = logSinTable[((phase^0xFF)<<1)&0xFF]
		} else {
			out = logSinTable[(phase<<1)&0xFF]
		}
	case 5: // camel sine (double frequency, rectified, first half)
		if phase&0x200 != 0 {
			out = 0x1000
		} else if phase&0x80 != 0 {
			out = logSinTable[((phase^0xFF)<<1)&0xFF]
		} else {
			out = logSinTable[(phase<<1)&0xFF]
		}
	case 6: // square
		if phase&0x200 != 0 {
			neg = 0xFFFF
		}
	case 7: // logarithmic sawtooth
		if phase&0x200 != 0 {
			neg = 0xFFFF
			phase = (phase & 0x1FF) ^ 0x1FF
		}
		out = phase << 3
	}

	return int16(uint16(envelopeCalcExp(uint32(out)+uint32(envelope)<<3)) ^ neg)
}

// slotGenerate computes a slot's output from its latched phase plus the
// given phase modulation input.
func slotGenerate(s *slot, mod int16) {
	s.out = envelopeSin(s.wf, s.phaseOut+uint16(mod), s.egOut)
}

// slotCalcFB computes operator 1 self-feedback from the slot's last two
// outputs and rolls the output history. Run for every slot each tick; the
// result is only routed on slots that feed themselves.
func slotCalcFB(s *slot, fb uint8) {
	if fb != 0 {
		s.fbMod = int16((int32(s.prevOut) + int32(s.out)) >> (9 - fb))
	} else {
		s.fbMod = 0
	}
	s.prevOut = s.out
}
