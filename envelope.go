package ymf262

// kslTable maps the top four F-number bits to a base key-scale-level
// attenuation. Values are the chip's KSL ROM (3dB steps in 0.75dB units).
var kslTable = [16]uint8{
	0, 32, 40, 45, 48, 51, 53, 55,
	56, 58, 59, 60, 61, 62, 63, 64,
}

// kslShift maps the 2-bit KSL register to the right shift applied to the
// base attenuation: 0 = off, then 3dB, 1.5dB, 6dB per octave.
var kslShift = [4]uint8{8, 1, 2, 0}

// egIncStep supplies the sub-rate fine increment for the highest rates,
// indexed by [rate&3][tick&3]. Together with the rate's coarse shift this
// produces the chip's characteristic 4/8..7/8 duty patterns.
var egIncStep = [4][4]uint8{
	{0, 0, 0, 0},
	{1, 0, 0, 0},
	{1, 0, 1, 0},
	{1, 1, 1, 0},
}

// kslAttenuation converts an F-number/block pair to the slot's base KSL
// attenuation. Low blocks subtract more than the ROM value provides, which
// clamps to zero.
func kslAttenuation(fnum uint16, block uint8) uint8 {
	ksl := int16(kslTable[fnum>>6])<<2 - int16(8-block)<<5
	if ksl < 0 {
		return 0
	}
	return uint8(ksl)
}

// stepEGTimer advances the global envelope timer by one tick. The timer's
// lowest set bit selects which rate group gets an update window this tick;
// the generator only runs on alternating ticks (egState).
func (c *YMF262) stepEGTimer() {
	c.egAdd = 0
	if c.egTimer != 0 {
		shift := uint8(0)
		for shift < 36 && (c.egTimer>>shift)&0x01 == 0 {
			shift++
		}
		if shift <= 12 {
			c.egAdd = shift + 1
		}
	}
	if c.egTimerRem != 0 || c.egState != 0 {
		if c.egTimer == 0xFFFFFFFFF {
			c.egTimer = 0
			c.egTimerRem = 1
		} else {
			c.egTimer++
			c.egTimerRem = 0
		}
	}
	c.egState ^= 1
}

// envelopeCalc advances one slot's envelope by one native tick and latches
// the slot's total output attenuation (envelope + TL + KSL + tremolo).
//
// The rate arithmetic is the chip's: effective rate = 4*register-rate plus
// the channel key scale value (quartered unless KSR is set), giving a 0-63
// range whose upper two bits pick a coarse shift window from the global
// envelope timer and whose lower two bits pick a fine duty pattern. Attack
// approaches zero attenuation exponentially by adding a shifted complement;
// decay and release add linear steps in the log-attenuation domain.
func (c *YMF262) envelopeCalc(ch *channel, s *slot) {
	s.egOut = s.egRout + uint16(s.tl)<<2 + uint16(s.egKSL>>kslShift[s.ksl])
	if s.trem {
		s.egOut += uint16(c.tremolo)
	}

	var regRate uint8
	reset := false
	if s.key != 0 && s.egState == egRelease {
		// Key-on from release restarts the attack and schedules a phase
		// reset for the next tick.
		reset = true
		regRate = s.ar
	} else {
		switch s.egState {
		case egAttack:
			regRate = s.ar
		case egDecay:
			regRate = s.dr
		case egSustain:
			if !s.egt {
				regRate = s.rr
			}
		case egRelease:
			regRate = s.rr
		}
	}
	s.pgReset = reset

	ks := ch.ksv
	if !s.ksr {
		ks >>= 2
	}
	nonzero := regRate != 0
	rate := ks + regRate<<2
	rateHi := rate >> 2
	rateLo := rate & 0x03
	if rateHi&0x10 != 0 {
		rateHi = 0x0F
	}

	egShift := rateHi + c.egAdd
	shift := uint8(0)
	if nonzero {
		if rateHi < 12 {
			if c.egState != 0 {
				switch egShift {
				case 12:
					shift = 1
				case 13:
					shift = (rateLo >> 1) & 0x01
				case 14:
					shift = rateLo & 0x01
				}
			}
		} else {
			shift = (rateHi & 0x03) + egIncStep[rateLo][c.timer&0x03]
			if shift&0x04 != 0 {
				shift = 0x03
			}
			if shift == 0 {
				shift = c.egState
			}
		}
	}

	egRout := s.egRout
	var egInc int32
	egOff := s.egRout&0x1F8 == 0x1F8

	// Effective rate 60+ snaps attack straight to full volume.
	if reset && rateHi == 0x0F {
		egRout = 0
	}
	if s.egState != egAttack && !reset && egOff {
		egRout = 0x1FF
	}

	switch s.egState {
	case egAttack:
		if s.egRout == 0 {
			s.egState = egDecay
		} else if s.key != 0 && shift > 0 && rateHi != 0x0F {
			// Exponential approach: the complement shrinks as the
			// attenuation nears zero.
			egInc = (^int32(s.egRout) << shift) >> 4
		}
	case egDecay:
		if s.egRout>>4 == uint16(s.sl) {
			s.egState = egSustain
		} else if !egOff && !reset && shift > 0 {
			egInc = 1 << (shift - 1)
		}
	case egSustain, egRelease:
		if !egOff && !reset && shift > 0 {
			egInc = 1 << (shift - 1)
		}
	}
	s.egRout = uint16(int32(egRout)+egInc) & 0x1FF

	if reset {
		s.egState = egAttack
	}
	if s.key == 0 {
		s.egState = egRelease
	}
}
