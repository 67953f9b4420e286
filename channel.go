package ymf262

// stepSlot runs the per-tick slot pipeline that precedes output
// generation: feedback capture, envelope advance, phase advance. The
// envelope runs first so a key-on's phase reset lands on the same tick.
func (c *YMF262) stepSlot(ch *channel, slotIdx int) {
	s := &c.slots[slotIdx]
	slotCalcFB(s, ch.fb)
	c.envelopeCalc(ch, s)
	c.phaseGenerate(ch, s, slotIdx)
}

// evalChannel2Op produces one tick of a 2-operator channel.
// CON=0 is FM: slot 1 (with feedback) modulates slot 2, the only carrier.
// CON=1 is additive: both slots are carriers.
func (c *YMF262) evalChannel2Op(chIdx int) int32 {
	ch := &c.ch[chIdx]
	s1 := &c.slots[ch.slotIdx[0]]
	s2 := &c.slots[ch.slotIdx[1]]
	c.stepSlot(ch, ch.slotIdx[0])
	c.stepSlot(ch, ch.slotIdx[1])

	slotGenerate(s1, s1.fbMod)
	if ch.con {
		slotGenerate(s2, 0)
		return int32(s1.out) + int32(s2.out)
	}
	slotGenerate(s2, s1.out)
	return int32(s2.out)
}

// evalChannel4Op produces one tick of a 4-operator voice spanning chIdx and
// its pair (chIdx+3). The two CON bits select one of four topologies; the
// primary channel's bit is the high selector bit. Operator 1 always carries
// the feedback path.
func (c *YMF262) evalChannel4Op(chIdx int) int32 {
	chA := &c.ch[chIdx]
	chB := &c.ch[chIdx+3]
	s1 := &c.slots[chA.slotIdx[0]]
	s2 := &c.slots[chA.slotIdx[1]]
	s3 := &c.slots[chB.slotIdx[0]]
	s4 := &c.slots[chB.slotIdx[1]]
	c.stepSlot(chA, chA.slotIdx[0])
	c.stepSlot(chA, chA.slotIdx[1])
	c.stepSlot(chB, chB.slotIdx[0])
	c.stepSlot(chB, chB.slotIdx[1])

	alg := 0
	if chA.con {
		alg |= 0x02
	}
	if chB.con {
		alg |= 0x01
	}

	switch alg {
	case 0x00: // OP1->OP2->OP3->OP4
		slotGenerate(s1, s1.fbMod)
		slotGenerate(s2, s1.out)
		slotGenerate(s3, s2.out)
		slotGenerate(s4, s3.out)
		return int32(s4.out)
	case 0x01: // (OP1->OP2) + (OP3->OP4)
		slotGenerate(s1, s1.fbMod)
		slotGenerate(s2, s1.out)
		slotGenerate(s3, 0)
		slotGenerate(s4, s3.out)
		return int32(s2.out) + int32(s4.out)
	case 0x02: // OP1 + (OP2->OP3->OP4)
		slotGenerate(s1, s1.fbMod)
		slotGenerate(s2, 0)
		slotGenerate(s3, s2.out)
		slotGenerate(s4, s3.out)
		return int32(s1.out) + int32(s4.out)
	default: // OP1 + (OP2->OP3) + OP4
		slotGenerate(s1, s1.fbMod)
		slotGenerate(s2, 0)
		slotGenerate(s3, s2.out)
		slotGenerate(s4, 0)
		return int32(s1.out) + int32(s3.out) + int32(s4.out)
	}
}

// evalChannelDrum produces one tick of a rhythm-mode channel (6-8).
// Channel 6 is the bass drum, a normal 2-op voice. Channels 7 and 8
// carry hi-hat/snare and tom/cymbal as four independent carriers whose
// phases come from the rhythm generator. Every percussion output is
// counted twice on the bus.
func (c *YMF262) evalChannelDrum(chIdx int) int32 {
	ch := &c.ch[chIdx]
	s1 := &c.slots[ch.slotIdx[0]]
	s2 := &c.slots[ch.slotIdx[1]]
	c.stepSlot(ch, ch.slotIdx[0])
	c.stepSlot(ch, ch.slotIdx[1])

	if chIdx == 6 {
		if ch.con {
			slotGenerate(s1, 0)
			slotGenerate(s2, 0)
		} else {
			slotGenerate(s1, s1.fbMod)
			slotGenerate(s2, s1.out)
		}
		return 2 * int32(s2.out)
	}
	slotGenerate(s1, 0)
	slotGenerate(s2, 0)
	return 2 * (int32(s1.out) + int32(s2.out))
}
