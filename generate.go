package ymf262

// Resampler fractional accumulator width.
const rsmFrac = 10

// generateTick advances the whole chip by one native 49716 Hz tick: every
// channel is evaluated (slots tick their phase and envelope on the way),
// the masked channel sums land on the four output buses, the tremolo,
// vibrato and envelope timers advance, and buffered writes that have come
// due are applied.
func (c *YMF262) generateTick(buses *[4]int16) {
	var acc [4]int32
	for chIdx := 0; chIdx < 18; chIdx++ {
		ch := &c.ch[chIdx]
		var out int32
		switch ch.chtype {
		case ch4op2:
			continue // evaluated with its primary
		case ch4op:
			out = c.evalChannel4Op(chIdx)
		case chDrum:
			out = c.evalChannelDrum(chIdx)
		default:
			out = c.evalChannel2Op(chIdx)
		}
		// The bus adder is 16 bits wide per channel; sums wrap before
		// the pan mask is applied, as on hardware.
		masked := uint16(int16(out))
		acc[0] += int32(int16(masked & ch.chA))
		acc[1] += int32(int16(masked & ch.chB))
		acc[2] += int32(int16(masked & ch.chC))
		acc[3] += int32(int16(masked & ch.chD))
	}
	for i := range buses {
		buses[i] = clampInt16(acc[i])
	}

	// Tremolo: 210-step triangle advancing every 64 ticks.
	if c.timer&0x3F == 0x3F {
		c.tremoloPos = (c.tremoloPos + 1) % 210
	}
	if c.tremoloPos < 105 {
		c.tremolo = c.tremoloPos >> c.tremoloShift
	} else {
		c.tremolo = (210 - c.tremoloPos) >> c.tremoloShift
	}
	// Vibrato: 8-step triangle advancing every 1024 ticks.
	if c.timer&0x3FF == 0x3FF {
		c.vibPos = (c.vibPos + 1) & 0x07
	}
	c.timer++

	c.stepEGTimer()

	// Apply queued writes that have come due.
	for {
		e := &c.writebuf[c.writebufCur]
		if !e.pending || e.time > c.writebufSampleCnt {
			break
		}
		e.pending = false
		c.WriteReg(e.reg, e.data)
		c.writebufCur = (c.writebufCur + 1) % writeBufSize
	}
	c.writebufSampleCnt++
}

// Generate4Ch produces one output frame on the chip's four output buses
// (A/B/C/D), resampled from the native tick rate to the rate established
// by Reset via linear interpolation. Returns ErrNotReady before Reset.
func (c *YMF262) Generate4Ch(buf *[4]int16) error {
	if !c.ready {
		return ErrNotReady
	}
	for c.sampleCnt >= c.rateRatio {
		c.oldSamples = c.samples
		c.generateTick(&c.samples)
		c.sampleCnt -= c.rateRatio
	}
	for i := range buf {
		buf[i] = int16((int32(c.oldSamples[i])*(c.rateRatio-c.sampleCnt) +
			int32(c.samples[i])*c.sampleCnt) / c.rateRatio)
	}
	c.sampleCnt += 1 << rsmFrac
	return nil
}

// Generate produces one resampled stereo frame. The four buses collapse to
// stereo by summing A+C into the left channel and B+D into the right.
func (c *YMF262) Generate(buf *[2]int16) error {
	var four [4]int16
	if err := c.Generate4Ch(&four); err != nil {
		return err
	}
	buf[0] = clampInt16(int32(four[0]) + int32(four[2]))
	buf[1] = clampInt16(int32(four[1]) + int32(four[3]))
	return nil
}

// WriteRegBuffered queues a register write instead of applying it
// immediately. Queued writes are applied during generation, at least two
// native ticks apart, reproducing the chip's write latency so that
// tightly-batched register streams unpack the way hardware heard them.
// If the queue is full the oldest pending write is applied immediately.
func (c *YMF262) WriteRegBuffered(reg uint16, v uint8) {
	if !c.ready {
		return
	}
	e := &c.writebuf[c.writebufLast]
	if e.pending {
		e.pending = false
		c.WriteReg(e.reg, e.data)
		c.writebufCur = (c.writebufLast + 1) % writeBufSize
		c.writebufSampleCnt = e.time
	}
	e.reg = reg & 0x1FF
	e.data = v
	e.pending = true
	t := c.writebufLastTime + writeBufDelay
	if t < c.writebufSampleCnt {
		t = c.writebufSampleCnt
	}
	e.time = t
	c.writebufLastTime = t
	c.writebufLast = (c.writebufLast + 1) % writeBufSize
}

// Run advances the chip by the given number of master-clock cycles,
// appending resampled stereo frames to the internal buffer. This is the
// streaming interface a console core drives between CPU slices; collect
// the frames with GetBuffer.
func (c *YMF262) Run(cycles int) {
	if !c.ready {
		return
	}
	c.cycleAccum += cycles * c.sampleRate
	var frame [2]int16
	for c.cycleAccum >= MasterClock {
		c.cycleAccum -= MasterClock
		c.Generate(&frame)
		c.buffer = append(c.buffer, frame[0], frame[1])
	}
}

// GetBuffer returns accumulated stereo samples and resets the buffer.
func (c *YMF262) GetBuffer() []int16 {
	out := c.buffer
	c.buffer = c.buffer[:0]
	return out
}

// ResetBuffer discards accumulated samples without returning them.
func (c *YMF262) ResetBuffer() {
	c.buffer = c.buffer[:0]
}

// clampInt16 clamps v to the int16 range.
func clampInt16(v int32) int16 {
	if v < -32768 {
		return -32768
	}
	if v > 32767 {
		return 32767
	}
	return int16(v)
}
