// Package ymf262 emulates the Yamaha YMF262 (OPL3) FM synthesizer.
//
// A YMF262 is a plain self-contained value: it performs no I/O, spawns no
// goroutines, and takes no locks. Callers must serialize access to a single
// instance; independent instances share no state and may run on separate
// goroutines freely.
//
// The chip must be Reset with an output sample rate before it produces
// audio. Register writes drive everything else: the 0x000-0x1FF two-bank
// address space follows the published OPL3 register map, and unmapped
// addresses are silently ignored as on hardware.
package ymf262

import "errors"

const (
	// MasterClock is the nominal OPL3 master clock in Hz. The chip divides
	// it by 288 to produce one internal sample tick.
	MasterClock = 14318182

	// NativeRate is the chip's internal sample rate in Hz (MasterClock/288,
	// rounded up to the 49716 the reference core uses).
	NativeRate = 49716
)

// Envelope generator stages.
const (
	egAttack = iota
	egDecay
	egSustain
	egRelease
)

// Key-on sources. A slot sounds while any bit is set.
const (
	keyNormal = 0x01 // channel key-on bit (register B0 bit 5)
	keyDrum   = 0x02 // rhythm mode key-on (register BD bits 0-4)
)

// Channel connection types.
const (
	ch2op  = iota // independent 2-operator channel
	ch4op         // first (low) channel of a 4-operator pair
	ch4op2        // second (high) channel of a 4-operator pair
	chDrum        // rhythm mode channel (6-8, bank 0)
)

var (
	// ErrSampleRate is returned by Reset when the requested output sample
	// rate is not representable: it must be positive and at least
	// NativeRate/1024 for the resampler's fractional accumulator.
	ErrSampleRate = errors.New("ymf262: invalid sample rate")

	// ErrNotReady is returned when generating samples before a successful
	// Reset has established an output sample rate.
	ErrNotReady = errors.New("ymf262: reset required before generating")
)

// slot is one of the chip's 36 operators: a phase generator and an envelope
// generator feeding the log-sin/exp output pipeline.
type slot struct {
	// Register fields
	trem bool  // tremolo (AM) enable
	vib  bool  // vibrato enable
	egt  bool  // envelope type (true = sustaining)
	ksr  bool  // key scale rate
	mult uint8 // frequency multiplier (4-bit)
	ksl  uint8 // key scale level select (2-bit)
	tl   uint8 // total level (6-bit attenuation)
	ar   uint8 // attack rate (4-bit)
	dr   uint8 // decay rate (4-bit)
	sl   uint8 // sustain level (4-bit, 15 promoted to 31)
	rr   uint8 // release rate (4-bit)
	wf   uint8 // waveform select (3-bit, low 2 bits in compat mode)

	// Phase generator state
	phase    uint32 // phase accumulator (19 significant bits)
	phaseOut uint16 // 10-bit phase latched this tick
	pgReset  bool   // phase reset pending from key-on

	// Envelope generator state
	egState uint8  // egAttack..egRelease
	egRout  uint16 // 9-bit raw attenuation (0 = loud, 0x1FF = silent)
	egOut   uint16 // attenuation including TL, KSL and tremolo
	egKSL   uint8  // key scale level attenuation for the current F-number
	key     uint8  // key-on bits (keyNormal | keyDrum)

	// Output
	out     int16 // current output sample
	prevOut int16 // previous output, kept for feedback
	fbMod   int16 // feedback modulation computed this tick
}

// channel is one of the 18 voices. It references its two slots by index
// only; 4-op voices span a channel pair ((0,3),(1,4),(2,5) in each bank).
type channel struct {
	slotIdx [2]int

	fnum   uint16 // 10-bit F-number
	block  uint8  // 3-bit octave
	fb     uint8  // 3-bit feedback depth
	con    bool   // connection (algorithm) bit
	chtype uint8  // ch2op, ch4op, ch4op2 or chDrum
	ksv    uint8  // key scale value derived from F-number/block

	// Output bus masks (0 or 0xFFFF) for the four output buses A-D.
	chA, chB, chC, chD uint16
}

// writeEntry is one queued register write, stamped with the native tick at
// which it becomes due.
type writeEntry struct {
	reg     uint16
	data    uint8
	pending bool
	time    uint64
}

const (
	writeBufSize  = 1024
	writeBufDelay = 2 // minimum native ticks between applied writes
)

// YMF262 is one OPL3 chip instance. All state is fixed-size and allocated
// up front; Reset reinitializes it to power-on defaults.
type YMF262 struct {
	sampleRate int
	ready      bool

	slots [36]slot
	ch    [18]channel

	newm uint8 // OPL3 mode enable (register 0x105 bit 0)
	nts  uint8 // note select (register 0x08 bit 6)
	rhy  uint8 // rhythm control (register 0xBD bits 0-5)

	// Tremolo / vibrato LFOs
	timer        uint64 // native tick counter
	tremolo      uint8
	tremoloPos   uint8
	tremoloShift uint8
	vibPos       uint8
	vibShift     uint8

	// Envelope generator global timer
	egTimer    uint64 // 36-bit
	egTimerRem uint8
	egState    uint8
	egAdd      uint8

	// Rhythm noise generator
	noise    uint32 // 23-bit LFSR
	rmHHBit2 uint8
	rmHHBit3 uint8
	rmHHBit7 uint8
	rmHHBit8 uint8
	rmTCBit3 uint8
	rmTCBit5 uint8

	// Resampler
	rateRatio  int32
	sampleCnt  int32
	samples    [4]int16
	oldSamples [4]int16

	// Buffered register writes
	writebuf          [writeBufSize]writeEntry
	writebufCur       int
	writebufLast      int
	writebufSampleCnt uint64
	writebufLastTime  uint64

	// Streaming output
	cycleAccum int
	buffer     []int16
}

// New allocates a YMF262. The chip is silent and inert until Reset is
// called with an output sample rate.
func New() *YMF262 {
	return &YMF262{buffer: make([]int16, 0, 2048)}
}

// Reset returns the chip to power-on defaults at the given output sample
// rate: all registers zero, every envelope released and silent, rhythm off,
// pending buffered writes discarded. Idempotent; safe to call again to
// change the sample rate.
func (c *YMF262) Reset(sampleRate int) error {
	if sampleRate <= 0 {
		return ErrSampleRate
	}
	rateRatio := int32((int64(sampleRate) << rsmFrac) / NativeRate)
	if rateRatio == 0 {
		return ErrSampleRate
	}

	buf := c.buffer
	if buf == nil {
		buf = make([]int16, 0, 2048)
	}
	*c = YMF262{
		sampleRate: sampleRate,
		ready:      true,
		rateRatio:  rateRatio,
		noise:      1,
		// Register 0xBD defaults: tremolo depth 1dB, vibrato depth 7 cents
		tremoloShift: 4,
		vibShift:     1,
		buffer:       buf[:0],
	}
	for i := range c.slots {
		s := &c.slots[i]
		s.egState = egRelease
		s.egRout = 0x1FF
		s.egOut = 0x1FF
	}
	for i := range c.ch {
		ch := &c.ch[i]
		ch.slotIdx = channelSlots(i)
		ch.chtype = ch2op
		ch.chA = 0xFFFF
		ch.chB = 0xFFFF
	}
	return nil
}

// channelSlots returns the slot indices for a channel. Within each bank the
// channels map to slots in groups of three: channel 0 owns slots 0 and 3,
// channel 3 owns slots 6 and 9, and so on.
func channelSlots(chIdx int) [2]int {
	bank := chIdx / 9
	chn := chIdx % 9
	first := bank*18 + (chn/3)*6 + chn%3
	return [2]int{first, first + 3}
}

// slotAddr maps the low five register address bits to a slot index within a
// bank, or -1 for the holes in the operator register ranges.
var slotAddr = [32]int8{
	0, 1, 2, 3, 4, 5, -1, -1,
	6, 7, 8, 9, 10, 11, -1, -1,
	12, 13, 14, 15, 16, 17, -1, -1,
	-1, -1, -1, -1, -1, -1, -1, -1,
}

// WriteReg applies one register write immediately. reg is masked to the
// 9-bit OPL3 address space (bit 8 selects the register bank); unmapped
// addresses are ignored without error, matching hardware. Writes before
// Reset are dropped.
func (c *YMF262) WriteReg(reg uint16, v uint8) {
	if !c.ready {
		return
	}
	reg &= 0x1FF
	bank := int(reg >> 8)
	regm := uint8(reg)

	switch regm & 0xF0 {
	case 0x00:
		if bank == 1 {
			switch regm & 0x0F {
			case 0x04:
				c.set4OpPairs(v)
			case 0x05:
				c.newm = v & 0x01
			}
		} else if regm == 0x08 {
			c.nts = (v >> 6) & 0x01
		}
	case 0x20, 0x30:
		if si := slotAddr[regm&0x1F]; si >= 0 {
			c.writeSlot20(&c.slots[18*bank+int(si)], v)
		}
	case 0x40, 0x50:
		if si := slotAddr[regm&0x1F]; si >= 0 {
			s := &c.slots[18*bank+int(si)]
			s.ksl = (v >> 6) & 0x03
			s.tl = v & 0x3F
		}
	case 0x60, 0x70:
		if si := slotAddr[regm&0x1F]; si >= 0 {
			s := &c.slots[18*bank+int(si)]
			s.ar = (v >> 4) & 0x0F
			s.dr = v & 0x0F
		}
	case 0x80, 0x90:
		if si := slotAddr[regm&0x1F]; si >= 0 {
			s := &c.slots[18*bank+int(si)]
			s.sl = (v >> 4) & 0x0F
			if s.sl == 0x0F {
				s.sl = 0x1F
			}
			s.rr = v & 0x0F
		}
	case 0xA0:
		if regm&0x0F < 9 {
			c.writeChannelA0(9*bank+int(regm&0x0F), v)
		}
	case 0xB0:
		if regm == 0xBD && bank == 0 {
			c.tremoloShift = (((v >> 7) ^ 1) << 1) + 2
			c.vibShift = ((v >> 6) & 0x01) ^ 1
			c.updateRhythm(v)
		} else if regm&0x0F < 9 {
			chIdx := 9*bank + int(regm&0x0F)
			c.writeChannelB0(chIdx, v)
			if v&0x20 != 0 {
				c.channelKeyOn(chIdx)
			} else {
				c.channelKeyOff(chIdx)
			}
		}
	case 0xC0:
		if regm&0x0F < 9 {
			c.writeChannelC0(9*bank+int(regm&0x0F), v)
		}
	case 0xE0, 0xF0:
		if si := slotAddr[regm&0x1F]; si >= 0 {
			s := &c.slots[18*bank+int(si)]
			s.wf = v & 0x07
			if c.newm == 0 {
				s.wf &= 0x03
			}
		}
	}
}

// writeSlot20 handles the AM/VIB/EGT/KSR/MULT register (0x20-0x35).
func (c *YMF262) writeSlot20(s *slot, v uint8) {
	s.trem = v&0x80 != 0
	s.vib = v&0x40 != 0
	s.egt = v&0x20 != 0
	s.ksr = v&0x10 != 0
	s.mult = v & 0x0F
}

// writeChannelA0 handles the F-number LSB register (0xA0-0xA8). In new
// mode the second channel of a 4-op pair mirrors the first and ignores its
// own frequency registers.
func (c *YMF262) writeChannelA0(chIdx int, v uint8) {
	ch := &c.ch[chIdx]
	if c.newm != 0 && ch.chtype == ch4op2 {
		return
	}
	ch.fnum = ch.fnum&0x300 | uint16(v)
	c.updateChannelKSL(chIdx)
	if c.newm != 0 && ch.chtype == ch4op {
		pair := &c.ch[chIdx+3]
		pair.fnum = ch.fnum
		c.updateChannelKSL(chIdx + 3)
	}
}

// writeChannelB0 handles the block / F-number MSB register (0xB0-0xB8).
// The key-on bit is handled by the caller.
func (c *YMF262) writeChannelB0(chIdx int, v uint8) {
	ch := &c.ch[chIdx]
	if c.newm != 0 && ch.chtype == ch4op2 {
		return
	}
	ch.fnum = ch.fnum&0x0FF | uint16(v&0x03)<<8
	ch.block = (v >> 2) & 0x07
	c.updateChannelKSL(chIdx)
	if c.newm != 0 && ch.chtype == ch4op {
		pair := &c.ch[chIdx+3]
		pair.fnum = ch.fnum
		pair.block = ch.block
		c.updateChannelKSL(chIdx + 3)
	}
}

// writeChannelC0 handles the output/feedback/connection register
// (0xC0-0xC8). The four pan bits only exist in new mode; in compatibility
// mode every channel drives buses A and B.
func (c *YMF262) writeChannelC0(chIdx int, v uint8) {
	ch := &c.ch[chIdx]
	ch.fb = (v >> 1) & 0x07
	ch.con = v&0x01 != 0
	if c.newm != 0 {
		ch.chA = panMask(v & 0x10)
		ch.chB = panMask(v & 0x20)
		ch.chC = panMask(v & 0x40)
		ch.chD = panMask(v & 0x80)
	} else {
		ch.chA = 0xFFFF
		ch.chB = 0xFFFF
		ch.chC = 0
		ch.chD = 0
	}
}

func panMask(bit uint8) uint16 {
	if bit != 0 {
		return 0xFFFF
	}
	return 0
}

// updateChannelKSL recomputes the key scale value and per-slot KSL
// attenuation after a frequency change.
func (c *YMF262) updateChannelKSL(chIdx int) {
	ch := &c.ch[chIdx]
	ch.ksv = ch.block<<1 | uint8((ch.fnum>>(9-c.nts))&0x01)
	c.slots[ch.slotIdx[0]].egKSL = kslAttenuation(ch.fnum, ch.block)
	c.slots[ch.slotIdx[1]].egKSL = kslAttenuation(ch.fnum, ch.block)
}

// channelKeyOn keys a channel's slots. A 4-op primary keys all four slots
// of the pair; writes to the secondary are ignored in new mode.
func (c *YMF262) channelKeyOn(chIdx int) {
	ch := &c.ch[chIdx]
	if c.newm != 0 {
		switch ch.chtype {
		case ch4op:
			pair := &c.ch[chIdx+3]
			c.slotKeyOn(ch.slotIdx[0], keyNormal)
			c.slotKeyOn(ch.slotIdx[1], keyNormal)
			c.slotKeyOn(pair.slotIdx[0], keyNormal)
			c.slotKeyOn(pair.slotIdx[1], keyNormal)
		case ch4op2:
			// keyed via the primary
		default:
			c.slotKeyOn(ch.slotIdx[0], keyNormal)
			c.slotKeyOn(ch.slotIdx[1], keyNormal)
		}
		return
	}
	c.slotKeyOn(ch.slotIdx[0], keyNormal)
	c.slotKeyOn(ch.slotIdx[1], keyNormal)
}

func (c *YMF262) channelKeyOff(chIdx int) {
	ch := &c.ch[chIdx]
	if c.newm != 0 {
		switch ch.chtype {
		case ch4op:
			pair := &c.ch[chIdx+3]
			c.slotKeyOff(ch.slotIdx[0], keyNormal)
			c.slotKeyOff(ch.slotIdx[1], keyNormal)
			c.slotKeyOff(pair.slotIdx[0], keyNormal)
			c.slotKeyOff(pair.slotIdx[1], keyNormal)
		case ch4op2:
			// keyed via the primary
		default:
			c.slotKeyOff(ch.slotIdx[0], keyNormal)
			c.slotKeyOff(ch.slotIdx[1], keyNormal)
		}
		return
	}
	c.slotKeyOff(ch.slotIdx[0], keyNormal)
	c.slotKeyOff(ch.slotIdx[1], keyNormal)
}

// slotKeyOn marks a key source active. The envelope reacts on the next
// tick: a keyed slot in release restarts in attack with a phase reset.
func (c *YMF262) slotKeyOn(slotIdx int, source uint8) {
	c.slots[slotIdx].key |= source
}

func (c *YMF262) slotKeyOff(slotIdx int, source uint8) {
	c.slots[slotIdx].key &^= source
}

// set4OpPairs handles the connection select register (0x104). Each of the
// six bits pairs one of channels 0-2 (bits 0-2, bank 0) or 9-11 (bits 3-5,
// bank 1) with the channel three above it.
func (c *YMF262) set4OpPairs(v uint8) {
	for bit := 0; bit < 6; bit++ {
		chIdx := bit % 3
		if bit >= 3 {
			chIdx += 9
		}
		if (v>>uint(bit))&0x01 != 0 {
			c.ch[chIdx].chtype = ch4op
			c.ch[chIdx+3].chtype = ch4op2
		} else {
			c.ch[chIdx].chtype = ch2op
			c.ch[chIdx+3].chtype = ch2op
		}
	}
}

// updateRhythm handles register 0xBD: rhythm mode enable and the five
// percussion key-on bits (HH, TC, TOM, SD, BD).
func (c *YMF262) updateRhythm(v uint8) {
	c.rhy = v & 0x3F
	if c.rhy&0x20 != 0 {
		c.ch[6].chtype = chDrum
		c.ch[7].chtype = chDrum
		c.ch[8].chtype = chDrum

		// Bass drum (both slots of channel 6)
		c.rhythmKey(12, c.rhy&0x10 != 0)
		c.rhythmKey(15, c.rhy&0x10 != 0)
		// Hi-hat
		c.rhythmKey(13, c.rhy&0x01 != 0)
		// Snare drum
		c.rhythmKey(16, c.rhy&0x08 != 0)
		// Tom-tom
		c.rhythmKey(14, c.rhy&0x04 != 0)
		// Top cymbal
		c.rhythmKey(17, c.rhy&0x02 != 0)
		return
	}
	c.ch[6].chtype = ch2op
	c.ch[7].chtype = ch2op
	c.ch[8].chtype = ch2op
	for si := 12; si <= 17; si++ {
		c.slotKeyOff(si, keyDrum)
	}
}

func (c *YMF262) rhythmKey(slotIdx int, on bool) {
	if on {
		c.slotKeyOn(slotIdx, keyDrum)
	} else {
		c.slotKeyOff(slotIdx, keyDrum)
	}
}

// SampleRate returns the output sample rate established by Reset, or 0 if
// the chip has not been reset.
func (c *YMF262) SampleRate() int {
	return c.sampleRate
}
