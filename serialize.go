package ymf262

import (
	"encoding/binary"
	"errors"
)

const (
	serializeVersion = 1

	// Per-slot serialization size:
	// flags(1) + mult(1) + ksl(1) + tl(1) + ar(1) + dr(1) + sl(1) + rr(1) + wf(1) +
	// phase(4) + phaseOut(2) + pgReset(1) + egState(1) + egRout(2) + egOut(2) +
	// egKSL(1) + key(1) + out(2) + prevOut(2) + fbMod(2) = 29
	slotSerializeSize = 29
	// Per-channel:
	// fnum(2) + block(1) + fb(1) + con(1) + chtype(1) + ksv(1) + chA..chD(8) = 15
	channelSerializeSize = 15
	// Global state:
	// newm(1) + nts(1) + rhy(1) + timer(8) + tremolo(1) + tremoloPos(1) +
	// tremoloShift(1) + vibPos(1) + vibShift(1) + egTimer(8) + egTimerRem(1) +
	// egState(1) + egAdd(1) + noise(4) + rhythm taps(6) + samples(8) +
	// oldSamples(8) + sampleCnt(4) + cycleAccum(8) = 65
	globalSerializeSize = 65
	// Write queue:
	// cur(4) + last(4) + sampleCnt(8) + lastTime(8) +
	// entries: writeBufSize * (reg(2) + data(1) + pending(1) + time(8))
	writebufSerializeSize = 24 + writeBufSize*12

	// SerializeSize is the total bytes needed for a YMF262 snapshot:
	// version(1) + sampleRate(4) + 36 slots + 18 channels + global + queue.
	SerializeSize = 1 + 4 + 36*slotSerializeSize + 18*channelSerializeSize +
		globalSerializeSize + writebufSerializeSize
)

// boolByte converts a bool to a uint8 (0 or 1).
func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// Serialize writes the chip's complete state to buf as a fixed-size
// little-endian snapshot. buf must be at least SerializeSize bytes. The
// chip itself persists nothing; snapshots exist so a host's save states
// can capture the chip mid-stream.
func (c *YMF262) Serialize(buf []byte) error {
	if len(buf) < SerializeSize {
		return errors.New("ymf262: serialize buffer too small")
	}
	if !c.ready {
		return ErrNotReady
	}

	offset := 0
	buf[offset] = serializeVersion
	offset++
	binary.LittleEndian.PutUint32(buf[offset:], uint32(c.sampleRate))
	offset += 4

	for i := range c.slots {
		offset = serializeSlot(&c.slots[i], buf, offset)
	}
	for i := range c.ch {
		offset = serializeChannel(&c.ch[i], buf, offset)
	}

	buf[offset] = c.newm
	offset++
	buf[offset] = c.nts
	offset++
	buf[offset] = c.rhy
	offset++
	binary.LittleEndian.PutUint64(buf[offset:], c.timer)
	offset += 8
	buf[offset] = c.tremolo
	offset++
	buf[offset] = c.tremoloPos
	offset++
	buf[offset] = c.tremoloShift
	offset++
	buf[offset] = c.vibPos
	offset++
	buf[offset] = c.vibShift
	offset++
	binary.LittleEndian.PutUint64(buf[offset:], c.egTimer)
	offset += 8
	buf[offset] = c.egTimerRem
	offset++
	buf[offset] = c.egState
	offset++
	buf[offset] = c.egAdd
	offset++
	binary.LittleEndian.PutUint32(buf[offset:], c.noise)
	offset += 4
	buf[offset] = c.rmHHBit2
	offset++
	buf[offset] = c.rmHHBit3
	offset++
	buf[offset] = c.rmHHBit7
	offset++
	buf[offset] = c.rmHHBit8
	offset++
	buf[offset] = c.rmTCBit3
	offset++
	buf[offset] = c.rmTCBit5
	offset++
	for i := 0; i < 4; i++ {
		binary.LittleEndian.PutUint16(buf[offset:], uint16(c.samples[i]))
		offset += 2
	}
	for i := 0; i < 4; i++ {
		binary.LittleEndian.PutUint16(buf[offset:], uint16(c.oldSamples[i]))
		offset += 2
	}
	binary.LittleEndian.PutUint32(buf[offset:], uint32(c.sampleCnt))
	offset += 4
	binary.LittleEndian.PutUint64(buf[offset:], uint64(int64(c.cycleAccum)))
	offset += 8

	binary.LittleEndian.PutUint32(buf[offset:], uint32(c.writebufCur))
	offset += 4
	binary.LittleEndian.PutUint32(buf[offset:], uint32(c.writebufLast))
	offset += 4
	binary.LittleEndian.PutUint64(buf[offset:], c.writebufSampleCnt)
	offset += 8
	binary.LittleEndian.PutUint64(buf[offset:], c.writebufLastTime)
	offset += 8
	for i := range c.writebuf {
		e := &c.writebuf[i]
		binary.LittleEndian.PutUint16(buf[offset:], e.reg)
		offset += 2
		buf[offset] = e.data
		offset++
		buf[offset] = boolByte(e.pending)
		offset++
		binary.LittleEndian.PutUint64(buf[offset:], e.time)
		offset += 8
	}
	return nil
}

func serializeSlot(s *slot, buf []byte, offset int) int {
	var flags uint8
	flags |= boolByte(s.trem)
	flags |= boolByte(s.vib) << 1
	flags |= boolByte(s.egt) << 2
	flags |= boolByte(s.ksr) << 3
	buf[offset] = flags
	offset++
	buf[offset] = s.mult
	offset++
	buf[offset] = s.ksl
	offset++
	buf[offset] = s.tl
	offset++
	buf[offset] = s.ar
	offset++
	buf[offset] = s.dr
	offset++
	buf[offset] = s.sl
	offset++
	buf[offset] = s.rr
	offset++
	buf[offset] = s.wf
	offset++
	binary.LittleEndian.PutUint32(buf[offset:], s.phase)
	offset += 4
	binary.LittleEndian.PutUint16(buf[offset:], s.phaseOut)
	offset += 2
	buf[offset] = boolByte(s.pgReset)
	offset++
	buf[offset] = s.egState
	offset++
	binary.LittleEndian.PutUint16(buf[offset:], s.egRout)
	offset += 2
	binary.LittleEndian.PutUint16(buf[offset:], s.egOut)
	offset += 2
	buf[offset] = s.egKSL
	offset++
	buf[offset] = s.key
	offset++
	binary.LittleEndian.PutUint16(buf[offset:], uint16(s.out))
	offset += 2
	binary.LittleEndian.PutUint16(buf[offset:], uint16(s.prevOut))
	offset += 2
	binary.LittleEndian.PutUint16(buf[offset:], uint16(s.fbMod))
	offset += 2
	return offset
}

func serializeChannel(ch *channel, buf []byte, offset int) int {
	binary.LittleEndian.PutUint16(buf[offset:], ch.fnum)
	offset += 2
	buf[offset] = ch.block
	offset++
	buf[offset] = ch.fb
	offset++
	buf[offset] = boolByte(ch.con)
	offset++
	buf[offset] = ch.chtype
	offset++
	buf[offset] = ch.ksv
	offset++
	binary.LittleEndian.PutUint16(buf[offset:], ch.chA)
	offset += 2
	binary.LittleEndian.PutUint16(buf[offset:], ch.chB)
	offset += 2
	binary.LittleEndian.PutUint16(buf[offset:], ch.chC)
	offset += 2
	binary.LittleEndian.PutUint16(buf[offset:], ch.chD)
	offset += 2
	return offset
}

// validateSnapshot checks the structural fields of a snapshot that are
// later used as indices: channel types must sit on the channels that can
// legally carry them (4-op voices only on the low channel of a pair, with
// a consistent partner; drums only on channels 6-8) and the write queue
// indices must fall inside the queue.
func validateSnapshot(buf []byte) error {
	const chOff = 1 + 4 + 36*slotSerializeSize
	chtype := func(i int) uint8 {
		return buf[chOff+i*channelSerializeSize+5]
	}
	for i := 0; i < 18; i++ {
		switch chtype(i) {
		case ch2op:
		case ch4op:
			chn := i % 9
			if chn > 2 || chtype(i+3) != ch4op2 {
				return errors.New("ymf262: snapshot has invalid 4-op pairing")
			}
		case ch4op2:
			chn := i % 9
			if chn < 3 || chn > 5 || chtype(i-3) != ch4op {
				return errors.New("ymf262: snapshot has invalid 4-op pairing")
			}
		case chDrum:
			if i < 6 || i > 8 {
				return errors.New("ymf262: snapshot marks a melodic channel as rhythm")
			}
		default:
			return errors.New("ymf262: snapshot has invalid channel type")
		}
	}

	qOff := chOff + 18*channelSerializeSize + globalSerializeSize
	if binary.LittleEndian.Uint32(buf[qOff:]) >= writeBufSize ||
		binary.LittleEndian.Uint32(buf[qOff+4:]) >= writeBufSize {
		return errors.New("ymf262: snapshot has invalid write queue index")
	}
	return nil
}

// Deserialize restores chip state from a snapshot produced by Serialize.
// On any validation failure the chip is left unchanged.
func (c *YMF262) Deserialize(buf []byte) error {
	if len(buf) < SerializeSize {
		return errors.New("ymf262: deserialize buffer too small")
	}
	if buf[0] != serializeVersion {
		return errors.New("ymf262: unsupported snapshot version")
	}
	sampleRate := int(binary.LittleEndian.Uint32(buf[1:]))
	if sampleRate <= 0 || int32((int64(sampleRate)<<rsmFrac)/NativeRate) == 0 {
		return errors.New("ymf262: snapshot has invalid sample rate")
	}
	if err := validateSnapshot(buf); err != nil {
		return err
	}

	if err := c.Reset(sampleRate); err != nil {
		return err
	}
	offset := 5

	for i := range c.slots {
		offset = deserializeSlot(&c.slots[i], buf, offset)
	}
	for i := range c.ch {
		offset = deserializeChannel(&c.ch[i], buf, offset)
	}

	c.newm = buf[offset]
	offset++
	c.nts = buf[offset]
	offset++
	c.rhy = buf[offset]
	offset++
	c.timer = binary.LittleEndian.Uint64(buf[offset:])
	offset += 8
	c.tremolo = buf[offset]
	offset++
	c.tremoloPos = buf[offset]
	offset++
	c.tremoloShift = buf[offset]
	offset++
	c.vibPos = buf[offset]
	offset++
	c.vibShift = buf[offset]
	offset++
	c.egTimer = binary.LittleEndian.Uint64(buf[offset:])
	offset += 8
	c.egTimerRem = buf[offset]
	offset++
	c.egState = buf[offset]
	offset++
	c.egAdd = buf[offset]
	offset++
	c.noise = binary.LittleEndian.Uint32(buf[offset:])
	offset += 4
	c.rmHHBit2 = buf[offset]
	offset++
	c.rmHHBit3 = buf[offset]
	offset++
	c.rmHHBit7 = buf[offset]
	offset++
	c.rmHHBit8 = buf[offset]
	offset++
	c.rmTCBit3 = buf[offset]
	offset++
	c.rmTCBit5 = buf[offset]
	offset++
	for i := 0; i < 4; i++ {
		c.samples[i] = int16(binary.LittleEndian.Uint16(buf[offset:]))
		offset += 2
	}
	for i := 0; i < 4; i++ {
		c.oldSamples[i] = int16(binary.LittleEndian.Uint16(buf[offset:]))
		offset += 2
	}
	c.sampleCnt = int32(binary.LittleEndian.Uint32(buf[offset:]))
	offset += 4
	c.cycleAccum = int(int64(binary.LittleEndian.Uint64(buf[offset:])))
	offset += 8

	c.writebufCur = int(binary.LittleEndian.Uint32(buf[offset:]))
	offset += 4
	c.writebufLast = int(binary.LittleEndian.Uint32(buf[offset:]))
	offset += 4
	c.writebufSampleCnt = binary.LittleEndian.Uint64(buf[offset:])
	offset += 8
	c.writebufLastTime = binary.LittleEndian.Uint64(buf[offset:])
	offset += 8
	for i := range c.writebuf {
		e := &c.writebuf[i]
		e.reg = binary.LittleEndian.Uint16(buf[offset:]) & 0x1FF
		offset += 2
		e.data = buf[offset]
		offset++
		e.pending = buf[offset] != 0
		offset++
		e.time = binary.LittleEndian.Uint64(buf[offset:])
		offset += 8
	}
	return nil
}

func deserializeSlot(s *slot, buf []byte, offset int) int {
	flags := buf[offset]
	offset++
	s.trem = flags&0x01 != 0
	s.vib = flags&0x02 != 0
	s.egt = flags&0x04 != 0
	s.ksr = flags&0x08 != 0
	s.mult = buf[offset] & 0x0F
	offset++
	s.ksl = buf[offset] & 0x03
	offset++
	s.tl = buf[offset] & 0x3F
	offset++
	s.ar = buf[offset] & 0x0F
	offset++
	s.dr = buf[offset] & 0x0F
	offset++
	s.sl = buf[offset] & 0x1F
	offset++
	s.rr = buf[offset] & 0x0F
	offset++
	s.wf = buf[offset] & 0x07
	offset++
	s.phase = binary.LittleEndian.Uint32(buf[offset:])
	offset += 4
	s.phaseOut = binary.LittleEndian.Uint16(buf[offset:])
	offset += 2
	s.pgReset = buf[offset] != 0
	offset++
	s.egState = buf[offset] & 0x03
	offset++
	s.egRout = binary.LittleEndian.Uint16(buf[offset:]) & 0x1FF
	offset += 2
	s.egOut = binary.LittleEndian.Uint16(buf[offset:])
	offset += 2
	s.egKSL = buf[offset]
	offset++
	s.key = buf[offset] & 0x03
	offset++
	s.out = int16(binary.LittleEndian.Uint16(buf[offset:]))
	offset += 2
	s.prevOut = int16(binary.LittleEndian.Uint16(buf[offset:]))
	offset += 2
	s.fbMod = int16(binary.LittleEndian.Uint16(buf[offset:]))
	offset += 2
	return offset
}

func deserializeChannel(ch *channel, buf []byte, offset int) int {
	ch.fnum = binary.LittleEndian.Uint16(buf[offset:]) & 0x3FF
	offset += 2
	ch.block = buf[offset] & 0x07
	offset++
	ch.fb = buf[offset] & 0x07
	offset++
	ch.con = buf[offset] != 0
	offset++
	ch.chtype = buf[offset] & 0x03
	offset++
	ch.ksv = buf[offset]
	offset++
	ch.chA = binary.LittleEndian.Uint16(buf[offset:])
	offset += 2
	ch.chB = binary.LittleEndian.Uint16(buf[offset:])
	offset += 2
	ch.chC = binary.LittleEndian.Uint16(buf[offset:])
	offset += 2
	ch.chD = binary.LittleEndian.Uint16(buf[offset:])
	offset += 2
	return offset
}
