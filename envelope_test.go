package ymf262

import "testing"

// setupVoice programs channel 0 as a simple additive 2-op voice with the
// given attack/decay/sustain/release and keys it on.
func setupVoice(c *YMF262, ar, dr, sl, rr uint8) {
	c.WriteReg(0x20, 0x01) // mult 1
	c.WriteReg(0x23, 0x01)
	c.WriteReg(0x40, 0x00) // full volume
	c.WriteReg(0x43, 0x00)
	c.WriteReg(0x60, ar<<4|dr)
	c.WriteReg(0x63, ar<<4|dr)
	c.WriteReg(0x80, sl<<4|rr)
	c.WriteReg(0x83, sl<<4|rr)
	c.WriteReg(0xA0, 0x00)
	c.WriteReg(0xC0, 0x01) // additive
	c.WriteReg(0xB0, 0x32) // block 4, fnum 0x200, key on
}

// tick advances the chip by n native ticks, discarding output.
func tick(c *YMF262, n int) {
	var buses [4]int16
	for i := 0; i < n; i++ {
		c.generateTick(&buses)
	}
}

func TestEnvelopeAttackReachesDecay(t *testing.T) {
	c := New()
	c.Reset(NativeRate)
	setupVoice(c, 8, 4, 4, 6)

	s := &c.slots[0]
	start := s.egRout
	tick(c, 1)
	if s.egState != egAttack {
		t.Fatalf("expected egAttack after key on, got %d", s.egState)
	}

	sawProgress := false
	for i := 0; i < 20000 && s.egState == egAttack; i++ {
		tick(c, 1)
		if s.egRout < start {
			sawProgress = true
		}
	}
	if !sawProgress {
		t.Error("attack never reduced attenuation")
	}
	if s.egState == egAttack {
		t.Fatalf("attack did not complete, egRout=0x%03X", s.egRout)
	}
	if s.egState != egDecay && s.egState != egSustain {
		t.Errorf("expected decay or sustain after attack, got %d", s.egState)
	}
}

func TestEnvelopeInstantAttack(t *testing.T) {
	c := New()
	c.Reset(NativeRate)
	setupVoice(c, 15, 0, 0, 15)

	// Effective rate 60+ snaps straight to zero attenuation on the
	// key-on tick.
	tick(c, 1)
	if c.slots[0].egRout != 0 {
		t.Errorf("expected egRout 0 after instant attack, got 0x%03X", c.slots[0].egRout)
	}
	// With SL=0 decay hands off to sustain immediately
	tick(c, 2)
	if c.slots[0].egState != egSustain {
		t.Errorf("expected egSustain, got %d", c.slots[0].egState)
	}
}

func TestEnvelopeDecayStopsAtSustainLevel(t *testing.T) {
	c := New()
	c.Reset(NativeRate)
	setupVoice(c, 15, 12, 8, 6)

	s := &c.slots[0]
	for i := 0; i < 100000 && s.egState != egSustain; i++ {
		tick(c, 1)
	}
	if s.egState != egSustain {
		t.Fatalf("decay never reached sustain, egState=%d egRout=0x%03X", s.egState, s.egRout)
	}
	if s.egRout>>4 != uint16(s.sl) {
		t.Errorf("sustain entered at egRout=0x%03X, want top bits 0x%02X", s.egRout, s.sl)
	}
}

func TestEnvelopeSustainHoldsWithEGT(t *testing.T) {
	c := New()
	c.Reset(NativeRate)
	setupVoice(c, 15, 15, 4, 6)
	c.WriteReg(0x20, 0x21) // egt: hold at sustain level
	c.WriteReg(0x23, 0x21)

	s := &c.slots[0]
	for i := 0; i < 100000 && s.egState != egSustain; i++ {
		tick(c, 1)
	}
	if s.egState != egSustain {
		t.Fatal("never reached sustain")
	}
	held := s.egRout
	tick(c, 5000)
	if s.egRout != held {
		t.Errorf("sustaining envelope moved: 0x%03X -> 0x%03X", held, s.egRout)
	}
}

func TestEnvelopeKeyOffReleasesToSilence(t *testing.T) {
	c := New()
	c.Reset(NativeRate)
	setupVoice(c, 15, 0, 0, 15)
	tick(c, 100)

	c.WriteReg(0xB0, 0x12) // key off
	tick(c, 1)
	s := &c.slots[0]
	if s.egState != egRelease {
		t.Fatalf("expected egRelease after key off, got %d", s.egState)
	}

	// RR 15 must reach full attenuation within a bounded number of ticks
	limit := 2000
	for i := 0; i < limit && s.egRout != 0x1FF; i++ {
		tick(c, 1)
	}
	if s.egRout != 0x1FF {
		t.Errorf("release did not reach silence within %d ticks, egRout=0x%03X", limit, s.egRout)
	}
}

func TestEnvelopeRetriggerFromRelease(t *testing.T) {
	c := New()
	c.Reset(NativeRate)
	setupVoice(c, 15, 0, 0, 15)
	tick(c, 100)
	c.WriteReg(0xB0, 0x12)
	tick(c, 2000)

	// Key on again: attack restarts and the phase resets on the key-on
	// tick itself, before the phase generator runs
	c.WriteReg(0xB0, 0x32)
	tick(c, 1)
	s := &c.slots[0]
	if s.egState != egAttack {
		t.Errorf("retrigger did not restart attack: egState=%d", s.egState)
	}
	if s.egRout != 0 {
		t.Errorf("retrigger missed instant attack: egRout=0x%03X", s.egRout)
	}
	if s.phase != 4096 {
		t.Errorf("phase not reset on the key-on tick: 0x%X, want one increment", s.phase)
	}
}

func TestKSLAttenuation(t *testing.T) {
	// Low frequencies and low blocks attenuate nothing
	if got := kslAttenuation(0x000, 0); got != 0 {
		t.Errorf("kslAttenuation(0,0) = %d, want 0", got)
	}
	if got := kslAttenuation(0x3FF, 0); got != 0 {
		t.Errorf("kslAttenuation(0x3FF,0) = %d, want 0", got)
	}
	// Top of the range: ROM value 64 in quarter units minus one block step
	if got := kslAttenuation(0x3FF, 7); got != 224 {
		t.Errorf("kslAttenuation(0x3FF,7) = %d, want 224", got)
	}

	// KSL register selects the shift applied to the base attenuation
	c := New()
	c.Reset(44100)
	c.WriteReg(0xA0, 0xFF)
	c.WriteReg(0xB0, 0x1F) // block 7, fnum 0x3FF
	base := c.slots[0].egKSL
	if base == 0 {
		t.Fatal("expected nonzero KSL attenuation at top frequency")
	}
	c.WriteReg(0x40, 0xC0) // ksl 3 = 6dB/oct, shift 0
	tick(c, 1)
	want := uint16(0x1FF) + uint16(base)
	if c.slots[0].egOut != want {
		t.Errorf("egOut = 0x%03X, want 0x%03X", c.slots[0].egOut, want)
	}
}
