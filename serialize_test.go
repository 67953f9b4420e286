package ymf262

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestSerializeSizeConstant(t *testing.T) {
	// version + rate + 36 slots + 18 channels + globals + write queue
	want := 1 + 4 + 36*29 + 18*15 + 65 + 24 + writeBufSize*12
	if SerializeSize != want {
		t.Errorf("SerializeSize = %d, want %d", SerializeSize, want)
	}
}

func TestSerializeRequiresReset(t *testing.T) {
	c := New()
	buf := make([]byte, SerializeSize)
	if err := c.Serialize(buf); err != ErrNotReady {
		t.Errorf("expected ErrNotReady, got %v", err)
	}
}

func TestSerializeShortBuffer(t *testing.T) {
	c := New()
	c.Reset(44100)
	if err := c.Serialize(make([]byte, SerializeSize-1)); err == nil {
		t.Error("expected error for short buffer")
	}
	if err := c.Deserialize(make([]byte, SerializeSize-1)); err == nil {
		t.Error("expected error for short snapshot")
	}
}

func TestDeserializeRejectsBadSnapshot(t *testing.T) {
	c := New()
	c.Reset(44100)
	snap := make([]byte, SerializeSize)
	if err := c.Serialize(snap); err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	bad := make([]byte, SerializeSize)
	copy(bad, snap)
	bad[0] = 99 // unknown version
	if err := New().Deserialize(bad); err == nil {
		t.Error("expected error for unknown version")
	}

	copy(bad, snap)
	bad[1], bad[2], bad[3], bad[4] = 0, 0, 0, 0 // sample rate 0
	if err := New().Deserialize(bad); err == nil {
		t.Error("expected error for zero sample rate")
	}
}

// chtypeOffset returns the byte position of a channel's type field
// inside a snapshot.
func chtypeOffset(chIdx int) int {
	return 1 + 4 + 36*slotSerializeSize + chIdx*channelSerializeSize + 5
}

func TestDeserializeRejectsCorruptStructure(t *testing.T) {
	a := New()
	a.Reset(44100)
	setupVoice(a, 15, 0, 0, 15)
	renderStereo(a, 100)
	snap := make([]byte, SerializeSize)
	if err := a.Serialize(snap); err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	// A 4-op primary on the last channel would index past the channel
	// array during evaluation
	bad := append([]byte(nil), snap...)
	bad[chtypeOffset(17)] = ch4op
	b := New()
	if err := b.Deserialize(bad); err == nil {
		t.Fatal("expected error for 4-op type on channel 17")
	}
	var four [4]int16
	if err := b.Generate4Ch(&four); err != ErrNotReady {
		t.Errorf("rejected snapshot left chip ready: %v", err)
	}

	// A primary without its paired secondary double-steps the partner's
	// slots every tick
	bad = append([]byte(nil), snap...)
	bad[chtypeOffset(0)] = ch4op
	if err := New().Deserialize(bad); err == nil {
		t.Error("expected error for unpaired 4-op primary")
	}
	bad = append([]byte(nil), snap...)
	bad[chtypeOffset(3)] = ch4op2
	if err := New().Deserialize(bad); err == nil {
		t.Error("expected error for unpaired 4-op secondary")
	}

	// Drum type outside channels 6-8
	bad = append([]byte(nil), snap...)
	bad[chtypeOffset(2)] = chDrum
	if err := New().Deserialize(bad); err == nil {
		t.Error("expected error for drum type on channel 2")
	}

	// Undefined channel type value
	bad = append([]byte(nil), snap...)
	bad[chtypeOffset(5)] = 0x17
	if err := New().Deserialize(bad); err == nil {
		t.Error("expected error for undefined channel type")
	}

	// Out-of-range write queue indices
	qOff := 1 + 4 + 36*slotSerializeSize + 18*channelSerializeSize + globalSerializeSize
	bad = append([]byte(nil), snap...)
	binary.LittleEndian.PutUint32(bad[qOff:], 0xFFFFFFFF)
	if err := New().Deserialize(bad); err == nil {
		t.Error("expected error for out-of-range queue head")
	}
	bad = append([]byte(nil), snap...)
	binary.LittleEndian.PutUint32(bad[qOff+4:], writeBufSize)
	if err := New().Deserialize(bad); err == nil {
		t.Error("expected error for out-of-range queue tail")
	}
}

func TestDeserializeFailureLeavesChipUnchanged(t *testing.T) {
	c := New()
	c.Reset(48000)
	setupVoice(c, 12, 4, 4, 6)
	renderStereo(c, 200)
	before := make([]byte, SerializeSize)
	c.Serialize(before)

	bad := append([]byte(nil), before...)
	bad[chtypeOffset(17)] = ch4op
	if err := c.Deserialize(bad); err == nil {
		t.Fatal("expected error")
	}

	after := make([]byte, SerializeSize)
	c.Serialize(after)
	if !bytes.Equal(before, after) {
		t.Error("failed Deserialize modified chip state")
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	a := New()
	a.Reset(44100)
	a.WriteReg(0x105, 0x01)
	a.WriteReg(0x104, 0x02) // one 4-op pair alongside the 2-op voice
	setupVoice(a, 12, 6, 4, 8)
	a.WriteReg(0xBD, 0x3F)
	a.WriteRegBuffered(0x43, 0x08)
	a.WriteRegBuffered(0x40, 0x04)
	renderStereo(a, 3000)

	snap := make([]byte, SerializeSize)
	if err := a.Serialize(snap); err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	b := New()
	if err := b.Deserialize(snap); err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if b.SampleRate() != 44100 {
		t.Errorf("restored sample rate %d, want 44100", b.SampleRate())
	}

	// Snapshots of the restored chip must match the original
	snapB := make([]byte, SerializeSize)
	if err := b.Serialize(snapB); err != nil {
		t.Fatalf("Serialize restored: %v", err)
	}
	if !bytes.Equal(snap, snapB) {
		t.Error("restored chip serializes differently")
	}

	// Both chips must continue bit-identically
	bufA := renderStereo(a, 5000)
	bufB := renderStereo(b, 5000)
	if hashInt16Buffer(bufA) != hashInt16Buffer(bufB) {
		t.Error("restored chip diverged from original")
	}
}

func TestSerializeCapturesMidNote(t *testing.T) {
	a := New()
	a.Reset(48000)
	setupVoice(a, 8, 4, 4, 6)
	renderStereo(a, 500) // mid-attack

	snap := make([]byte, SerializeSize)
	a.Serialize(snap)
	b := New()
	if err := b.Deserialize(snap); err != nil {
		t.Fatalf("Deserialize: %v", err)
	}

	// Key off on both; release trajectories must match exactly
	a.WriteReg(0xB0, 0x12)
	b.WriteReg(0xB0, 0x12)
	bufA := renderStereo(a, 3000)
	bufB := renderStereo(b, 3000)
	if hashInt16Buffer(bufA) != hashInt16Buffer(bufB) {
		t.Error("mid-note restore diverged on release")
	}
}
