// vgmplay renders VGM/VGZ files containing OPL3 (YMF262) or OPL2
// (YM3812) register streams, either to the default audio device or to a
// WAV file.
package main

import (
	"bytes"
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	ymf262 "github.com/user-none/go-chip-ymf262"
	"github.com/user-none/go-chip-ymf262/vgm"
)

// vgmRate is the fixed sample rate of the VGM command timeline.
const vgmRate = 44100

func main() {
	vgmPath := flag.String("vgm", "", "path to VGM or VGZ file")
	rate := flag.Int("rate", 44100, "output sample rate in Hz")
	wavPath := flag.String("wav", "", "write a WAV file instead of playing")
	loops := flag.Int("loops", 0, "number of extra loop passes")
	flag.Parse()

	if *vgmPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	f, err := vgm.ParseFile(*vgmPath)
	if err != nil {
		log.Fatal(err)
	}
	if len(f.Events) == 0 {
		log.Fatal("no OPL events in file")
	}

	samples, err := render(f, *rate, *loops)
	if err != nil {
		log.Fatal(err)
	}

	if *wavPath != "" {
		if err := writeWAV(*wavPath, samples, *rate); err != nil {
			log.Fatal(err)
		}
		return
	}
	if err := play(samples, *rate); err != nil {
		log.Fatal(err)
	}
}

// render drives the chip through the event stream and returns interleaved
// stereo samples at the output rate. Event timestamps live on the VGM's
// 44100 Hz timeline; each event is due once the output position crosses
// its rescaled timestamp.
func render(f *vgm.File, rate, loops int) ([]int16, error) {
	chip := ymf262.New()
	if err := chip.Reset(rate); err != nil {
		return nil, err
	}

	events := f.Events
	total := f.TotalSamples
	if loops > 0 && f.LoopSamples > 0 {
		for pass := 0; pass < loops; pass++ {
			for _, e := range f.Events {
				if e.Sample < f.LoopSample {
					continue
				}
				events = append(events, vgm.Event{
					Sample: e.Sample + uint64(pass+1)*f.LoopSamples,
					Reg:    e.Reg,
					Value:  e.Value,
				})
			}
			total += f.LoopSamples
		}
	}

	out := make([]int16, 0, int(total)*rate/vgmRate*2)
	var frame [2]int16
	rendered := uint64(0)
	for _, e := range events {
		due := e.Sample * uint64(rate) / vgmRate
		for rendered < due {
			if err := chip.Generate(&frame); err != nil {
				return nil, err
			}
			out = append(out, frame[0], frame[1])
			rendered++
		}
		chip.WriteRegBuffered(e.Reg, e.Value)
	}

	end := total * uint64(rate) / vgmRate
	for rendered < end {
		if err := chip.Generate(&frame); err != nil {
			return nil, err
		}
		out = append(out, frame[0], frame[1])
		rendered++
	}
	return out, nil
}

func writeWAV(path string, samples []int16, rate int) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()

	enc := wav.NewEncoder(out, rate, 16, 2, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: rate},
		Data:           make([]int, len(samples)),
		SourceBitDepth: 16,
	}
	for i, s := range samples {
		buf.Data[i] = int(s)
	}
	if err := enc.Write(buf); err != nil {
		return err
	}
	return enc.Close()
}

func play(samples []int16, rate int) error {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   rate,
		ChannelCount: 2,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return err
	}
	<-ready

	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}

	player := ctx.NewPlayer(bytes.NewReader(pcm))
	player.Play()
	for player.IsPlaying() {
		time.Sleep(10 * time.Millisecond)
	}
	if err := player.Close(); err != nil {
		return err
	}

	fmt.Printf("played %d frames at %d Hz\n", len(samples)/2, rate)
	return nil
}
