package miniaudio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-chat/core/audio"
)

type playbackDevice struct {
	info   audio.EncodingInfo
	device *malgo.Device
	config malgo.DeviceConfig

	buffer pcmBuffer

	mu sync.Mutex
}

func newPlaybackDevice(info audio.EncodingInfo) *playbackDevice {
	return &playbackDevice{info: info}
}

func (d *playbackDevice) Init(audioContext *malgo.AllocatedContext) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	sampleRate := uint32(d.info.SampleRate)
	format := malgo.FormatS16

	d.config = malgo.DefaultDeviceConfig(malgo.Playback)
	d.config.SampleRate = sampleRate
	d.config.Playback.Format = format
	d.config.Playback.Channels = uint32(d.info.Channels)
	d.config.Alsa.NoMMap = 1
	d.config.PeriodSizeInFrames = sampleRate / 10 // ~100ms of audio
	d.config.Periods = 4

	bytesPerFrame := malgo.SampleSizeInBytes(format) * d.info.Channels

	var err error
	if d.device, err = malgo.InitDevice(
		audioContext.Context,
		d.config,
		malgo.DeviceCallbacks{Data: func(pOutput, _ []byte, frameCount uint32) {
			need := int(frameCount) * bytesPerFrame
			if need > len(pOutput) {
				need = len(pOutput)
			}
			d.buffer.fill(pOutput[:need])
		}},
	); err != nil {
		return err
	}

	return nil
}

func (d *playbackDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.device == nil {
		return fmt.Errorf("device not initialized")
	}

	if err := d.device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}

	return nil
}

func (d *playbackDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.device == nil {
		return fmt.Errorf("device not initialized")
	}

	if err := d.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop playback device: %w", err)
	}

	d.buffer.clear()
	return nil
}

func (d *playbackDevice) SendAudio(pcm []byte) {
	d.buffer.write(pcm)
}

// Drained is closed once everything sent so far has been played.
func (d *playbackDevice) Drained() <-chan struct{} {
	done := make(chan struct{})
	d.buffer.mark(func() { close(done) })
	return done
}

func (d *playbackDevice) ClearBuffer() {
	d.buffer.clear()
}

func (d *playbackDevice) Uninit() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.device != nil {
		d.device.Uninit()
		d.device = nil
	}
}

// pcmBuffer holds audio waiting for the device callback together with marks
// that fire once playback passes their position.
type pcmBuffer struct {
	mu      sync.Mutex
	pending []byte
	marks   []playbackMark
}

type playbackMark struct {
	position int
	callback func()
}

func (b *pcmBuffer) write(pcm []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append(b.pending, pcm...)
}

func (b *pcmBuffer) mark(callback func()) {
	b.mu.Lock()
	b.marks = append(b.marks, playbackMark{position: len(b.pending), callback: callback})
	b.mu.Unlock()
	// a mark placed on an empty buffer has nothing left to wait for
	b.fill(nil)
}

// fill copies the next len(out) bytes into out, padding with silence when
// the buffer runs dry.
func (b *pcmBuffer) fill(out []byte) {
	b.mu.Lock()
	n := copy(out, b.pending)
	clear(out[n:])
	b.pending = b.pending[n:]

	var passed []playbackMark
	kept := b.marks[:0]
	for _, mark := range b.marks {
		mark.position -= n
		if mark.position <= 0 {
			passed = append(passed, mark)
			continue
		}
		kept = append(kept, mark)
	}
	b.marks = kept
	b.mu.Unlock()

	for _, mark := range passed {
		go mark.callback()
	}
}

// clear drops pending audio and releases every waiting mark.
func (b *pcmBuffer) clear() {
	b.mu.Lock()
	b.pending = nil
	marks := b.marks
	b.marks = nil
	b.mu.Unlock()

	for _, mark := range marks {
		go mark.callback()
	}
}
