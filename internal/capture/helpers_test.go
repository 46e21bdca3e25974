package capture

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"

	"github.com/cuongbtq/printcheck-station/internal/domain"
)

// read is one scripted ReadFrame answer
type read struct {
	img   image.Image
	err   error
	block bool
}

type fakeStream struct {
	mu     sync.Mutex
	reads  []read
	calls  int
	closed bool
}

func (s *fakeStream) ReadFrame(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	s.calls++
	var r read
	if len(s.reads) > 0 {
		r = s.reads[0]
		s.reads = s.reads[1:]
	} else {
		r = read{err: errors.New("stream exhausted")}
	}
	s.mu.Unlock()

	if r.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return r.img, r.err
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type fakeSource struct {
	mu      sync.Mutex
	streams map[string]*fakeStream
	openErr map[string]error
	opened  []string
}

func newFakeSource() *fakeSource {
	return &fakeSource{streams: map[string]*fakeStream{}, openErr: map[string]error{}}
}

func (f *fakeSource) Open(_ context.Context, b domain.CameraBinding) (Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, b.DevicePath)
	if err := f.openErr[b.DevicePath]; err != nil {
		return nil, err
	}
	s, ok := f.streams[b.DevicePath]
	if !ok {
		return nil, errors.New("no such device")
	}
	return s, nil
}

type formatCall struct {
	device string
	format domain.PixelFormat
}

type fakeFormats struct {
	mu    sync.Mutex
	calls []formatCall
	err   error
}

func (f *fakeFormats) SetFormat(_ context.Context, device string, _, _ int, format domain.PixelFormat) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, formatCall{device: device, format: format})
	return f.err
}

func uniform(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func repeat(r read, n int) []read {
	out := make([]read, n)
	for i := range out {
		out[i] = r
	}
	return out
}

var (
	red  = color.NRGBA{R: 255, A: 255}
	blue = color.NRGBA{B: 255, A: 255}
)
