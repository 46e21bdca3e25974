package capture

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/cuongbtq/printcheck-station/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noDelay(t Timing) Timing {
	t.SettleDelay = 0
	t.WarmupDelay = 0
	t.RetryDelay = 0
	return t
}

func newTestAcquirer(src Source, formats FormatSetter, timeout time.Duration) *Acquirer {
	return NewAcquirer(&AcquirerConfig{
		Source:       src,
		Formats:      formats,
		Fast:         noDelay(FastTiming()),
		HighFidelity: noDelay(HighFidelityTiming()),
		Timeout:      timeout,
	})
}

func meterBinding(format domain.PixelFormat) domain.CameraBinding {
	return domain.CameraBinding{
		Role:        domain.RoleMeter,
		DevicePath:  "/dev/video0",
		PixelFormat: format,
		Width:       3264,
		Height:      2448,
	}
}

func nicBinding(format domain.PixelFormat) domain.CameraBinding {
	return domain.CameraBinding{
		Role:        domain.RoleNIC,
		DevicePath:  "/dev/video2",
		PixelFormat: format,
		Width:       3264,
		Height:      2448,
	}
}

func TestAcquirer_CaptureFastMode(t *testing.T) {
	src := newFakeSource()
	stream := &fakeStream{reads: append(repeat(read{err: errors.New("warming")}, 10), read{img: uniform(4, 2, 200)})}
	src.streams["/dev/video0"] = stream
	formats := &fakeFormats{}

	binding := meterBinding(domain.PixelFormatMJPEG)
	binding.Rotation = 90

	frame, err := newTestAcquirer(src, formats, time.Second).Capture(context.Background(), binding)
	require.NoError(t, err)

	assert.Equal(t, domain.RoleMeter, frame.Role)
	assert.Equal(t, "/dev/video0", frame.DevicePath)
	assert.Equal(t, image.Rect(0, 0, 2, 4), frame.Image.Bounds())
	assert.False(t, frame.CapturedAt.IsZero())
	assert.Equal(t, 11, stream.calls)
	assert.True(t, stream.closed)
	assert.Equal(t, []formatCall{{device: "/dev/video0", format: domain.PixelFormatMJPEG}}, formats.calls)
}

func TestAcquirer_CaptureFastModeSingleAttempt(t *testing.T) {
	src := newFakeSource()
	stream := &fakeStream{reads: append(repeat(read{img: uniform(2, 2, 100)}, 10),
		read{err: errors.New("select timeout")},
		read{img: uniform(2, 2, 100)},
	)}
	src.streams["/dev/video0"] = stream

	_, err := newTestAcquirer(src, nil, time.Second).Capture(context.Background(), meterBinding(domain.PixelFormatMJPEG))

	var acqErr *domain.AcquisitionError
	require.ErrorAs(t, err, &acqErr)
	assert.Equal(t, domain.RoleMeter, acqErr.Role)
	assert.ErrorIs(t, err, domain.ErrNoFrame)
	assert.Equal(t, 11, stream.calls)
	assert.True(t, stream.closed)
}

func TestAcquirer_CaptureHighFidelityRetries(t *testing.T) {
	src := newFakeSource()
	reads := repeat(read{img: uniform(2, 2, 100)}, 5)
	reads = append(reads, read{err: errors.New("timeout")}, read{}, read{img: uniform(3, 2, 120)})
	stream := &fakeStream{reads: reads}
	src.streams["/dev/video2"] = stream
	formats := &fakeFormats{err: errors.New("v4l2-ctl missing")}

	frame, err := newTestAcquirer(src, formats, time.Second).Capture(context.Background(), nicBinding(domain.PixelFormatYUYV))
	require.NoError(t, err)

	assert.Equal(t, image.Rect(0, 0, 3, 2), frame.Image.Bounds())
	assert.Equal(t, 8, stream.calls)
	assert.Equal(t, domain.PixelFormatYUYV, formats.calls[0].format)
}

func TestAcquirer_CaptureHighFidelityGivesUp(t *testing.T) {
	src := newFakeSource()
	stream := &fakeStream{reads: repeat(read{err: errors.New("timeout")}, 8)}
	src.streams["/dev/video2"] = stream

	_, err := newTestAcquirer(src, nil, time.Second).Capture(context.Background(), nicBinding(domain.PixelFormatYUYV))

	require.ErrorIs(t, err, domain.ErrNoFrame)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, 8, stream.calls)
}

func TestAcquirer_CaptureOpenFailure(t *testing.T) {
	src := newFakeSource()
	src.openErr["/dev/video0"] = errors.New("Could not open device")

	_, err := newTestAcquirer(src, nil, time.Second).Capture(context.Background(), meterBinding(domain.PixelFormatMJPEG))

	var acqErr *domain.AcquisitionError
	require.ErrorAs(t, err, &acqErr)
	assert.Equal(t, "/dev/video0", acqErr.Device)
	assert.False(t, acqErr.Terminal)
}

func TestAcquirer_CaptureBoth(t *testing.T) {
	src := newFakeSource()
	src.streams["/dev/video0"] = &fakeStream{reads: repeat(read{img: uniform(2, 2, 150)}, 11)}
	src.streams["/dev/video2"] = &fakeStream{reads: repeat(read{img: uniform(2, 2, 160)}, 11)}

	pair := newTestAcquirer(src, nil, time.Second).CaptureBoth(context.Background(),
		meterBinding(domain.PixelFormatMJPEG), nicBinding(domain.PixelFormatMJPEG))

	require.NotNil(t, pair.Meter)
	require.NotNil(t, pair.NIC)
	assert.Equal(t, domain.RoleMeter, pair.Meter.Role)
	assert.Equal(t, domain.RoleNIC, pair.NIC.Role)
}

func TestAcquirer_CaptureBothDegradesFailedCamera(t *testing.T) {
	src := newFakeSource()
	src.streams["/dev/video0"] = &fakeStream{reads: repeat(read{img: uniform(2, 2, 150)}, 11)}
	src.openErr["/dev/video2"] = errors.New("no such device")

	pair := newTestAcquirer(src, nil, time.Second).CaptureBoth(context.Background(),
		meterBinding(domain.PixelFormatMJPEG), nicBinding(domain.PixelFormatMJPEG))

	assert.NotNil(t, pair.Meter)
	assert.Nil(t, pair.NIC)
}

func TestAcquirer_CaptureBothTimeout(t *testing.T) {
	src := newFakeSource()
	src.streams["/dev/video0"] = &fakeStream{reads: repeat(read{img: uniform(2, 2, 150)}, 11)}
	src.streams["/dev/video2"] = &fakeStream{reads: []read{{block: true}}}

	start := time.Now()
	pair := newTestAcquirer(src, nil, 100*time.Millisecond).CaptureBoth(context.Background(),
		meterBinding(domain.PixelFormatMJPEG), nicBinding(domain.PixelFormatMJPEG))

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.NotNil(t, pair.Meter)
	assert.Nil(t, pair.NIC)
}

func TestAcquirer_CollectKeepsFramesQueuedAtDeadline(t *testing.T) {
	a := newTestAcquirer(newFakeSource(), nil, time.Second)

	for i := 0; i < 50; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		results := make(chan roleFrame, 2)
		results <- roleFrame{role: domain.RoleMeter, frame: &domain.Frame{Role: domain.RoleMeter}}
		results <- roleFrame{role: domain.RoleNIC, frame: &domain.Frame{Role: domain.RoleNIC}}

		pair := a.collect(ctx, results, 2)
		require.NotNil(t, pair.Meter, "iteration %d", i)
		require.NotNil(t, pair.NIC, "iteration %d", i)
	}
}

func TestAcquirer_CollectStopsAtDeadline(t *testing.T) {
	a := newTestAcquirer(newFakeSource(), nil, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := make(chan roleFrame, 2)
	results <- roleFrame{role: domain.RoleNIC, frame: &domain.Frame{Role: domain.RoleNIC}}

	pair := a.collect(ctx, results, 2)
	assert.Nil(t, pair.Meter)
	assert.NotNil(t, pair.NIC)
}
