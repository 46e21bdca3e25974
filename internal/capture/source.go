package capture

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"os/exec"
	"strconv"

	"github.com/cuongbtq/printcheck-station/internal/domain"
)

// Stream delivers consecutive frames from an opened device
type Stream interface {
	ReadFrame(ctx context.Context) (image.Image, error)
	Close() error
}

// Source opens a capture stream on the device named by a binding
type Source interface {
	Open(ctx context.Context, binding domain.CameraBinding) (Stream, error)
}

// FFmpegSource streams frames from a V4L2 node through an ffmpeg process.
// Frames are transcoded to PNG so both pixel formats decode the same way.
type FFmpegSource struct {
	logger *slog.Logger
	binary string
}

// NewFFmpegSource creates a new FFmpegSource; binary defaults to "ffmpeg"
func NewFFmpegSource(logger *slog.Logger, binary string) *FFmpegSource {
	if logger == nil {
		logger = slog.Default()
	}
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpegSource{logger: logger, binary: binary}
}

// Open starts ffmpeg on the binding's device. The process lives until Close
// or until ctx is done.
func (s *FFmpegSource) Open(ctx context.Context, binding domain.CameraBinding) (Stream, error) {
	cmd := exec.CommandContext(ctx, s.binary,
		"-hide_banner",
		"-loglevel", "error",
		"-f", "v4l2",
		"-input_format", inputFormat(binding.PixelFormat),
		"-video_size", strconv.Itoa(binding.Width)+"x"+strconv.Itoa(binding.Height),
		"-i", binding.DevicePath,
		"-f", "image2pipe",
		"-c:v", "png",
		"-",
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s on %s: %w", s.binary, binding.DevicePath, err)
	}

	s.logger.Debug("Capture stream opened",
		slog.String("device", binding.DevicePath),
		slog.String("pixel_format", string(binding.PixelFormat)),
		slog.Int("pid", cmd.Process.Pid),
	)

	return &ffmpegStream{cmd: cmd, stdout: stdout, reader: bufio.NewReaderSize(stdout, 1<<20)}, nil
}

type ffmpegStream struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	reader *bufio.Reader
}

// ReadFrame decodes the next PNG from the pipe. image/png consumes exactly one
// image, so consecutive calls walk the stream frame by frame.
func (s *ffmpegStream) ReadFrame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := png.Decode(s.reader)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: stream ended", domain.ErrNoFrame)
		}
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return img, nil
}

func (s *ffmpegStream) Close() error {
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.stdout.Close()
	// killed on purpose, the exit status carries no information
	_ = s.cmd.Wait()
	return nil
}

func inputFormat(f domain.PixelFormat) string {
	if f == domain.PixelFormatYUYV {
		return "yuyv422"
	}
	return "mjpeg"
}
