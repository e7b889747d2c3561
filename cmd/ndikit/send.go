package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/zsiec/ndikit/pkg/ndi"
)

// BGRA colour bars: white, yellow, cyan, green, magenta, red, blue.
var colorBars = [][4]byte{
	{235, 235, 235, 255},
	{16, 235, 235, 255},
	{235, 235, 16, 255},
	{16, 235, 16, 255},
	{235, 16, 235, 255},
	{16, 16, 235, 255},
	{235, 16, 16, 255},
}

type sendOptions struct {
	name   string
	width  int
	height int
	fps    int
	frames int
}

type sendStats struct {
	frames atomic.Int64
	bytes  atomic.Int64
}

func newSendCmd(a *app) *cobra.Command {
	opts := sendOptions{}
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Publish a colour bar test pattern as an NDI source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.setup(cmd, true); err != nil {
				return err
			}
			rt, err := openRuntime(a.cfg.NDI)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			stats, err := sendPattern(ctx, rt, opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent %s frames, %s\n",
				humanize.Comma(stats.frames.Load()), humanize.Bytes(uint64(stats.bytes.Load())))
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.name, "name", "Test Pattern", "Source name")
	cmd.Flags().IntVar(&opts.width, "width", 1280, "Frame width")
	cmd.Flags().IntVar(&opts.height, "height", 720, "Frame height")
	cmd.Flags().IntVar(&opts.fps, "fps", 30, "Frames per second")
	cmd.Flags().IntVar(&opts.frames, "frames", 0, "Stop after this many frames (0 runs until interrupted)")
	return cmd
}

// sendPattern sends frames through the asynchronous path, drawing the
// next frame into one buffer while the library reads the other.
func sendPattern(ctx context.Context, rt *ndi.Runtime, opts sendOptions, progress io.Writer) (*sendStats, error) {
	if opts.fps <= 0 {
		return nil, fmt.Errorf("fps must be positive, got %d", opts.fps)
	}
	so := ndi.DefaultSenderOptions(opts.name)
	so.ClockAudio = false
	sender, err := ndi.NewSender(rt, so)
	if err != nil {
		return nil, err
	}
	defer sender.Close()

	stats := &sendStats{}
	sender.OnAsyncVideoDone(func(n int) {
		stats.frames.Add(1)
		stats.bytes.Add(int64(n))
	})

	size := int(ndi.PixelFormatBGRA.BufferSize(ndi.PixelFormatBGRA.LineStride(opts.width), opts.height))
	buffers := [2][]byte{make([]byte, size), make([]byte, size)}

	ticker := time.NewTicker(time.Second / time.Duration(opts.fps))
	defer ticker.Stop()
	report := time.NewTicker(time.Second)
	defer report.Stop()

	var pending *ndi.AsyncVideoToken
	defer func() {
		if pending != nil {
			pending.Release()
		}
	}()

	for i := 0; opts.frames == 0 || i < opts.frames; i++ {
		buf := buffers[i%2]
		drawBars(buf, opts.width, opts.height, i)
		frame, err := ndi.BorrowVideoFrame(buf, opts.width, opts.height, ndi.PixelFormatBGRA, opts.fps, 1)
		if err != nil {
			return stats, err
		}

		// One frame in flight at a time; the previous buffer is free once
		// its token is released.
		if pending != nil {
			pending.Release()
			pending = nil
		}
		if pending, err = sender.SendVideoAsync(frame); err != nil {
			return stats, err
		}

		select {
		case <-ctx.Done():
			return stats, nil
		case <-report.C:
			fmt.Fprintf(progress, "%s frames, %s\n",
				humanize.Comma(stats.frames.Load()), humanize.Bytes(uint64(stats.bytes.Load())))
			<-ticker.C
		case <-ticker.C:
		}
	}
	return stats, nil
}

// drawBars fills buf with vertical colour bars and a white line that
// moves one column per frame.
func drawBars(buf []byte, width, height, frame int) {
	stride := width * 4
	marker := frame % width
	for x := 0; x < width; x++ {
		c := colorBars[x*len(colorBars)/width]
		if x == marker {
			c = [4]byte{255, 255, 255, 255}
		}
		copy(buf[x*4:x*4+4], c[:])
	}
	for y := 1; y < height; y++ {
		copy(buf[y*stride:(y+1)*stride], buf[:stride])
	}
}
