package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/zsiec/ndikit/internal/discovery"
	"github.com/zsiec/ndikit/internal/snapshot"
	"github.com/zsiec/ndikit/pkg/ndi"
)

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func newSnapshotCmd(a *app) *cobra.Command {
	var (
		output  string
		format  string
		quality int
		all     bool
	)
	cmd := &cobra.Command{
		Use:   "snapshot [source name]",
		Short: "Capture a still image from one source, or every source with --all",
		Args: func(cmd *cobra.Command, args []string) error {
			if all {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(cmd, true); err != nil {
				return err
			}
			imgFormat, err := snapshotFormat(format, output)
			if err != nil {
				return err
			}

			rt, err := openRuntime(a.cfg.NDI)
			if err != nil {
				return err
			}
			defer rt.Close()

			log := a.logAdapter()
			disc, err := discovery.New(rt, finderOptions(a.cfg.NDI.Finder), a.cfg.Discovery, log)
			if err != nil {
				return err
			}
			defer disc.Close()
			if _, err := disc.Refresh(cmd.Context()); err != nil {
				return err
			}

			snaps := snapshot.New(rt, disc, a.cfg.Snapshot, a.cfg.NDI.Receiver, a.cfg.NDI.CaptureTimeout, log)
			defer snaps.Close()

			out := cmd.OutOrStdout()
			if !all {
				img, err := snaps.Capture(cmd.Context(), args[0], imgFormat, quality)
				if err != nil {
					return err
				}
				path := output
				if path == "" {
					path = snapshotFileName(img.Source, imgFormat)
				}
				if err := os.WriteFile(path, img.Data, 0o644); err != nil {
					return err
				}
				fmt.Fprintf(out, "%s: %dx%d %s, %s -> %s\n", img.Source, img.Width, img.Height, imgFormat, humanize.Bytes(uint64(len(img.Data))), path)
				return nil
			}

			if output != "" {
				if err := os.MkdirAll(output, 0o755); err != nil {
					return err
				}
			}
			var failed []error
			for _, o := range snaps.CaptureAll(cmd.Context(), imgFormat) {
				if o.Err != nil {
					fmt.Fprintf(out, "%s: %v\n", o.Source, o.Err)
					failed = append(failed, fmt.Errorf("%s: %w", o.Source, o.Err))
					continue
				}
				path := filepath.Join(output, snapshotFileName(o.Source, imgFormat))
				if err := os.WriteFile(path, o.Image.Data, 0o644); err != nil {
					return err
				}
				fmt.Fprintf(out, "%s: %dx%d %s, %s -> %s\n", o.Source, o.Image.Width, o.Image.Height, imgFormat, humanize.Bytes(uint64(len(o.Image.Data))), path)
			}
			return errors.Join(failed...)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file, or directory with --all")
	cmd.Flags().StringVar(&format, "format", "", "png or jpeg (default from the output extension, else png)")
	cmd.Flags().IntVar(&quality, "quality", 0, "JPEG quality 1-100 (default from config)")
	cmd.Flags().BoolVar(&all, "all", false, "Capture every discovered source")
	return cmd
}

// snapshotFormat prefers the explicit flag, then the output extension.
func snapshotFormat(flag, output string) (ndi.ImageFormat, error) {
	if flag == "" {
		switch strings.ToLower(filepath.Ext(output)) {
		case ".jpg", ".jpeg":
			flag = "jpeg"
		}
	}
	return ndi.ParseImageFormat(flag)
}

// snapshotFileName turns "HOST (Camera 1)" into "HOST_Camera_1_.png".
func snapshotFileName(source string, format ndi.ImageFormat) string {
	ext := "png"
	if format == ndi.ImageJPEG {
		ext = "jpg"
	}
	return unsafeFileChars.ReplaceAllString(source, "_") + "." + ext
}
