package main

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/zsiec/ndikit/internal/monitor"
	"github.com/zsiec/ndikit/pkg/ndi"
)

func newMonitorCmd(a *app) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Watch sources, tally and connections in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.setup(cmd, true); err != nil {
				return err
			}
			a.silence()

			rt, err := openRuntime(a.cfg.NDI)
			if err != nil {
				return err
			}
			defer rt.Close()

			finder, err := ndi.NewFinder(rt, finderOptions(a.cfg.NDI.Finder))
			if err != nil {
				return err
			}
			defer finder.Close()

			prober := monitor.NewReceiverProber(rt, 100*time.Millisecond)
			defer prober.Close()

			p := tea.NewProgram(monitor.NewModel(finder, prober, interval),
				tea.WithAltScreen(),
				tea.WithContext(cmd.Context()),
			)
			_, err = p.Run()
			return err
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", monitor.DefaultInterval, "Refresh interval")
	return cmd
}
