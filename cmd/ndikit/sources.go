package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/zsiec/ndikit/pkg/ndi"
)

func newSourcesCmd(a *app) *cobra.Command {
	var (
		wait time.Duration
		host string
	)
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Run one discovery pass and list the sources found",
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

			var sources []ndi.Source
			if host != "" {
				cache, err := ndi.NewSourceCache(rt, a.cfg.NDI.SourceCacheTTL)
				if err != nil {
					return err
				}
				defer cache.Close()
				src, err := cache.FindByHost(host, wait)
				if err != nil {
					return err
				}
				sources = []ndi.Source{src}
			} else {
				finder, err := ndi.NewFinder(rt, finderOptions(a.cfg.NDI.Finder))
				if err != nil {
					return err
				}
				defer finder.Close()
				if sources, err = finder.FindSources(wait); err != nil {
					return err
				}
			}

			if len(sources) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No sources found")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), sourcesTable(sources))
			return nil
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 2*time.Second, "How long to wait for sources")
	cmd.Flags().StringVar(&host, "host", "", "Only the first source announced by this host")
	return cmd
}

func sourcesTable(sources []ndi.Source) string {
	header := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("NAME", "ADDRESS", "HOST", "PORT").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		})
	for _, src := range sources {
		host, _ := src.Host()
		port := ""
		if p, ok := src.Address.Port(); ok {
			port = strconv.Itoa(int(p))
		}
		t.Row(src.Name, src.Address.String(), host, port)
	}
	return t.String()
}
