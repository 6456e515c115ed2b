package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"catalogcron/internal/daemonrun"
	"catalogcron/internal/report"
)

func newFlushCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Delete stale and undersized class graphs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withComponents(cmd, func(runCtx context.Context, comps *daemonrun.Components) error {
				res, err := comps.Stale.FlushClasses(runCtx)
				deleted := res.Deleted
				out := cmd.OutOrStdout()
				if len(deleted) > 0 {
					rows := make([][]string, 0, len(deleted))
					for _, sub := range deleted {
						rows = append(rows, []string{sub.Acronym(), strconv.Itoa(sub.Version()), sub.ID()})
					}
					fmt.Fprint(out, renderTable([]column{left("Ontology"), right("Version"), left("Graph")}, rows))
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Deleted %d class graphs\n", len(deleted))
				if len(res.Zombies) > 0 {
					fmt.Fprintf(out, "Found %d zombie graphs; run 'catalogcron zombies' to list them\n", len(res.Zombies))
				}
				return nil
			})
		},
	}
}

func newZombiesCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "zombies",
		Short: "List class graphs whose ontology no longer exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withComponents(cmd, func(runCtx context.Context, comps *daemonrun.Components) error {
				graphs, err := comps.Stale.ZombieGraphs(runCtx)
				if err != nil {
					return err
				}
				if asJSON {
					if graphs == nil {
						graphs = []string{}
					}
					return writeJSON(cmd, map[string]any{"zombies": graphs})
				}
				out := cmd.OutOrStdout()
				if len(graphs) == 0 {
					fmt.Fprintln(out, "No zombie graphs")
					return nil
				}
				for _, graph := range graphs {
					fmt.Fprintln(out, graph)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newWarmCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "warm",
		Short: "Refresh mapping counts and warm first class pages",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withComponents(cmd, func(runCtx context.Context, comps *daemonrun.Components) error {
				iterations, err := comps.Warmer.Run(runCtx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cache warm finished (%d operations)\n", iterations)
				return nil
			})
		},
	}
}

func newReportCommand(ctx *commandContext) *cobra.Command {
	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Ontology health report",
	}

	reportCmd.AddCommand(&cobra.Command{
		Use:   "refresh [ACRONYM...]",
		Short: "Rebuild report entries (all ontologies when none are named)",
		RunE: func(cmd *cobra.Command, args []string) error {
			acronyms := make([]string, 0, len(args))
			for _, arg := range args {
				acronyms = append(acronyms, strings.ToUpper(strings.TrimSpace(arg)))
			}
			return ctx.withComponents(cmd, func(runCtx context.Context, comps *daemonrun.Components) error {
				if err := comps.Report.Refresh(runCtx, acronyms...); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", comps.Config.Paths.ReportPath)
				return nil
			})
		},
	})

	var asJSON bool
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the current report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			rep, err := report.Load(cfg.Paths.ReportPath)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, rep)
			}
			printReport(cmd, rep)
			return nil
		},
	}
	showCmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	reportCmd.AddCommand(showCmd)

	return reportCmd
}

func printReport(cmd *cobra.Command, rep *report.Report) {
	out := cmd.OutOrStdout()
	if len(rep.Ontologies) == 0 {
		fmt.Fprintln(out, "Report is empty")
		return
	}
	acronyms := make([]string, 0, len(rep.Ontologies))
	for acr := range rep.Ontologies {
		acronyms = append(acronyms, acr)
	}
	sort.Strings(acronyms)
	rows := make([][]string, 0, len(acronyms))
	for _, acr := range acronyms {
		entry := rep.Ontologies[acr]
		problems := strings.Join(entry.Problems, ", ")
		if problems == "" {
			problems = "-"
		}
		rows = append(rows, []string{
			acr,
			versionOrDash(entry.LatestVersion),
			versionOrDash(entry.LatestReadyVersion),
			strconv.Itoa(entry.ClassCount),
			problems,
		})
	}
	fmt.Fprint(out, renderTable([]column{left("Ontology"), right("Latest"), right("Ready"), right("Classes"), left("Problems")}, rows))
}

func versionOrDash(v int) string {
	if v <= 0 {
		return "-"
	}
	return strconv.Itoa(v)
}
