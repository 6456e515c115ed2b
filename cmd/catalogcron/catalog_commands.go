package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"catalogcron/internal/catalog"
	"catalogcron/internal/catalogdb"
	"catalogcron/internal/config"
	"catalogcron/internal/daemonrun"
)

func newOntologyCommand(ctx *commandContext) *cobra.Command {
	ontologyCmd := &cobra.Command{
		Use:   "ontology",
		Short: "Register and list ontologies",
	}

	var opts catalogdb.OntologyOptions
	addCmd := &cobra.Command{
		Use:   "add <ACRONYM>",
		Short: "Register an ontology",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withComponents(cmd, func(runCtx context.Context, comps *daemonrun.Components) error {
				ont, err := comps.Catalog.AddOntology(runCtx, args[0], opts)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Registered %s (%s)\n", ont.Acronym(), ont.ID())
				return nil
			})
		},
	}
	addCmd.Flags().StringVar(&opts.Name, "name", "", "Human readable ontology name")
	addCmd.Flags().BoolVar(&opts.SummaryOnly, "summary-only", false, "Metadata only; submissions carry no content")
	addCmd.Flags().StringVar(&opts.ViewOf, "view-of", "", "Register as a view of another ontology")
	ontologyCmd.AddCommand(addCmd)

	var asJSON bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List registered ontologies",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withComponents(cmd, func(runCtx context.Context, comps *daemonrun.Components) error {
				onts, err := comps.Catalog.Ontologies(runCtx)
				if err != nil {
					return err
				}
				type jsonOntology struct {
					Acronym     string `json:"acronym"`
					ID          string `json:"id"`
					Name        string `json:"name,omitempty"`
					SummaryOnly bool   `json:"summaryOnly"`
					ViewOf      string `json:"viewOf,omitempty"`
				}
				items := make([]jsonOntology, 0, len(onts))
				for _, o := range onts {
					item := jsonOntology{Acronym: o.Acronym(), ID: o.ID(), SummaryOnly: o.SummaryOnly()}
					if row, ok := o.(*catalogdb.Ontology); ok {
						item.Name = row.Name()
						item.ViewOf = row.ViewOf()
					}
					items = append(items, item)
				}
				if asJSON {
					return writeJSON(cmd, items)
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No ontologies registered")
					return nil
				}
				rows := make([][]string, 0, len(items))
				for _, item := range items {
					rows = append(rows, []string{item.Acronym, item.Name, yesNo(item.SummaryOnly), item.ViewOf})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]column{left("Acronym"), left("Name"), left("Summary"), left("View of")}, rows))
				return nil
			})
		},
	}
	listCmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	ontologyCmd.AddCommand(listCmd)

	return ontologyCmd
}

func newSubmissionCommand(ctx *commandContext) *cobra.Command {
	submissionCmd := &cobra.Command{
		Use:   "submission",
		Short: "Create and inspect ontology submissions",
	}

	var (
		pull    string
		file    string
		enqueue bool
	)
	addCmd := &cobra.Command{
		Use:   "add <ACRONYM>",
		Short: "Create the next submission version of an ontology",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(pull) == "" && strings.TrimSpace(file) == "" {
				return fmt.Errorf("one of --pull or --file is required")
			}
			source := ""
			if strings.TrimSpace(file) != "" {
				expanded, err := config.ExpandPath(file)
				if err != nil {
					return err
				}
				source = expanded
			}
			return ctx.withComponents(cmd, func(runCtx context.Context, comps *daemonrun.Components) error {
				sub, err := comps.Catalog.AddSubmission(runCtx, args[0], catalogdb.SubmissionInput{
					PullLocation: pull,
					SourceFile:   source,
				})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Created %s/%d (%s)\n", sub.Acronym(), sub.Version(), sub.ID())
				if !enqueue {
					return nil
				}
				if _, err := comps.Queue.EnqueueAll(runCtx, sub.ID()); err != nil {
					return err
				}
				fmt.Fprintln(out, "Queued for processing")
				return nil
			})
		},
	}
	addCmd.Flags().StringVar(&pull, "pull", "", "URL to download the ontology source from")
	addCmd.Flags().StringVar(&file, "file", "", "Local ontology source file to copy into the repository")
	addCmd.Flags().BoolVar(&enqueue, "queue", false, "Queue the new submission with every action")
	submissionCmd.AddCommand(addCmd)

	var asJSON bool
	listCmd := &cobra.Command{
		Use:   "list <ACRONYM>",
		Short: "List submissions of an ontology, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withComponents(cmd, func(runCtx context.Context, comps *daemonrun.Components) error {
				ont, err := comps.Catalog.Ontology(runCtx, args[0])
				if err != nil {
					return err
				}
				if ont == nil {
					return fmt.Errorf("ontology %s does not exist", strings.ToUpper(args[0]))
				}
				subs, err := ont.Submissions(runCtx)
				if err != nil {
					return err
				}
				subs = catalog.SortByVersionDesc(subs)
				if asJSON {
					return writeJSON(cmd, submissionsJSON(subs))
				}
				if len(subs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No submissions")
					return nil
				}
				rows := make([][]string, 0, len(subs))
				for _, sub := range subs {
					rows = append(rows, []string{
						strconv.Itoa(sub.Version()),
						yesNo(catalog.IsReady(sub)),
						statusList(sub.Statuses()),
					})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]column{right("Version"), left("Ready"), left("Statuses")}, rows))
				return nil
			})
		},
	}
	listCmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	submissionCmd.AddCommand(listCmd)

	return submissionCmd
}

type submissionJSON struct {
	ID       string   `json:"id"`
	Version  int      `json:"version"`
	Ready    bool     `json:"ready"`
	Statuses []string `json:"statuses"`
}

func submissionsJSON(subs []catalog.Submission) []submissionJSON {
	out := make([]submissionJSON, 0, len(subs))
	for _, sub := range subs {
		statuses := make([]string, 0, len(sub.Statuses()))
		for _, s := range sub.Statuses() {
			statuses = append(statuses, string(s))
		}
		out = append(out, submissionJSON{ID: sub.ID(), Version: sub.Version(), Ready: catalog.IsReady(sub), Statuses: statuses})
	}
	return out
}

func statusList(statuses []catalog.Status) string {
	parts := make([]string, 0, len(statuses))
	for _, s := range statuses {
		parts = append(parts, string(s))
	}
	return strings.Join(parts, ", ")
}
