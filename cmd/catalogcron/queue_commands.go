package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"catalogcron/internal/actions"
	"catalogcron/internal/api"
	"catalogcron/internal/catalog"
	"catalogcron/internal/config"
	"catalogcron/internal/daemonrun"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the parse queue",
	}

	queueCmd.AddCommand(newQueueAddCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueProcessCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))

	return queueCmd
}

func newQueueAddCommand(ctx *commandContext) *cobra.Command {
	var actionFlags []string

	cmd := &cobra.Command{
		Use:   "add <submission>...",
		Short: "Queue submissions for processing",
		Long: "Queue submissions for processing. A submission is either its full IRI or ACRONYM/VERSION.\n" +
			"Without --actions every canonical action is requested.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			requested := actions.All()
			if len(actionFlags) > 0 {
				parsed, err := actions.Parse(actionFlags)
				if err != nil {
					return err
				}
				requested = parsed
			}
			return ctx.withComponents(cmd, func(runCtx context.Context, comps *daemonrun.Components) error {
				out := cmd.OutOrStdout()
				for _, arg := range args {
					id, err := resolveSubmissionID(comps.Config, arg)
					if err != nil {
						return err
					}
					queued, err := comps.Queue.Enqueue(runCtx, id, requested)
					if err != nil {
						return err
					}
					if !queued {
						fmt.Fprintf(out, "Skipped %s (no canonical actions requested)\n", id)
						continue
					}
					fmt.Fprintf(out, "Queued %s [%s]\n", id, actions.Filter(requested).String())
				}
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&actionFlags, "actions", "a", nil, "Actions to request (comma separated, \"all\" for every action)")
	return cmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending queue entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withComponents(cmd, func(runCtx context.Context, comps *daemonrun.Components) error {
				entries, malformed, err := comps.Queue.Pending(runCtx)
				if err != nil {
					return err
				}
				resp := api.FromPending(entries, malformed)
				if asJSON {
					return writeJSON(cmd, resp)
				}
				printQueueList(cmd, resp)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func printQueueList(cmd *cobra.Command, resp api.QueueListResponse) {
	out := cmd.OutOrStdout()
	if len(resp.Entries) == 0 && len(resp.Malformed) == 0 {
		fmt.Fprintln(out, "Queue is empty")
		return
	}
	if len(resp.Entries) > 0 {
		rows := make([][]string, 0, len(resp.Entries))
		for _, entry := range resp.Entries {
			rows = append(rows, []string{entry.SubmissionID, strings.Join(entry.Actions, ", ")})
		}
		fmt.Fprint(out, renderTable([]column{left("Submission"), left("Actions")}, rows))
	}
	if len(resp.Malformed) > 0 {
		fmt.Fprintf(out, "%d malformed entries:\n", len(resp.Malformed))
		for _, bad := range resp.Malformed {
			fmt.Fprintf(out, "  %s: %s\n", bad.Key, bad.Error)
		}
	}
}

func newQueueProcessCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "process",
		Short: "Drain the queue and process every pending submission now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withComponents(cmd, func(runCtx context.Context, comps *daemonrun.Components) error {
				summary, err := comps.Processor.ProcessQueue(runCtx)
				if err != nil {
					return err
				}
				rows := [][]string{
					{"Drained", strconv.Itoa(summary.Drained)},
					{"Ready", strconv.Itoa(summary.Ready)},
					{"Not ready", strconv.Itoa(summary.NotReady)},
					{"Not found", strconv.Itoa(summary.NotFound)},
					{"Failed", strconv.Itoa(summary.Failed)},
					{"Malformed", strconv.Itoa(summary.Malformed)},
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]column{left("Outcome"), right("Count")}, rows))
				return nil
			})
		},
	}
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <submission>...",
		Short: "Remove submissions from the queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withComponents(cmd, func(runCtx context.Context, comps *daemonrun.Components) error {
				for _, arg := range args {
					id, err := resolveSubmissionID(comps.Config, arg)
					if err != nil {
						return err
					}
					if err := comps.Queue.Remove(runCtx, id); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", id)
				}
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every queue entry, malformed ones included",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withComponents(cmd, func(runCtx context.Context, comps *daemonrun.Components) error {
				removed, err := comps.Queue.Clear(runCtx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d queue entries\n", removed)
				return nil
			})
		},
	}
}

// resolveSubmissionID accepts a submission IRI, a raw queue key or the
// ACRONYM/VERSION shorthand.
func resolveSubmissionID(cfg *config.Config, arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return "", fmt.Errorf("submission id is required")
	}
	if strings.Contains(arg, "://") || strings.HasPrefix(arg, cfg.Queue.KeyPrefix) {
		return arg, nil
	}
	acronym, versionStr, ok := strings.Cut(arg, "/")
	if !ok {
		return "", fmt.Errorf("invalid submission %q (want IRI or ACRONYM/VERSION)", arg)
	}
	version, err := strconv.Atoi(versionStr)
	if err != nil || version <= 0 {
		return "", fmt.Errorf("invalid submission version in %q", arg)
	}
	return catalog.SubmissionIRI(cfg.Catalog.BaseIRI, strings.ToUpper(acronym), version), nil
}
