package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"catalogcron/internal/api"
	"catalogcron/internal/daemonctl"
	"catalogcron/internal/daemonrun"
	"catalogcron/internal/preflight"
)

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	var development bool
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the routine scheduler in the foreground",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    ctx.resolvedLogLevel(cfg),
				Development: development,
			})
		},
	}
	cmd.Flags().BoolVar(&development, "development", false, "Enable development logging (source locations, debug detail)")
	return cmd
}

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and routine status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			running, pid, err := daemonctl.ProcessInfo(cfg)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, renderSectionHeader("Daemon"))
			if !running {
				fmt.Fprintln(out, renderStatusLine("Daemon", statusWarn, "not running", colorize))
				return nil
			}
			detail := "running"
			if pid > 0 {
				detail = fmt.Sprintf("running (pid %d)", pid)
			}
			fmt.Fprintln(out, renderStatusLine("Daemon", statusOK, detail, colorize))

			client, err := daemonctl.NewClient(cfg)
			if errors.Is(err, daemonctl.ErrAPIDisabled) {
				fmt.Fprintln(out, renderStatusLine("Status API", statusInfo, "disabled", colorize))
				return nil
			}
			if err != nil {
				return err
			}
			status, err := client.Status(cmd.Context())
			if err != nil {
				fmt.Fprintln(out, renderStatusLine("Status API", statusError, err.Error(), colorize))
				return nil
			}
			if status.StartedAt != "" {
				fmt.Fprintln(out, renderStatusLine("Started", statusInfo, status.StartedAt, colorize))
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, renderSectionHeader("Routines"))
			fmt.Fprint(out, renderTable(
				[]column{left("Routine"), left("Schedule"), right("Runs"), right("Failures"), left("Last finished"), left("Next run"), left("Last error")},
				routineRows(status.Routines),
			))

			queued, err := client.Queue(cmd.Context())
			if err == nil {
				fmt.Fprintln(out)
				fmt.Fprintln(out, renderStatusLine("Queue", statusInfo, fmt.Sprintf("%d pending, %d malformed", len(queued.Entries), len(queued.Malformed)), colorize))
			}
			return nil
		},
	}

	var grace time.Duration
	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			result, err := daemonctl.Stop(cmd.Context(), ctx.configValue(), grace)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(out, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(out, "Daemon (pid %d) did not exit within %s; killed\n", result.PID, grace)
				return nil
			}
			fmt.Fprintln(out, "Daemon stopped")
			return nil
		},
	}
	stopCmd.Flags().DurationVar(&grace, "grace", 30*time.Second, "How long to wait for in-flight routines before killing")

	triggerCmd := &cobra.Command{
		Use:       "trigger <routine>",
		Short:     "Ask the running daemon to run a routine now",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{daemonrun.RoutineParse, daemonrun.RoutineFlush, daemonrun.RoutineWarm},
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := daemonctl.NewClient(ctx.configValue())
			if err != nil {
				return err
			}
			if err := client.Trigger(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Routine %s triggered\n", args[0])
			return nil
		},
	}

	return []*cobra.Command{statusCmd, stopCmd, triggerCmd}
}

func routineRows(routines []api.RoutineStatus) [][]string {
	rows := make([][]string, 0, len(routines))
	for _, r := range routines {
		next := r.NextRun
		if r.Running {
			next = "running"
		} else if next == "" {
			next = "-"
		}
		last := r.LastFinished
		if last == "" {
			last = "-"
		}
		rows = append(rows, []string{
			r.Name,
			r.Schedule,
			strconv.Itoa(r.Runs),
			strconv.Itoa(r.Failures),
			last,
			next,
			r.LastError,
		})
	}
	return rows
}

func newPreflightCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "preflight",
		Short: "Check directories, external commands and Redis connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			results := preflight.RunAll(cmd.Context(), cfg)
			fmt.Fprintln(out, renderSectionHeader("Preflight"))
			for _, r := range results {
				kind := statusOK
				if !r.Passed {
					kind = statusError
				}
				fmt.Fprintln(out, renderStatusLine(r.Name, kind, r.Detail, colorize))
			}
			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d preflight checks failed", len(failed))
			}
			return nil
		},
	}
}
