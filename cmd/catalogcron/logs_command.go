package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"catalogcron/internal/daemonrun"
	"catalogcron/internal/logs"
	"catalogcron/internal/processor"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		lines      int
		follow     bool
		submission string
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the daemon log or a submission's parsing log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := filepath.Join(cfg.Paths.LogDir, daemonrun.CurrentLogName)
			if submission != "" {
				path, err = parsingLogPath(cmd, ctx, submission)
				if err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			tail, offset, err := logs.Last(path, lines)
			if err != nil {
				return err
			}
			for _, line := range tail {
				fmt.Fprintln(out, line)
			}
			if !follow {
				return nil
			}
			err = logs.Follow(cmd.Context(), path, offset, 500*time.Millisecond, func(line string) {
				fmt.Fprintln(out, line)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing lines as they are written")
	cmd.Flags().StringVarP(&submission, "submission", "s", "", "Show the parsing log of a submission (IRI or ACRONYM/VERSION)")
	return cmd
}

func parsingLogPath(cmd *cobra.Command, ctx *commandContext, arg string) (string, error) {
	var path string
	err := ctx.withComponents(cmd, func(runCtx context.Context, comps *daemonrun.Components) error {
		id, err := resolveSubmissionID(comps.Config, arg)
		if err != nil {
			return err
		}
		sub, err := comps.Catalog.Submission(runCtx, id)
		if err != nil {
			return err
		}
		if sub == nil {
			return fmt.Errorf("submission %s does not exist", id)
		}
		path = filepath.Join(sub.DataDir(), processor.ParsingLogName)
		return nil
	})
	return path, err
}
