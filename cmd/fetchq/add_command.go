package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAddCommand(ctx *appContext) *cobra.Command {
	var now bool

	cmd := &cobra.Command{
		Use:   "add <url>",
		Short: "Add a media URL to the download queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, err := ctx.queue()
			if err != nil {
				return err
			}

			job, accepted, err := queue.Enqueue(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !accepted {
				fmt.Fprintf(out, "URL already exists in queue: %s\n", job.URL)
				fmt.Fprintf(out, "Status: %s\n", job.Status)
				if job.FinalFilename != "" {
					fmt.Fprintf(out, "Downloaded file: %s\n", job.FinalFilename)
				}
				return nil
			}

			fmt.Fprintf(out, "URL added to queue: %s (id %d)\n", job.URL, job.ID)

			if !now {
				return nil
			}

			// Same claim-then-execute path as the daemon; if a running
			// daemon wins the race the job is simply left to it.
			if err := queue.Process(cmd.Context(), job); err != nil {
				return err
			}

			done, err := queue.Get(cmd.Context(), job.ID)
			if err != nil {
				return err
			}
			switch {
			case done.FinalFilename != "":
				fmt.Fprintf(out, "Downloaded: %s\n", done.FinalFilename)
			default:
				fmt.Fprintf(out, "Job %d is now %s (retries %d)\n", done.ID, done.Status, done.Retries)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&now, "now", false, "Download immediately instead of waiting for the daemon")
	return cmd
}
