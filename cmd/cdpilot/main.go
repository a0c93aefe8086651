// Command cdpilot is a small demonstration CLI built on top of the
// cdpilot package: it launches (or attaches to) a Chromium-family browser,
// navigates to a URL, and prints the resulting page title, optionally
// saving a screenshot.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/averyhale/cdpilot"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "cdpilot:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cdpilot",
		Short: "Drive a Chromium-family browser over the DevTools protocol",
	}
	root.AddCommand(newNavigateCmd())
	return root
}

func newNavigateCmd() *cobra.Command {
	var (
		headless   bool
		remote     string
		screenshot string
		timeout    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "navigate <url>",
		Short: "Navigate to a URL and print its title",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			var allocCtx context.Context
			var allocCancel context.CancelFunc
			if remote != "" {
				allocCtx, allocCancel = cdpilot.NewContext(ctx)
				cdpilot.FromContext(allocCtx).Allocator = &cdpilot.RemoteAllocator{Endpoint: remote}
			} else {
				allocCtx, allocCancel = cdpilot.NewExecContext(ctx, cdpilot.Headless(headless))
			}
			defer allocCancel()

			taskCtx, taskCancel := cdpilot.NewContext(allocCtx)
			defer taskCancel()

			var title string
			tasks := cdpilot.Tasks{
				cdpilot.Navigate(args[0]),
				cdpilot.Title(&title),
			}
			var shot []byte
			if screenshot != "" {
				tasks = append(tasks, cdpilot.CaptureScreenshot(&shot))
			}

			if err := cdpilot.Run(taskCtx, tasks...); err != nil {
				return err
			}
			fmt.Println(title)
			if screenshot != "" {
				if err := os.WriteFile(screenshot, shot, 0o644); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&headless, "headless", true, "run the browser headless")
	cmd.Flags().StringVar(&remote, "remote", "", "attach to an existing browser's debugger endpoint instead of launching one")
	cmd.Flags().StringVar(&screenshot, "screenshot", "", "save a PNG screenshot to this path")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "overall command timeout")
	return cmd
}
