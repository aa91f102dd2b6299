package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var submitCmd = &cobra.Command{
	Use:   "submit [flags] -- <command-words...>",
	Short: "Submit a command for cluster-aware routing and wait for its result",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		noAutoRoute, _ := cmd.Flags().GetBool("no-auto-route")
		requiresOS, _ := cmd.Flags().GetString("requires-os")
		requiresArch, _ := cmd.Flags().GetString("requires-arch")

		d, err := wire()
		if err != nil {
			return err
		}
		defer d.store.Close()

		command := strings.Join(args, " ")
		res := d.surface.ClusterBash(context.Background(), command, requiresOS, requiresArch, !noAutoRoute)

		fmt.Fprint(os.Stdout, res.Stdout)
		fmt.Fprint(os.Stderr, res.Stderr)
		fmt.Printf("executed_on=%s auto_routed=%v task_id=%s return_code=%d\n", res.ExecutedOn, res.AutoRouted, res.TaskID, res.ReturnCode)

		if !res.Success {
			if res.Error != "" {
				return fmt.Errorf("submit failed: %s", res.Error)
			}
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	submitCmd.Flags().Bool("no-auto-route", false, "Disable load-aware auto-routing; always run locally")
	submitCmd.Flags().String("requires-os", "", "Require a specific node OS (linux/darwin)")
	submitCmd.Flags().String("requires-arch", "", "Require a specific node architecture (x86_64/arm64)")
}
