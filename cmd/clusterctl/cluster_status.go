package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var clusterStatusCmd = &cobra.Command{
	Use:   "cluster-status",
	Short: "Report a live load-and-reachability snapshot of every configured node",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := wire()
		if err != nil {
			return err
		}
		defer d.store.Close()

		snap := d.surface.ClusterStatus(context.Background())

		for _, id := range d.cfg.NodeOrder {
			s, ok := snap.Samples[id]
			if !ok {
				continue
			}
			marker := "*"
			if id != snap.LocalNodeID {
				marker = " "
			}
			if !s.Reachable {
				fmt.Printf("%s%-14s unreachable (%s)\n", marker, id, s.Error)
				continue
			}
			overloaded := ""
			if s.Overloaded {
				overloaded = " OVERLOADED"
			}
			fmt.Printf("%s%-14s cpu=%.1f%% mem=%.1f%% load1=%.2f%s\n", marker, id, s.CPUPercent, s.MemPercent, s.LoadAvg1, overloaded)
		}
		return nil
	},
}
