package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <task_id>",
	Short: "Look up a previously submitted task by ID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := wire()
		if err != nil {
			return err
		}
		defer d.store.Close()

		task, err := d.store.Read(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("looking up task %s: %w", args[0], err)
		}

		fmt.Printf("task_id=%s status=%s assigned_to=%s\n", task.TaskID, task.Status, task.AssignedTo)
		if task.Result != "" {
			fmt.Println("--- stdout ---")
			fmt.Println(task.Result)
		}
		if task.Error != "" {
			fmt.Println("--- error ---")
			fmt.Println(task.Error)
		}

		if !task.Status.Terminal() {
			return nil
		}
		if task.Status != "completed" {
			os.Exit(1)
		}
		return nil
	},
}
