package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Report component health",
	Args:  cobra.NoArgs,
	RunE:  runHealth,
}

func runHealth(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	instance, cleanup, err := openInstance(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	health := instance.Health(ctx)

	if jsonOutput {
		return printJSON(cmd, health)
	}

	names := make([]string, 0, len(health))
	for name := range health {
		names = append(names, name)
	}
	sort.Strings(names)

	unhealthy := 0
	for _, name := range names {
		status := health[name]
		cmd.Printf("%-10s %-10s %s\n", name, status.State, status.Message)
		if status.IsUnhealthy() {
			unhealthy++
		}
	}
	if !instance.Ready(ctx) {
		return fmt.Errorf("not ready: %d unhealthy components", unhealthy)
	}
	return nil
}
