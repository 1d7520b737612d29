package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/lamassuiot/rpki-core/core/pkg/services"
	"github.com/spf13/cobra"
)

var (
	maxAgeDays     int
	minStagingTime time.Duration
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Key rollover for a hosted CA",
}

var keysRollCmd = &cobra.Command{
	Use:   "roll NAME",
	Short: "Create a pending key when the current one is old enough",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ca, err := caByName(cmd, args[0])
		if err != nil {
			return err
		}
		return handle(cmd, services.InitiateKeyRollCommand{CA: ca.VersionedID(), MaxAgeDays: maxAgeDays})
	},
}

var keysActivateCmd = &cobra.Command{
	Use:   "activate NAME",
	Short: "Promote pending keys that were staged long enough",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ca, err := caByName(cmd, args[0])
		if err != nil {
			return err
		}
		return handle(cmd, services.ActivatePendingKeysCommand{CA: ca.VersionedID(), MinStagingTime: minStagingTime})
	},
}

var keysRevokeOldCmd = &cobra.Command{
	Use:   "revoke-old NAME",
	Short: "Revoke keys replaced by a rollover",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ca, err := caByName(cmd, args[0])
		if err != nil {
			return err
		}
		return handle(cmd, services.RevokeOldKeysCommand{CA: ca.VersionedID()})
	},
}

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Run maintenance jobs on demand",
}

var jobListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the maintenance jobs",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		names := make([]string, 0, len(svc.Jobs))
		for name := range svc.Jobs {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Println(name)
		}
	},
}

var jobRunCmd = &cobra.Command{
	Use:   "run NAME",
	Short: "Run one maintenance job to completion",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return svc.RunJob(cmd.Context(), args[0])
	},
}

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Write pending objects to the repository",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := svc.Publication.PublishObjects(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("written %d, removed %d, unchanged %d\n", len(out.Written), len(out.Removed), len(out.Unchanged))
		return nil
	},
}

func init() {
	keysRollCmd.Flags().IntVar(&maxAgeDays, "max-age-days", 0, "only roll when the current key is older than this")
	keysActivateCmd.Flags().DurationVar(&minStagingTime, "min-staging-time", 24*time.Hour, "time a pending key is published before activation")

	keysCmd.AddCommand(keysRollCmd, keysActivateCmd, keysRevokeOldCmd)
	jobCmd.AddCommand(jobListCmd, jobRunCmd)
}
