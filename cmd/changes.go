package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/loftlabs/loft/internal/changes"
	"github.com/loftlabs/loft/internal/session"
)

var changesAll bool

var changesCmd = &cobra.Command{
	Use:   "changes",
	Short: "Review pending file changes",
	Long: `List, inspect, and resolve the file changes made by the assistant.

Every mutation keeps a backup until it is resolved:
  accept   keep the change and discard the backup
  reject   restore the original file content
  dismiss  forget the change without touching the file`,
	RunE: runChangesList,
}

var changesDiffCmd = &cobra.Command{
	Use:   "diff <id>",
	Short: "Show the diff for a pending change",
	Args:  cobra.ExactArgs(1),
	RunE:  runChangesDiff,
}

var changesAcceptCmd = &cobra.Command{
	Use:   "accept [id]",
	Short: "Keep a change and discard its backup",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return resolveChanges(args, "accept",
			func(s *session.Service, id string) error { return s.AcceptChange(id) },
			func(s *session.Service) changes.BulkResult { return s.AcceptAllChanges() })
	},
}

var changesRejectCmd = &cobra.Command{
	Use:   "reject [id]",
	Short: "Restore the original file content",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return resolveChanges(args, "reject",
			func(s *session.Service, id string) error { return s.RejectChange(id) },
			func(s *session.Service) changes.BulkResult { return s.RejectAllChanges() })
	},
}

var changesDismissCmd = &cobra.Command{
	Use:   "dismiss [id]",
	Short: "Forget a change without touching the file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return resolveChanges(args, "dismiss",
			func(s *session.Service, id string) error { return s.DismissChange(id) },
			func(s *session.Service) changes.BulkResult { return s.DismissAllChanges() })
	},
}

func init() {
	rootCmd.AddCommand(changesCmd)
	changesCmd.AddCommand(changesDiffCmd)
	changesCmd.AddCommand(changesAcceptCmd)
	changesCmd.AddCommand(changesRejectCmd)
	changesCmd.AddCommand(changesDismissCmd)
	for _, c := range []*cobra.Command{changesAcceptCmd, changesRejectCmd, changesDismissCmd} {
		c.Flags().BoolVar(&changesAll, "all", false, "Apply to every pending change")
	}
}

func runChangesList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	svc, err := newService(cfg)
	if err != nil {
		return err
	}

	pending := svc.PendingChanges()
	if len(pending) == 0 {
		fmt.Println("No pending changes.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tFILE\tWHEN")
	for _, c := range pending {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.ID, c.Type, c.FilePath, c.Timestamp.Local().Format("15:04:05"))
	}
	return w.Flush()
}

func runChangesDiff(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	svc, err := newService(cfg)
	if err != nil {
		return err
	}

	diff, err := svc.ChangeDiff(args[0])
	if err != nil {
		return err
	}
	if diff == "" {
		fmt.Println("No differences.")
		return nil
	}
	fmt.Print(diff)
	return nil
}

func resolveChanges(args []string, verb string, one func(*session.Service, string) error, all func(*session.Service) changes.BulkResult) error {
	if len(args) == 0 && !changesAll {
		return fmt.Errorf("pass a change ID or --all")
	}
	if len(args) == 1 && changesAll {
		return fmt.Errorf("pass either a change ID or --all, not both")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	svc, err := newService(cfg)
	if err != nil {
		return err
	}

	if changesAll {
		result := all(svc)
		fmt.Printf("%sed %d change(s)\n", verb, len(result.Succeeded))
		for _, f := range result.Failed {
			fmt.Fprintf(os.Stderr, "failed %s (%s): %s\n", f.ID, f.FilePath, f.Message)
		}
		if len(result.Failed) > 0 {
			return fmt.Errorf("%d change(s) failed", len(result.Failed))
		}
		return nil
	}

	if err := one(svc, args[0]); err != nil {
		return err
	}
	fmt.Printf("%sed %s\n", verb, args[0])
	return nil
}
