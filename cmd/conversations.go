package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"convos"},
	Short:   "List conversations for this project",
	RunE:    runConversationsList,
}

var conversationsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a conversation transcript",
	Args:  cobra.ExactArgs(1),
	RunE:  runConversationsShow,
}

var conversationsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runConversationsDelete,
}

func init() {
	rootCmd.AddCommand(conversationsCmd)
	conversationsCmd.AddCommand(conversationsShowCmd)
	conversationsCmd.AddCommand(conversationsDeleteCmd)
}

func runConversationsList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	svc, err := newService(cfg)
	if err != nil {
		return err
	}

	summaries, err := svc.ListConversations()
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Println("No conversations yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tMESSAGES\tUPDATED")
	for _, s := range summaries {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", s.ID, s.Title, s.MessageCount, s.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runConversationsShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	svc, err := newService(cfg)
	if err != nil {
		return err
	}

	conv, err := svc.GetConversation(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("%s (%s)\n", conv.Title, conv.ID)
	for _, m := range conv.Messages {
		fmt.Printf("\n[%s]\n%s\n", m.Role, m.Content)
	}
	return nil
}

func runConversationsDelete(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	svc, err := newService(cfg)
	if err != nil {
		return err
	}

	if err := svc.DeleteConversation(args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted %s\n", args[0])
	return nil
}
