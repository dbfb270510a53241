package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"conv"},
	Short:   "Inspect stored conversations",
}

var conversationsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List conversations, newest first",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.openStore(cmd.Context())
		if err != nil {
			return err
		}
		convs, err := st.ListConversations(cmd.Context())
		if err != nil {
			return err
		}

		if len(convs) == 0 {
			fmt.Println("No conversations")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tMESSAGES\tCREATED")
		for _, c := range convs {
			fmt.Fprintf(w, "%d\t%s\t%d\t%s\n",
				c.ID, c.Title, len(c.Messages), c.CreatedAt.Local().Format(time.DateTime))
		}
		w.Flush()
		return nil
	},
}

var conversationsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.openStore(cmd.Context())
		if err != nil {
			return err
		}
		c, err := st.GetConversation(cmd.Context(), id)
		if err != nil {
			return err
		}

		fmt.Printf("%s (%s)\n\n", c.Title, c.CreatedAt.Local().Format(time.DateTime))
		for _, m := range c.Messages {
			fmt.Printf("%s:\n%s\n\n", m.Role, m.Content)
		}
		return nil
	},
}

var conversationsDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a conversation and its messages",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.openStore(cmd.Context())
		if err != nil {
			return err
		}
		if err := st.DeleteConversation(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Printf("Conversation %d deleted\n", id)
		return nil
	},
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid conversation id %q", s)
	}
	return id, nil
}

func init() {
	conversationsCmd.AddCommand(conversationsListCmd)
	conversationsCmd.AddCommand(conversationsShowCmd)
	conversationsCmd.AddCommand(conversationsDeleteCmd)
	rootCmd.AddCommand(conversationsCmd)
}
