package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	historyPages int
	historyJSON  bool

	sendJSON bool
)

func init() {
	historyCmd.Flags().IntVar(&historyPages, "pages", 1, "Number of history pages to fetch")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Output raw JSON")
	sendCmd.Flags().BoolVar(&sendJSON, "json", false, "Output raw JSON")

	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(deleteCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history <conversation-id>",
	Short: "Show a conversation's message history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		session, _ := getSession()
		conversationID := args[0]
		session.EnterConversation(conversationID)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		for i := 0; i < historyPages && session.HasMore(conversationID); i++ {
			if err := session.LoadMore(ctx, conversationID); err != nil {
				exitIfUnauthenticated(err)
				return err
			}
		}

		pages := session.Pages(conversationID)
		if historyJSON {
			data, _ := json.MarshalIndent(pages, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		// Oldest first for reading order.
		for pi := len(pages) - 1; pi >= 0; pi-- {
			page := pages[pi]
			for mi := len(page) - 1; mi >= 0; mi-- {
				m := page[mi]
				edited := ""
				if m.IsEdited {
					edited = " (edited)"
				}
				fmt.Printf("[%s] %s: %s%s\n",
					m.CreatedAt.Local().Format("2006-01-02 15:04"),
					m.Sender.FirstName, m.Text, edited)
			}
		}
		if !session.HasMore(conversationID) {
			fmt.Println("-- beginning of conversation --")
		}
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <conversation-id> <recipient-id> <text>...",
	Short: "Send a message",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		session, _ := getSession()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		msg, err := session.Send(ctx, args[0], args[1], strings.Join(args[2:], " "))
		if err != nil {
			exitIfUnauthenticated(err)
			return err
		}

		if sendJSON {
			data, _ := json.MarshalIndent(msg, "", "  ")
			fmt.Println(string(data))
			return nil
		}
		fmt.Printf("Sent %s\n", msg.ID)
		return nil
	},
}

var editCmd = &cobra.Command{
	Use:   "edit <message-id> <text>...",
	Short: "Edit a message",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		session, _ := getSession()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		msg, err := session.Edit(ctx, args[0], strings.Join(args[1:], " "))
		if err != nil {
			exitIfUnauthenticated(err)
			return err
		}
		fmt.Printf("Edited %s\n", msg.ID)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <message-id>",
	Short: "Delete a message",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		session, _ := getSession()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := session.Delete(ctx, args[0]); err != nil {
			exitIfUnauthenticated(err)
			return err
		}
		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}
