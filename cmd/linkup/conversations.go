package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	conversationsJSON bool

	newConversationJSON bool
)

func init() {
	conversationsCmd.Flags().BoolVar(&conversationsJSON, "json", false, "Output raw JSON")
	newConversationCmd.Flags().BoolVar(&newConversationJSON, "json", false, "Output raw JSON")

	rootCmd.AddCommand(conversationsCmd)
	rootCmd.AddCommand(newConversationCmd)
}

var conversationsCmd = &cobra.Command{
	Use:   "conversations",
	Short: "List conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		session, _ := getSession()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		conversations, err := session.LoadConversations(ctx)
		if err != nil {
			exitIfUnauthenticated(err)
			return err
		}

		if conversationsJSON {
			data, _ := json.MarshalIndent(conversations, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		if len(conversations) == 0 {
			fmt.Println("No conversations.")
			return nil
		}
		for _, c := range conversations {
			marker := " "
			if !c.IsRead {
				marker = "*"
			}
			last := "(no messages)"
			if c.LastMessageSent != nil {
				last = c.LastMessageSent.Text
				if len(last) > 60 {
					last = last[:57] + "..."
				}
			}
			fmt.Printf("%s %-24s %-16s %s\n", marker, c.ConversationID, c.Participant.FirstName, last)
		}
		return nil
	},
}

var newConversationCmd = &cobra.Command{
	Use:   "new-conversation <participant-id>",
	Short: "Start a conversation with a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		session, _ := getSession()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		conv, err := session.CreateConversation(ctx, args[0])
		if err != nil {
			exitIfUnauthenticated(err)
			return err
		}

		if newConversationJSON {
			data, _ := json.MarshalIndent(conv, "", "  ")
			fmt.Println(string(data))
			return nil
		}
		fmt.Printf("Conversation %s with %s\n", conv.ConversationID, conv.Participant.FirstName)
		return nil
	},
}
