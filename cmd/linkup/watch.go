package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	linkup "github.com/linkup-chat/linkup-go"
	"github.com/spf13/cobra"
)

var watchConversation string

func init() {
	watchCmd.Flags().StringVar(&watchConversation, "conversation", "", "Mark this conversation as actively viewed (its incoming messages are acknowledged as read)")
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch live events",
	Long:  "Connect to the realtime channel and print incoming messages and presence changes until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg := getClient()
		log := cliLogger()

		session := linkup.NewSession(client, linkup.WithSessionLogger(log))
		if watchConversation != "" {
			session.EnterConversation(watchConversation)
		}

		rt := linkup.NewRealtimeClient(client.BaseURL(), &linkup.RealtimeConfig{
			UserID:        cfg.Auth.UserID,
			AutoReconnect: true,
			Logger:        log,
		})
		session.Attach(rt)

		rt.OnReceiveMessage(func(msg linkup.SocketMessage) {
			m := msg.Message
			fmt.Printf("[%s] %s @ %s: %s\n",
				m.CreatedAt.Local().Format("15:04:05"),
				m.Sender.FirstName, m.ConversationID, m.Text)
		})
		rt.OnUserConnected(func(userID string) {
			fmt.Printf("+ %s is online\n", userID)
		})
		rt.OnUserDisconnected(func(userID string) {
			fmt.Printf("- %s went offline\n", userID)
		})
		rt.OnOnlineUsers(func(userIDs []string) {
			fmt.Printf("online: %s\n", strings.Join(userIDs, ", "))
		})
		rt.OnDisconnected(func(reason string) {
			fmt.Printf("disconnected: %s\n", reason)
		})

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if err := rt.Connect(ctx); err != nil {
			return err
		}
		fmt.Println("Connected. Press Ctrl-C to stop.")

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig

		session.Close()
		return rt.Disconnect()
	},
}
