package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"djchat/backend/internal/auth"
	"djchat/backend/internal/chathub"
	"djchat/backend/internal/models"
	"djchat/backend/internal/transport"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var conversationCmd = &cobra.Command{
	Use:   "conversation",
	Short: "Manage conversations",
}

var conversationCreateCmd = &cobra.Command{
	Use:   "create [user1] [user2]",
	Short: "Open a conversation between two users",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, store, err := openStore()
		if err != nil {
			return err
		}
		conv, err := store.CreateConversation(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Conversation %s opened between %s and %s.\n", conv.ConversationID, conv.User1ID, conv.User2ID)
		return nil
	},
}

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [conversation-id]",
	Short: "Print the newest messages of a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, store, err := openStore()
		if err != nil {
			return err
		}
		limit := historyLimit
		if limit <= 0 {
			limit = cfg.Chat.HistoryLimit
		}
		msgs, err := store.FetchHistory(cmd.Context(), args[0], limit)
		if err != nil {
			return err
		}
		printMessages(cmd.OutOrStdout(), msgs)
		return nil
	},
}

var (
	sendUser string
	sendWait time.Duration
)

var sendCmd = &cobra.Command{
	Use:   "send [conversation-id] [text]",
	Short: "Send a message through a chat session and wait for the store",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, store, err := openStore()
		if err != nil {
			return err
		}
		ok, err := store.IsParticipant(cmd.Context(), args[0], sendUser)
		if err != nil {
			return err
		}
		if !ok {
			return chathub.ErrForbidden
		}

		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer rdb.Close()

		session := chathub.NewSession(cfg.Chat, store, transport.NewRedisTransport(rdb), auth.StaticIdentity(sendUser))
		defer session.Close()
		if err := session.Open(cmd.Context(), args[0]); err != nil {
			return err
		}

		tempID, err := session.Send(args[1])
		if err != nil {
			return err
		}

		msg, err := awaitOutcome(cmd.Context(), session, tempID, sendWait)
		if err != nil {
			return err
		}
		msgs, err := session.Snapshot()
		if err != nil {
			return err
		}
		printMessages(cmd.OutOrStdout(), msgs)
		if msg.DeliveryState == models.StateFailed {
			v, _ := session.View()
			return fmt.Errorf("message not stored: %s", v.Error)
		}
		return nil
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(conversationCmd, historyCmd, sendCmd)
	conversationCmd.AddCommand(conversationCreateCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "number of messages (default from config)")
	sendCmd.Flags().StringVarP(&sendUser, "user", "u", "", "sending user id")
	sendCmd.Flags().DurationVar(&sendWait, "wait", 10*time.Second, "how long to wait for the store outcome")
	_ = sendCmd.MarkFlagRequired("user")
}

// awaitOutcome follows the session views until tempID leaves pending.
func awaitOutcome(ctx context.Context, s *chathub.Session, tempID string, wait time.Duration) (models.Message, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		select {
		case v, ok := <-s.Views():
			if !ok {
				return models.Message{}, chathub.ErrSessionClosed
			}
			for _, m := range v.Messages {
				if m.TempID == tempID && m.DeliveryState != models.StatePending {
					return m, nil
				}
			}
		case <-timer.C:
			return models.Message{}, errors.New("timed out waiting for the store")
		case <-ctx.Done():
			return models.Message{}, ctx.Err()
		}
	}
}

func printMessages(w io.Writer, msgs []models.Message) {
	if len(msgs) == 0 {
		fmt.Fprintln(w, "No messages.")
		return
	}
	for _, m := range msgs {
		fmt.Fprintf(w, "%s  %-10s %-36s %s\n", m.CreatedAt.Format(time.RFC3339), m.DeliveryState, m.SenderID, m.Content)
	}
}
