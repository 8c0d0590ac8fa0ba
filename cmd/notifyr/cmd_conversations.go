package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/notifyr/internal/types"
)

func init() {
	rootCmd.AddCommand(conversationsCmd)
	conversationsCmd.AddCommand(conversationsListCmd, conversationsMessagesCmd)
}

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"conv"},
	Short:   "Inspect conversations on a running daemon",
}

var conversationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		base := "http://" + cfg.HTTP.Listen

		var conversations []types.Conversation
		if err := apiGet(base+"/api/conversations", &conversations); err != nil {
			return err
		}

		for _, conv := range conversations {
			fmt.Fprintf(os.Stdout, "%-24s %-10s unread=%-3d %s  %q\n",
				conv.DisplayName, conv.Platform, conv.UnreadCount,
				conv.LastMessageTime.Format(time.RFC3339), conv.LastMessageContent)
		}
		return nil
	},
}

var conversationsMessagesCmd = &cobra.Command{
	Use:   "messages <thread-key>",
	Short: "List a conversation's messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		base := "http://" + cfg.HTTP.Listen

		var messages []types.Message
		path := "/api/conversations/" + url.PathEscape(args[0]) + "/messages"
		if err := apiGet(base+path, &messages); err != nil {
			return err
		}

		for _, msg := range messages {
			fmt.Fprintf(os.Stdout, "%s %-8s %-16s %q", msg.Timestamp.Format(time.RFC3339), msg.Direction, msg.SenderName, msg.Content)
			if msg.Reply.State != types.ReplyAbsent {
				fmt.Fprintf(os.Stdout, "  [reply %s]", msg.Reply.State)
			}
			fmt.Fprintln(os.Stdout)
		}
		return nil
	},
}

func apiGet(url string, out any) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("is the daemon running? %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("daemon returned %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
