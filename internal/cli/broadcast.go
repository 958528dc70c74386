package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	broadcastMessage  string
	broadcastLanguage string
)

var broadcastCmd = &cobra.Command{
	Use:   "broadcast",
	Short: "Send one message to all subscribed users",
	RunE: func(cmd *cobra.Command, args []string) error {
		if broadcastMessage == "" {
			return fmt.Errorf("--message must be provided")
		}
		return getApp().Broadcast(cmd.Context(), broadcastMessage, broadcastLanguage)
	},
}

func init() {
	broadcastCmd.Flags().StringVar(&broadcastMessage, "message", "", "Message text to broadcast")
	broadcastCmd.Flags().StringVar(&broadcastLanguage, "language", "", "Only send to subscribers with this language preference")
}
