package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var notifySubscriberID int64

var notifyCmd = &cobra.Command{
	Use:   "test-notify",
	Short: "Send a test notification to one subscriber",
	RunE: func(cmd *cobra.Command, args []string) error {
		if notifySubscriberID == 0 {
			return fmt.Errorf("--subscriber must be provided")
		}
		return getApp().TestNotify(cmd.Context(), notifySubscriberID)
	},
}

func init() {
	notifyCmd.Flags().Int64Var(&notifySubscriberID, "subscriber", 0, "Subscriber ID to notify")
}
