package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"sentiment-alerts/internal/app"
)

var (
	subscribeID       int64
	subscribePushTime string
	subscribeTimezone string
	subscribeLanguage string
	subscribeOff      bool
)

var subscribeCmd = &cobra.Command{
	Use:   "subscribe",
	Short: "Create or update a subscriber's notification schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		if subscribeID == 0 {
			return fmt.Errorf("--subscriber must be provided")
		}

		opts := app.SubscribeOptions{
			SubscriberID: subscribeID,
			PushTime:     subscribePushTime,
			Timezone:     subscribeTimezone,
			Language:     subscribeLanguage,
			Unsubscribe:  subscribeOff,
		}
		return getApp().UpsertSubscriber(cmd.Context(), opts)
	},
}

func init() {
	subscribeCmd.Flags().Int64Var(&subscribeID, "subscriber", 0, "Subscriber ID")
	subscribeCmd.Flags().StringVar(&subscribePushTime, "time", "", "Local push time, HH:MM (defaults to config)")
	subscribeCmd.Flags().StringVar(&subscribeTimezone, "timezone", "", "IANA timezone name (defaults to config)")
	subscribeCmd.Flags().StringVar(&subscribeLanguage, "language", "", "Message language preference")
	subscribeCmd.Flags().BoolVar(&subscribeOff, "off", false, "Unsubscribe instead of subscribe")
}
