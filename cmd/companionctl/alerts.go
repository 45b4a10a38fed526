package main

import (
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

func (c *cli) alertsCmd() *cobra.Command {
	alertsCmd := &cobra.Command{Use: "alerts", Short: "Follow-up alerts"}

	var scope, sessionID, status string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List alerts, optionally filtered",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.get("/api/alerts", map[string]string{"scope": scope, "sessionId": sessionID, "status": status})
		},
	}
	listCmd.Flags().StringVar(&scope, "scope", "", "global or session")
	listCmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session ID")
	listCmd.Flags().StringVar(&status, "status", "", "active, done or cancelled")
	alertsCmd.AddCommand(listCmd)

	var dueSession string
	var dueLimit int
	dueCmd := &cobra.Command{
		Use:   "due",
		Short: "List active alerts that are due now",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := map[string]string{"sessionId": dueSession}
			if dueLimit > 0 {
				q["limit"] = strconv.Itoa(dueLimit)
			}
			return c.get("/api/alerts/due", q)
		},
	}
	dueCmd.Flags().StringVarP(&dueSession, "session", "s", "", "Session ID")
	dueCmd.Flags().IntVarP(&dueLimit, "limit", "l", 0, "Maximum alerts to return")
	alertsCmd.AddCommand(dueCmd)

	for _, action := range []struct{ use, short string }{
		{"done", "Mark an active alert done"},
		{"cancel", "Cancel an active alert"},
	} {
		action := action
		alertsCmd.AddCommand(&cobra.Command{
			Use:   action.use + " ALERT_ID",
			Short: action.short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				data, err := c.call("POST", "/api/alerts/"+url.PathEscape(args[0])+"/"+action.use, nil, nil)
				if err != nil {
					return err
				}
				return c.print(data)
			},
		})
	}
	return alertsCmd
}
