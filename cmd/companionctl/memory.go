package main

import (
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

func (c *cli) memoryCmd() *cobra.Command {
	memoryCmd := &cobra.Command{Use: "memory", Short: "Long-term memory items"}

	var scope, sessionID string
	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List memory items in a scope",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := map[string]string{"scope": scope, "sessionId": sessionID}
			if limit > 0 {
				q["limit"] = strconv.Itoa(limit)
			}
			return c.get("/api/memory", q)
		},
	}
	listCmd.Flags().StringVar(&scope, "scope", "global", "global or session")
	listCmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session ID (session scope)")
	listCmd.Flags().IntVarP(&limit, "limit", "l", 0, "Maximum items to return")
	memoryCmd.AddCommand(listCmd)

	var setScope, setSession, key, value string
	var confidence float64
	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Create or replace a memory item by key",
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"scope": setScope, "key": key, "value": value}
			if setSession != "" {
				body["sessionId"] = setSession
			}
			if cmd.Flags().Changed("confidence") {
				body["confidence"] = confidence
			}
			data, err := c.call("POST", "/api/memory", nil, body)
			if err != nil {
				return err
			}
			return c.print(data)
		},
	}
	setCmd.Flags().StringVar(&setScope, "scope", "global", "global or session")
	setCmd.Flags().StringVarP(&setSession, "session", "s", "", "Session ID (session scope)")
	setCmd.Flags().StringVarP(&key, "key", "k", "", "Memory key (required)")
	setCmd.Flags().StringVarP(&value, "value", "v", "", "Memory value (required)")
	setCmd.Flags().Float64VarP(&confidence, "confidence", "c", 0.8, "Confidence in [0,1]")
	_ = setCmd.MarkFlagRequired("key")
	_ = setCmd.MarkFlagRequired("value")
	memoryCmd.AddCommand(setCmd)

	memoryCmd.AddCommand(&cobra.Command{
		Use:   "delete ITEM_ID",
		Short: "Delete a memory item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := c.call("DELETE", "/api/memory/"+url.PathEscape(args[0]), nil, nil)
			return err
		},
	})
	return memoryCmd
}
