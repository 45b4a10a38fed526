package main

import (
	"github.com/spf13/cobra"
)

func (c *cli) toolsCmd() *cobra.Command {
	toolsCmd := &cobra.Command{Use: "tools", Short: "Tool registry and settings"}

	toolsCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.get("/api/tools", nil)
		},
	})

	var scope, sessionID string
	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "Show stored settings and the effective enabled map",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.get("/api/tools/settings", map[string]string{"scope": scope, "sessionId": sessionID})
		},
	}
	settingsCmd.Flags().StringVar(&scope, "scope", "global", "global or session")
	settingsCmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session ID (session scope)")
	toolsCmd.AddCommand(settingsCmd)

	var toolID, setSession string
	var enabled bool
	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Enable or disable a tool globally or for one session",
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"scope": "global", "toolId": toolID, "enabled": enabled}
			if setSession != "" {
				body["scope"] = "session"
				body["sessionId"] = setSession
			}
			data, err := c.call("PUT", "/api/tools/settings", nil, body)
			if err != nil {
				return err
			}
			return c.print(data)
		},
	}
	setCmd.Flags().StringVarP(&toolID, "tool", "t", "", "Tool ID (required)")
	setCmd.Flags().BoolVar(&enabled, "enabled", true, "Whether the tool runs")
	setCmd.Flags().StringVarP(&setSession, "session", "s", "", "Apply to this session only")
	_ = setCmd.MarkFlagRequired("tool")
	toolsCmd.AddCommand(setCmd)
	return toolsCmd
}
