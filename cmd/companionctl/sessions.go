package main

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

func (c *cli) healthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Show service and model backend health",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.get("/api/health", nil); err != nil {
				return err
			}
			return c.get("/api/backend/status", nil)
		},
	}
	return cmd
}

func (c *cli) modelsCmd() *cobra.Command {
	modelsCmd := &cobra.Command{Use: "models", Short: "Model backend models"}
	modelsCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List models installed on the backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.get("/api/backend/tags", nil)
		},
	})
	modelsCmd.AddCommand(&cobra.Command{
		Use:   "pull",
		Short: "Start downloading the configured model",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := c.call("POST", "/api/backend/pull", nil, nil)
			if err != nil {
				return err
			}
			return c.print(data)
		},
	})
	return modelsCmd
}

func (c *cli) personasCmd() *cobra.Command {
	personasCmd := &cobra.Command{Use: "personas", Short: "Persona catalog"}
	personasCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List loaded personas",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.get("/api/personas", nil)
		},
	})
	personasCmd.AddCommand(&cobra.Command{
		Use:   "get PERSONA_ID",
		Short: "Show one persona",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.get("/api/personas/"+url.PathEscape(args[0]), nil)
		},
	})
	return personasCmd
}

func (c *cli) sessionsCmd() *cobra.Command {
	sessionsCmd := &cobra.Command{Use: "sessions", Aliases: []string{"session"}, Short: "Session operations"}

	var personaID string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a session bound to a persona",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := c.call("POST", "/api/sessions", nil, map[string]string{"personaId": personaID})
			if err != nil {
				return err
			}
			return c.print(data)
		},
	}
	createCmd.Flags().StringVarP(&personaID, "persona", "p", "", "Persona ID (required)")
	_ = createCmd.MarkFlagRequired("persona")
	sessionsCmd.AddCommand(createCmd)

	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.get("/api/sessions", limitQuery(limit))
		},
	}
	listCmd.Flags().IntVarP(&limit, "limit", "l", 0, "Maximum sessions to return")
	sessionsCmd.AddCommand(listCmd)

	sessionsCmd.AddCommand(&cobra.Command{
		Use:   "get SESSION_ID",
		Short: "Show a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.get(sessionPath(args[0], ""), nil)
		},
	})

	var msgLimit int
	messagesCmd := &cobra.Command{
		Use:   "messages SESSION_ID",
		Short: "List messages of a session in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.get(sessionPath(args[0], "/messages"), limitQuery(msgLimit))
		},
	}
	messagesCmd.Flags().IntVarP(&msgLimit, "limit", "l", 0, "Maximum messages to return")
	sessionsCmd.AddCommand(messagesCmd)

	sessionsCmd.AddCommand(&cobra.Command{
		Use:   "summary SESSION_ID",
		Short: "Show the rolling summary and cadence state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.get(sessionPath(args[0], "/summary"), nil)
		},
	})
	return sessionsCmd
}

// summaryCmd is a top-level shortcut for "sessions summary".
func (c *cli) summaryCmd() *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show the rolling summary of a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.get(sessionPath(sessionID, "/summary"), nil)
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session ID (required)")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func sessionPath(id, suffix string) string {
	return fmt.Sprintf("/api/sessions/%s%s", url.PathEscape(id), suffix)
}

func limitQuery(limit int) map[string]string {
	if limit <= 0 {
		return nil
	}
	return map[string]string{"limit": strconv.Itoa(limit)}
}
