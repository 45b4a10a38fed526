package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

type turnReply struct {
	Assistant string `json:"assistant"`
	Attempts  int    `json:"attempts"`
	Judge     struct {
		Verdict  string   `json:"verdict"`
		Reason   string   `json:"reason"`
		RiskTags []string `json:"riskTags"`
	} `json:"judge"`
	ToolEvents []struct {
		ToolID string `json:"toolId"`
		Event  string `json:"event"`
		Title  string `json:"title"`
	} `json:"toolEvents"`
}

func (c *cli) chatCmd() *cobra.Command {
	var sessionID, message string
	var raw bool
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Send one message and print the reply",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := c.call("POST", "/api/chat/send", nil, map[string]string{
				"sessionId": sessionID,
				"message":   message,
			})
			if err != nil {
				return err
			}
			if raw {
				return c.print(data)
			}
			var r turnReply
			if err := json.Unmarshal(data, &r); err != nil {
				return fmt.Errorf("decode reply: %w", err)
			}
			_, _ = fmt.Fprintln(c.out, r.Assistant)
			line := fmt.Sprintf("[judge=%s attempts=%d", r.Judge.Verdict, r.Attempts)
			if len(r.Judge.RiskTags) > 0 {
				line += " risk=" + strings.Join(r.Judge.RiskTags, ",")
			}
			for _, ev := range r.ToolEvents {
				line += fmt.Sprintf(" %s:%s(%s)", ev.ToolID, ev.Event, ev.Title)
			}
			_, _ = fmt.Fprintln(c.out, line+"]")
			return nil
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session ID (required)")
	cmd.Flags().StringVarP(&message, "message", "m", "", "Message text (required)")
	cmd.Flags().BoolVar(&raw, "json", false, "Print the full turn result as JSON")
	_ = cmd.MarkFlagRequired("session")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}
