package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Mutter0815/LaunchPro/internal/audit"
	"github.com/Mutter0815/LaunchPro/internal/campaign"
	"github.com/Mutter0815/LaunchPro/internal/orchestrator"
)

const queryTimeout = 10 * time.Second

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <campaign-id>",
		Short: "Show the launch state of a campaign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.store()
			if err != nil {
				return err
			}
			qctx, cancel := context.WithTimeout(cmd.Context(), queryTimeout)
			defer cancel()

			c, err := st.GetCampaign(qctx, args[0])
			if err != nil {
				return err
			}
			resp := orchestrator.Response(c)
			out := cmd.OutOrStdout()
			if ctx.jsonOut {
				return writeJSON(out, resp)
			}

			fmt.Fprintf(out, "Campaign:  %s (%s)\n", c.ID, c.Name)
			fmt.Fprintf(out, "Status:    %s\n", c.Status)
			if link := c.TrackingLink(); link != "" {
				fmt.Fprintf(out, "Link:      %s\n", link)
			}
			if c.ErrorDetail != nil {
				fmt.Fprintf(out, "Failure:   %s: %s\n", c.ErrorDetail.Stage, c.ErrorDetail.Message)
			}
			fmt.Fprintf(out, "Polls:     content %d, tracking %d\n", c.ContentPollAttempts, c.TrackingPollAttempts)

			rows := make([][]string, 0, len(c.Platforms))
			for _, spec := range c.Platforms {
				row := []string{string(spec.Platform), strconv.FormatInt(spec.Budget, 10), "pending", ""}
				for _, r := range resp.PlatformResults {
					if r.Platform != spec.Platform {
						continue
					}
					if r.Success {
						row[2], row[3] = "launched", r.ExternalCampaignID
					} else {
						row[2], row[3] = "failed", r.Error
					}
				}
				rows = append(rows, row)
			}
			fmt.Fprintln(out, renderTable([]string{"Platform", "Budget", "Result", "Detail"}, rows,
				[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft}))
			return nil
		},
	}
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var status string
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List campaigns, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter campaign.Status
			if status != "" {
				s, ok := campaign.ParseStatus(strings.ToUpper(status))
				if !ok {
					return fmt.Errorf("unknown status %q", status)
				}
				filter = s
			}
			st, err := ctx.store()
			if err != nil {
				return err
			}
			qctx, cancel := context.WithTimeout(cmd.Context(), queryTimeout)
			defer cancel()

			items, err := st.ListCampaigns(qctx, filter, limit, offset)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if ctx.jsonOut {
				return writeJSON(out, items)
			}
			rows := make([][]string, 0, len(items))
			for _, it := range items {
				rows = append(rows, []string{
					it.ID, it.Name, string(it.Status),
					strconv.Itoa(it.Launched) + "/" + strconv.Itoa(it.Platforms),
					strconv.Itoa(it.Failed),
					it.CreatedAt.Format(time.RFC3339),
				})
			}
			fmt.Fprintln(out, renderTable([]string{"ID", "Name", "Status", "Launched", "Failed", "Created"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft}))
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Only campaigns in this status")
	cmd.Flags().IntVar(&limit, "limit", 20, "Page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "Rows to skip")
	return cmd
}

// ErrAuditViolation is returned by `audit --check` when the trail breaks
// the transition graph.
var ErrAuditViolation = errors.New("audit trail violates the status graph")

func newAuditCommand(ctx *commandContext) *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "audit <campaign-id>",
		Short: "Print the audit trail of a campaign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.store()
			if err != nil {
				return err
			}
			qctx, cancel := context.WithTimeout(cmd.Context(), queryTimeout)
			defer cancel()

			if _, err := st.GetCampaign(qctx, args[0]); err != nil {
				return err
			}
			entries, err := st.ListAudit(qctx, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if ctx.jsonOut {
				if err := writeJSON(out, entries); err != nil {
					return err
				}
			} else {
				rows := make([][]string, 0, len(entries))
				for _, e := range entries {
					transition := ""
					if e.NewStatus != "" {
						transition = string(e.PreviousStatus) + " -> " + string(e.NewStatus)
						if e.PreviousStatus == "" {
							transition = string(e.NewStatus)
						}
					}
					flag := ""
					if e.IsError {
						flag = "!"
					}
					rows = append(rows, []string{e.Timestamp.Format(time.RFC3339), flag, e.Event, transition, e.Message})
				}
				fmt.Fprintln(out, renderTable([]string{"Time", "", "Event", "Transition", "Message"}, rows, nil))
			}

			if !check {
				return nil
			}
			if err := audit.CheckMonotonic(entries); err != nil {
				return fmt.Errorf("%w: %v", ErrAuditViolation, err)
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "audit trail ok")
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "Fail unless status changes follow the transition graph")
	return cmd
}

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.store()
			if err != nil {
				return err
			}
			m, ok := st.(migrator)
			if !ok {
				return errors.New("store does not support migrations")
			}
			mctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if err := m.Migrate(mctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
			return nil
		},
	}
}
