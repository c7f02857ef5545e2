// Package cli is the operator command line for inspecting campaigns.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Mutter0815/LaunchPro/internal/campaign"
	"github.com/Mutter0815/LaunchPro/internal/store"
	"github.com/Mutter0815/LaunchPro/pkg/config"
	"github.com/Mutter0815/LaunchPro/pkg/db"
)

// Store is the read side the commands use.
type Store interface {
	GetCampaign(ctx context.Context, id string) (*campaign.Campaign, error)
	ListCampaigns(ctx context.Context, status campaign.Status, limit, offset int) ([]campaign.CampaignListItem, error)
	ListAudit(ctx context.Context, id string) ([]campaign.AuditEntry, error)
}

type migrator interface {
	Migrate(ctx context.Context) error
}

// commandContext opens the store on first use so help and flag errors
// never touch the database.
type commandContext struct {
	open    func() (Store, error)
	st      Store
	closer  io.Closer
	jsonOut bool
}

func (c *commandContext) store() (Store, error) {
	if c.st != nil {
		return c.st, nil
	}
	st, err := c.open()
	if err != nil {
		return nil, err
	}
	c.st = st
	return st, nil
}

func (c *commandContext) close() {
	if c.closer != nil {
		_ = c.closer.Close()
	}
}

func openPostgres(c *commandContext) func() (Store, error) {
	return func() (Store, error) {
		config.MustLoadCLI()
		sqlDB, err := db.Open(config.CLI.DBDSN)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		c.closer = sqlDB
		return store.New(sqlDB), nil
	}
}

// NewRootCommand builds the launchctl tree. A nil st means Postgres from
// DB_DSN.
func NewRootCommand(st Store) *cobra.Command {
	ctx := &commandContext{st: st}
	if st == nil {
		ctx.open = openPostgres(ctx)
	}

	root := &cobra.Command{
		Use:           "launchctl",
		Short:         "Inspect and check campaign launches",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			ctx.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().BoolVar(&ctx.jsonOut, "json", false, "Print JSON instead of tables")

	root.AddCommand(newStatusCommand(ctx))
	root.AddCommand(newListCommand(ctx))
	root.AddCommand(newAuditCommand(ctx))
	root.AddCommand(newMigrateCommand(ctx))
	return root
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var _ migrator = (*store.Store)(nil)
