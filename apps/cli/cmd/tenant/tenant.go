package tenantcmd

import (
	"context"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/zenGate-Global/palmyra-tenancy/apps/cli/wiring"
	"github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/service"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

// Tenants is the tenant lifecycle used by the commands.
type Tenants interface {
	Create(ctx context.Context, id string, data map[string]any) (service.Tenant, error)
	CreateWithDomain(ctx context.Context, id, domain string, data map[string]any) (service.Tenant, service.Domain, error)
	Find(ctx context.Context, id string) (service.Tenant, error)
	List(ctx context.Context, opts service.ListOptions) ([]service.Tenant, error)
	Rename(ctx context.Context, oldID, newID string) (service.Tenant, error)
	Delete(ctx context.Context, id string) error
}

// Inventory reports table row counts of a tenant database.
type Inventory interface {
	Inventory(ctx context.Context, tenantID string) (map[string]int64, error)
}

// Backend is what the tenant commands use from an opened database.
type Backend struct {
	Tenants   Tenants
	Databases Inventory
	Naming    tenant.Config
	Close     func()
}

// Opener connects to the named database connection.
type Opener func(ctx context.Context, database string) (*Backend, error)

// Command groups tenant-related helpers.
func Command() *cobra.Command {
	return NewCommand(openBackend)
}

// NewCommand builds the tenant command tree on open.
func NewCommand(open Opener) *cobra.Command {
	var database string

	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Tenant utilities (create/list/rename/delete/inspect)",
	}
	cmd.PersistentFlags().StringVar(&database, "database", "", "Named database connection (see DB_CONNECTIONS)")

	withBackend := func(fn func(cmd *cobra.Command, args []string, b *Backend) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			b, err := open(cmd.Context(), database)
			if err != nil {
				return err
			}
			defer b.Close()
			return fn(cmd, args, b)
		}
	}

	cmd.AddCommand(createCommand(withBackend))
	cmd.AddCommand(listCommand(withBackend))
	cmd.AddCommand(renameCommand(withBackend))
	cmd.AddCommand(deleteCommand(withBackend))
	cmd.AddCommand(inspectCommand(withBackend))
	return cmd
}

type runner func(fn func(cmd *cobra.Command, args []string, b *Backend) error) func(*cobra.Command, []string) error

func openBackend(ctx context.Context, database string) (*Backend, error) {
	env, err := wiring.Open(ctx, database)
	if err != nil {
		return nil, err
	}
	return &Backend{
		Tenants:   env.Tenants,
		Databases: env.Provisioner,
		Naming:    env.Config.Tenancy,
		Close:     env.Close,
	}, nil
}

func createCommand(run runner) *cobra.Command {
	var (
		subdomain string
		data      map[string]string
	)

	c := &cobra.Command{
		Use:   "create <tenant-id>",
		Short: "Create a tenant and provision its database",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(cmd *cobra.Command, args []string, b *Backend) error {
			ctx := cmd.Context()
			attrs := make(map[string]any, len(data))
			for k, v := range data {
				attrs[k] = v
			}

			if subdomain == "" {
				t, err := b.Tenants.Create(ctx, args[0], attrs)
				if err != nil {
					return fmt.Errorf("create tenant: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Tenant created: %s (database %s)\n", t.ID, t.DatabaseName)
				return nil
			}

			if err := tenant.ValidateSubdomain(subdomain); err != nil {
				return err
			}
			t, d, err := b.Tenants.CreateWithDomain(ctx, args[0], b.Naming.DomainFor(subdomain), attrs)
			if err != nil {
				return fmt.Errorf("create tenant: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Tenant created: %s (database %s, domain %s)\n", t.ID, t.DatabaseName, d.Domain)
			return nil
		}),
	}

	c.Flags().StringVar(&subdomain, "subdomain", "", "Bind <subdomain>.<base domain> to the tenant")
	c.Flags().StringToStringVar(&data, "data", nil, "Tenant attributes (key=value, repeatable)")
	return c
}

func listCommand(run runner) *cobra.Command {
	var (
		prefix string
		opts   service.ListOptions
	)

	c := &cobra.Command{
		Use:   "list",
		Short: "List tenants ordered by id",
		Args:  cobra.NoArgs,
		RunE: run(func(cmd *cobra.Command, args []string, b *Backend) error {
			if prefix != "" {
				opts.IDPrefix = &prefix
			}
			items, err := b.Tenants.List(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("list tenants: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tDATABASE\tCREATED")
			for _, t := range items {
				fmt.Fprintf(w, "%s\t%s\t%s\n", t.ID, t.DatabaseName, t.CreatedAt.UTC().Format(time.RFC3339))
			}
			return w.Flush()
		}),
	}

	c.Flags().StringVar(&prefix, "prefix", "", "Only tenants whose id starts with prefix")
	c.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of tenants (0 lists all)")
	c.Flags().IntVar(&opts.Offset, "offset", 0, "Tenants to skip")
	return c
}

func renameCommand(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <old-id> <new-id>",
		Short: "Rename a tenant together with its database and domain links",
		Args:  cobra.ExactArgs(2),
		RunE: run(func(cmd *cobra.Command, args []string, b *Backend) error {
			t, err := b.Tenants.Rename(cmd.Context(), args[0], args[1])
			if err != nil {
				return fmt.Errorf("rename tenant: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Tenant renamed: %s -> %s (database %s)\n", args[0], t.ID, t.DatabaseName)
			return nil
		}),
	}
}

func deleteCommand(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <tenant-id>",
		Short: "Drop a tenant database and remove the tenant from the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(cmd *cobra.Command, args []string, b *Backend) error {
			if err := b.Tenants.Delete(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("delete tenant: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Tenant deleted: %s\n", args[0])
			return nil
		}),
	}
}

func inspectCommand(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <tenant-id>",
		Short: "Show a tenant and the row count of every table in its database",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(cmd *cobra.Command, args []string, b *Backend) error {
			ctx := cmd.Context()
			t, err := b.Tenants.Find(ctx, args[0])
			if err != nil {
				return fmt.Errorf("find tenant: %w", err)
			}
			counts, err := b.Databases.Inventory(ctx, t.ID)
			if err != nil {
				return fmt.Errorf("inspect database: %w", err)
			}

			tables := make([]string, 0, len(counts))
			for table := range counts {
				tables = append(tables, table)
			}
			sort.Strings(tables)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Tenant:   %s\nDatabase: %s\n", t.ID, t.DatabaseName)
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TABLE\tROWS")
			for _, table := range tables {
				fmt.Fprintf(w, "%s\t%d\n", table, counts[table])
			}
			return w.Flush()
		}),
	}
}
