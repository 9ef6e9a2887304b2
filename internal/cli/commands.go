// Package cli provides the Cobra-based operator CLI for the orders service.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dejobratic/blogcommerce/internal/auth"
	"github.com/dejobratic/blogcommerce/internal/database"
	orderspostgres "github.com/dejobratic/blogcommerce/internal/orders/adapters/postgres"
	"github.com/dejobratic/blogcommerce/internal/orders/app/queries"
	"github.com/dejobratic/blogcommerce/internal/orders/domain"
	"github.com/dejobratic/blogcommerce/internal/orders/ports"
	"github.com/dejobratic/blogcommerce/internal/telemetry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewRootCommand builds the ordersctl command tree. Flags can also be set through
// environment variables (DATABASE_URL, JWT_SECRET, ...) or a config file.
func NewRootCommand() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:           "ordersctl",
		Short:         "Operator tooling for the orders service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cfg := v.GetString("config"); cfg != "" {
				v.SetConfigFile(cfg)
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("read config: %w", err)
				}
			}

			level, err := telemetry.ParseLevel(v.GetString("log-level"))
			if err != nil {
				return err
			}
			slog.SetDefault(telemetry.NewLogger(cmd.ErrOrStderr(), level, "ordersctl"))
			return nil
		},
	}

	root.PersistentFlags().String("config", "", "config file")
	root.PersistentFlags().String("log-level", "info", "log level")
	root.PersistentFlags().String("database-url", "", "postgres connection string")
	bind(v, root, "config", "log-level", "database-url")

	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root.AddCommand(newMigrateCommand(v), newTokenCommand(v), newSummaryCommand(v))
	return root
}

func bind(v *viper.Viper, cmd *cobra.Command, names ...string) {
	for _, name := range names {
		flag := cmd.PersistentFlags().Lookup(name)
		if flag == nil {
			flag = cmd.Flags().Lookup(name)
		}
		_ = v.BindPFlag(name, flag)
	}
}

func requireDatabaseURL(v *viper.Viper) (string, error) {
	url := v.GetString("database-url")
	if url == "" {
		return "", fmt.Errorf("database url required: pass --database-url or set DATABASE_URL")
	}
	return url, nil
}

func newMigrateCommand(v *viper.Viper) *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back schema migrations",
	}
	migrateCmd.PersistentFlags().String("migrations-path", "migrations", "directory holding the migration files")
	bind(v, migrateCmd, "migrations-path")

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := requireDatabaseURL(v)
			if err != nil {
				return err
			}
			start := time.Now()
			if err := database.RunMigrations(url, v.GetString("migrations-path")); err != nil {
				return err
			}
			slog.Info("migrations applied", "duration_ms", time.Since(start).Milliseconds())
			return nil
		},
	}

	var steps int
	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back applied migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps < 1 {
				return fmt.Errorf("--steps must be at least 1")
			}
			url, err := requireDatabaseURL(v)
			if err != nil {
				return err
			}
			if err := database.RollbackMigrations(url, v.GetString("migrations-path"), steps); err != nil {
				return err
			}
			slog.Info("migrations rolled back", "steps", steps)
			return nil
		},
	}
	downCmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	migrateCmd.AddCommand(upCmd, downCmd)
	return migrateCmd
}

func newTokenCommand(v *viper.Viper) *cobra.Command {
	var (
		userID int64
		role   string
	)

	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API token for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID <= 0 {
				return fmt.Errorf("--user-id must be positive")
			}
			r := auth.Role(strings.ToLower(role))
			if r != auth.RoleUser && r != auth.RoleAdmin {
				return fmt.Errorf("--role must be %s or %s", auth.RoleUser, auth.RoleAdmin)
			}

			tokens, err := auth.NewTokens(v.GetString("jwt-secret"), v.GetString("jwt-issuer"), v.GetDuration("jwt-ttl"))
			if err != nil {
				return err
			}
			token, err := tokens.Issue(userID, r)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	tokenCmd.Flags().Int64Var(&userID, "user-id", 0, "user id carried by the token")
	tokenCmd.Flags().StringVar(&role, "role", string(auth.RoleUser), "user or admin")
	tokenCmd.Flags().String("jwt-secret", "", "signing secret")
	tokenCmd.Flags().String("jwt-issuer", "blogcommerce", "token issuer")
	tokenCmd.Flags().Duration("jwt-ttl", 24*time.Hour, "token lifetime")
	bind(v, tokenCmd, "jwt-secret", "jwt-issuer", "jwt-ttl")

	return tokenCmd
}

func newSummaryCommand(v *viper.Viper) *cobra.Command {
	var asJSON bool

	summaryCmd := &cobra.Command{
		Use:   "summary",
		Short: "Print order count and revenue per status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := requireDatabaseURL(v)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			pool, err := database.NewPool(ctx, url)
			if err != nil {
				return err
			}
			defer pool.Close()

			summary, err := queries.NewStatusSummaryQueryHandler(orderspostgres.NewRepository(pool)).Handle(ctx)
			if err != nil {
				return err
			}
			return writeSummary(cmd.OutOrStdout(), summary, asJSON)
		},
	}
	summaryCmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")

	return summaryCmd
}

func writeSummary(out io.Writer, summary map[domain.OrderStatus]ports.StatusAggregate, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STATUS\tCOUNT\tTOTAL")
	for _, status := range domain.OrderStatuses {
		agg := summary[status]
		fmt.Fprintf(tw, "%s\t%d\t%s\n", status, agg.Count, agg.TotalAmount.StringFixed(2))
	}
	return tw.Flush()
}
