package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"careerquest/internal/config"
	"careerquest/internal/ledger"
	"careerquest/internal/store"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "questctl",
		Short:         "questctl - operator tool for the career quest ledger",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(adminCmd())
	rootCmd.AddCommand(eventCmd())
	rootCmd.AddCommand(codeCmd())
	rootCmd.AddCommand(ratingCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// env is the database plus ledger service a command works against.
type env struct {
	db     *store.DB
	ledger *ledger.Service
}

func open(ctx context.Context) (*env, error) {
	cfg := config.Load()
	if err := cfg.Validate(false); err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	db, err := store.NewDB(ctx, cfg.DatabaseURL, store.PoolConfig{
		MaxConns:         2,
		AcquireTimeout:   cfg.DBAcquireTimeout,
		StatementTimeout: cfg.DBStatementTimeout,
	})
	if err != nil {
		if db != nil {
			db.Close()
		}
		return nil, err
	}
	return &env{db: db, ledger: ledger.NewService(db, logger, cfg.RatingLimit)}, nil
}

func (e *env) Close() { e.db.Close() }

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()
			if err := store.Migrate(cmd.Context(), e.db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func adminCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "admin", Short: "Manage organizers"}
	cmd.AddCommand(&cobra.Command{
		Use:   "add [user-id]",
		Short: "Grant admin rights to a chat user id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("user id must be a number: %w", err)
			}
			e, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()
			if err := e.ledger.AddAdmin(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %d is an admin\n", id)
			return nil
		},
	})
	return cmd
}

func eventCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "event", Short: "Manage events"}
	cmd.AddCommand(&cobra.Command{
		Use:   "add [name]",
		Short: "Create an event",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()
			evt, err := e.ledger.AddEvent(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "event %d: %s\n", evt.ID, evt.Name)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List events, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()
			events, err := e.ledger.ListEvents(cmd.Context())
			if err != nil {
				return err
			}
			for _, evt := range events {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", evt.ID, evt.Name)
			}
			return nil
		},
	})
	return cmd
}

func codeCmd() *cobra.Command {
	var spend bool
	cmd := &cobra.Command{Use: "code", Short: "Manage redeemable codes"}

	add := &cobra.Command{
		Use:   "add [event-id] [code] [points]",
		Short: "Attach a code to an event",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			eventID, points, err := parseEventAndPoints(args[0], args[2])
			if err != nil {
				return err
			}
			e, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()
			code, err := e.ledger.AddCodeToEvent(cmd.Context(), eventID, args[1], points, !spend)
			if err != nil {
				return err
			}
			printCode(cmd, code)
			return nil
		},
	}
	gen := &cobra.Command{
		Use:   "gen [event-id] [points]",
		Short: "Attach a randomly generated code to an event",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			eventID, points, err := parseEventAndPoints(args[0], args[1])
			if err != nil {
				return err
			}
			e, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()
			code, err := e.ledger.GenerateCode(cmd.Context(), eventID, points, !spend)
			if err != nil {
				return err
			}
			printCode(cmd, code)
			return nil
		},
	}
	for _, c := range []*cobra.Command{add, gen} {
		c.Flags().BoolVar(&spend, "spend", false, "create a code that spends points instead of granting them")
		cmd.AddCommand(c)
	}
	return cmd
}

func ratingCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "rating",
		Short: "Print the leaderboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()
			entries, err := e.ledger.Leaderboard(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, r := range entries {
				fmt.Fprintf(cmd.OutOrStdout(), "%d. %s - %d\n", r.Position, r.Name, r.Balance)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum rows (0 = everyone)")
	return cmd
}

func parseEventAndPoints(eventArg, pointsArg string) (int64, int, error) {
	eventID, err := strconv.ParseInt(eventArg, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("event id must be a number: %w", err)
	}
	points, err := strconv.Atoi(pointsArg)
	if err != nil || points <= 0 {
		return 0, 0, fmt.Errorf("points must be a positive number")
	}
	return eventID, points, nil
}

func printCode(cmd *cobra.Command, c ledger.Code) {
	kind := "income"
	if !c.IsIncome {
		kind = "spend"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\tevent=%d\tpoints=%d\t%s\n", c.Text, c.EventID, c.Points, kind)
}
