package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/tenantauth/store/pg"
)

func newMigrateCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres schema",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withStore(cmd.Context(), g, func(ctx context.Context, s *pg.Store) error {
					applied, err := s.Migrate(ctx)
					if err != nil {
						return err
					}
					if len(applied) == 0 {
						cmd.Println("schema up to date")
					}
					for _, v := range applied {
						cmd.Println("applied", v)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the latest migration",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withStore(cmd.Context(), g, func(ctx context.Context, s *pg.Store) error {
					v, err := s.Rollback(ctx)
					if err != nil {
						return err
					}
					if v == "" {
						cmd.Println("nothing to roll back")
						return nil
					}
					cmd.Println("rolled back", v)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "List embedded migrations and whether they are applied",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withStore(cmd.Context(), g, func(ctx context.Context, s *pg.Store) error {
					applied, err := s.AppliedMigrations(ctx)
					if err != nil {
						return err
					}
					done := make(map[string]bool, len(applied))
					for _, v := range applied {
						done[v] = true
					}
					all, err := pg.Migrations()
					if err != nil {
						return err
					}
					for _, m := range all {
						state := "pending"
						if done[m.Version] {
							state = "applied"
						}
						cmd.Printf("%-8s %s\n", state, m.Version)
					}
					return nil
				})
			},
		},
	)
	return cmd
}

// withStore opens the configured database for one command.
func withStore(ctx context.Context, g *globalFlags, fn func(context.Context, *pg.Store) error) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	if cfg.Database.DSN == "" {
		return errors.New("database.dsn is required (env AUTH_DATABASE_DSN)")
	}
	s, err := pg.Open(cfg.Database.DSN, cfg.PoolConfig())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer s.Close()
	return fn(ctx, s)
}
