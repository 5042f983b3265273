package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/tenantauth"
	"github.com/MrEthical07/tenantauth/mailer"
	"github.com/MrEthical07/tenantauth/store/pg"
)

func newAdminCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage companies, roles and permissions",
	}

	company := &cobra.Command{Use: "company", Short: "Manage companies"}
	company.AddCommand(
		&cobra.Command{
			Use:   "create NAME",
			Short: "Create a company",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(cmd.Context(), g, func(ctx context.Context, s *pg.Store) error {
					c, err := s.CreateCompany(ctx, args[0])
					if err != nil {
						return err
					}
					cmd.Println(c.ID)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List companies",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withStore(cmd.Context(), g, func(ctx context.Context, s *pg.Store) error {
					list, err := s.ListCompanies(ctx)
					if err != nil {
						return err
					}
					for _, c := range list {
						cmd.Printf("%s\t%s\n", c.ID, c.Name)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "delete ID",
			Short: "Delete a company",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(cmd.Context(), g, func(ctx context.Context, s *pg.Store) error {
					return s.DeleteCompany(ctx, args[0])
				})
			},
		},
	)

	var roleName string
	var tenantScoped bool
	roleCreate := &cobra.Command{
		Use:   "create ID",
		Short: "Create a role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), g, func(ctx context.Context, s *pg.Store) error {
				r, err := s.CreateRole(ctx, tenantauth.Role{ID: args[0], Name: roleName, TenantScoped: tenantScoped})
				if err != nil {
					return err
				}
				cmd.Println(r.ID)
				return nil
			})
		},
	}
	roleCreate.Flags().StringVar(&roleName, "name", "", "display name")
	roleCreate.Flags().BoolVar(&tenantScoped, "tenant-scoped", true, "users holding the role belong to a company")
	role := &cobra.Command{Use: "role", Short: "Manage roles"}
	role.AddCommand(roleCreate)

	var description string
	permCreate := &cobra.Command{
		Use:   "create NAME",
		Short: "Define a permission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), g, func(ctx context.Context, s *pg.Store) error {
				return s.CreatePermission(ctx, args[0], description)
			})
		},
	}
	permCreate.Flags().StringVar(&description, "description", "", "what the permission allows")
	perm := &cobra.Command{Use: "permission", Short: "Manage permissions"}
	perm.AddCommand(
		permCreate,
		&cobra.Command{
			Use:   "delete NAME",
			Short: "Delete a permission that no role holds",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(cmd.Context(), g, func(ctx context.Context, s *pg.Store) error {
					return s.DeletePermission(ctx, args[0])
				})
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List permissions",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withStore(cmd.Context(), g, func(ctx context.Context, s *pg.Store) error {
					names, err := s.ListPermissions(ctx)
					if err != nil {
						return err
					}
					for _, n := range names {
						cmd.Println(n)
					}
					return nil
				})
			},
		},
	)

	user := &cobra.Command{Use: "user", Short: "Manage user accounts"}
	for _, active := range []bool{true, false} {
		use, short := "activate ID", "Allow a user to log in again"
		if !active {
			use, short = "deactivate ID", "Block a user and revoke all of its sessions"
		}
		user.AddCommand(&cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withEngine(cmd.Context(), g, func(ctx context.Context, e *tenantauth.Engine) error {
					return e.SetUserActive(ctx, args[0], active)
				})
			},
		})
	}

	cmd.AddCommand(
		company,
		role,
		perm,
		user,
		&cobra.Command{
			Use:   "grant ROLE PERMISSION",
			Short: "Link a permission to a role",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(cmd.Context(), g, func(ctx context.Context, s *pg.Store) error {
					return s.GrantPermission(ctx, args[0], args[1])
				})
			},
		},
		&cobra.Command{
			Use:   "revoke ROLE PERMISSION",
			Short: "Unlink a permission from a role",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(cmd.Context(), g, func(ctx context.Context, s *pg.Store) error {
					return s.RevokePermission(ctx, args[0], args[1])
				})
			},
		},
	)
	return cmd
}

// withEngine builds an engine on the configured database and Redis for
// commands that change session state. Codes are never delivered from here.
func withEngine(ctx context.Context, g *globalFlags, fn func(context.Context, *tenantauth.Engine) error) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	if cfg.Database.DSN == "" {
		return errors.New("database.dsn is required (env AUTH_DATABASE_DSN)")
	}
	engCfg, err := cfg.EngineConfig()
	if err != nil {
		return err
	}
	log, err := cfg.Logger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	store, err := pg.Open(cfg.Database.DSN, cfg.PoolConfig())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	sink := tenantauth.NewZapSink(log)
	if cfg.Database.AuditToDB {
		sink = tenantauth.MultiSink{sink, tenantauth.TolerantSink(store.AuditWriter(), log)}
	}
	engine, err := tenantauth.New().
		WithConfig(engCfg).
		WithRedis(rdb).
		WithCredentialStore(store).
		WithNotifier(mailer.NewLogNotifier(log)).
		WithLogger(log).
		WithAuditSink(sink).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()
	return fn(ctx, engine)
}
