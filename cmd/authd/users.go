package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/tenantauth"
	"github.com/MrEthical07/tenantauth/password"
	"github.com/MrEthical07/tenantauth/store/pg"
)

func newHashPasswordCmd() *cobra.Command {
	var skipPolicy bool
	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Read a password from stdin and print its argon2id hash",
		RunE: func(cmd *cobra.Command, _ []string) error {
			plain, err := readPassword(cmd.InOrStdin())
			if err != nil {
				return err
			}
			cfg := tenantauth.DefaultConfig()
			if !skipPolicy {
				if err := cfg.Password.Policy.Check(plain); err != nil {
					return err
				}
			}
			h, err := newHasher(cfg)
			if err != nil {
				return err
			}
			hash, err := h.Hash(plain)
			if err != nil {
				return err
			}
			cmd.Println(hash)
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipPolicy, "skip-policy", false, "hash even if the password fails the strength policy")
	return cmd
}

func newCreateUserCmd(g *globalFlags) *cobra.Command {
	var email, roleID, companyID string
	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create a user; the password is read from stdin",
		Example: `  printf 'Valid123!' | authd create-user --email root@example.com --role supervisor
  printf 'Valid123!' | authd create-user --email admin@acme.test --role admin --company <id>`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			email = strings.ToLower(strings.TrimSpace(email))
			if email == "" || roleID == "" {
				return errors.New("--email and --role are required")
			}
			plain, err := readPassword(cmd.InOrStdin())
			if err != nil {
				return err
			}

			return withStore(cmd.Context(), g, func(ctx context.Context, s *pg.Store) error {
				cfg := tenantauth.DefaultConfig()
				if err := cfg.Password.Policy.Check(plain); err != nil {
					return fmt.Errorf("%w: %v", tenantauth.ErrWeakPassword, err)
				}
				h, err := newHasher(cfg)
				if err != nil {
					return err
				}
				hash, err := h.Hash(plain)
				if err != nil {
					return err
				}
				rec, err := s.CreateUser(ctx, tenantauth.CreateUserInput{
					UserID:       uuid.NewString(),
					Email:        email,
					PasswordHash: hash,
					RoleID:       roleID,
					CompanyID:    companyID,
				})
				if err != nil {
					return err
				}
				cmd.Printf("created user %s (%s)\n", rec.UserID, rec.Email)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "login email")
	cmd.Flags().StringVar(&roleID, "role", "", "role id")
	cmd.Flags().StringVar(&companyID, "company", "", "company id; required for tenant-scoped roles, forbidden otherwise")
	return cmd
}

func newHasher(cfg tenantauth.Config) (*password.Hasher, error) {
	return password.NewHasher(password.Config{
		Memory:           cfg.Password.Memory,
		Time:             cfg.Password.Time,
		Parallelism:      cfg.Password.Parallelism,
		SaltLength:       cfg.Password.SaltLength,
		KeyLength:        cfg.Password.KeyLength,
		MaxPasswordBytes: cfg.Password.MaxPasswordBytes,
	})
}

// readPassword takes the first line of r without its line ending.
func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("empty password on stdin")
	}
	return line, nil
}
