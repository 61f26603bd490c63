package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/alecgard/teamhub/internal/config"
	"github.com/alecgard/teamhub/internal/user"
)

var (
	seedEmail    string
	seedName     string
	seedPassword string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the first admin account",
	Long:  "Registers an account and elevates it to admin. Admin is never derived from team relationships, so the first one has to be created here.",
	RunE:  runSeed,
}

func init() {
	seedCmd.Flags().StringVar(&seedEmail, "email", "admin@teamhub.local", "admin email")
	seedCmd.Flags().StringVar(&seedName, "name", "Administrator", "admin display name")
	seedCmd.Flags().StringVar(&seedPassword, "password", "", "admin password (default: $TEAMHUB_ADMIN_PASSWORD)")
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	password := seedPassword
	if password == "" {
		password = os.Getenv("TEAMHUB_ADMIN_PASSWORD")
	}
	if password == "" {
		return errors.New("a password is required: pass --password or set TEAMHUB_ADMIN_PASSWORD")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	a := newApp(cfg, pool, nil)

	u, err := a.users.Register(ctx, user.CreateUserInput{
		Email:    seedEmail,
		Name:     seedName,
		Password: password,
	})
	switch {
	case errors.Is(err, user.ErrEmailTaken):
		existing, lookupErr := a.userStore.GetByEmail(ctx, seedEmail)
		if lookupErr != nil {
			return fmt.Errorf("looking up %s: %w", seedEmail, lookupErr)
		}
		u = existing
		slog.Info("account already exists, elevating", "email", seedEmail)
	case err != nil:
		return fmt.Errorf("registering admin: %w", err)
	}

	if err := a.roles.Elevate(ctx, u.ID); err != nil {
		return fmt.Errorf("elevating admin: %w", err)
	}

	slog.Info("admin ready", "id", u.ID, "email", u.Email)
	fmt.Printf("\n=== Admin Seeded ===\n")
	fmt.Printf("Email:  %s\n", u.Email)
	fmt.Printf("ID:     %s\n", u.ID)
	fmt.Printf("\nLog in:\n")
	fmt.Printf("  curl -X POST http://localhost:%d/api/v1/auth/login -d '{\"email\":\"%s\",\"password\":\"...\"}'\n", cfg.Server.Port, u.Email)
	return nil
}
