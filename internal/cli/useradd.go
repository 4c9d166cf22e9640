package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"file-share/internal/server"
)

// newUserAddCmd provisions an account. The service itself has no
// registration endpoint; this is the only way users are created.
func newUserAddCmd() *cobra.Command {
	var role string

	cmd := &cobra.Command{
		Use:   "useradd <username>",
		Short: "Create a user account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loadEnv()

			username := strings.TrimSpace(args[0])
			if username == "" {
				return fmt.Errorf("username must not be empty")
			}
			if role != server.RoleAdmin && role != server.RoleUser {
				return fmt.Errorf("role must be %q or %q", server.RoleAdmin, server.RoleUser)
			}

			password, err := promptPassword()
			if err != nil {
				return err
			}

			cfg, err := openDatabase()
			if err != nil {
				return err
			}
			defer func() { _ = cfg.DB.Close() }()

			hash, err := server.HashPassword(password)
			if err != nil {
				return err
			}

			user := &server.User{
				ID:           uuid.NewString(),
				Username:     username,
				PasswordHash: hash,
				Role:         role,
				CreatedAt:    time.Now().UTC(),
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := cfg.Users.Create(ctx, user); err != nil {
				return fmt.Errorf("create user: %w", err)
			}

			fmt.Printf("created %s user %q (%s)\n", user.Role, user.Username, user.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", server.RoleUser, "account role (admin or user)")
	return cmd
}

func promptPassword() (string, error) {
	fmt.Print("Password: ")
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", err
	}
	if len(pw) == 0 {
		return "", fmt.Errorf("password must not be empty")
	}

	fmt.Print("Confirm password: ")
	confirm, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", err
	}
	if string(pw) != string(confirm) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(pw), nil
}
