package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"infrasite/internal/auth"
	"infrasite/internal/database"
)

var (
	createUserName string
	createUserRole string
)

var createUserCmd = &cobra.Command{
	Use:   "create-user",
	Short: "Create a CMS account with a one-time password",
	Long: `Create a CMS account. A random password is printed once; the user must
change it on first login.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, db, err := openDatabase()
		if err != nil {
			return err
		}
		if err := database.Migrate(db); err != nil {
			return err
		}
		return createUser(db, cmd.OutOrStdout(), createUserName, createUserRole)
	},
}

func init() {
	createUserCmd.Flags().StringVar(&createUserName, "username", "", "login name (required)")
	createUserCmd.Flags().StringVar(&createUserRole, "role", database.RoleAdmin, "admin or editor")
	_ = createUserCmd.MarkFlagRequired("username")
}

func createUser(db *gorm.DB, out io.Writer, username, role string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || len(username) > 64 {
		return errors.New("username must be 1-64 characters")
	}
	if role != database.RoleAdmin && role != database.RoleEditor {
		return fmt.Errorf("unknown role %q", role)
	}

	password, err := auth.GenerateRandomPassword(24)
	if err != nil {
		return err
	}
	hashed, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	user := database.User{
		Username:           username,
		PasswordHash:       hashed,
		Role:               role,
		MustChangePassword: true,
	}
	if err := db.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("user %q already exists", username)
		}
		return fmt.Errorf("create user: %w", err)
	}

	fmt.Fprintf(out, "created %s account (password change required on first login)\n", role)
	fmt.Fprintf(out, "username: %s\n", username)
	fmt.Fprintf(out, "password: %s\n", password)
	fmt.Fprintln(out, "the password is shown only once")
	return nil
}
