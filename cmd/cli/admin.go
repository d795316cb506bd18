package main

import (
	"fmt"
	"time"

	"github.com/orkutrevival/backend/internal/auth"
	"github.com/orkutrevival/backend/internal/config"
	"github.com/spf13/cobra"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Check administrators and issue admin tokens",
	Long: `Administrators are the addresses listed in ADMIN_EMAILS. These commands read
the same configuration as the server.`,
}

var adminCheckCmd = &cobra.Command{
	Use:   "check <email>",
	Short: "Report whether an email is an administrator",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		admins := auth.NewAdminRegistry(cfg.Auth.AdminEmails, cfg.Auth.AdminTOTPSecret)

		allowed, reason := admins.RequireAdmin(args[0])
		if output == "json" {
			return printJSON(map[string]interface{}{
				"email":             args[0],
				"is_admin":          allowed,
				"admins_configured": admins.Configured(),
				"second_factor":     admins.SecondFactorRequired(),
				"configured_admins": admins.Emails(),
				"reason":            reason,
			})
		}

		if allowed {
			fmt.Printf("%s is an administrator\n", args[0])
		} else {
			fmt.Printf("%s is not an administrator: %s\n", args[0], reason)
		}
		if !admins.Configured() {
			fmt.Println("Warning: ADMIN_EMAILS is empty")
		}
		return nil
	},
}

var adminTokenCmd = &cobra.Command{
	Use:   "token <email>",
	Short: "Issue an admin session token without the login endpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.Auth.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is not set")
		}

		admins := auth.NewAdminRegistry(cfg.Auth.AdminEmails, cfg.Auth.AdminTOTPSecret)
		if allowed, reason := admins.RequireAdmin(args[0]); !allowed {
			return fmt.Errorf("%s: %s", args[0], reason)
		}

		svc := auth.NewService([]byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL, admins)
		token, expiresAt, err := svc.GenerateAdminToken(args[0])
		if err != nil {
			return err
		}

		if output == "json" {
			return printJSON(map[string]interface{}{"token": token, "expires_at": expiresAt})
		}
		fmt.Println(token)
		fmt.Printf("Expires %s\n", expiresAt.Local().Format(time.RFC1123))
		return nil
	},
}

func init() {
	adminCmd.AddCommand(adminCheckCmd)
	adminCmd.AddCommand(adminTokenCmd)
}
