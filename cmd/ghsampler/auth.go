package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"ghsampler/pkg/auth"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the GitHub token",
}

var authToken string

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store a GitHub token in the system keychain",
	RunE: func(cmd *cobra.Command, args []string) error {
		token := authToken
		if token == "" {
			fmt.Print("GitHub token: ")
			reader := bufio.NewReader(os.Stdin)
			line, err := reader.ReadString('\n')
			if err != nil {
				return fmt.Errorf("failed to read token: %w", err)
			}
			token = strings.TrimSpace(line)
		}

		if err := auth.NewManager().Save(token); err != nil {
			return err
		}
		fmt.Println("Token stored in system keychain.")
		return nil
	},
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show where the GitHub token is resolved from",
	RunE: func(cmd *cobra.Command, args []string) error {
		token, source, err := auth.NewManager().Token()
		if err != nil {
			return err
		}
		fmt.Printf("Token found (%s): %s\n", source, redact(token))
		return nil
	},
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the GitHub token from the system keychain",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := auth.NewManager().Delete(); err != nil {
			return err
		}
		fmt.Println("Token removed from system keychain.")
		return nil
	},
}

func redact(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + strings.Repeat("*", 8) + token[len(token)-4:]
}

func init() {
	authLoginCmd.Flags().StringVar(&authToken, "token", "", "token to store (prompted for if omitted)")

	authCmd.AddCommand(authLoginCmd, authStatusCmd, authLogoutCmd)
	rootCmd.AddCommand(authCmd)
}
