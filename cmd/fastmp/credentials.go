package main

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/fightinglucida/FastMP/pkg/credentials"
	"github.com/fightinglucida/FastMP/pkg/fingerprint"
)

var credentialsCmd = &cobra.Command{
	Use:     "credentials",
	Aliases: []string{"creds"},
	Short:   "Manage stored platform credentials",
	Long: `Manage stored platform credentials.

Each QR login adds a credential to the pool. Sessions expire on the
platform side after a fixed validity window, and each one carries an
hourly request quota; the sync scheduler rotates across whatever is
available.`,
}

var credsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored credentials",
	RunE:  runCredsList,
}

var credsCurrentCmd = &cobra.Command{
	Use:   "current",
	Short: "Show the current credential",
	RunE:  runCredsCurrent,
}

var credsSwitchCmd = &cobra.Command{
	Use:   "switch <token>",
	Short: "Mark a credential as current",
	Args:  cobra.ExactArgs(1),
	RunE:  runCredsSwitch,
}

var credsRevokeCmd = &cobra.Command{
	Use:   "revoke <token>",
	Short: "Remove a credential and its stored cookies",
	Args:  cobra.ExactArgs(1),
	RunE:  runCredsRevoke,
}

var credsSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove expired credentials",
	RunE:  runCredsSweep,
}

var credsImportCmd = &cobra.Command{
	Use:   "import <token>",
	Short: "Import a session harvested outside the QR flow",
	Long: `Import a session harvested outside the QR flow.

You will be prompted for the session's cookie header; the value is
hidden as you type. The imported credential joins the pool like any
QR-established one.`,
	Args: cobra.ExactArgs(1),
	RunE: runCredsImport,
}

func init() {
	rootCmd.AddCommand(credentialsCmd)
	credentialsCmd.AddCommand(credsListCmd)
	credentialsCmd.AddCommand(credsCurrentCmd)
	credentialsCmd.AddCommand(credsSwitchCmd)
	credentialsCmd.AddCommand(credsRevokeCmd)
	credentialsCmd.AddCommand(credsSweepCmd)
	credentialsCmd.AddCommand(credsImportCmd)
}

func runCredsList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	views, err := a.manager.List(context.Background(), owner)
	if err != nil {
		return err
	}
	if len(views) == 0 {
		fmt.Println("No stored credentials. Use 'fastmp login' to add one.")
		return nil
	}

	for i, v := range views {
		printCredential(i+1, v)
	}
	return nil
}

func runCredsCurrent(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	view, err := a.manager.Current(context.Background(), owner)
	if err != nil {
		if stderrors.Is(err, credentials.ErrNotFound) {
			fmt.Println("No current credential. Use 'fastmp login' to add one.")
			return nil
		}
		return err
	}
	printCredential(0, view)
	return nil
}

func runCredsSwitch(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.manager.SetCurrent(context.Background(), owner, args[0]); err != nil {
		if stderrors.Is(err, credentials.ErrNotFound) {
			return fmt.Errorf("no stored credential with token %s", args[0])
		}
		return err
	}
	fmt.Printf("Current credential is now %s\n", args[0])
	return nil
}

func runCredsRevoke(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.manager.Revoke(context.Background(), args[0]); err != nil {
		if stderrors.Is(err, credentials.ErrNotFound) {
			return fmt.Errorf("no stored credential with token %s", args[0])
		}
		return err
	}
	fmt.Printf("Credential %s revoked\n", args[0])
	return nil
}

func runCredsSweep(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	removed, err := a.scheduler.Sweep(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d expired credential(s)\n", removed)
	return nil
}

func runCredsImport(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	token := args[0]

	fmt.Print("Cookie header (hidden as you type): ")
	cookieHeader, err := readSecret()
	if err != nil {
		return fmt.Errorf("failed to read cookie header: %w", err)
	}
	if cookieHeader == "" {
		return fmt.Errorf("cookie header is required")
	}

	reader := bufio.NewReader(os.Stdin)
	fmt.Print("Account name (optional, press Enter to skip): ")
	accountName, _ := reader.ReadString('\n')
	accountName = strings.TrimSpace(accountName)

	now := time.Now()
	cred := credentials.Credential{
		Token:         token,
		Fingerprint:   fingerprint.New(),
		AccountName:   accountName,
		Owner:         owner,
		WindowResetAt: now.Add(time.Hour),
		CreatedAt:     now,
		ExpiresAt:     now.Add(a.cfg.Quota.CredentialValidity),
	}
	if _, err := a.manager.Materialize(context.Background(), cred, cookieHeader); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}

	fmt.Printf("Credential %s imported and set as current\n", token)
	return nil
}

func printCredential(index int, v credentials.View) {
	if index > 0 {
		fmt.Printf("%d. Token: %s\n", index, v.Token)
	} else {
		fmt.Printf("Token: %s\n", v.Token)
	}
	if v.AccountName != "" {
		fmt.Printf("   Account:  %s\n", v.AccountName)
	}
	fmt.Printf("   Current:  %v\n", v.Current)
	fmt.Printf("   Requests: %d this window\n", v.RequestCount)
	fmt.Printf("   Expires:  %s\n", v.ExpiresAt.Format("2006-01-02 15:04:05"))
	fmt.Println()
}

// readSecret reads a line from stdin without echoing when attached to a
// terminal, falling back to a plain read otherwise.
func readSecret() (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		secret, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(secret)), nil
		}
	}
	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
