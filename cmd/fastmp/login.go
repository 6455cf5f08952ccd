package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fightinglucida/FastMP/pkg/login"
)

var qrOutput string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in by scanning a QR code",
	Long: `Log in to the publishing platform by scanning a QR code.

The QR image is written to a file; scan it with the platform's mobile
app and confirm on the device. Once confirmed, the session token and
cookies are stored securely and the credential joins the rotation pool.

The QR code expires after a few minutes. Run the command again if it
does.`,
	Example: `  # Log in, writing the QR to ./fastmp-qr.png
  fastmp login

  # Tag the credential with an owner and choose the QR path
  fastmp login --owner alice --qr /tmp/qr.png`,
	RunE: runLogin,
}

func init() {
	rootCmd.AddCommand(loginCmd)
	loginCmd.Flags().StringVar(&qrOutput, "qr", "fastmp-qr.png", "file to write the QR image to")
}

func runLogin(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start, err := a.machine.Start(ctx, owner)
	if err != nil {
		return fmt.Errorf("failed to start login: %w", err)
	}

	if err := os.WriteFile(qrOutput, start.QRImage, 0644); err != nil {
		return fmt.Errorf("failed to write QR image: %w", err)
	}
	abs, _ := filepath.Abs(qrOutput)
	fmt.Printf("QR code written to %s\n", abs)
	fmt.Println("Scan it with the platform's mobile app, then confirm on the device.")
	fmt.Println()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	lastState := login.StateIssued
	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nLogin cancelled.")
			return nil
		case <-ticker.C:
		}

		result, err := a.machine.Poll(ctx, start.LoginKey)
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}

		if result.State != lastState {
			lastState = result.State
			switch result.State {
			case login.StateScanned:
				fmt.Println("QR scanned. Confirm the login on your device.")
			case login.StateConfirmed:
				fmt.Println("Login confirmed. Exchanging for a session token...")
			}
		}

		if !result.State.Terminal() {
			continue
		}

		switch result.State {
		case login.StateEstablished:
			cred := result.Credential
			fmt.Println("\nLogin successful!")
			if cred.AccountName != "" {
				fmt.Printf("  Account:  %s\n", cred.AccountName)
			}
			fmt.Printf("  Token:    %s\n", cred.Token)
			fmt.Printf("  Expires:  %s\n", cred.ExpiresAt.Format("2006-01-02 15:04:05"))
			return nil
		case login.StateExpired:
			return fmt.Errorf("the QR code expired before the login completed; run 'fastmp login' again")
		default:
			if result.Reason != "" {
				return fmt.Errorf("login failed: %s", result.Reason)
			}
			return fmt.Errorf("login failed")
		}
	}
}
