// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/renameio/v2"
	"github.com/joho/godotenv"

	"github.com/vodsaver/vodsaver/internal/config"
	"github.com/vodsaver/vodsaver/internal/twitch"
)

const defaultTokenPath = "twitch_token.json"

// runTokenCLI walks the operator through the OAuth device flow and stores the
// granted token as a JSON file. This is a one-time interactive step; the
// archive runs themselves stay non-interactive.
func runTokenCLI(args []string) int {
	return runTokenFlow(args, &twitch.DeviceCodeFlow{})
}

// runTokenFlow backs runTokenCLI; tests inject a flow bound to a local
// identity server.
func runTokenFlow(args []string, flow *twitch.DeviceCodeFlow) int {
	fs := flag.NewFlagSet("vodsaver token", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	scopes := fs.String("scopes", "", "space-separated OAuth scopes to request (default $TWITCH_SCOPES)")
	out := fs.String("out", "", "where to write the token file (default $TOKEN_PATH or "+defaultTokenPath+")")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	// Same .env contract as the archive run: best-effort, process env wins.
	_ = godotenv.Load()

	clientID := config.ParseString("TWITCH_CLIENT_ID", "")
	if clientID == "" {
		fmt.Fprintln(os.Stderr, "Error: TWITCH_CLIENT_ID is required")
		return 2
	}

	tokenPath := strings.TrimSpace(*out)
	if tokenPath == "" {
		tokenPath = config.ParseString("TOKEN_PATH", defaultTokenPath)
	}
	requestedScopes := strings.TrimSpace(*scopes)
	if requestedScopes == "" {
		requestedScopes = config.ParseString("TWITCH_SCOPES", "")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	flow.ClientID = clientID

	auth, err := flow.Authorize(ctx, requestedScopes)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: device authorization failed: %v\n", err)
		return 1
	}

	fmt.Printf("Open %s and enter code: %s\n", auth.VerificationURI, auth.UserCode)
	fmt.Println("Waiting for approval...")

	token, err := flow.Poll(ctx, auth)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: authorization not completed: %v\n", err)
		return 1
	}

	if err := writeTokenFile(tokenPath, token); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot write %s: %v\n", tokenPath, err)
		return 1
	}

	fmt.Printf("Token saved to %s\n", tokenPath)
	fmt.Println("Set TWITCH_USER_OAUTH_TOKEN to the access_token value from that file.")
	return 0
}

func writeTokenFile(path string, token *twitch.DeviceToken) error {
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return err
	}
	// 0600: the file holds a live credential.
	return renameio.WriteFile(path, append(data, '\n'), 0o600)
}
