// Command issue-token mints a bearer token for local development. The token
// only names the subject; roles are read from the database on every request.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/garyjia/expense-approval/internal/config"
	httpapi "github.com/garyjia/expense-approval/internal/interfaces/http"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config file (empty for env only)")
	subject := flag.String("subject", "", "subject id to issue the token for")
	flag.Parse()

	if *subject == "" {
		fmt.Fprintln(os.Stderr, "usage: issue-token -subject <id> [-config path]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	tokens, err := httpapi.NewTokenAuthority(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create token authority: %v\n", err)
		os.Exit(1)
	}

	token, err := tokens.Issue(*subject)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to issue token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
}
