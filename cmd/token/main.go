// Command token issues a signed access/refresh pair for calling the protected API.
// There is no login endpoint; operators mint tokens with this tool and renew
// them through POST /api/auth/refresh.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"call-insights/internal/auth"
	"call-insights/internal/config"
	"call-insights/internal/rbac"
)

func main() {
	userID := flag.String("user", "", "user id to place in the token")
	role := flag.String("role", rbac.RoleViewer, "role: admin, operator or viewer")
	flag.Parse()

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "usage: token --user alice [--role operator]")
		os.Exit(2)
	}
	if !rbac.Valid(*role) {
		fmt.Fprintf(os.Stderr, "unknown role %q\n", *role)
		os.Exit(2)
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	m, err := auth.NewManager(cfg.Auth)
	if err != nil {
		fmt.Fprintln(os.Stderr, "auth:", err)
		os.Exit(1)
	}

	pair, err := m.IssuePair(time.Now(), *userID, *role)
	if err != nil {
		fmt.Fprintln(os.Stderr, "issue:", err)
		os.Exit(1)
	}
	fmt.Printf("access_token=%s\nrefresh_token=%s\n", pair.AccessToken, pair.RefreshToken)
}
