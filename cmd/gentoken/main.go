// Package main provides a simple tool to generate access tokens for the fleet monitor.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/narvanalabs/fleet-monitor/internal/auth"
	"github.com/narvanalabs/fleet-monitor/internal/models"
)

func main() {
	userID := flag.String("user", "admin", "User ID for the token")
	username := flag.String("username", "admin", "Username for the token")
	role := flag.String("role", string(models.RoleAdmin), "Role for the token (admin or user)")
	secret := flag.String("secret", "", "JWT secret (or set JWT_SECRET env var)")
	expiry := flag.Duration("expiry", 24*time.Hour, "Token expiry duration")
	flag.Parse()

	jwtSecret := *secret
	if jwtSecret == "" {
		jwtSecret = os.Getenv("JWT_SECRET")
	}
	if jwtSecret == "" {
		fmt.Fprintln(os.Stderr, "Error: JWT secret required. Use -secret flag or set JWT_SECRET env var")
		fmt.Fprintln(os.Stderr, "Example: go run ./cmd/gentoken -secret 'your-secret-at-least-32-chars-long'")
		os.Exit(1)
	}
	if len(jwtSecret) < 32 {
		fmt.Fprintln(os.Stderr, "Error: JWT secret must be at least 32 characters")
		os.Exit(1)
	}

	r := models.Role(*role)
	if r != models.RoleAdmin && r != models.RoleUser {
		fmt.Fprintf(os.Stderr, "Error: unknown role %q\n", *role)
		os.Exit(1)
	}

	svc := auth.NewService(&auth.Config{
		JWTSecret:   []byte(jwtSecret),
		TokenExpiry: *expiry,
	}, nil)
	token, err := svc.GenerateToken(*userID, *username, r)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
}
