/**
 * @description
 * Script to mint a signed API token for a given account id. Useful for
 * driving the HTTP API from curl during local development without going
 * through the panel frontend.
 *
 * Usage:
 *   go run mint-token.go <account-id> [ttl-hours]
 *
 * Example:
 *   go run mint-token.go 1 24
 *
 * @dependencies
 * - Environment variable: JWT_SECRET (a .env file in the working directory is loaded if present)
 */

package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
)

func main() {
	if len(os.Args) < 2 || len(os.Args) > 3 {
		fmt.Println("Usage: go run mint-token.go <account-id> [ttl-hours]")
		fmt.Println("Example: go run mint-token.go 1 24")
		os.Exit(1)
	}

	accountID, err := strconv.ParseInt(os.Args[1], 10, 64)
	if err != nil || accountID <= 0 {
		log.Fatalf("account id must be a positive integer, got %q", os.Args[1])
	}

	ttl := 24 * time.Hour
	if len(os.Args) == 3 {
		hours, err := strconv.Atoi(os.Args[2])
		if err != nil || hours <= 0 {
			log.Fatalf("ttl-hours must be a positive integer, got %q", os.Args[2])
		}
		ttl = time.Duration(hours) * time.Hour
	}

	// Load a local .env if present so the secret matches the running service.
	_ = godotenv.Load()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(accountID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		log.Fatalf("Failed to sign token: %v", err)
	}

	fmt.Printf("Token for account %d (valid %s):\n\n%s\n\n", accountID, ttl, token)
	fmt.Printf("curl -H \"Authorization: Bearer %s\" http://localhost:8080/api/v1/balance\n", token)
}
