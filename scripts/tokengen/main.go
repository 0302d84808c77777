package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/noah-isme/tutorly-api/internal/service"
	"github.com/noah-isme/tutorly-api/pkg/config"
)

// tokengen prints a bearer token signed with the configured JWT secret, for local testing.
func main() {
	var (
		userID   string
		email    string
		fullName string
		ttl      time.Duration
	)

	flag.StringVar(&userID, "user", "", "User id placed in the user_id claim")
	flag.StringVar(&email, "email", "", "Optional email claim")
	flag.StringVar(&fullName, "name", "", "Optional full_name claim")
	flag.DurationVar(&ttl, "ttl", 0, "Token lifetime (defaults to JWT_EXPIRATION)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if ttl <= 0 {
		ttl = cfg.JWT.Expiration
	}

	tokens := service.NewTokenService(service.TokenConfig{
		Secret:     cfg.JWT.Secret,
		Issuer:     cfg.JWT.Issuer,
		Expiration: ttl,
	})
	token, expires, err := tokens.Issue(userID, email, fullName)
	if err != nil {
		log.Fatalf("failed to issue token: %v", err)
	}
	fmt.Printf("%s\n# expires %s\n", token, expires.Format(time.RFC3339))
}
