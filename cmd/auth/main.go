package main

import (
	"log"
	"os"

	"github.com/aussiebroadwan/trustline/internal/auth/app"
)

const usage = `usage: auth [hash-password]

With no arguments the auth service starts.

hash-password reads a password from stdin and prints its argon2id hash for a
user's passwordHash in AUTH_USERS_FILE. AUTH_PEPPER_FILE must point at the
pepper the service runs with.`

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "hash-password":
			cfg, err := app.LoadConfig()
			if err != nil {
				log.Fatalf("failed to load configuration: %v", err)
			}
			if err := app.HashPassword(os.Stdin, os.Stdout, cfg.PepperFile); err != nil {
				log.Fatalf("hash-password: %v", err)
			}
			return
		default:
			log.Fatal(usage)
		}
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}

	if err := application.Run(); err != nil {
		log.Fatalf("application error: %v", err)
	}
}
