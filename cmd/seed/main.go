// seed inserts development users, one per portal role, for local testing.
// Idempotent: users that already exist only get their profile role refreshed.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"backoffice/portal/internal/config"
	"backoffice/portal/internal/db"
	identityrepo "backoffice/portal/internal/identity/repository"
	identityservice "backoffice/portal/internal/identity/service"
	profiledomain "backoffice/portal/internal/profile/domain"
	profilerepo "backoffice/portal/internal/profile/repository"
	"backoffice/portal/internal/security"
	sessionrepo "backoffice/portal/internal/session/repository"
	userrepo "backoffice/portal/internal/user/repository"
)

const devPassword = "Portal-Dev-2026!"

type seedUser struct {
	email string
	name  string
	phone string
	// role is stored as staff would type it; profiles are normalized when read.
	role string
}

var seedUsers = []seedUser{
	{"admin@example.com", "Ada Admin", "+91 90000 00001", "Admin"},
	{"director@example.com", "Dev Director", "+91 90000 00002", " director "},
	{"student@example.com", "Sam Student", "+91 90000 00003", "student"},
	{"shareholder@example.com", "Shay Shareholder", "+91 90000 00004", "Shareholder"},
	{"applicant@example.com", "Alex Applicant", "+91 90000 00005", "applicant"},
	{"norole@example.com", "Nora Norole", "+91 90000 00006", ""},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env or set DATABASE_URL")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	users := userrepo.NewPostgresRepository(conn)
	profiles := profilerepo.NewPostgresRepository(conn)
	creds := identityservice.NewCredentialService(
		users,
		identityrepo.NewPostgresRepository(conn),
		sessionrepo.NewPostgresRepository(conn),
		security.NewHasher(cfg.BcryptCost),
		nil,
		cfg.Realm,
	)

	for _, su := range seedUsers {
		id, err := creds.Register(ctx, su.email, devPassword, su.name, su.phone)
		if errors.Is(err, identityservice.ErrEmailAlreadyRegistered) {
			existing, lookupErr := users.GetByEmail(ctx, su.email)
			if lookupErr != nil || existing == nil {
				log.Fatalf("lookup %s: %v", su.email, lookupErr)
			}
			id = existing.ID
			log.Printf("%s already exists, refreshing profile", su.email)
		} else if err != nil {
			log.Fatalf("register %s: %v", su.email, err)
		}
		if err := profiles.Upsert(ctx, &profiledomain.Record{PrincipalID: id, Role: su.role, Phone: su.phone}); err != nil {
			log.Fatalf("profile %s: %v", su.email, err)
		}
	}

	log.Println("Seed completed successfully.")
	for _, su := range seedUsers {
		fmt.Printf("%-24s role=%-12q password=%s\n", su.email, su.role, devPassword)
	}
}
