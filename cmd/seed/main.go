// Command seed fills the inbox database with riders, drivers and support threads.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"ridehail/internal/config"
	"ridehail/internal/database"
	"ridehail/internal/middleware"
	"ridehail/internal/models"
	"ridehail/internal/repository"
	"ridehail/internal/seed"
)

func main() {
	presetName := flag.String("preset", "minimal", "Preset to apply (built-in name, or name inside -presets-file)")
	presetsFile := flag.String("presets-file", "", "YAML file with extra presets")
	shouldClean := flag.Bool("clean", false, "Clean database before seeding")
	dryRun := flag.Bool("dry-run", false, "Build entities without writing them")
	withTokens := flag.Bool("tokens", false, "Print a bearer token for every seeded user")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "Lifetime of printed tokens")
	tokensFor := flag.String("tokens-for", "", "Comma-separated existing user ids; print their tokens and skip seeding")
	flag.Parse()

	log.Println("🌱 Inbox Seeder")
	log.Println("===============")

	preset, err := resolvePreset(*presetName, *presetsFile)
	if err != nil {
		log.Fatalf("Failed to resolve preset: %v", err)
	}
	log.Printf("Applying preset: %s (%d riders, %d drivers, %d agents, %d rides, %d support threads)\n",
		preset.Name, preset.Riders, preset.Drivers, preset.Agents, preset.Rides, preset.SupportThreads)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	middleware.InitLogger(cfg.Env)

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() { _ = database.Close(db) }()

	ctx := context.Background()
	auth := middleware.AuthConfig{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer, Audience: cfg.JWTAudience}

	if *tokensFor != "" {
		users, err := repository.NewUserRepository(db).FindByIDs(ctx, splitIDs(*tokensFor))
		if err != nil {
			log.Fatalf("❌ User lookup failed: %v", err)
		}
		printTokens(auth, *tokenTTL, users)
		return
	}

	s := seed.NewSeeder(db, middleware.Logger)
	s.DryRun = *dryRun

	if *shouldClean && !*dryRun {
		if err := s.ClearAll(ctx); err != nil {
			log.Fatalf("❌ Cleanup failed: %v", err)
		}
	}

	res, err := s.Run(ctx, preset)
	if err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	if *withTokens && !*dryRun {
		for _, group := range [][]models.User{res.Riders, res.Drivers, res.Agents} {
			printTokens(auth, *tokenTTL, group)
		}
	}

	log.Printf("✨ Done: %d conversations, %d messages, %d archived\n",
		res.Conversations, res.Messages, res.Archived)
}

func printTokens(auth middleware.AuthConfig, ttl time.Duration, users []models.User) {
	for _, u := range users {
		token, err := middleware.IssueToken(auth, u.ID, ttl)
		if err != nil {
			log.Fatalf("❌ Token for %s failed: %v", u.ID, err)
		}
		fmt.Printf("%s\t%s\t%s\n", u.ID, u.Name, token)
	}
}

func splitIDs(raw string) []string {
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func resolvePreset(name, file string) (seed.Preset, error) {
	if file != "" {
		return seed.LoadPresetFile(file, name)
	}
	return seed.LookupPreset(name)
}
