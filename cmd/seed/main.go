package main

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tigerphoto/photobooth-backend/internal/db"
	"github.com/tigerphoto/photobooth-backend/internal/logger"
	"github.com/tigerphoto/photobooth-backend/internal/repos"
	"github.com/tigerphoto/photobooth-backend/internal/types"
	"github.com/tigerphoto/photobooth-backend/internal/utils"
)

type styleEntry struct {
	Code         string `yaml:"code"`
	Name         string `yaml:"name"`
	Description  string `yaml:"description"`
	Prompt       string `yaml:"prompt"`
	IsActive     *bool  `yaml:"is_active"`
	ThumbnailURL string `yaml:"thumbnail_url"`
}

type catalog struct {
	Styles []styleEntry `yaml:"styles"`
}

// Seeds the style catalog from a YAML file into the style table. Safe to
// re-run: entries upsert by code.
func main() {
	log, err := logger.New(os.Getenv("LOG_MODE"))
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	path := utils.GetEnv("STYLE_CATALOG_PATH", "styles.yaml", log)
	raw, err := os.ReadFile(path)
	if err != nil {
		log.Fatal("Could not read style catalog", "path", path, "error", err)
	}
	var cat catalog
	if err := yaml.Unmarshal(raw, &cat); err != nil {
		log.Fatal("Could not parse style catalog", "path", path, "error", err)
	}
	if len(cat.Styles) == 0 {
		log.Fatal("Style catalog is empty", "path", path)
	}

	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("Postgres init failed", "error", err)
	}
	if err := postgresService.AutoMigrateAll(); err != nil {
		log.Fatal("Postgres auto migration failed", "error", err)
	}
	styleRepo := repos.NewStyleRepo(postgresService.DB(), log)

	ctx := context.Background()
	for _, entry := range cat.Styles {
		if entry.Code == "" {
			log.Warn("Skipping style without code", "name", entry.Name)
			continue
		}
		active := true
		if entry.IsActive != nil {
			active = *entry.IsActive
		}
		style := &types.Style{
			Code:         entry.Code,
			Name:         entry.Name,
			Description:  entry.Description,
			Prompt:       entry.Prompt,
			IsActive:     active,
			ThumbnailURL: entry.ThumbnailURL,
		}
		if err := styleRepo.Upsert(ctx, nil, style); err != nil {
			log.Fatal("Failed to upsert style", "code", entry.Code, "error", err)
		}
		log.Info("Seeded style", "code", entry.Code, "active", active)
	}
}
