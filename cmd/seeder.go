package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	catalogPostgres "github.com/frahmantamala/settlement/internal/catalog/postgres"
	"github.com/frahmantamala/settlement/internal/core/datamodel/catalog"
	"github.com/frahmantamala/settlement/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the catalog with sample items",
	Long:  `Seed the catalog with sample products, courses and consultations for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		cfg, err := loadConfig(configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		db, err := initDB(ctx, cfg.Database, logger.LoggerWrapper())
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer db.Close()

		gdb, err := initGorm(db, cfg.App.Env)
		if err != nil {
			log.Fatalf("failed to init gorm: %v", err)
		}

		repo := catalogPostgres.NewCatalogRepository(gdb)
		now := time.Now().UTC()

		items := []struct {
			Slug  string
			Name  string
			Kind  string
			Price string
		}{
			{"tarot-e-o-amor", "Tarot e o Amor", catalog.KindProduct, "29.90"},
			{"mapa-astral-completo", "Mapa Astral Completo", catalog.KindProduct, "49.90"},
			{"numerologia-do-nome", "Numerologia do Nome", catalog.KindProduct, "19.90"},
			{"curso-tarot-iniciante", "Curso de Tarot para Iniciantes", catalog.KindCourse, "197.00"},
			{"consulta-tarot-60", "Consulta de Tarot (60 min)", catalog.KindConsultation, "150.00"},
		}

		for _, it := range items {
			item := &catalog.Item{
				Slug:      it.Slug,
				Name:      it.Name,
				Kind:      it.Kind,
				Price:     decimal.RequireFromString(it.Price),
				IsActive:  true,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := repo.Upsert(ctx, item); err != nil {
				log.Fatalf("failed to upsert catalog item %s: %v", it.Slug, err)
			}
			fmt.Printf("Seeded catalog item: %s (%s) %s\n", it.Slug, it.Kind, it.Price)
		}

		fmt.Println("Catalog seeded successfully")
	},
}
