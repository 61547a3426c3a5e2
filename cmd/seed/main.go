// seed migrates the schema, inserts default settings and optionally a small
// demo catalog.
//
// Usage (from backend directory):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed -demo
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mmdatafocus/orderdesk_backend/config"
	"github.com/mmdatafocus/orderdesk_backend/models"
	"github.com/mmdatafocus/orderdesk_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var demoProducts = []models.NewProduct{
	{Sku: "TEA-GREEN-100", Name: "Green tea 100g", Price: decimal.NewFromInt(350), Stock: 40},
	{Sku: "TEA-BLACK-100", Name: "Black tea 100g", Price: decimal.NewFromInt(320), Stock: 25},
	{Sku: "MUG-CERAMIC", Name: "Ceramic mug", Price: decimal.RequireFromString("899.90"), Stock: 8},
}

func main() {
	demo := flag.Bool("demo", false, "Insert demo products when their sku is free")
	migrate := flag.Bool("migrate", true, "Run AutoMigrate before seeding")
	flag.Parse()

	ctx := context.Background()
	logger := config.GetLogger()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	if *migrate {
		if err := models.MigrateTable(db.WithContext(ctx)); err != nil {
			fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
			os.Exit(1)
		}
	}

	store := models.NewGormStore(db)
	if err := models.SeedSettings(ctx, store); err != nil {
		fmt.Fprintf(os.Stderr, "failed to seed settings: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Settings seeded")

	if !*demo {
		return
	}
	engine := models.NewEngine(models.EngineDeps{Store: store, Logger: logger})
	ctx = utils.SetCurrentUserInContext(ctx, utils.CurrentUser{Id: 1, IsAdmin: true})
	for i := range demoProducts {
		p, err := engine.CreateProduct(ctx, &demoProducts[i])
		switch models.KindOf(err) {
		case "":
			fmt.Printf("Created product %d sku=%q\n", p.ID, p.Sku)
		case models.ErrorKindConflict:
			logger.WithFields(logrus.Fields{"sku": demoProducts[i].Sku}).Info("demo product exists; skipped")
		default:
			fmt.Fprintf(os.Stderr, "failed to create %q: %v\n", demoProducts[i].Sku, err)
			os.Exit(1)
		}
	}
}
