package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/mmdatafocus/orderdesk_backend/config"
	"github.com/mmdatafocus/orderdesk_backend/models"
	"github.com/mmdatafocus/orderdesk_backend/models/reports"
	"github.com/mmdatafocus/orderdesk_backend/utils"
)

func main() {
	out := flag.String("out", "", "Output file (default revision_<date>.xlsx)")
	flag.Parse()

	path := *out
	if path == "" {
		path = fmt.Sprintf("revision_%s.xlsx", time.Now().UTC().Format("2006-01-02"))
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	engine := models.NewEngine(models.EngineDeps{Store: models.NewGormStore(db)})
	ctx := utils.SetCurrentUserInContext(context.Background(), utils.CurrentUser{Id: 1, IsAdmin: true})
	rows, err := engine.RevisionList(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "revision list: %v\n", err)
		os.Exit(1)
	}

	f, err := os.Create(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create %s: %v\n", path, err)
		os.Exit(1)
	}
	if err := reports.ExportRevisionList(f, rows); err != nil {
		_ = f.Close()
		fmt.Fprintf(os.Stderr, "export: %v\n", err)
		os.Exit(1)
	}
	if err := f.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "close %s: %v\n", path, err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %d products to %s\n", len(rows), path)
}
