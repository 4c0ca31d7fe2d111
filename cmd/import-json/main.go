package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"laser-repair/internal/config"
	"laser-repair/internal/database"
	"laser-repair/internal/repository"

	"go.uber.org/zap"
)

// 把 JSON 文件中的工单导入 Postgres：import-json [laser_database.json]
// Postgres 重新分配 id，旧 id -> 新 id 的对应关系打印到 stdout
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	path := cfg.Storage.DBFile
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	ctx := context.Background()
	src := repository.NewJSONRecordsRepo(path, zap.NewNop())
	records, err := src.Load(ctx)
	if err != nil {
		log.Fatalf("Failed to read %s: %v", path, err)
	}

	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatalf("Cannot connect to database: %v", err)
	}
	defer db.Close()

	dst := repository.NewPostgresRecordsRepo(db)
	if err := dst.EnsureSchema(ctx); err != nil {
		log.Fatalf("Failed to create schema: %v", err)
	}

	fmt.Printf("Importing %d records from %s\n", len(records), path)
	for _, rec := range records {
		oldID := rec.ID
		saved, err := dst.Append(ctx, rec)
		if err != nil {
			log.Fatalf("Failed to import record %d (%s): %v", oldID, rec.SN, err)
		}
		fmt.Printf("%d -> %d\t%s\n", oldID, saved.ID, saved.SN)
	}
	fmt.Println("Import completed")
}
