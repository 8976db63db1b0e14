package main

import (
	"log"

	"repoinsight/internal/config"
	"repoinsight/internal/repository/implementation"
	"repoinsight/pkg/database"
)

// Creates or updates the Postgres session tables ahead of a deploy.
func main() {
	cfg := config.Load()

	if cfg.Store.DSN == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	db, err := database.NewGormDBFromDSN(cfg.Store.DSN, true)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	log.Println("Running AutoMigrate for analysis_tasks and user_states...")
	if err := implementation.Migrate(db); err != nil {
		log.Fatal("Error: Migration failed:", err)
	}

	sqlDB, err := db.DB()
	if err == nil {
		sqlDB.Close()
	}
	log.Println("✅ Migration complete")
}
