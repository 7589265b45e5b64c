package db

import (
	"fmt"
	"time"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"github.com/dawask/rag-backend/internal/types"
	"github.com/dawask/rag-backend/internal/utils"
	"github.com/dawask/rag-backend/internal/logger"
)

type PostgresService struct {
	db *gorm.DB
	log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
	serviceLog := log.With("service", "PostgresService")

	log.Info("Loading environment variables...")
	postgresHost := utils.GetEnv("POSTGRES_HOST", "localhost", log)
	postgresPort := utils.GetEnv("POSTGRES_PORT", "5432", log)
	postgresUser := utils.GetEnv("POSTGRES_USER", "postgres", log)
	postgresPassword := utils.GetEnv("POSTGRES_PASSWORD", "", log)
	postgresName := utils.GetEnv("POSTGRES_NAME", "dawask", log)
	poolMin := utils.GetEnvAsInt("POSTGRES_POOL_MIN", 5, log)
	poolMax := utils.GetEnvAsInt("POSTGRES_POOL_MAX", 20, log)
	log.Debug("Environment variables loaded")

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", postgresUser, postgresPassword, postgresHost, postgresPort, postgresName)

	log.Info("Connecting to Postgres...")
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		log.Error("Failed to connect to Postgres", "error", err)
		return nil, fmt.Errorf("Failed to connect to Postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("Failed to access underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(poolMin)
	sqlDB.SetMaxOpenConns(poolMax)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		log.Error("Failed to enable uuid-ossp extension", "error", err)
		return nil, fmt.Errorf("Failed to enable uuid-ossp extension: %w", err)
	}
	log.Info("uuid-ossp extension enabled")

	return &PostgresService{db: db, log: serviceLog}, nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	err := s.db.AutoMigrate(
		&types.Document{},
		&types.Chunk{},
		&types.Entity{},
		&types.EntityLink{},
	)
	if err != nil {
		s.log.Error("Auto migration failed for postgres tables", "error", err)
		return err
	}
	s.log.Info("Configuring foreign key relationships for postgres tables...")
	constraints := []struct {
		name string
		sql  string
	}{
		{"fk_chunk_document_id", `
      ALTER TABLE "chunk"
      ADD CONSTRAINT "fk_chunk_document_id"
      FOREIGN KEY ("document_id")
      REFERENCES "document"("id")
      ON DELETE CASCADE
    `},
		{"fk_entity_link_entity_id", `
      ALTER TABLE "entity_link"
      ADD CONSTRAINT "fk_entity_link_entity_id"
      FOREIGN KEY ("entity_id")
      REFERENCES "entity"("id")
      ON DELETE CASCADE
    `},
		{"fk_entity_link_chunk_id", `
      ALTER TABLE "entity_link"
      ADD CONSTRAINT "fk_entity_link_chunk_id"
      FOREIGN KEY ("chunk_id")
      REFERENCES "chunk"("id")
      ON DELETE CASCADE
    `},
	}
	for _, c := range constraints {
		var exists bool
		if err := s.db.Raw(
			`SELECT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = ?)`, c.name,
		).Scan(&exists).Error; err != nil {
			return fmt.Errorf("Failed to check constraint %s: %w", c.name, err)
		}
		if exists {
			continue
		}
		if err := s.db.Exec(c.sql).Error; err != nil {
			return fmt.Errorf("Failed to add %s: %w", c.name, err)
		}
	}

	s.log.Info("Creating supplemental indexes...")
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_chunk_identity ON "chunk"(is_identity) WHERE is_identity = TRUE`,
		`CREATE INDEX IF NOT EXISTS idx_chunk_headings_gin ON "chunk" USING GIN (headings)`,
		`CREATE INDEX IF NOT EXISTS idx_entity_aliases_gin ON "entity" USING GIN (aliases)`,
	}
	for _, stmt := range indexes {
		if err := s.db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("Failed to create index: %w", err)
		}
	}
	return nil
}

func (s *PostgresService) DB() *gorm.DB {
	return s.db
}
