package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/tigerphoto/photobooth-backend/internal/logger"
	"github.com/tigerphoto/photobooth-backend/internal/types"
	"github.com/tigerphoto/photobooth-backend/internal/utils"
)

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
	serviceLog := log.With("service", "PostgresService")

	host := utils.GetEnv("POSTGRES_HOST", "localhost", log)
	port := utils.GetEnv("POSTGRES_PORT", "5432", log)
	user := utils.GetEnv("POSTGRES_USER", "postgres", log)
	password := utils.GetEnv("POSTGRES_PASSWORD", "", log)
	name := utils.GetEnv("POSTGRES_NAME", "tiger_photo", log)

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, name)

	serviceLog.Info("Connecting to Postgres...")
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}

	return &PostgresService{db: gdb, log: serviceLog}, nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	return Migrate(s.db)
}

// Migrate runs schema migration for every workflow entity. Shared with the
// test harness, which runs it against sqlite.
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&types.Style{},
		&types.QRCode{},
		&types.Session{},
		&types.ImageAsset{},
		&types.AIJob{},
		&types.JobRun{},
	)
}

func (s *PostgresService) DB() *gorm.DB {
	return s.db
}
