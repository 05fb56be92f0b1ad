package database

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"leaveflow/models"
)

const adminUsername = "admin"

func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Team{},
		&models.User{},
		&models.TeamSupervisor{},
		&models.Request{},
		&models.ApprovalRecord{},
		&models.Balance{},
		&models.BalanceEntry{},
	)
}

// SeedAdmin creates the admin account on first start.
func SeedAdmin(db *gorm.DB, password string, log zerolog.Logger) error {
	var count int64
	if err := db.Model(&models.User{}).Where("username = ?", adminUsername).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	if password == "" {
		return errors.New("ADMIN_PASSWORD is required to create the admin account")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	admin := models.User{
		Username:           adminUsername,
		FullName:           "Administrator",
		PasswordHash:       string(hashedPassword),
		Role:               models.RoleAdmin,
		MustChangePassword: true,
	}
	if err := db.Create(&admin).Error; err != nil {
		return err
	}

	log.Info().Str("username", adminUsername).Msg("default admin user created")
	return nil
}
