package main

import (
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/panudet-24mb/market-management/models"
)

var db *gorm.DB

func initDB(cfg *Config, log zerolog.Logger) error {
	var err error
	db, err = gorm.Open(postgres.Open(cfg.DB.DSN), &gorm.Config{})
	if err != nil {
		return err
	}
	if cfg.DB.AutoMigrate {
		// Roles first so the users FK can be applied safely. Migrate models
		// individually so a failure on one doesn't block others.
		if err := db.AutoMigrate(&models.Role{}); err != nil {
			log.Warn().Err(err).Msg("migration warning (roles)")
		}
		if err := db.AutoMigrate(&models.User{}); err != nil {
			log.Warn().Err(err).Msg("migration warning (users)")
		}
		if err := db.AutoMigrate(&models.Meter{}); err != nil {
			log.Warn().Err(err).Msg("migration warning (meters)")
		}
		if err := db.AutoMigrate(&models.MeterUsage{}); err != nil {
			log.Warn().Err(err).Msg("migration warning (meter_usages)")
		}
	}
	seedDB(log)
	return nil
}

func seedDB(log zerolog.Logger) {
	roles := []models.Role{
		{Name: "administrator", Description: "full access"},
		{Name: "operator", Description: "captures and reconciles readings"},
	}
	for _, r := range roles {
		var cnt int64
		db.Model(&models.Role{}).Where("name = ?", r.Name).Count(&cnt)
		if cnt == 0 {
			db.Create(&r)
		}
	}

	var count int64
	db.Model(&models.User{}).Where("username = ?", "admin").Count(&count)
	if count == 0 {
		var role models.Role
		if err := db.Where("name = ?", "administrator").First(&role).Error; err != nil {
			log.Warn().Err(err).Msg("failed to find administrator role")
		}
		rid := role.ID
		hashedPassword, _ := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.DefaultCost)
		admin := models.User{Username: "admin", HashedPassword: hashedPassword, RoleID: &rid}
		db.Create(&admin)
		log.Info().Msg("seeded admin user: username=admin, password=admin123")
	}
}
