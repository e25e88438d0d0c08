package gormstore

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// migrationsList holds all schema migrations in order.
var migrationsList = []*gormigrate.Migration{
	{
		ID: "000001_create_progression_tables",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&accountRow{}, &eventRow{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable("progression_events", "progression_accounts")
		},
	},
	{
		ID: "000002_create_device_acknowledgments",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&ackRow{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable("device_acknowledgments")
		},
	},
	{
		ID: "000003_add_event_seq",
		Migrate: func(tx *gorm.DB) error {
			if tx.Migrator().HasColumn(&eventRow{}, "Seq") {
				return nil
			}
			return tx.Migrator().AddColumn(&eventRow{}, "Seq")
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropColumn(&eventRow{}, "Seq")
		},
	},
}

// Migrate runs all pending migrations.
func Migrate(db *gorm.DB) error {
	opts := *gormigrate.DefaultOptions
	opts.TableName = "progression_migrations"

	m := gormigrate.New(db, &opts, migrationsList)
	if err := m.Migrate(); err != nil {
		logrus.Errorf("could not migrate: %v", err)
		return err
	}
	logrus.Infof("migrations ran successfully")
	return nil
}
