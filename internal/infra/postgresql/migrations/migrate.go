package migrations

import (
	"github.com/ebalkanli/verify-engine/internal/repository"
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		createVerificationResultsTable(),
	})
	return m.Migrate()
}

func createVerificationResultsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_verification_results",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.ResultModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_results_job_id_created ON verification_results (job_id, created_at)`,
				`CREATE INDEX IF NOT EXISTS idx_results_job_valid ON verification_results (job_id, valid)`,
				`CREATE INDEX IF NOT EXISTS idx_results_category ON verification_results (category) WHERE category <> ''`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.ResultModel{})
		},
	}
}
