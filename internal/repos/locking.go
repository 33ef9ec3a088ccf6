package repos

import (
	"gorm.io/gorm"
)

// useRowLocks reports whether the dialect understands FOR UPDATE. The
// sqlite driver used in tests does not; its writes serialize on the single
// connection instead.
func useRowLocks(db *gorm.DB) bool {
	return db.Dialector.Name() == "postgres"
}
