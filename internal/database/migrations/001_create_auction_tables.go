package migrations

import (
	"github.com/lelangid/lelang-api/internal/types"
	"gorm.io/gorm"
)

func CreateAuctionTables(db *gorm.DB) error {
	if err := db.AutoMigrate(&types.Auction{}); err != nil {
		return err
	}

	if err := db.AutoMigrate(&types.Bid{}); err != nil {
		return err
	}

	return nil
}
