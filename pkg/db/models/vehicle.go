package models

import (
	"time"

	"github.com/google/uuid"
)

// Vehicle is the listed car an appointment is booked against. PriceVND is the
// current asking price; appointments snapshot it at creation time.
type Vehicle struct {
	ID          uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SellerID    uuid.UUID  `gorm:"column:seller_id;type:uuid;not null;index"`
	Make        string     `gorm:"column:make;not null"`
	Model       string     `gorm:"column:model;not null"`
	Year        int        `gorm:"column:year;not null"`
	PlateNumber *string    `gorm:"column:plate_number;uniqueIndex"`
	VIN         *string    `gorm:"column:vin"`
	Mileage     *int       `gorm:"column:mileage"`
	PriceVND    int64      `gorm:"column:price_vnd;not null"`
	IsListed    bool       `gorm:"column:is_listed;not null;default:true"`
	SoldAt      *time.Time `gorm:"column:sold_at"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
