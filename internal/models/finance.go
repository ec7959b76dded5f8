package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// The finance tables are written by the app's CRUD layer. The Last Wish
// export only reads them.

type Account struct {
	ID                uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID            uuid.UUID       `gorm:"type:uuid;not null;index" json:"user_id"`
	Name              string          `gorm:"size:255;not null" json:"name"`
	Type              string          `gorm:"size:50" json:"type"`
	Currency          string          `gorm:"size:10;default:'USD'" json:"currency"`
	CalculatedBalance decimal.Decimal `gorm:"type:numeric(18,2);default:0" json:"calculated_balance"`
	IsActive          bool            `gorm:"default:true" json:"is_active"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

type Transaction struct {
	ID          uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID      uuid.UUID       `gorm:"type:uuid;not null;index" json:"user_id"`
	AccountID   uuid.UUID       `gorm:"type:uuid;index" json:"account_id"`
	Type        string          `gorm:"size:20;not null" json:"type"` // income|expense|transfer
	Amount      decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"amount"`
	Category    string          `gorm:"size:100" json:"category"`
	Description string          `gorm:"type:text" json:"description"`
	Date        time.Time       `gorm:"index" json:"date"`
	CreatedAt   time.Time       `json:"created_at"`
}

type Purchase struct {
	ID           uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID       uuid.UUID       `gorm:"type:uuid;not null;index" json:"user_id"`
	ItemName     string          `gorm:"size:255;not null" json:"item_name"`
	Category     string          `gorm:"size:100" json:"category"`
	Price        decimal.Decimal `gorm:"type:numeric(18,2)" json:"price"`
	Currency     string          `gorm:"size:10;default:'USD'" json:"currency"`
	Status       string          `gorm:"size:20" json:"status"` // planned|purchased|cancelled
	PurchaseDate *time.Time      `json:"purchase_date"`
	CreatedAt    time.Time       `json:"created_at"`
}

type LendBorrow struct {
	ID         uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID     uuid.UUID       `gorm:"type:uuid;not null;index" json:"user_id"`
	Type       string          `gorm:"size:10;not null" json:"type"` // lend|borrow
	PersonName string          `gorm:"size:255" json:"person_name"`
	Amount     decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"amount"`
	Currency   string          `gorm:"size:10;default:'USD'" json:"currency"`
	DueDate    *time.Time      `json:"due_date"`
	Status     string          `gorm:"size:20" json:"status"` // active|settled|overdue
	Notes      string          `gorm:"type:text" json:"notes"`
	CreatedAt  time.Time       `json:"created_at"`
}

func (LendBorrow) TableName() string { return "lend_borrow" }

type DonationSavingRecord struct {
	ID        uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"user_id"`
	Type      string          `gorm:"size:20;not null" json:"type"` // donation|saving
	Amount    decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"amount"`
	Mode      string          `gorm:"size:20" json:"mode"`
	Note      string          `gorm:"type:text" json:"note"`
	CreatedAt time.Time       `json:"created_at"`
}
