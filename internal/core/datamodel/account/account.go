package account

import "time"

type Account struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"column:user_id;not null;uniqueIndex" json:"user_id"`
	Credits   int64     `gorm:"column:credits;not null" json:"credits"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Account) TableName() string {
	return "accounts"
}

// CreditGrant is written in the same database transaction as the status change it pays for.
// The unique txn_id makes a second grant for one transaction impossible at the storage level.
type CreditGrant struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	TxnID     string    `gorm:"column:txn_id;not null;uniqueIndex" json:"txn_id"`
	UserID    string    `gorm:"column:user_id;not null;index" json:"user_id"`
	PlanName  string    `gorm:"column:plan_name;not null" json:"plan_name"`
	Credits   int64     `gorm:"column:credits;not null" json:"credits"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

func (CreditGrant) TableName() string {
	return "credit_grants"
}
