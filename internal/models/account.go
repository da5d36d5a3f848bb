package models

import "time"

// Owner is a tenant. Owners are created at registration, outside the worker.
type Owner struct {
	ID        string    `gorm:"column:id;primaryKey"`
	Email     string    `gorm:"column:email"`
	Name      string    `gorm:"column:name"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

// TableName specifies the table name for GORM
func (Owner) TableName() string {
	return "owner"
}

// Account is one connected mailbox with its OAuth credentials.
// Only the token columns are written by the worker.
type Account struct {
	ID             string     `gorm:"column:id;primaryKey"`
	OwnerID        string     `gorm:"column:owner_id;index"`
	MailboxAddress string     `gorm:"column:mailbox_address"`
	AccessToken    *string    `gorm:"column:access_token"`
	RefreshToken   *string    `gorm:"column:refresh_token"`
	TokenExpiresAt *time.Time `gorm:"column:token_expires_at"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
	UpdatedAt      time.Time  `gorm:"column:updated_at"`
}

// TableName specifies the table name for GORM
func (Account) TableName() string {
	return "mail_account"
}
