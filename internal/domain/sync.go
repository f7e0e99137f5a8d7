package domain

// SyncClient tracks the last mutation applied for one client of a client group.
type SyncClient struct {
	ID             string `gorm:"primaryKey;type:text"`
	ClientGroupID  string `gorm:"type:text;not null;index"`
	UserID         string `gorm:"type:text;not null"`
	LastMutationID int64  `gorm:"not null;default:0"`
	Version        int64  `gorm:"not null"`
}

func (SyncClient) TableName() string { return "sync_clients" }
