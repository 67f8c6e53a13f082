package models

import "time"

// Contact is a followed peer. Discovery polls every contact.
type Contact struct {
	Pubkey    string    `json:"pubkey" gorm:"column:pubkey;primaryKey"`
	Name      string    `json:"name" gorm:"column:name"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
}

func (Contact) TableName() string {
	return "contacts"
}

// KeyNoisePublicKey is the keychain entry holding the local Noise static public key.
const KeyNoisePublicKey = "noise_public_key"

// KeychainEntry is a named piece of local key material metadata.
type KeychainEntry struct {
	Name      string    `gorm:"column:name;primaryKey"`
	Value     string    `gorm:"column:value;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (KeychainEntry) TableName() string {
	return "keychain_entries"
}
