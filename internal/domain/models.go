// Package domain defines the persistence models for garments, the merchant
// profile, and the try-on history, plus the value types produced by the
// try-on pipeline. The persisted types are mapped with GORM and form the core
// data layer of the application.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Garment represents a sellable inventory item owned by the boutique. Each
// garment is addressable by a QR deep link carrying its ID.
//
// Fields:
//   - ID: stable UUID primary key (char(36)); encoded into printed QR codes,
//     so it must never change once created.
//   - Name / Description: shopper-facing copy, also fed into the generation
//     instruction text.
//   - ImageURL: either an embedded data-URI or a remote URL. Remote URLs go
//     through the fetch fallback chain before generation.
//   - Price: non-negative, in the boutique's display currency.
//   - BoutiqueName: denormalized boutique display name.
//   - ShopURL: optional purchase link shown next to a successful result.
//   - DeletedAt: soft deletion marker; history snapshots outlive deletion.
type Garment struct {
	ID           string         `json:"id"            gorm:"type:char(36);primaryKey"`
	Name         string         `json:"name"          gorm:"type:varchar(255);not null"`
	Description  string         `json:"description"   gorm:"type:text"`
	ImageURL     string         `json:"imageUrl"      gorm:"type:text;not null"`
	Price        float64        `json:"price"         gorm:"not null;check:price >= 0"`
	BoutiqueName string         `json:"boutiqueName"  gorm:"type:varchar(255)"`
	ShopURL      string         `json:"shopUrl,omitempty" gorm:"type:text"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-"             gorm:"index"`
}

// TableName returns the database table name for Garment.
func (Garment) TableName() string { return "garments" }

// MerchantProfile holds the boutique account: branding, the optional
// profile-scoped Gemini key, and the prepaid credit balance that gates the
// try-on pipeline.
//
// Invariant: Credits >= 0 always. A try-on request must not be serviced when
// Credits <= 0, and the ledger decrements exactly once per confirmed success.
type MerchantProfile struct {
	ID           string    `json:"id"            gorm:"type:varchar(64);primaryKey"`
	Name         string    `json:"name"          gorm:"type:varchar(255);not null"`
	LogoURL      string    `json:"logoUrl,omitempty"     gorm:"type:text"`
	PaymentLink  string    `json:"paymentLink,omitempty" gorm:"type:text"`
	GeminiAPIKey string    `json:"-"             gorm:"type:text"`
	Credits      int       `json:"credits"       gorm:"not null;default:0;check:credits >= 0"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for MerchantProfile.
func (MerchantProfile) TableName() string { return "merchant_profiles" }

// HistoryItem records one successful try-on. The garment is stored as a
// snapshot (not a foreign key) so the entry stays renderable after the
// garment is deleted from inventory. Entries are append-only, capped at the
// configured limit (oldest evicted first), and cleared only by explicit user
// action. The auto-increment ID doubles as the append order, which keeps
// eviction deterministic even when two entries land in the same millisecond.
type HistoryItem struct {
	ID             uint64    `json:"id"        gorm:"primaryKey;autoIncrement"`
	Timestamp      time.Time `json:"timestamp" gorm:"not null;index"`
	GarmentID      string    `json:"garment_id"      gorm:"type:char(36);not null"`
	GarmentName    string    `json:"garment_name"    gorm:"type:varchar(255);not null"`
	GarmentImage   string    `json:"garment_image"   gorm:"type:text"`
	BoutiqueName   string    `json:"boutique_name"   gorm:"type:varchar(255)"`
	ShopURL        string    `json:"shop_url,omitempty" gorm:"type:text"`
	ResultImageURL string    `json:"result_image_url" gorm:"type:text;not null"`
}

// TableName returns the database table name for HistoryItem.
func (HistoryItem) TableName() string { return "history_items" }

// GarmentSnapshot converts the stored snapshot columns back into a Garment
// value for display. The snapshot keeps only what the history view needs.
func (h HistoryItem) GarmentSnapshot() Garment {
	return Garment{
		ID:           h.GarmentID,
		Name:         h.GarmentName,
		ImageURL:     h.GarmentImage,
		BoutiqueName: h.BoutiqueName,
		ShopURL:      h.ShopURL,
	}
}
