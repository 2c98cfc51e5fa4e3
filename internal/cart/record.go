package cart

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/noah-isme/storefront-cart/internal/coupon"
	"github.com/noah-isme/storefront-cart/internal/storage"
	"github.com/noah-isme/storefront-cart/internal/wishlist"
)

// RecordVersion is written to every persisted record.
const RecordVersion = "1.0"

// Record is the persisted layout of one cart.
type Record struct {
	Items            []Item          `json:"items"`
	Wishlist         []wishlist.Item `json:"wishlist,omitempty"`
	AppliedCoupons   []coupon.Coupon `json:"appliedCoupons,omitempty"`
	SelectedShipping string          `json:"selectedShipping,omitempty"`
	LastModified     int64           `json:"lastModified"`
	Version          string          `json:"version"`
}

// ModifiedAt converts the epoch millisecond stamp.
func (r Record) ModifiedAt() time.Time {
	if r.LastModified <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(r.LastModified).UTC()
}

// EncodeRecord serialises r, filling in the version.
func EncodeRecord(r Record) ([]byte, error) {
	r.Version = RecordVersion
	if r.Items == nil {
		r.Items = []Item{}
	}
	return json.Marshal(r)
}

// DecodeRecord parses a stored record and sanitises its items. An empty
// payload is an empty record. Corrupt payloads and unknown versions return an
// empty record together with the reason.
func DecodeRecord(data []byte) (Record, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Record{Version: RecordVersion}, nil
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{Version: RecordVersion}, fmt.Errorf("decode cart record: %w", err)
	}
	if r.Version != RecordVersion {
		return Record{Version: RecordVersion}, fmt.Errorf("version %q: %w", r.Version, storage.ErrVersionMismatch)
	}
	r.Items = sanitizeItems(r.Items)
	return r, nil
}
