package models

import "time"

// Product is a local catalog row linked to one upstream POS variation.
// The (Source, ExternalItemID, ExternalVariationID) triple is the
// upsert key used by the import runner.
type Product struct {
	ID                  int64     `json:"-"`
	IntegrationID       string    `json:"integration_id"`
	Source              string    `json:"source"`
	ExternalItemID      string    `json:"external_item_id"`
	ExternalVariationID string    `json:"external_variation_id"`
	Name                string    `json:"name"`
	VariationName       string    `json:"variation_name,omitempty"`
	SKU                 string    `json:"sku,omitempty"`
	PriceCents          int64     `json:"price_cents"`
	Currency            string    `json:"currency,omitempty"`
	Category            string    `json:"category,omitempty"`
	UpstreamVersion     int64     `json:"upstream_version"`
	Deleted             bool      `json:"deleted"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// UpsertResult reports how a batch of product upserts landed.
type UpsertResult struct {
	Created int
	Updated int
}
