package square

import "github.com/omnipos/catalog-sync/internal/models"

// CatalogPage is one page of the upstream catalog listing. An empty
// Cursor means the listing is exhausted.
type CatalogPage struct {
	Objects []CatalogObject `json:"objects"`
	Cursor  string          `json:"cursor"`
}

// CatalogObject is an upstream catalog entry. Only ITEM objects carry
// item data; variations are nested under their parent item.
type CatalogObject struct {
	Type      string    `json:"type"`
	ID        string    `json:"id"`
	Version   int64     `json:"version"`
	IsDeleted bool      `json:"is_deleted"`
	ItemData  *ItemData `json:"item_data,omitempty"`
}

type ItemData struct {
	Name       string            `json:"name"`
	CategoryID string            `json:"category_id,omitempty"`
	Variations []VariationObject `json:"variations,omitempty"`
}

// VariationObject is an ITEM_VARIATION entry nested under its item.
type VariationObject struct {
	Type          string         `json:"type"`
	ID            string         `json:"id"`
	Version       int64          `json:"version"`
	IsDeleted     bool           `json:"is_deleted"`
	VariationData *VariationData `json:"item_variation_data,omitempty"`
}

type VariationData struct {
	ItemID     string `json:"item_id"`
	Name       string `json:"name"`
	SKU        string `json:"sku,omitempty"`
	PriceMoney *Money `json:"price_money,omitempty"`
}

type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// Products flattens an ITEM object into one local product per
// variation. Non-item objects and items without variations yield nil.
func (o *CatalogObject) Products(integrationID, source string) []*models.Product {
	if o.Type != "ITEM" || o.ItemData == nil {
		return nil
	}

	var products []*models.Product
	for _, v := range o.ItemData.Variations {
		if v.VariationData == nil {
			continue
		}

		product := &models.Product{
			IntegrationID:       integrationID,
			Source:              source,
			ExternalItemID:      o.ID,
			ExternalVariationID: v.ID,
			Name:                o.ItemData.Name,
			VariationName:       v.VariationData.Name,
			SKU:                 v.VariationData.SKU,
			Category:            o.ItemData.CategoryID,
			UpstreamVersion:     v.Version,
			Deleted:             o.IsDeleted || v.IsDeleted,
		}
		if v.VariationData.PriceMoney != nil {
			product.PriceCents = v.VariationData.PriceMoney.Amount
			product.Currency = v.VariationData.PriceMoney.Currency
		}
		products = append(products, product)
	}

	return products
}
