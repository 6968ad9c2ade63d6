package assets

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/ChuprinaDaria/yoga-bot/internal/domain"
)

//go:embed catalog.json
var catalogJSON []byte

// Catalog is the built-in course content, in delivery order.
type Catalog struct {
	items []domain.ContentItem
}

// LoadCatalog parses the embedded catalog.
func LoadCatalog() (*Catalog, error) {
	var items []domain.ContentItem
	if err := json.Unmarshal(catalogJSON, &items); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	for i, it := range items {
		if it.Code == "" || it.Caption == "" {
			return nil, fmt.Errorf("catalog item %d: code and caption are required", i)
		}
	}
	return &Catalog{items: items}, nil
}

// Items returns a copy of the catalog.
func (c *Catalog) Items(context.Context) ([]domain.ContentItem, error) {
	out := make([]domain.ContentItem, len(c.items))
	copy(out, c.items)
	return out, nil
}
