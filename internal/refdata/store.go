package refdata

import (
	"encoding/json"
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/claims-vision/internal/model"
)

const (
	// CategoryOthers is the classifier's open-ended bucket for scenes that
	// match no known category. It is analyzed with the general checklist.
	CategoryOthers = "OTHERS"

	// CategoryGeneral keys the fallback checklist used for OTHERS and for
	// categories missing from the pack.
	CategoryGeneral = "GENERAL"
)

// Store holds the reference data pack: per-category checklists and the
// action catalog. Loaded once at startup and never mutated afterwards, so
// it is safe for unsynchronized concurrent reads.
type Store struct {
	checks     map[string][]model.ChecklistItem
	categories []string
	catalog    []model.CatalogItem
}

// Load reads the checklist pack and the action catalog from JSON files and
// returns an immutable Store. The checklist file maps category keys to
// checklist item arrays; the catalog file is a flat item array.
func Load(checksPath, catalogPath string) (*Store, error) {
	checksData, err := os.ReadFile(checksPath)
	if err != nil {
		return nil, eris.Wrap(err, "refdata: read checklist pack")
	}

	var checks map[string][]model.ChecklistItem
	if err := json.Unmarshal(checksData, &checks); err != nil {
		return nil, eris.Wrap(err, "refdata: unmarshal checklist pack")
	}
	if len(checks) == 0 {
		return nil, eris.New("refdata: checklist pack is empty")
	}
	for cat, items := range checks {
		if cat != CategoryGeneral && len(items) == 0 {
			return nil, eris.Errorf("refdata: category %q has no checklist items", cat)
		}
		for _, item := range items {
			if item.ID == "" || item.Cue == "" {
				return nil, eris.Errorf("refdata: category %q has an item missing id or cue", cat)
			}
		}
	}

	catalogData, err := os.ReadFile(catalogPath)
	if err != nil {
		return nil, eris.Wrap(err, "refdata: read action catalog")
	}

	var catalog []model.CatalogItem
	if err := json.Unmarshal(catalogData, &catalog); err != nil {
		return nil, eris.Wrap(err, "refdata: unmarshal action catalog")
	}

	return New(checks, catalog), nil
}

// New builds a Store from already-parsed data. Used by Load and by tests
// that want fixture packs without touching disk.
func New(checks map[string][]model.ChecklistItem, catalog []model.CatalogItem) *Store {
	var categories []string
	for cat := range checks {
		if cat == CategoryGeneral {
			continue
		}
		categories = append(categories, cat)
	}
	sort.Strings(categories)

	return &Store{
		checks:     checks,
		categories: categories,
		catalog:    catalog,
	}
}

// Categories returns the closed category enum presented to the classifier,
// excluding the GENERAL fallback key, in sorted order.
func (s *Store) Categories() []string {
	out := make([]string, len(s.categories))
	copy(out, s.categories)
	return out
}

// ChecksFor returns the checklist for a category. The second return value
// is false when the category is not in the pack (including OTHERS), in
// which case callers should fall back to General.
func (s *Store) ChecksFor(category string) ([]model.ChecklistItem, bool) {
	if category == CategoryOthers || category == CategoryGeneral {
		return nil, false
	}
	items, ok := s.checks[category]
	return items, ok
}

// General returns the fallback checklist used for unknown categories.
// May be empty, in which case the analyzer produces no findings.
func (s *Store) General() []model.ChecklistItem {
	return s.checks[CategoryGeneral]
}

// Catalog returns all action catalog items.
func (s *Store) Catalog() []model.CatalogItem {
	return s.catalog
}

// CatalogItem looks up a catalog entry by ID.
func (s *Store) CatalogItem(id string) (model.CatalogItem, bool) {
	for _, item := range s.catalog {
		if item.ID == id {
			return item, true
		}
	}
	return model.CatalogItem{}, false
}

// MatchCategory normalizes a raw category string from the model against the
// known enum. Exact match wins; otherwise a case-insensitive substring
// match either way is accepted. Anything else maps to OTHERS.
func (s *Store) MatchCategory(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, CategoryOthers) {
		return CategoryOthers
	}

	for _, cat := range s.categories {
		if strings.EqualFold(raw, cat) {
			return cat
		}
	}

	lower := strings.ToLower(raw)
	for _, cat := range s.categories {
		catLower := strings.ToLower(cat)
		if strings.Contains(lower, catLower) || strings.Contains(catLower, lower) {
			return cat
		}
	}

	return CategoryOthers
}
