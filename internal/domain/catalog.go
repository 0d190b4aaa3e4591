package domain

// NotAvailable marks a missing end date in a symbol catalog.
const NotAvailable = "N/A"

// CatalogEntry describes one exchange-native symbol.
type CatalogEntry struct {
	EndDaily  string `json:"end_daily"`
	EndMinute string `json:"end_minute"`
	StartDate string `json:"start_date"`
	Symbol    string `json:"symbol"`
}

// Catalog maps exchange-native symbols to their entries.
type Catalog map[string]CatalogEntry
