package ledger

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ModelPrice is the per-million-token price of one model.
type ModelPrice struct {
	InputPerMillion  float64 `yaml:"input_per_million"`
	OutputPerMillion float64 `yaml:"output_per_million"`
}

// PriceTable maps model identifiers to prices. Unknown models price at zero
// rather than failing; the ledger is an estimate, not an invoice.
type PriceTable map[string]ModelPrice

// For returns the price entry for model, or a zero entry when unknown.
func (t PriceTable) For(model string) ModelPrice {
	return t[model]
}

// DefaultPriceTable returns the built-in prices, current as of late 2025.
// Image output is billed as output tokens by the API.
func DefaultPriceTable() PriceTable {
	return PriceTable{
		"gemini-2.5-flash":           {InputPerMillion: 0.30, OutputPerMillion: 2.50},
		"gemini-2.5-flash-image":     {InputPerMillion: 0.15, OutputPerMillion: 0.60},
		"gemini-3-pro-image-preview": {InputPerMillion: 2.00, OutputPerMillion: 12.00},
	}
}

// LoadPriceTable reads a YAML price table from path and merges it over the
// defaults, so a partial file only overrides the models it names.
func LoadPriceTable(path string) (PriceTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read price table: %w", err)
	}

	var overrides PriceTable
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parse price table: %w", err)
	}

	table := DefaultPriceTable()
	for model, price := range overrides {
		table[model] = price
	}
	return table, nil
}
