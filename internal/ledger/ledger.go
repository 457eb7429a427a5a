// Package ledger keeps an append-only log of remote-call cost estimates.
// Costs are computed once at append time from a static price table and never
// recomputed; they are estimates for the usage table, not billing truth.
package ledger

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"
)

// Record is one cost-estimate entry for a single remote call.
type Record struct {
	ID           string    `json:"id" parquet:"id"`
	Timestamp    time.Time `json:"timestamp" parquet:"timestamp"`
	Action       string    `json:"action" parquet:"action"`
	Model        string    `json:"model" parquet:"model"`
	InputTokens  int64     `json:"input_tokens" parquet:"input_tokens"`
	OutputTokens int64     `json:"output_tokens" parquet:"output_tokens"`
	CostUSD      float64   `json:"cost_usd" parquet:"cost_usd"`
}

type Ledger struct {
	mu      sync.Mutex
	prices  PriceTable
	records []Record
}

func New(prices PriceTable) *Ledger {
	if prices == nil {
		prices = DefaultPriceTable()
	}
	return &Ledger{prices: prices}
}

// Record appends a cost estimate for one remote call.
func (l *Ledger) Record(action, model string, inputTokens, outputTokens int) {
	price := l.prices.For(model)
	cost := float64(inputTokens)/1e6*price.InputPerMillion +
		float64(outputTokens)/1e6*price.OutputPerMillion

	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, Record{
		ID:           uuid.NewString(),
		Timestamp:    time.Now(),
		Action:       action,
		Model:        model,
		InputTokens:  int64(inputTokens),
		OutputTokens: int64(outputTokens),
		CostUSD:      cost,
	})
}

// Records returns a copy of all entries, oldest first.
func (l *Ledger) Records() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

// TotalCost sums the estimated cost of every entry.
func (l *Ledger) TotalCost() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var total float64
	for _, r := range l.records {
		total += r.CostUSD
	}
	return total
}

// ExportParquet writes all entries to w as a parquet file.
func (l *Ledger) ExportParquet(w io.Writer) error {
	records := l.Records()

	writer := parquet.NewGenericWriter[Record](w)
	if len(records) > 0 {
		if _, err := writer.Write(records); err != nil {
			return fmt.Errorf("write parquet rows: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}
