// Package snapshot defines the wholesale persistence document: the
// entire entity set serialized as one JSON object. Durable storage,
// import/export and seed data all round-trip through this shape.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"bilancio/internal/core"
)

// Document is the full entity set plus the last-write timestamp used
// by the sync layer for last-write-wins conflict resolution.
type Document struct {
	Incomes           []core.Income            `json:"incomes"`
	Expenses          []core.Expense           `json:"expenses"`
	IncomeCategories  []core.Category          `json:"incomeCategories"`
	ExpenseCategories []core.Category          `json:"expenseCategories"`
	Cards             []core.CreditCard        `json:"cards"`
	CardPayments      []core.CardPaymentStatus `json:"cardPayments"`
	LastUpdated       time.Time                `json:"lastUpdated"`
}

// Encode serializes the document with stable indentation so exports
// diff cleanly.
func (d Document) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// Decode parses a document previously produced by Encode.
func Decode(data []byte) (Document, error) {
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return Document{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return d, nil
}

// ReadFile loads a document from disk.
func ReadFile(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("read snapshot file: %w", err)
	}
	return Decode(data)
}

// WriteFile stores the document on disk, readable only by the owner.
func WriteFile(path string, d Document) error {
	data, err := d.Encode()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write snapshot file: %w", err)
	}
	return nil
}

// Validate checks every entity in the document. Import rejects a
// document with any invalid record rather than loading it partially.
func (d Document) Validate() error {
	for _, c := range d.IncomeCategories {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("income category %s: %w", c.ID, err)
		}
	}
	for _, c := range d.ExpenseCategories {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("expense category %s: %w", c.ID, err)
		}
	}
	for _, c := range d.Cards {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("card %s: %w", c.ID, err)
		}
	}
	for _, inc := range d.Incomes {
		if err := inc.Validate(); err != nil {
			return fmt.Errorf("income %s: %w", inc.ID, err)
		}
	}
	for _, e := range d.Expenses {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("expense %s: %w", e.ID, err)
		}
	}
	for _, p := range d.CardPayments {
		if !p.Month.Valid() {
			return fmt.Errorf("card payment %s: %w", p.CardID, core.ErrInvalidMonth)
		}
	}
	return nil
}
