// package models defines the data model for the task mirroring service
package models

import "encoding/json"

// Model is implemented by every persisted entity.
type Model interface {
	Validate() error // Validate checks if the model's data is valid and returns an error if not
}

// Page describes a 1-based slice of a larger result set.
type Page struct {
	Number int `json:"page"`
	Size   int `json:"limit"`
	Total  int `json:"total"`
	Pages  int `json:"pages"`
}

// NewPage builds page metadata for total rows split into pages of size.
func NewPage(number, size, total int) Page {
	pages := 0
	if size > 0 {
		pages = (total + size - 1) / size
	}
	return Page{Number: number, Size: size, Total: total, Pages: pages}
}

// Offset returns the row offset of the page.
func (p Page) Offset() int {
	if p.Number < 1 {
		return 0
	}
	return (p.Number - 1) * p.Size
}

// RawJSON returns v as an opaque JSON blob, or nil if it cannot be encoded.
func RawJSON(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
