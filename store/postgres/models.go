package postgres

import (
	"encoding/json"
	"fmt"
	"time"
)

// A document represents one stored document in the database. The path is
// the full logical path; nesting is reconstructed on read.
type document struct {
	Path      string          `bun:",pk"`
	Value     json.RawMessage `bun:"value,type:jsonb,notnull"`
	UpdatedAt time.Time       `bun:",nullzero,default:now()"`
}

func newDocument(path string, value any) (*document, error) {
	blob, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode document %s: %w", path, err)
	}
	return &document{Path: path, Value: blob}, nil
}

func (d document) decode(dst any) error {
	if err := json.Unmarshal(d.Value, dst); err != nil {
		return fmt.Errorf("decode document %s: %w", d.Path, err)
	}
	return nil
}
