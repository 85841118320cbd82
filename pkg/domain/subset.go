package domain

import (
	"encoding/json"

	"skylink/pkg/errors"
)

// Style carries the visual attributes renderers apply to subset layers.
type Style struct {
	Color   string  `json:"color,omitempty"`
	Opacity float64 `json:"opacity,omitempty"`
}

// Subset is a named, globally defined selection predicate. It is evaluated
// independently against each dataset it is displayed with.
type Subset struct {
	ID        SubsetID `json:"id"`
	Label     string   `json:"label,omitempty"`
	Predicate Expr     `json:"-"`
	Style     Style    `json:"style"`
}

type subsetJSON struct {
	ID        SubsetID        `json:"id"`
	Label     string          `json:"label,omitempty"`
	Predicate json.RawMessage `json:"predicate"`
	Style     Style           `json:"style"`
}

// MarshalJSON encodes the subset including its predicate tree.
func (s Subset) MarshalJSON() ([]byte, error) {
	pred, err := MarshalExpr(s.Predicate)
	if err != nil {
		return nil, errors.Wrapf(err, "encode subset %s", s.ID)
	}
	return json.Marshal(subsetJSON{ID: s.ID, Label: s.Label, Predicate: pred, Style: s.Style})
}

// UnmarshalJSON decodes a subset produced by MarshalJSON.
func (s *Subset) UnmarshalJSON(data []byte) error {
	var raw subsetJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	pred, err := UnmarshalExpr(raw.Predicate)
	if err != nil {
		return errors.Wrapf(err, "decode subset %s", raw.ID)
	}
	*s = Subset{ID: raw.ID, Label: raw.Label, Predicate: pred, Style: raw.Style}
	return nil
}
