package store

import (
	"encoding/json"
	"fmt"

	"github.com/codeGROOVE-dev/codepulse/pkg/profile"
)

// Columns is the JSON-encoded form of the nested parts of a profile, as kept by SQL backends.
type Columns struct {
	Identity []byte
	Metrics  []byte
	Derived  []byte
	Snapshot []byte // nil when the profile has no snapshot
}

// Encode splits the nested fields of p into JSON columns.
func Encode(p *profile.Profile) (*Columns, error) {
	identity, err := json.Marshal(p.Identity)
	if err != nil {
		return nil, fmt.Errorf("encoding identity: %w", err)
	}
	metrics, err := json.Marshal(p.Metrics)
	if err != nil {
		return nil, fmt.Errorf("encoding metrics: %w", err)
	}
	derived, err := json.Marshal(p.Derived)
	if err != nil {
		return nil, fmt.Errorf("encoding derived: %w", err)
	}
	var snapshot []byte
	if len(p.RawSnapshot) > 0 {
		if !json.Valid(p.RawSnapshot) {
			return nil, fmt.Errorf("raw snapshot of %s/%s is not valid JSON", p.Platform, p.Handle)
		}
		snapshot = p.RawSnapshot
	}
	return &Columns{Identity: identity, Metrics: metrics, Derived: derived, Snapshot: snapshot}, nil
}

// Decode fills the nested fields of p from c.
func (c *Columns) Decode(p *profile.Profile) error {
	if err := json.Unmarshal(c.Identity, &p.Identity); err != nil {
		return fmt.Errorf("decoding identity: %w", err)
	}
	if err := json.Unmarshal(c.Metrics, &p.Metrics); err != nil {
		return fmt.Errorf("decoding metrics: %w", err)
	}
	if err := json.Unmarshal(c.Derived, &p.Derived); err != nil {
		return fmt.Errorf("decoding derived: %w", err)
	}
	if len(c.Snapshot) > 0 {
		p.RawSnapshot = json.RawMessage(c.Snapshot)
	}
	return nil
}
