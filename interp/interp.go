// Package interp holds the structured cluster interpretations produced by the
// clustering stage and consumed by the description pipeline.
package interp

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Term is a single ranked term describing a cluster along one attribute.
// Weight is a relevance score, higher is more relevant. Weights are not
// required to sum to 1.
type Term struct {
	Label  string
	Weight float64
}

// UnmarshalJSON accepts either the compact ["label", weight] pair form
// produced by the clustering stage or a {"label": ..., "weight": ...} object.
func (t *Term) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err == nil {
		if len(pair) != 2 {
			return fmt.Errorf("term pair has %d elements, want 2", len(pair))
		}
		if err := json.Unmarshal(pair[0], &t.Label); err != nil {
			return fmt.Errorf("term label: %w", err)
		}
		if err := json.Unmarshal(pair[1], &t.Weight); err != nil {
			return fmt.Errorf("term weight: %w", err)
		}
		return nil
	}

	var obj struct {
		Label  string  `json:"label"`
		Weight float64 `json:"weight"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	t.Label, t.Weight = obj.Label, obj.Weight
	return nil
}

// MarshalJSON writes the compact pair form.
func (t Term) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{t.Label, t.Weight})
}

// AttributeGroup is an ordered list of terms describing a cluster along one
// attribute (e.g. GENRE or COLOR), ordered by descending weight. Name may be
// empty in loaded artifacts, the configured group order supplies it.
type AttributeGroup struct {
	Name  string
	Terms []Term
}

// UnmarshalJSON accepts either a bare term list or a named
// {"name": ..., "terms": [...]} object.
func (g *AttributeGroup) UnmarshalJSON(data []byte) error {
	var terms []Term
	if err := json.Unmarshal(data, &terms); err == nil {
		g.Name, g.Terms = "", terms
		return nil
	}

	var obj struct {
		Name  string `json:"name"`
		Terms []Term `json:"terms"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	g.Name, g.Terms = obj.Name, obj.Terms
	return nil
}

// MarshalJSON writes the bare term list form.
func (g AttributeGroup) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.Terms)
}

// TopTerms returns the labels of the n highest-weighted terms, fewer if the
// group holds fewer. The group's own ordering is not trusted.
func (g AttributeGroup) TopTerms(n int) []string {
	terms := make([]Term, len(g.Terms))
	copy(terms, g.Terms)
	sort.SliceStable(terms, func(i, j int) bool { return terms[i].Weight > terms[j].Weight })

	if n > len(terms) {
		n = len(terms)
	}
	labels := make([]string, n)
	for i := range labels {
		labels[i] = terms[i].Label
	}
	return labels
}

// Interpretation is the full structured description of one cluster: one
// AttributeGroup per configured group name, in the configured group order.
type Interpretation []AttributeGroup

// Load reads the interpretations artifact at path, a JSON blob keyed by
// "interps" holding one Interpretation per cluster in cluster order.
func Load(path string) ([]Interpretation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read interpretations: %w", err)
	}

	var artifact struct {
		Interps []Interpretation `json:"interps"`
	}
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("parse interpretations: %w", err)
	}
	return artifact.Interps, nil
}
