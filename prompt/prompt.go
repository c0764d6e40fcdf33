// Package prompt constructs the generation prompts for cluster descriptions.
package prompt

import (
	"strings"

	"github.com/atelier-tools/goya/interp"
)

const (
	basicPrompt = `Given this image containing a sample of artworks from a cluster, generate a single sentence overall description of the cluster which must be straight to the point.
Avoid general information and focus only on the most relevant aspects of the artworks.`

	richHeader = `Given this image containing a sample of artworks from a cluster and the following lists of terms which describe it, generate a single sentence overall description of the cluster which must be straight to the point.
Avoid general information and focus only on the most relevant aspects of the artworks.
`

	richClosing = `Do generate a single sentence description using one/two terms per list.`

	// Only the strongest terms of each group make it into the prompt.
	maxTermsPerGroup = 2
)

// DefaultGroups is the attribute group order used when none is configured.
var DefaultGroups = []string{"GENRE", "TOPIC", "COLOR", "MEDIA", "STYLE"}

// Builder builds generation prompts from cluster interpretations. It is pure,
// Build performs no I/O and is deterministic for a given input.
type Builder struct {
	groups []string
}

// NewBuilder returns a Builder using the given attribute group order, or
// DefaultGroups when empty.
func NewBuilder(groups []string) *Builder {
	if len(groups) == 0 {
		groups = DefaultGroups
	}
	return &Builder{groups: groups}
}

// Groups returns the configured attribute group order.
func (b *Builder) Groups() []string { return b.groups }

// Build returns the prompt for one cluster. In basic mode (comprehensive
// false) the interpretation is ignored entirely and the fixed basic prompt is
// returned, it may even be nil. In comprehensive mode the configured group
// names are paired positionally with the interpretation's groups and each
// contributes a "<NAME>: term1, term2;" line using its top terms by weight.
func (b *Builder) Build(in interp.Interpretation, comprehensive bool) string {
	if !comprehensive {
		return basicPrompt
	}

	var sb strings.Builder
	sb.WriteString(richHeader)
	for i, name := range b.groups {
		if i >= len(in) {
			break
		}
		sb.WriteString(name)
		sb.WriteString(": ")
		sb.WriteString(strings.Join(in[i].TopTerms(maxTermsPerGroup), ", "))
		sb.WriteString(";\n")
	}
	sb.WriteString(richClosing)

	return sb.String()
}
