package models

import (
	"fmt"
	"strings"
)

// Classification is the router's verdict on how a query should be handled.
type Classification string

const (
	ClassificationAnswer  Classification = "ANSWER"
	ClassificationClarify Classification = "CLARIFY"
	ClassificationReject  Classification = "REJECT"
)

func (c Classification) Valid() bool {
	switch c {
	case ClassificationAnswer, ClassificationClarify, ClassificationReject:
		return true
	}
	return false
}

// Citation maps a 1-based index to the label of a document used in a prompt.
type Citation struct {
	Index int    `json:"index"`
	Label string `json:"label"`
}

func (c Citation) String() string {
	return fmt.Sprintf("[%d] %s", c.Index, c.Label)
}

// Answer is a generated response and the citations of the documents that
// were placed in its prompt.
type Answer struct {
	Text      string
	Citations []Citation
	// Refined is set when the confidence gate triggered a refinement.
	Refined bool
	// LowConfidence is set when the returned text still failed the gate.
	LowConfidence bool
}

// SourcesFooter renders the citations as "Sources: [1] a, [2] b", or "" when
// there are none.
func SourcesFooter(citations []Citation) string {
	if len(citations) == 0 {
		return ""
	}
	parts := make([]string, len(citations))
	for i, c := range citations {
		parts[i] = c.String()
	}
	return "Sources: " + strings.Join(parts, ", ")
}

// String returns the answer text followed by its sources footer.
func (a Answer) String() string {
	footer := SourcesFooter(a.Citations)
	if footer == "" {
		return a.Text
	}
	return a.Text + "\n\n" + footer
}
