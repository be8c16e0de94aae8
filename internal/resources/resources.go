// Package resources serves the static documents advertised through
// resources/list and resources/read.
package resources

import (
	_ "embed"
	"fmt"
)

// ReportPromptURI names the influence-report runbook.
const ReportPromptURI = "legislator-influence-report-prompt"

//go:embed report.md
var reportPrompt string

// Resource is the descriptor returned by resources/list.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType"`
}

// Contents is one entry of a resources/read result.
type Contents struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType"`
	Text     string `json:"text"`
}

// NotFoundError reports a read of an unknown URI.
type NotFoundError struct {
	URI string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("resource not found: %s", e.URI)
}

type entry struct {
	Resource
	text string
}

var catalog = []entry{
	{
		Resource: Resource{
			URI:         ReportPromptURI,
			Name:        "Legislator Influence Report Template",
			Description: "Runbook for correlating donor themes with a legislator's votes around a session window.",
			MimeType:    "text/markdown",
		},
		text: reportPrompt,
	},
}

// List returns every resource in declaration order.
func List() []Resource {
	out := make([]Resource, 0, len(catalog))
	for _, e := range catalog {
		out = append(out, e.Resource)
	}
	return out
}

// Read returns the contents behind uri.
func Read(uri string) ([]Contents, error) {
	for _, e := range catalog {
		if e.URI == uri {
			return []Contents{{URI: e.URI, MimeType: e.MimeType, Text: e.text}}, nil
		}
	}
	return nil, &NotFoundError{URI: uri}
}
