package evaluate

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
)

// MutationReport summarizes a PIT mutations.xml report.
type MutationReport struct {
	Total  int `json:"total"`
	Killed int `json:"killed"`
}

// Score returns the fraction of mutants killed, zero when no mutants
// were generated.
func (m MutationReport) Score() float64 {
	if m.Total == 0 {
		return 0
	}
	return float64(m.Killed) / float64(m.Total)
}

type pitMutations struct {
	Mutations []pitMutation `xml:"mutation"`
}

type pitMutation struct {
	Status string `xml:"status,attr"`
}

// ParseMutations reads a PIT XML report.
func ParseMutations(r io.Reader) (MutationReport, error) {
	var doc pitMutations
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return MutationReport{}, fmt.Errorf("parse mutation report: %w", err)
	}

	report := MutationReport{Total: len(doc.Mutations)}
	for _, m := range doc.Mutations {
		if m.Status == "KILLED" {
			report.Killed++
		}
	}
	return report, nil
}

// ParseMutationsFile reads a PIT XML report from disk.
func ParseMutationsFile(path string) (MutationReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return MutationReport{}, err
	}
	defer f.Close()
	return ParseMutations(f)
}
