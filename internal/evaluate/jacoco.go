package evaluate

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strconv"
)

// Counter is a covered/missed pair from a coverage report.
type Counter struct {
	Covered int `json:"covered"`
	Missed  int `json:"missed"`
}

// Ratio returns covered/(covered+missed) in [0,1], zero when nothing
// was counted.
func (c Counter) Ratio() float64 {
	total := c.Covered + c.Missed
	if total == 0 {
		return 0
	}
	return float64(c.Covered) / float64(total)
}

// CoverageReport is the aggregate of all LINE and BRANCH counters in a
// JaCoCo XML report, regardless of nesting level.
type CoverageReport struct {
	Line   Counter `json:"line"`
	Branch Counter `json:"branch"`
}

// ParseCoverage reads a JaCoCo XML report. Counters appear at report,
// package, class, and method level; all are summed, matching how the
// report totals roll up when the report covers a single class.
func ParseCoverage(r io.Reader) (CoverageReport, error) {
	var report CoverageReport

	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return CoverageReport{}, fmt.Errorf("parse coverage report: %w", err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "counter" {
			continue
		}

		var typ string
		var covered, missed int
		for _, attr := range start.Attr {
			switch attr.Name.Local {
			case "type":
				typ = attr.Value
			case "covered":
				covered, _ = strconv.Atoi(attr.Value)
			case "missed":
				missed, _ = strconv.Atoi(attr.Value)
			}
		}

		switch typ {
		case "LINE":
			report.Line.Covered += covered
			report.Line.Missed += missed
		case "BRANCH":
			report.Branch.Covered += covered
			report.Branch.Missed += missed
		}
	}
	return report, nil
}

// ParseCoverageFile reads a JaCoCo XML report from disk.
func ParseCoverageFile(path string) (CoverageReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return CoverageReport{}, err
	}
	defer f.Close()
	return ParseCoverage(f)
}
