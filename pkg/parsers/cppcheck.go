package parsers

import (
	"encoding/xml"
	"fmt"
)

type cppcheckResults struct {
	XMLName xml.Name        `xml:"results"`
	Errors  []CppcheckError `xml:"errors>error"`
}

// ParseCppcheck reads the --xml-version=2 report.
func ParseCppcheck(output []byte) ([]RawFinding, error) {
	if isBlank(output) {
		return nil, nil
	}

	var doc cppcheckResults
	if err := xml.Unmarshal(output, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse cppcheck XML: %w", err)
	}

	out := make([]RawFinding, 0, len(doc.Errors))
	for _, e := range doc.Errors {
		out = append(out, e)
	}
	return out, nil
}
