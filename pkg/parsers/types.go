package parsers

import (
	"iter"
	"slices"

	"scanhub/pkg/tools"
)

// RawFinding is one finding in the shape its tool emitted it. The concrete
// types below are the only implementations.
type RawFinding interface {
	rawFinding()
}

// RawFindings is the ordered output of one adapter run. Root is the directory
// the tool analyzed.
type RawFindings struct {
	Tool  tools.ToolName
	Root  string
	items []RawFinding
}

func NewRawFindings(tool tools.ToolName, items []RawFinding) RawFindings {
	return RawFindings{Tool: tool, items: items}
}

// All yields findings lazily in the order the tool reported them.
func (r RawFindings) All() iter.Seq[RawFinding] {
	return slices.Values(r.items)
}

func (r RawFindings) Len() int {
	return len(r.items)
}

type Position struct {
	Line int `json:"line"`
	Col  int `json:"col"`
}

type SemgrepResult struct {
	CheckID string   `json:"check_id"`
	Path    string   `json:"path"`
	Start   Position `json:"start"`
	End     Position `json:"end"`
	Extra   struct {
		// Message is a string in current releases and {"text": ...} in some
		// older ones.
		Message  any    `json:"message"`
		Severity string `json:"severity"`
		Fix      string `json:"fix"`
		Metadata struct {
			CWE        any      `json:"cwe"`
			References []string `json:"references"`
			Category   string   `json:"category"`
		} `json:"metadata"`
	} `json:"extra"`
}

type CppcheckLocation struct {
	File   string `xml:"file,attr"`
	Line   int    `xml:"line,attr"`
	Column int    `xml:"column,attr"`
	Info   string `xml:"info,attr"`
}

type CppcheckError struct {
	ID        string             `xml:"id,attr"`
	Severity  string             `xml:"severity,attr"`
	Msg       string             `xml:"msg,attr"`
	Verbose   string             `xml:"verbose,attr"`
	CWE       int                `xml:"cwe,attr"`
	Locations []CppcheckLocation `xml:"location"`
}

type ClangTidyDiagnostic struct {
	File    string
	Line    int
	Column  int
	Level   string
	Message string
	Check   string
}

type FlawfinderHit struct {
	File       string
	Line       int
	Column     int
	Level      int
	Category   string
	Name       string
	Warning    string
	Suggestion string
	CWEs       string
	HelpURI    string
}

type BanditIssue struct {
	Filename        string `json:"filename"`
	LineNumber      int    `json:"line_number"`
	ColOffset       int    `json:"col_offset"`
	IssueSeverity   string `json:"issue_severity"`
	IssueConfidence string `json:"issue_confidence"`
	IssueText       string `json:"issue_text"`
	TestID          string `json:"test_id"`
	TestName        string `json:"test_name"`
	MoreInfo        string `json:"more_info"`
	IssueCWE        struct {
		ID   int    `json:"id"`
		Link string `json:"link"`
	} `json:"issue_cwe"`
}

type ESLintMessage struct {
	FilePath string `json:"-"`
	RuleID   string `json:"ruleId"`
	Severity int    `json:"severity"`
	Message  string `json:"message"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
}

type NpmAuditAdvisory struct {
	Manifest string `json:"-"`
	Package  string `json:"name"`
	Severity string `json:"severity"`
	Range    string `json:"range"`
	// Via holds package names and advisory objects mixed.
	Via          []any `json:"via"`
	FixAvailable any   `json:"fixAvailable"`
}

type TrivyVulnerability struct {
	Target           string   `json:"-"`
	VulnerabilityID  string   `json:"VulnerabilityID"`
	PkgName          string   `json:"PkgName"`
	InstalledVersion string   `json:"InstalledVersion"`
	FixedVersion     string   `json:"FixedVersion"`
	Severity         string   `json:"Severity"`
	Title            string   `json:"Title"`
	Description      string   `json:"Description"`
	PrimaryURL       string   `json:"PrimaryURL"`
	References       []string `json:"References"`
	CweIDs           []string `json:"CweIDs"`
}

type TrivyMisconfiguration struct {
	Target        string   `json:"-"`
	ID            string   `json:"ID"`
	Title         string   `json:"Title"`
	Description   string   `json:"Description"`
	Message       string   `json:"Message"`
	Severity      string   `json:"Severity"`
	Resolution    string   `json:"Resolution"`
	PrimaryURL    string   `json:"PrimaryURL"`
	References    []string `json:"References"`
	CauseMetadata struct {
		StartLine int `json:"StartLine"`
		EndLine   int `json:"EndLine"`
	} `json:"CauseMetadata"`
}

// GenericFinding is a loosely shaped JSON object from a tool configured with
// the generic output format.
type GenericFinding map[string]any

func (SemgrepResult) rawFinding()         {}
func (CppcheckError) rawFinding()         {}
func (ClangTidyDiagnostic) rawFinding()   {}
func (FlawfinderHit) rawFinding()         {}
func (BanditIssue) rawFinding()           {}
func (ESLintMessage) rawFinding()         {}
func (NpmAuditAdvisory) rawFinding()      {}
func (TrivyVulnerability) rawFinding()    {}
func (TrivyMisconfiguration) rawFinding() {}
func (GenericFinding) rawFinding()        {}
