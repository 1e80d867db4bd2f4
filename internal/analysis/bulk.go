package analysis

import "strings"

// Section headers of a bulk analysis response.
const (
	IssuesHeader       = "Top 5 Recurring Issues:"
	ImprovementsHeader = "Suggested Improvements:"
	RootCausesHeader   = "Potential Root Causes:"
)

// RecurringIssueRow is one issue from a bulk analysis with its suggested
// improvements and, when the response linked one, its root cause.
type RecurringIssueRow struct {
	Issue        string   `json:"issue"`
	Improvements []string `json:"improvements"`
	RootCause    string   `json:"root_cause"`
}

// JoinedImprovements renders the improvements as one comma separated cell.
func (r RecurringIssueRow) JoinedImprovements() string {
	return strings.Join(r.Improvements, ", ")
}

type section int

const (
	sectionNone section = iota
	sectionIssues
	sectionImprovements
	sectionRootCauses
)

func (s section) String() string {
	switch s {
	case sectionIssues:
		return "issues"
	case sectionImprovements:
		return "improvements"
	case sectionRootCauses:
		return "root_causes"
	default:
		return "none"
	}
}

// transitions maps header lines to the section they open. A header moves the
// parser from any section, including the one it is already in.
var transitions = []struct {
	header string
	to     section
}{
	{IssuesHeader, sectionIssues},
	{ImprovementsHeader, sectionImprovements},
	{RootCausesHeader, sectionRootCauses},
}

// blockPrefixes start a new improvements block. Only the first five list
// numbers are recognised; "6." and beyond, "10." included, never start one.
var blockPrefixes = []string{"1.", "2.", "3.", "4.", "5."}

// bulkParser holds the state of one left-to-right scan.
type bulkParser struct {
	state        section
	issue        string
	improvements []string
	rows         []RecurringIssueRow
}

// ParseBulk turns a bulk analysis response into recurring issue rows, ordered
// by when their improvements block closed. Unrecognised text is ignored.
func ParseBulk(text string) []RecurringIssueRow {
	p := &bulkParser{}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	for _, line := range strings.Split(text, "\n") {
		p.feed(line)
	}
	p.flush()
	if p.rows == nil {
		return []RecurringIssueRow{}
	}
	return p.rows
}

func (p *bulkParser) feed(line string) {
	if next, ok := nextSection(line); ok {
		p.state = next
		return
	}
	if strings.TrimSpace(line) == "" {
		return
	}
	switch p.state {
	case sectionIssues:
		p.issueLine(line)
	case sectionImprovements:
		p.improvementLine(line)
	case sectionRootCauses:
		p.rootCauseLine(line)
	}
}

func nextSection(line string) (section, bool) {
	for _, t := range transitions {
		if strings.Contains(line, t.header) {
			return t.to, true
		}
	}
	return sectionNone, false
}

// issueLine keeps only the latest issue name; rows come from the
// improvements section.
func (p *bulkParser) issueLine(line string) {
	if _, rest, ok := strings.Cut(line, ". "); ok {
		p.issue = rest
		return
	}
	p.issue = line
}

func (p *bulkParser) improvementLine(line string) {
	if startsBlock(line) {
		p.flush()
		if _, rest, ok := strings.Cut(line, ": "); ok {
			p.issue = rest
		} else {
			p.issue = line
		}
		return
	}
	if strings.HasPrefix(strings.TrimSpace(line), "-") {
		p.improvements = append(p.improvements, strings.TrimSpace(trimBullet(line)))
	}
}

// rootCauseLine attaches a cause to the first closed row whose issue equals
// the text before ": " exactly. Anything else is dropped.
func (p *bulkParser) rootCauseLine(line string) {
	issue, cause, ok := strings.Cut(line, ": ")
	if !ok {
		return
	}
	for i := range p.rows {
		if p.rows[i].Issue == issue {
			p.rows[i].RootCause = cause
			return
		}
	}
}

func (p *bulkParser) flush() {
	if len(p.improvements) == 0 {
		return
	}
	p.rows = append(p.rows, RecurringIssueRow{
		Issue:        p.issue,
		Improvements: p.improvements,
	})
	p.improvements = nil
}

func startsBlock(line string) bool {
	for _, prefix := range blockPrefixes {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}
