package analysis

import "strings"

// CausesMarker introduces the bulleted cause list in a single-feedback analysis.
const CausesMarker = "Main Causes:"

// ExtractCauses returns the lowercased bullet items that follow the first
// "Main Causes:" marker, in order and with duplicates kept. Text without the
// marker yields an empty slice.
func ExtractCauses(analysis string) []string {
	parts := strings.Split(analysis, CausesMarker)
	if len(parts) < 2 {
		return []string{}
	}

	causes := []string{}
	for _, line := range strings.Split(parts[1], "\n") {
		if !strings.HasPrefix(strings.TrimSpace(line), "-") {
			continue
		}
		causes = append(causes, strings.ToLower(strings.TrimSpace(trimBullet(line))))
	}
	return causes
}

// trimBullet strips dashes and spaces from both ends of a line.
func trimBullet(line string) string {
	return strings.Trim(line, "- ")
}
