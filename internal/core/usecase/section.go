package usecase

import (
	"regexp"
	"strings"
)

var sectionReferencePattern = regexp.MustCompile(`(?i)\bItem\s+(\d+[A-Za-z]?)\b`)

// detectSectionReference maps "item 1a" style mentions to the stored section id "ITEM 1A.".
func detectSectionReference(query string) (string, bool) {
	m := sectionReferencePattern.FindStringSubmatch(query)
	if m == nil {
		return "", false
	}
	return "ITEM " + strings.ToUpper(m[1]) + ".", true
}
