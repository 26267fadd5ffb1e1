package barcode

import (
	"regexp"
	"strings"
)

// Fields holds the tagged payload of one decoded code. The payload is
// a semicolon-separated sequence of 2-letter-tagged tokens with no
// escaping, e.g.
//
//	DDLGA;MD1;PN1;UNjane.doe;ED01.12.2025;ES12/2025;YR2025
//
// Tags not in the schema land in Extra keyed by their 2-letter prefix.
type Fields struct {
	SubjectID  string
	TenantHint string
	Username   string
	Date       string // DD.MM.YYYY
	Period     string // MM/YYYY
	Year       string
	Extra      map[string]string
}

func (f Fields) Empty() bool {
	return f.SubjectID == "" && f.TenantHint == "" && f.Username == "" &&
		f.Date == "" && f.Period == "" && f.Year == "" && len(f.Extra) == 0
}

// ParseFields extracts all tagged tokens from a raw payload. Payloads
// without a semicolon carry no tagged metadata.
func ParseFields(raw string) Fields {
	fields := Fields{}
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.Contains(raw, ";") {
		return fields
	}

	for _, part := range strings.Split(raw, ";") {
		if len(part) < 2 {
			continue
		}
		tag, value := part[:2], part[2:]
		switch tag {
		case "PN":
			fields.SubjectID = value
		case "MD":
			fields.TenantHint = value
		case "UN":
			fields.Username = value
		case "ED":
			fields.Date = value
		case "ES":
			fields.Period = value
		case "YR":
			fields.Year = value
		default:
			if isTag(tag) && value != "" {
				if fields.Extra == nil {
					fields.Extra = map[string]string{}
				}
				fields.Extra[tag] = value
			}
		}
	}
	return fields
}

func isTag(s string) bool {
	return len(s) == 2 && s[0] >= 'A' && s[0] <= 'Z' && s[1] >= 'A' && s[1] <= 'Z'
}

// Legacy payload shapes from older scanner generations. Ordered; the
// first match wins.
var legacyIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i);PN(\d+)`),
	regexp.MustCompile(`(?i)^PN(\d+)`),
	regexp.MustCompile(`(?i)PN(\d+);`),
	regexp.MustCompile(`(?i)\^1008=([^^\s]+)\^`),
	regexp.MustCompile(`(?i)\^1010=(\d+)`),
	regexp.MustCompile(`(?i)PersNr[:\s]*(\d+)`),
	regexp.MustCompile(`(?i)Personalnummer[:\s]*(\d+)`),
	regexp.MustCompile(`(?i)PersonalNr[:\s]*(\d+)`),
	regexp.MustCompile(`(?i)MA[:\s]*(\d+)`),
	regexp.MustCompile(`(?i)EmpID[:\s]*(\d+)`),
	regexp.MustCompile(`(?i)EmployeeID[:\s]*(\d+)`),
	regexp.MustCompile(`^(\d{4,8})$`),
	regexp.MustCompile(`\|(\d+)\|`),
	regexp.MustCompile(`=(\d{1,10})\^`),
}

var (
	digitsRe     = regexp.MustCompile(`\d+`)
	tokenSplitRe = regexp.MustCompile(`[|;,\s^=]+`)
)

// ParseSubjectID finds the subject (personnel) number in a raw code
// payload. Tagged payloads resolve through the PN token; older formats
// fall back through a fixed pattern list and finally to any plausible
// numeric token.
func ParseSubjectID(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	if isAllDigits(raw) {
		return raw
	}

	for _, re := range legacyIDPatterns {
		if m := re.FindStringSubmatch(raw); m != nil {
			value := m[1]
			if isAllDigits(value) {
				return value
			}
			if digits := digitsRe.FindString(value); digits != "" {
				return digits
			}
		}
	}

	if strings.Contains(raw, ";") {
		for _, part := range strings.Split(raw, ";") {
			if strings.HasPrefix(part, "PN") && len(part) > 2 {
				id := part[2:]
				if isAllDigits(id) {
					return id
				}
				if digits := digitsRe.FindString(id); digits != "" {
					return digits
				}
			}
		}
	}

	for _, part := range tokenSplitRe.Split(raw, -1) {
		if isAllDigits(part) && len(part) >= 1 && len(part) <= 10 {
			return part
		}
	}

	return ""
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
