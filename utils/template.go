package utils

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{\{([A-Za-z0-9_]+)\}\}`)

// RenderTemplate substitutes {{fieldName}} tokens with recipient fields.
// An unresolved placeholder is left as literal text and reported back so the
// caller can flag it; rendering never fails.
func RenderTemplate(content string, fields map[string]string) (string, []string) {
	var missing []string
	rendered := placeholderRe.ReplaceAllStringFunc(content, func(token string) string {
		name := strings.ToLower(placeholderRe.FindStringSubmatch(token)[1])
		if value, ok := fields[name]; ok {
			return value
		}
		missing = append(missing, name)
		return token
	})
	return rendered, missing
}

// ExtractSubject pulls a subject from the first lines of a template body:
// either a "Subject:" prefix or a markdown "# " heading.
func ExtractSubject(content string) string {
	lines := strings.Split(content, "\n")
	if len(lines) > 10 {
		lines = lines[:10]
	}
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if lower := strings.ToLower(line); strings.HasPrefix(lower, "subject:") {
			return strings.TrimSpace(line[len("subject:"):])
		}
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(line[2:])
		}
	}
	return ""
}

// ComplianceFooter builds the opt-out footer appended to every outgoing
// body. The physical address is included when configured.
func ComplianceFooter(senderName, optOutURL, physicalAddress string) string {
	var b strings.Builder
	b.WriteString("\n\n")
	b.WriteString(strings.Repeat("-", 60))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "You received this as professional outreach from %s.\n\n", senderName)
	if optOutURL != "" {
		fmt.Fprintf(&b, "To unsubscribe: %s\n", optOutURL)
	} else {
		b.WriteString("To unsubscribe: reply with 'UNSUBSCRIBE' in the subject line.\n")
	}
	if physicalAddress != "" {
		fmt.Fprintf(&b, "\nPhysical address: %s\n", physicalAddress)
	}
	b.WriteString("\nWe honor all opt-out requests immediately.")
	return b.String()
}
