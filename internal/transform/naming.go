package transform

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// dataSuffix marks an identifier as holding structured data by convention.
const dataSuffix = "Data"

// Kebab converts an identifier such as "heroSection" or "FAQItems" to
// hyphen-case ("hero-section", "faq-items").
func Kebab(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s) + 4)

	for i, r := range runes {
		switch {
		case r == '_' || r == ' ' || r == '-':
			if b.Len() > 0 && !strings.HasSuffix(b.String(), "-") {
				b.WriteByte('-')
			}
			continue
		case unicode.IsUpper(r) && i > 0:
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				if !strings.HasSuffix(b.String(), "-") {
					b.WriteByte('-')
				}
			}
		}
		b.WriteRune(r)
	}

	return cases.Lower(language.Und).String(strings.Trim(b.String(), "-"))
}

// DataFileName infers the data file behind an identifier that follows the
// "<name>Data" convention: heroSectionData becomes hero-section.json.
func DataFileName(ident, ext string) (string, bool) {
	if len(ident) <= len(dataSuffix) || !strings.HasSuffix(ident, dataSuffix) {
		return "", false
	}
	base := Kebab(strings.TrimSuffix(ident, dataSuffix))
	if base == "" {
		return "", false
	}
	return base + ext, true
}
