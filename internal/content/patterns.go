package content

import "regexp"

// Pre-compiled harmful-content patterns. First match wins within the
// family, so ordering is most-severe first.
var harmfulPatterns = []struct {
	re     *regexp.Regexp
	detail string
}{
	{regexp.MustCompile(`(?i)\b(child|minor|underage|kid)\s+(sexual|porn|nude|naked|explicit)\b`), "harmful content: child sexual content"},
	{regexp.MustCompile(`(?i)\b(sexual|porn|nude|naked|explicit)\s+(child|minor|underage|kid)\b`), "harmful content: child sexual content"},
	{regexp.MustCompile(`(?i)\b(how\s+to\s+)?(kill|murder|assassinate|poison)\s+(a\s+)?(person|someone|people|human)\b`), "harmful content: instructions to harm people"},
	{regexp.MustCompile(`(?i)\b(how\s+to\s+)?(make|build|create|construct)\s+(a\s+)?(bomb|explosive|weapon|gun|firearm)\b`), "harmful content: weapon/explosive creation instructions"},
	{regexp.MustCompile(`(?i)\b(how\s+to\s+)(commit\s+suicide|kill\s+(myself|yourself)|end\s+(my|your)\s+life)\b`), "harmful content: suicide instructions"},
	{regexp.MustCompile(`(?i)\b(methods|ways)\s+(of|to|for)\s+(committing\s+)?suicide\b`), "harmful content: suicide methods"},
	{regexp.MustCompile(`(?i)\b(synthesize|manufacture|produce|cook)\s+(methamphetamine|fentanyl|heroin|cocaine|meth)\b`), "harmful content: drug manufacturing instructions"},
	{regexp.MustCompile(`(?i)\b(how\s+to\s+)(hack|breach|break\s+into)\s+(a\s+)?(bank|government|military)\s+(system|server|database|network)\b`), "harmful content: attack instructions for critical systems"},
}

// Pre-compiled sensitive-topic patterns. These flag content the operator
// may not want an agent to produce unsupervised, distinct from outright
// harmful material.
var sensitivePatterns = []struct {
	re     *regexp.Regexp
	detail string
}{
	{regexp.MustCompile(`(?i)\b(medical|health)\s+(diagnosis|advice|treatment)\b`), "sensitive topic: medical advice"},
	{regexp.MustCompile(`(?i)\byou\s+(should|must)\s+(invest|buy|sell|short)\b`), "sensitive topic: financial advice"},
	{regexp.MustCompile(`(?i)\b(legal\s+advice|represent\s+yourself\s+in\s+court)\b`), "sensitive topic: legal advice"},
	{regexp.MustCompile(`(?i)\b(who|how)\s+to\s+vote\s+for\b`), "sensitive topic: political persuasion"},
	{regexp.MustCompile(`(?i)\b(which|what)\s+religion\s+is\s+(right|true|correct|best)\b`), "sensitive topic: religious judgment"},
	{regexp.MustCompile(`(?i)\bstop\s+taking\s+(your\s+)?(medication|meds|prescription)\b`), "sensitive topic: medication guidance"},
}

// Pre-compiled PII patterns — high precision, targeted per PII type.
// Shared by validation (output phase) and sanitization (always).
var piiPatterns = []struct {
	re     *regexp.Regexp
	detail string
}{
	// SSN: 123-45-6789 or 123 45 6789
	{regexp.MustCompile(`\b\d{3}[-\s]\d{2}[-\s]\d{4}\b`), "PII: Social Security Number"},

	// Credit card numbers (Visa, MC, Amex, Discover — optional spaces/dashes)
	{regexp.MustCompile(`\b4\d{3}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`), "PII: credit card (Visa)"},
	{regexp.MustCompile(`\b5[1-5]\d{2}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`), "PII: credit card (Mastercard)"},
	{regexp.MustCompile(`\b3[47]\d{2}[-\s]?\d{6}[-\s]?\d{5}\b`), "PII: credit card (Amex)"},
	{regexp.MustCompile(`\b6011[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`), "PII: credit card (Discover)"},

	// Email addresses
	{regexp.MustCompile(`\b[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}\b`), "PII: email address"},

	// Phone numbers (US formats)
	{regexp.MustCompile(`(\+1[-\s]?)?\(?\d{3}\)?[-\s.]\d{3}[-\s.]\d{4}\b`), "PII: phone number (US)"},

	// IBAN
	{regexp.MustCompile(`\b[A-Z]{2}\d{2}[-\s]?[A-Z0-9]{4}[-\s]?(?:[A-Z0-9]{4}[-\s]?){1,7}[A-Z0-9]{1,4}\b`), "PII: IBAN"},
}
