package caldav

import "strings"

// NormalizeColor converts #RGB, #RRGGBB and #RRGGBBAA (with or without the
// leading '#') to upper-case #RRGGBBAA. It reports false for anything else.
func NormalizeColor(s string) (string, bool) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	for _, r := range hex {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return "", false
		}
	}

	switch len(hex) {
	case 3:
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]}) + "FF"
	case 6:
		hex += "FF"
	case 8:
	default:
		return "", false
	}
	return "#" + strings.ToUpper(hex), true
}
