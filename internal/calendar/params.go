package calendar

import "strconv"

// googleBool renders a flag as the literal "true" or "false" Google expects
// in query strings.
func googleBool(value bool) string {
	return strconv.FormatBool(value)
}
