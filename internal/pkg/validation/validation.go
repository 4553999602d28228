package validation

import "regexp"

// emailRe keeps the permissive shape check the dashboards rely on: something,
// an @, something, a dot, something.
var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

func IsValidEmail(email string) bool {
	return emailRe.MatchString(email)
}
