package domain

import (
	"context"
	"regexp"
	"strings"
)

type callerPhoneKey struct{}

var phonePattern = regexp.MustCompile(`^\+?[0-9]{6,15}$`)

// NormalizePhone strips spaces, dashes and dots from a phone number and
// reports whether what is left looks like one
func NormalizePhone(phone string) (string, bool) {
	cleaned := strings.NewReplacer(" ", "", "-", "", ".", "", "(", "", ")", "").Replace(strings.TrimSpace(phone))
	return cleaned, phonePattern.MatchString(cleaned)
}

// WithCallerPhone carries the caller id of the telephony leg down to the
// conversation engine
func WithCallerPhone(ctx context.Context, phone string) context.Context {
	return context.WithValue(ctx, callerPhoneKey{}, phone)
}

func CallerPhone(ctx context.Context) string {
	phone, _ := ctx.Value(callerPhoneKey{}).(string)
	return phone
}
