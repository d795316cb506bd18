package auth

import (
	"strings"
	"time"

	"github.com/pquerna/otp/totp"
)

// Admin permissions granted with an admin token
var AdminPermissions = []string{
	"CREATE_COMMUNITY",
	"EDIT_COMMUNITY",
	"DELETE_COMMUNITY",
	"MANAGE_USERS",
	"VIEW_ADMIN_PANEL",
}

// AdminRegistry answers "is this email an administrator". The list comes
// from configuration and is matched case-insensitively.
type AdminRegistry struct {
	emails     map[string]struct{}
	ordered    []string
	totpSecret string
}

// NewAdminRegistry builds a registry from emails. totpSecret enables a
// second factor on admin login when non-empty.
func NewAdminRegistry(emails []string, totpSecret string) *AdminRegistry {
	r := &AdminRegistry{
		emails:     make(map[string]struct{}, len(emails)),
		totpSecret: totpSecret,
	}
	for _, e := range emails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if _, dup := r.emails[e]; dup {
			continue
		}
		r.emails[e] = struct{}{}
		r.ordered = append(r.ordered, e)
	}
	return r
}

// Configured reports whether any admin is configured
func (r *AdminRegistry) Configured() bool {
	return len(r.ordered) > 0
}

// Emails returns the configured admin emails
func (r *AdminRegistry) Emails() []string {
	return append([]string(nil), r.ordered...)
}

// IsAdmin reports whether email belongs to an administrator
func (r *AdminRegistry) IsAdmin(email string) bool {
	_, ok := r.emails[strings.ToLower(strings.TrimSpace(email))]
	return ok
}

// RequireAdmin checks email and returns a human readable reason on refusal
func (r *AdminRegistry) RequireAdmin(email string) (bool, string) {
	if strings.TrimSpace(email) == "" {
		return false, "email not provided"
	}
	if !r.IsAdmin(email) {
		return false, "access restricted to administrators"
	}
	return true, ""
}

// SecondFactorRequired reports whether admin login needs a TOTP code
func (r *AdminRegistry) SecondFactorRequired() bool {
	return r.totpSecret != ""
}

// VerifySecondFactor validates a TOTP code against the configured secret
func (r *AdminRegistry) VerifySecondFactor(code string, at time.Time) bool {
	if !r.SecondFactorRequired() {
		return true
	}
	valid, err := totp.ValidateCustom(strings.TrimSpace(code), r.totpSecret, at, totp.ValidateOpts{
		Period: 30,
		Skew:   1,
		Digits: 6,
	})
	return err == nil && valid
}
