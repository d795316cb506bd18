package auth

import (
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminRegistry(t *testing.T) {
	r := NewAdminRegistry([]string{" Admin@Orkut.com ", "admin@orkut.com", "", "ops@orkut.com"}, "")

	assert.True(t, r.Configured())
	assert.Equal(t, []string{"admin@orkut.com", "ops@orkut.com"}, r.Emails())
	assert.True(t, r.IsAdmin("ADMIN@orkut.com"))
	assert.False(t, r.IsAdmin("someone@orkut.com"))

	ok, reason := r.RequireAdmin("")
	assert.False(t, ok)
	assert.Equal(t, "email not provided", reason)

	ok, reason = r.RequireAdmin("someone@orkut.com")
	assert.False(t, ok)
	assert.NotEmpty(t, reason)

	ok, _ = r.RequireAdmin("ops@orkut.com")
	assert.True(t, ok)
}

func TestAdminRegistryEmpty(t *testing.T) {
	r := NewAdminRegistry(nil, "")
	assert.False(t, r.Configured())
	assert.False(t, r.IsAdmin("admin@orkut.com"))
	assert.True(t, r.VerifySecondFactor("", time.Now()))
}

func TestAdminSecondFactor(t *testing.T) {
	const secret = "JBSWY3DPEHPK3PXP"
	r := NewAdminRegistry([]string{"admin@orkut.com"}, secret)
	require.True(t, r.SecondFactorRequired())

	now := time.Now()
	code, err := totp.GenerateCode(secret, now)
	require.NoError(t, err)

	assert.True(t, r.VerifySecondFactor(code, now))
	assert.False(t, r.VerifySecondFactor("000000x", now))
	assert.False(t, r.VerifySecondFactor("", now))
}
