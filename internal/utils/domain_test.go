package utils

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	er "github.com/customeros/sitestack/internal/errors"
)

func TestIsApexDomain(t *testing.T) {
	cases := map[string]bool{
		"example.com":      true,
		"www.example.com":  false,
		"example.co.uk":    true,
		"shop.example.com": false,
		"Example.COM.":     true,
		"com":              false,
		"":                 false,
	}
	for host, expected := range cases {
		assert.Equal(t, expected, IsApexDomain(host), host)
	}
}

func TestNormalizeHostname(t *testing.T) {
	assert.Equal(t, "example.com", NormalizeHostname("  HTTPS://Example.com./path?x=1 "))
	assert.Equal(t, "www.example.com", NormalizeHostname("http://www.example.com:8080"))
	assert.Equal(t, "example.com", NormalizeHostname("example.com"))
}

func TestValidateHostname(t *testing.T) {
	assert.NoError(t, ValidateHostname("example.com"))
	assert.NoError(t, ValidateHostname("my-site.example.co.uk"))

	for _, host := range []string{"", "localhost", "-bad.com", "bad_label.com", "exa mple.com"} {
		err := ValidateHostname(host)
		assert.True(t, errors.Is(err, er.ErrInvalidHostname), host)
	}
}

func TestCompanionHostname(t *testing.T) {
	assert.Equal(t, "www.example.com", CompanionHostname("example.com"))
	assert.Equal(t, "example.com", CompanionHostname("www.example.com"))
	assert.Equal(t, "www.example.co.uk", WWWHostname("example.co.uk"))
	assert.True(t, IsWWWHostname("www.example.com"))
	assert.False(t, IsWWWHostname("example.com"))
}
