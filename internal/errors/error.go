package errors

import "github.com/pkg/errors"

var (
	// common errors
	ErrConnectionTimeout = errors.New("connection timeout")
	ErrInvalidInput      = errors.New("invalid input parameters")

	// domain errors
	ErrDomainNotFound      = errors.New("domain not found")
	ErrDomainAlreadyExists = errors.New("domain already exists in project")
	ErrInvalidHostname     = errors.New("invalid hostname")
	ErrNotApexDomain       = errors.New("www toggle is only allowed on apex domains")
	ErrHostnameMismatch    = errors.New("hostname does not match domain record")

	// hosting platform errors
	ErrPlatformDomainExists  = errors.New("domain already exists on hosting platform")
	ErrPlatformUnavailable   = errors.New("hosting platform request failed")
	ErrPlatformNotConfigured = errors.New("hosting platform is not configured")

	// www toggle errors
	ErrCompanionProvisionFailed = errors.New("companion domain provisioning failed")
	ErrCompensationFailed       = errors.New("rollback of companion domain failed")
)
