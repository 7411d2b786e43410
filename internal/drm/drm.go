// Package drm has the Adobe DRM connector contract used by login, borrow,
// revoke and logout tasks.
package drm

//go:generate mockery --case underscore --output drmmock --outpkg drmmock --structname MockConnector --name Connector

import (
	"context"
	"errors"
	"fmt"

	"github.com/slok/lendr/internal/model"
)

// Activation is a device activation returned by the DRM connector.
type Activation struct {
	VendorID string
	DeviceID string
	UserID   string
	Expiry   string
}

// Fulfillment is the content obtained by fulfilling an ACSM.
type Fulfillment struct {
	Data        []byte
	ContentType string
	// LoanID identifies the DRM loan so it can be returned later.
	LoanID     string
	Returnable bool
}

// Connector is the Adobe DRM connector. Every call blocks until the connector
// delivers its outcome.
type Connector interface {
	// ActivateDevice activates the device for the user identified by the token.
	ActivateDevice(ctx context.Context, vendorID string, deviceManagerURI string, token model.AdobeClientToken) ([]Activation, error)
	// DeactivateDevice deactivates a previously activated device.
	DeactivateDevice(ctx context.Context, creds model.AdobeCredentials) error
	// FulfillACSM exchanges an ACSM for the protected content.
	FulfillACSM(ctx context.Context, acsm []byte, creds model.AdobeCredentials) (*Fulfillment, error)
	// ReturnLoan returns a DRM loan.
	ReturnLoan(ctx context.Context, loanID string, creds model.AdobeCredentials) error
}

// Error is an error reported by the DRM connector with its error code.
type Error struct {
	Code string
}

func (e *Error) Error() string { return fmt.Sprintf("drm error %s", e.Code) }

// ErrorCode returns the connector error code of err, empty when err doesn't carry one.
func ErrorCode(err error) string {
	var derr *Error
	if errors.As(err, &derr) {
		return derr.Code
	}
	return ""
}
