package fake

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/slok/lendr/internal/drm"
	"github.com/slok/lendr/internal/log"
	"github.com/slok/lendr/internal/model"
	"github.com/slok/lendr/internal/opds"
)

// ConnectorConfig is the configuration for the fake connector.
type ConnectorConfig struct {
	// FailCode makes every operation fail with this DRM error code when set.
	FailCode string
	Logger   log.Logger
}

func (c *ConnectorConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "drm.Fake"})
	return nil
}

// Connector is a fake implementation of the drm.Connector interface.
// It simulates device activations and ACSM fulfillment without a real DRM.
type Connector struct {
	devices  map[string]model.AdobePostActivationCredentials
	loans    map[string]string
	failCode string
	mu       sync.Mutex
	logger   log.Logger
}

// NewConnector creates a new fake connector.
func NewConnector(cfg ConnectorConfig) (*Connector, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Connector{
		devices:  map[string]model.AdobePostActivationCredentials{},
		loans:    map[string]string{},
		failCode: cfg.FailCode,
		logger:   cfg.Logger,
	}, nil
}

func newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// ActivateDevice activates a fake device, activating the same user twice returns
// the same device.
func (c *Connector) ActivateDevice(ctx context.Context, vendorID string, deviceManagerURI string, token model.AdobeClientToken) ([]drm.Activation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failCode != "" {
		return nil, &drm.Error{Code: c.failCode}
	}

	key := vendorID + "/" + token.UserName
	dev, ok := c.devices[key]
	if !ok {
		dev = model.AdobePostActivationCredentials{DeviceID: newID(), UserID: token.UserName}
		c.devices[key] = dev
		c.logger.Infof("Activated fake device %s for %s", dev.DeviceID, key)
	}

	return []drm.Activation{{VendorID: vendorID, DeviceID: dev.DeviceID, UserID: dev.UserID}}, nil
}

// DeactivateDevice deactivates a fake device.
func (c *Connector) DeactivateDevice(ctx context.Context, creds model.AdobeCredentials) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failCode != "" {
		return &drm.Error{Code: c.failCode}
	}

	key := creds.VendorID + "/" + creds.ClientToken.UserName
	if _, ok := c.devices[key]; !ok {
		c.logger.Debugf("Device for %s is not activated", key)
		return nil // Idempotent.
	}
	delete(c.devices, key)
	c.logger.Infof("Deactivated fake device for %s", key)

	return nil
}

// FulfillACSM returns placeholder content of the type announced by the ACSM.
func (c *Connector) FulfillACSM(ctx context.Context, acsm []byte, creds model.AdobeCredentials) (*drm.Fulfillment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failCode != "" {
		return nil, &drm.Error{Code: c.failCode}
	}
	if creds.PostActivation == nil {
		return nil, &drm.Error{Code: "E_ACT_NOT_READY"}
	}

	a, err := opds.ParseACSM("acsm", acsm)
	if err != nil {
		return nil, &drm.Error{Code: "E_ADEPT_DOCUMENT_TYPE_UNKNOWN"}
	}

	loanID := newID()
	c.loans[loanID] = a.Resource
	c.logger.Infof("Fulfilled fake loan %s for resource %s", loanID, a.Resource)

	return &drm.Fulfillment{
		Data:        []byte(fmt.Sprintf("fake content for %s", a.Resource)),
		ContentType: a.ContentType,
		LoanID:      loanID,
		Returnable:  true,
	}, nil
}

// ReturnLoan returns a fake loan.
func (c *Connector) ReturnLoan(ctx context.Context, loanID string, creds model.AdobeCredentials) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failCode != "" {
		return &drm.Error{Code: c.failCode}
	}
	if _, ok := c.loans[loanID]; !ok {
		return &drm.Error{Code: "E_LIC_LICENSE_NOT_FOUND"}
	}
	delete(c.loans, loanID)

	return nil
}
