package fake_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/lendr/internal/drm"
	"github.com/slok/lendr/internal/drm/fake"
	"github.com/slok/lendr/internal/model"
	"github.com/slok/lendr/internal/opds/opdstest"
)

func TestConnector(t *testing.T) {
	token := model.AdobeClientToken{UserName: "NYNYPL|536818535", Password: "secret", RawToken: "NYNYPL|536818535|secret"}

	tests := map[string]struct {
		failCode string
		actions  func(ctx context.Context, t *testing.T, c *fake.Connector) error
		expErr   bool
	}{
		"Activating the same user twice should return the same device.": {
			actions: func(ctx context.Context, t *testing.T, c *fake.Connector) error {
				a1, err := c.ActivateDevice(ctx, "vendor", "https://example.com/devices", token)
				require.NoError(t, err)
				a2, err := c.ActivateDevice(ctx, "vendor", "https://example.com/devices", token)
				require.NoError(t, err)

				require.Len(t, a1, 1)
				assert.Equal(t, a1, a2)
				assert.Equal(t, "NYNYPL|536818535", a1[0].UserID)
				return nil
			},
		},

		"A full loan lifecycle should work.": {
			actions: func(ctx context.Context, t *testing.T, c *fake.Connector) error {
				acts, err := c.ActivateDevice(ctx, "vendor", "", token)
				require.NoError(t, err)

				creds := model.AdobeCredentials{
					VendorID:       "vendor",
					ClientToken:    token,
					PostActivation: &model.AdobePostActivationCredentials{DeviceID: acts[0].DeviceID, UserID: acts[0].UserID},
				}
				f, err := c.FulfillACSM(ctx, []byte(opdstest.ACSM("application/epub+zip")), creds)
				require.NoError(t, err)
				assert.Equal(t, "application/epub+zip", f.ContentType)
				assert.NotEmpty(t, f.Data)

				require.NoError(t, c.ReturnLoan(ctx, f.LoanID, creds))
				require.Error(t, c.ReturnLoan(ctx, f.LoanID, creds))
				return c.DeactivateDevice(ctx, creds)
			},
		},

		"Fulfilling without activation should fail.": {
			actions: func(ctx context.Context, t *testing.T, c *fake.Connector) error {
				_, err := c.FulfillACSM(ctx, []byte(opdstest.ACSM("application/epub+zip")), model.AdobeCredentials{})
				return err
			},
			expErr: true,
		},

		"A configured failure code should be returned.": {
			failCode: "E_FAIL_OFTEN_AND_LOUDLY",
			actions: func(ctx context.Context, t *testing.T, c *fake.Connector) error {
				_, err := c.ActivateDevice(ctx, "vendor", "", token)
				assert.Equal(t, "E_FAIL_OFTEN_AND_LOUDLY", drm.ErrorCode(err))
				return err
			},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			c, err := fake.NewConnector(fake.ConnectorConfig{FailCode: test.failCode})
			require.NoError(t, err)

			err = test.actions(context.TODO(), t, c)
			if test.expErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
