package provider_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/lendr/internal/model"
)

const basicAuthDocument = `{
  "id": "http://www.example.com/auth",
  "title": "Auth",
  "description": "Some library you've never heard of",
  "color_scheme": "blue",
  "features": {"enabled": ["https://librarysimplified.org/rel/policy/reservations"]},
  "authentication": [
    {"type": "http://example.com/unknown"},
    {
      "type": "http://opds-spec.org/auth/basic",
      "description": "Basic Auth",
      "labels": {"LOGIN": "LOGIN!", "PASSWORD": "PASSWORD!"},
      "inputs": {
        "LOGIN": {"keyboard": "Default", "maximum_length": 20, "barcode_format": "CODABAR"},
        "PASSWORD": {"keyboard": "Number pad", "maximum_length": 4}
      }
    }
  ],
  "links": [
    {"rel": "start", "href": "http://www.example.com/feed.xml"},
    {"rel": "register", "href": "http://www.example.com/card.xml"},
    {"rel": "license", "href": "http://www.example.com/license.xml"},
    {"rel": "terms-of-service", "href": "http://www.example.com/eula.xml"},
    {"rel": "http://librarysimplified.org/terms/rel/user-profile", "href": "http://www.example.com/settings.xml"},
    {"rel": "privacy-policy", "href": "http://www.example.com/privacy.xml"},
    {"rel": "http://opds-spec.org/shelf", "href": "http://www.example.com/shelf.xml"},
    {"rel": "help", "href": "mailto:someone@example.com"},
    {"rel": "logo", "href": "http://www.example.com/logo.png"}
  ]
}`

const coppaAuthDocument = `{
  "id": "http://www.example.com/auth",
  "title": "Auth",
  "authentication": [
    {
      "type": "http://librarysimplified.org/terms/authentication/gate/coppa",
      "links": [
        {"rel": "http://librarysimplified.org/terms/rel/authentication/restriction-met", "href": "http://www.example.com/over13.xml"},
        {"rel": "http://librarysimplified.org/terms/rel/authentication/restriction-not-met", "href": "http://www.example.com/under13.xml"}
      ]
    }
  ],
  "links": [{"rel": "start", "href": "http://www.example.com/feed.xml"}]
}`

const coppaMissingLinkAuthDocument = `{
  "id": "http://www.example.com/auth",
  "title": "Auth",
  "authentication": [
    {
      "type": "http://librarysimplified.org/terms/authentication/gate/coppa",
      "links": [
        {"rel": "http://librarysimplified.org/terms/rel/authentication/restriction-met", "href": "http://www.example.com/over13.xml"}
      ]
    }
  ],
  "links": [{"rel": "start", "href": "http://www.example.com/feed.xml"}]
}`

const unknownOnlyAuthDocument = `{
  "id": "http://www.example.com/auth",
  "title": "Auth",
  "authentication": [{"type": "http://example.com/unknown"}],
  "links": [{"rel": "start", "href": "http://www.example.com/feed.xml"}]
}`

const noAuthDocument = `{
  "id": "http://www.example.com/auth",
  "title": "Auth",
  "links": [{"rel": "start", "href": "http://www.example.com/feed.xml"}]
}`

func TestRegistryResolve(t *testing.T) {
	tests := map[string]struct {
		status     int
		body       string
		noAuthLink bool
		links      []model.Link
		expErr     model.TaskError
		expMessage string
		exp        func(authURI string) model.AccountProvider
	}{
		"A description without links should fail.": {
			noAuthLink: true,
			expErr:     model.MissingInformation{Message: "resolving: no start URI"},
			expMessage: "resolving: no start URI",
		},

		"A description with only a catalog should resolve without authentication.": {
			noAuthLink: true,
			links:      []model.Link{{Href: "http://www.example.com/catalog.xml", Relation: model.RelCatalog}},
			exp: func(string) model.AccountProvider {
				return model.AccountProvider{
					ID:           "urn:fake:0",
					DisplayName:  "Title",
					MainColor:    "red",
					CatalogURI:   "http://www.example.com/catalog.xml",
					IsProduction: true,
					Updated:      recent,
				}
			},
		},

		"An authentication document server error should fail.": {
			status: http.StatusBadRequest,
			expErr: model.ServerError{},
		},

		"An unparseable authentication document should fail.": {
			status: http.StatusOK,
			body:   "\x00\x00",
			expErr: model.ServerParseError{},
		},

		"A basic authentication document should resolve every link.": {
			status: http.StatusOK,
			body:   basicAuthDocument,
			exp: func(authURI string) model.AccountProvider {
				return model.AccountProvider{
					ID:          "urn:fake:0",
					DisplayName: "Auth",
					Subtitle:    "Some library you've never heard of",
					MainColor:   "blue",
					Logo:        "http://www.example.com/logo.png",
					Authentication: model.AuthBasic{
						Description:           "Basic Auth",
						BarcodeFormat:         "CODABAR",
						Keyboard:              model.KeyboardDefault,
						PasswordMaximumLength: 4,
						PasswordKeyboard:      model.KeyboardNumberPad,
						Labels:                map[string]string{"LOGIN": "LOGIN!", "PASSWORD": "PASSWORD!"},
					},
					AuthenticationDocumentURI: authURI,
					CatalogURI:                "http://www.example.com/feed.xml",
					LoansURI:                  "http://www.example.com/shelf.xml",
					PatronSettingsURI:         "http://www.example.com/settings.xml",
					CardCreatorURI:            "http://www.example.com/card.xml",
					EULA:                      "http://www.example.com/eula.xml",
					License:                   "http://www.example.com/license.xml",
					PrivacyPolicy:             "http://www.example.com/privacy.xml",
					SupportEmail:              "mailto:someone@example.com",
					SupportsReservations:      true,
					IsProduction:              true,
					Updated:                   recent,
				}
			},
		},

		"A COPPA authentication document should resolve the age gate.": {
			status: http.StatusOK,
			body:   coppaAuthDocument,
			exp: func(authURI string) model.AccountProvider {
				return model.AccountProvider{
					ID:          "urn:fake:0",
					DisplayName: "Auth",
					MainColor:   "red",
					Authentication: model.AuthCOPPAAgeGate{
						GreaterEqual13URI: "http://www.example.com/over13.xml",
						Under13URI:        "http://www.example.com/under13.xml",
					},
					AuthenticationDocumentURI: authURI,
					CatalogURI:                "http://www.example.com/feed.xml",
					IsProduction:              true,
					Updated:                   recent,
				}
			},
		},

		"A COPPA authentication without both restriction links should fail.": {
			status:     http.StatusOK,
			body:       coppaMissingLinkAuthDocument,
			expErr:     model.MissingInformation{Message: "resolving: COPPA age gate requires both restriction links"},
			expMessage: "resolving: COPPA age gate requires both restriction links",
		},

		"Only unknown authentication types should fail.": {
			status:     http.StatusOK,
			body:       unknownOnlyAuthDocument,
			expErr:     model.MissingInformation{Message: "resolving: no supported authentication types"},
			expMessage: "resolving: no supported authentication types",
		},

		"A document without authentication should resolve without login.": {
			status: http.StatusOK,
			body:   noAuthDocument,
			exp: func(authURI string) model.AccountProvider {
				return model.AccountProvider{
					ID:                        "urn:fake:0",
					DisplayName:               "Auth",
					MainColor:                 "red",
					AuthenticationDocumentURI: authURI,
					CatalogURI:                "http://www.example.com/feed.xml",
					IsProduction:              true,
					Updated:                   recent,
				}
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", model.TypeAuthenticationDocument)
				w.WriteHeader(test.status)
				_, _ = w.Write([]byte(test.body))
			}))
			defer srv.Close()
			authURI := srv.URL + "/auth"

			d := model.AccountProviderDescription{
				ID:           "urn:fake:0",
				Title:        "Title",
				Updated:      recent,
				IsProduction: true,
				Links:        test.links,
			}
			if !test.noAuthLink {
				d.Links = append(d.Links, model.Link{Href: authURI, Type: model.TypeAuthenticationDocument})
			}

			r := newRegistry(t)
			messages := []string{}
			res := r.Resolve(context.TODO(), d, func(id, msg string) {
				assert.Equal("urn:fake:0", id)
				messages = append(messages, msg)
			})
			assert.NotEmpty(messages)

			if test.expErr != nil {
				require.True(res.Failed())
				last, ok := res.LastError()
				require.True(ok)
				assert.IsType(test.expErr, last)
				if test.expMessage != "" {
					assert.Equal(test.expErr, last)
					step, _ := res.LastStep()
					assert.Equal(test.expMessage, step.Message)
				}
				_, found := r.FindProvider("urn:fake:0")
				assert.False(found)
				return
			}

			require.False(res.Failed())
			exp := test.exp(authURI)
			assert.Equal(exp, res.Value)

			stored, ok := r.FindProvider("urn:fake:0")
			assert.True(ok)
			assert.Equal(exp, stored)
		})
	}
}
