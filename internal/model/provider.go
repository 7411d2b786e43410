package model

import (
	"fmt"
	"time"
)

// Well known link relations and types used by providers.
const (
	RelAuthenticationDocument = "http://opds-spec.org/auth/document"
	RelCatalog                = "http://opds-spec.org/catalog"
	RelStart                  = "start"
	RelShelf                  = "http://opds-spec.org/shelf"
	RelUserProfile            = "http://librarysimplified.org/terms/rel/user-profile"
	RelRegister               = "register"
	RelLicense                = "license"
	RelTermsOfService         = "terms-of-service"
	RelPrivacyPolicy          = "privacy-policy"
	RelHelp                   = "help"
	RelLogo                   = "logo"
	RelAnnotations            = "http://www.w3.org/ns/oa#annotationService"
	RelRestrictionMet         = "http://librarysimplified.org/terms/rel/authentication/restriction-met"
	RelRestrictionNotMet      = "http://librarysimplified.org/terms/rel/authentication/restriction-not-met"

	TypeAuthenticationDocument = "application/vnd.opds.authentication.v1.0+json"
	TypeOPDSCatalog            = "application/atom+xml;profile=opds-catalog;kind=acquisition"
)

// Authentication types found in authentication documents.
const (
	AuthTypeBasic                 = "http://opds-spec.org/auth/basic"
	AuthTypeOAuthWithIntermediary = "http://librarysimplified.org/authtype/OAuth-with-intermediary"
	AuthTypeCOPPAAgeGate          = "http://librarysimplified.org/terms/authentication/gate/coppa"
	AuthTypeAnonymous             = "http://librarysimplified.org/rel/auth/anonymous"
)

// AuthenticationDescription describes how a provider authenticates patrons. A nil
// description means the provider doesn't require authentication.
type AuthenticationDescription interface {
	isAuthenticationDescription()
	// Type returns the authentication type URI.
	Type() string
}

// KeyboardInput is the kind of input a login field expects.
type KeyboardInput string

const (
	KeyboardDefault      KeyboardInput = "DEFAULT"
	KeyboardEmailAddress KeyboardInput = "EMAIL_ADDRESS"
	KeyboardNumberPad    KeyboardInput = "NUMBER_PAD"
	KeyboardNoInput      KeyboardInput = "NO_INPUT"
)

type (
	// AuthBasic is HTTP basic authentication with a barcode/PIN pair.
	AuthBasic struct {
		Description           string            `json:"description"`
		BarcodeFormat         string            `json:"barcodeFormat,omitempty"`
		Keyboard              KeyboardInput     `json:"keyboard,omitempty"`
		PasswordMaximumLength int               `json:"passwordMaximumLength,omitempty"`
		PasswordKeyboard      KeyboardInput     `json:"passwordKeyboard,omitempty"`
		Labels                map[string]string `json:"labels,omitempty"`
		LogoURI               string            `json:"logoURI,omitempty"`
	}
	// AuthOAuthWithIntermediary is OAuth through an intermediary web flow.
	AuthOAuthWithIntermediary struct {
		Description     string `json:"description"`
		AuthenticateURI string `json:"authenticateURI"`
		LogoURI         string `json:"logoURI,omitempty"`
	}
	// AuthCOPPAAgeGate routes patrons to a catalog depending on their age.
	AuthCOPPAAgeGate struct {
		GreaterEqual13URI string `json:"greaterEqual13URI"`
		Under13URI        string `json:"under13URI"`
	}
	// AuthAnonymous is an explicitly anonymous provider.
	AuthAnonymous struct{}
)

func (AuthBasic) isAuthenticationDescription()                 {}
func (AuthOAuthWithIntermediary) isAuthenticationDescription() {}
func (AuthCOPPAAgeGate) isAuthenticationDescription()          {}
func (AuthAnonymous) isAuthenticationDescription()             {}

func (AuthBasic) Type() string                 { return AuthTypeBasic }
func (AuthOAuthWithIntermediary) Type() string { return AuthTypeOAuthWithIntermediary }
func (AuthCOPPAAgeGate) Type() string          { return AuthTypeCOPPAAgeGate }
func (AuthAnonymous) Type() string             { return AuthTypeAnonymous }

// RequiresLogin returns true when the authentication needs patron credentials.
func RequiresLogin(a AuthenticationDescription) bool {
	switch a.(type) {
	case AuthBasic, AuthOAuthWithIntermediary:
		return true
	}
	return false
}

// AccountProvider is a resolved library description, everything needed to use
// a library account.
type AccountProvider struct {
	ID                        string                    `json:"id"`
	DisplayName               string                    `json:"displayName"`
	Subtitle                  string                    `json:"subtitle,omitempty"`
	MainColor                 string                    `json:"mainColor,omitempty"`
	Logo                      string                    `json:"logo,omitempty"`
	Authentication            AuthenticationDescription `json:"-"`
	AuthenticationDocumentURI string                    `json:"authenticationDocumentURI,omitempty"`
	CatalogURI                string                    `json:"catalogURI"`
	LoansURI                  string                    `json:"loansURI,omitempty"`
	PatronSettingsURI         string                    `json:"patronSettingsURI,omitempty"`
	AnnotationsURI            string                    `json:"annotationsURI,omitempty"`
	CardCreatorURI            string                    `json:"cardCreatorURI,omitempty"`
	EULA                      string                    `json:"eula,omitempty"`
	License                   string                    `json:"license,omitempty"`
	PrivacyPolicy             string                    `json:"privacyPolicy,omitempty"`
	SupportEmail              string                    `json:"supportEmail,omitempty"`
	SupportsReservations      bool                      `json:"supportsReservations,omitempty"`
	AddAutomatically          bool                      `json:"addAutomatically,omitempty"`
	IsProduction              bool                      `json:"isProduction,omitempty"`
	Updated                   time.Time                 `json:"updated"`
}

// Validate validates the provider.
func (p AccountProvider) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("id is required: %w", ErrNotValid)
	}
	if p.CatalogURI == "" {
		return fmt.Errorf("catalog uri is required: %w", ErrNotValid)
	}
	return nil
}

// AccountProviderDescription is the unresolved metadata of a library as published
// by provider sources.
type AccountProviderDescription struct {
	ID           string    `json:"id" yaml:"id" validate:"required,opds_uri"`
	Title        string    `json:"title" yaml:"title" validate:"required"`
	Updated      time.Time `json:"updated" yaml:"updated"`
	Links        []Link    `json:"links" yaml:"links"`
	Images       []Link    `json:"images,omitempty" yaml:"images"`
	IsAutomatic  bool      `json:"isAutomatic,omitempty" yaml:"isAutomatic"`
	IsProduction bool      `json:"isProduction,omitempty" yaml:"isProduction"`
}

// AuthenticationDocumentURI returns the authentication document link, if any.
func (d AccountProviderDescription) AuthenticationDocumentURI() (string, bool) {
	for _, l := range d.Links {
		if l.Type == TypeAuthenticationDocument || l.Relation == RelAuthenticationDocument {
			return l.Href, true
		}
	}
	return "", false
}

// CatalogURI returns the catalog link, if any.
func (d AccountProviderDescription) CatalogURI() (string, bool) {
	l, ok := LinkByRelation(d.Links, RelCatalog)
	if !ok {
		return "", false
	}
	return l.Href, true
}
