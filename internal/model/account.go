package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/slok/lendr/internal/task"
)

// AccountID is the unique identifier of an account.
type AccountID string

// NewAccountID returns a new random account ID.
func NewAccountID() AccountID { return AccountID(uuid.NewString()) }

// Account is a library account that belongs to a profile.
type Account struct {
	ID        AccountID
	ProfileID ProfileID
	Provider  AccountProvider
	// Credentials are the persisted login credentials, nil when not logged in.
	Credentials AccountAuthenticationCredentials
	CreatedAt   time.Time
}

// Validate validates the account.
func (a Account) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("id is required: %w", ErrNotValid)
	}
	if a.ProfileID == "" {
		return fmt.Errorf("profile id is required: %w", ErrNotValid)
	}
	if err := a.Provider.Validate(); err != nil {
		return fmt.Errorf("invalid provider: %w", err)
	}
	return nil
}

// AdobeClientToken is the parsed Adobe vendor client token, the last `|` separated
// segment is the password and the rest is the user name.
type AdobeClientToken struct {
	UserName string `json:"userName"`
	Password string `json:"password"`
	RawToken string `json:"rawToken"`
}

// ParseAdobeClientToken parses a raw client token.
func ParseAdobeClientToken(raw string) (AdobeClientToken, error) {
	i := strings.LastIndex(raw, "|")
	if i <= 0 || i == len(raw)-1 {
		return AdobeClientToken{}, fmt.Errorf("client token must have at least two segments: %w", ErrNotValid)
	}
	return AdobeClientToken{
		UserName: raw[:i],
		Password: raw[i+1:],
		RawToken: raw,
	}, nil
}

// AdobePostActivationCredentials are the identifiers obtained after a device activation.
type AdobePostActivationCredentials struct {
	DeviceID string `json:"deviceID"`
	UserID   string `json:"userID"`
}

// AdobeCredentials are the Adobe DRM credentials of an account.
type AdobeCredentials struct {
	VendorID         string                          `json:"vendorID"`
	ClientToken      AdobeClientToken                `json:"clientToken"`
	DeviceManagerURI string                          `json:"deviceManagerURI,omitempty"`
	PostActivation   *AdobePostActivationCredentials `json:"postActivation,omitempty"`
}

// AccountAuthenticationCredentials are the credentials of a logged in account.
type AccountAuthenticationCredentials interface {
	isCredentials()
	// Adobe returns the Adobe DRM credentials, nil when the account has none.
	Adobe() *AdobeCredentials
}

type (
	CredentialsBasic struct {
		Username        string            `json:"username"`
		Password        string            `json:"password"`
		AdobeCredential *AdobeCredentials `json:"adobe,omitempty"`
		AuthDescription string            `json:"authDescription"`
	}
	CredentialsOAuthWithIntermediary struct {
		AccessToken     string            `json:"accessToken"`
		AdobeCredential *AdobeCredentials `json:"adobe,omitempty"`
		AuthDescription string            `json:"authDescription"`
	}
)

func (CredentialsBasic) isCredentials()                 {}
func (CredentialsOAuthWithIntermediary) isCredentials() {}

func (c CredentialsBasic) Adobe() *AdobeCredentials                 { return c.AdobeCredential }
func (c CredentialsOAuthWithIntermediary) Adobe() *AdobeCredentials { return c.AdobeCredential }

// WithAdobe returns a copy of the credentials with the Adobe credentials replaced.
func WithAdobe(c AccountAuthenticationCredentials, adobe *AdobeCredentials) AccountAuthenticationCredentials {
	switch v := c.(type) {
	case CredentialsBasic:
		v.AdobeCredential = adobe
		return v
	case CredentialsOAuthWithIntermediary:
		v.AdobeCredential = adobe
		return v
	}
	return c
}

// AccountLoginState is the login state of an account.
type AccountLoginState interface {
	isLoginState()
	// Name returns the stable name of the state.
	Name() string
}

type (
	LoginStateNotLoggedIn struct{}
	LoginStateLoggingIn   struct {
		Status string
	}
	LoginStateWaitingForExternalAuthentication struct {
		Description AuthOAuthWithIntermediary
		Status      string
	}
	LoginStateLoggedIn struct {
		Credentials AccountAuthenticationCredentials
	}
	LoginStateLoginFailed struct {
		Result task.Result[TaskError, struct{}]
	}
	LoginStateLoggingOut struct {
		Credentials AccountAuthenticationCredentials
		Status      string
	}
	LoginStateLogoutFailed struct {
		Credentials AccountAuthenticationCredentials
		Result      task.Result[TaskError, struct{}]
	}
)

func (LoginStateNotLoggedIn) isLoginState()                      {}
func (LoginStateLoggingIn) isLoginState()                        {}
func (LoginStateWaitingForExternalAuthentication) isLoginState() {}
func (LoginStateLoggedIn) isLoginState()                         {}
func (LoginStateLoginFailed) isLoginState()                      {}
func (LoginStateLoggingOut) isLoginState()                       {}
func (LoginStateLogoutFailed) isLoginState()                     {}

func (LoginStateNotLoggedIn) Name() string                      { return "not-logged-in" }
func (LoginStateLoggingIn) Name() string                        { return "logging-in" }
func (LoginStateWaitingForExternalAuthentication) Name() string { return "waiting-external-auth" }
func (LoginStateLoggedIn) Name() string                         { return "logged-in" }
func (LoginStateLoginFailed) Name() string                      { return "login-failed" }
func (LoginStateLoggingOut) Name() string                       { return "logging-out" }
func (LoginStateLogoutFailed) Name() string                     { return "logout-failed" }

// CredentialsOf returns the credentials carried by a login state, if any.
func CredentialsOf(s AccountLoginState) (AccountAuthenticationCredentials, bool) {
	switch v := s.(type) {
	case LoginStateLoggedIn:
		return v.Credentials, v.Credentials != nil
	case LoginStateLoggingOut:
		return v.Credentials, v.Credentials != nil
	case LoginStateLogoutFailed:
		return v.Credentials, v.Credentials != nil
	}
	return nil, false
}

// LoginRequest is a request to the login task.
type LoginRequest interface {
	isLoginRequest()
	Account() AccountID
}

type (
	LoginBasic struct {
		AccountID   AccountID
		Username    string
		Password    string
		Description AuthBasic
	}
	LoginOAuthInitiate struct {
		AccountID   AccountID
		Description AuthOAuthWithIntermediary
	}
	LoginOAuthComplete struct {
		AccountID AccountID
		Token     string
	}
	LoginOAuthCancel struct {
		AccountID AccountID
	}
)

func (LoginBasic) isLoginRequest()         {}
func (LoginOAuthInitiate) isLoginRequest() {}
func (LoginOAuthComplete) isLoginRequest() {}
func (LoginOAuthCancel) isLoginRequest()   {}

func (r LoginBasic) Account() AccountID         { return r.AccountID }
func (r LoginOAuthInitiate) Account() AccountID { return r.AccountID }
func (r LoginOAuthComplete) Account() AccountID { return r.AccountID }
func (r LoginOAuthCancel) Account() AccountID   { return r.AccountID }
