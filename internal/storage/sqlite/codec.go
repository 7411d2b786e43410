package sqlite

import (
	"encoding/json"
	"fmt"

	"github.com/slok/lendr/internal/model"
)

// kindValue is the stored form of a sum type value.
type kindValue struct {
	Kind  string          `json:"kind"`
	Value json.RawMessage `json:"value,omitempty"`
}

func newKindValue(kind string, v any) (*kindValue, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &kindValue{Kind: kind, Value: data}, nil
}

func decodeAs[T any](kv *kindValue) (T, error) {
	var v T
	if len(kv.Value) == 0 {
		return v, nil
	}
	err := json.Unmarshal(kv.Value, &v)
	return v, err
}

type providerJSON struct {
	model.AccountProvider
	Auth *kindValue `json:"authentication,omitempty"`
}

func encodeProvider(p model.AccountProvider) (string, error) {
	pj := providerJSON{AccountProvider: p}
	if p.Authentication != nil {
		kv, err := newKindValue(p.Authentication.Type(), p.Authentication)
		if err != nil {
			return "", fmt.Errorf("could not encode authentication: %w", err)
		}
		pj.Auth = kv
	}

	data, err := json.Marshal(pj)
	if err != nil {
		return "", fmt.Errorf("could not encode provider: %w", err)
	}
	return string(data), nil
}

func decodeProvider(data string) (model.AccountProvider, error) {
	var pj providerJSON
	if err := json.Unmarshal([]byte(data), &pj); err != nil {
		return model.AccountProvider{}, fmt.Errorf("could not decode provider: %w", err)
	}

	p := pj.AccountProvider
	if pj.Auth == nil {
		return p, nil
	}

	var err error
	switch pj.Auth.Kind {
	case model.AuthTypeBasic:
		p.Authentication, err = decodeAs[model.AuthBasic](pj.Auth)
	case model.AuthTypeOAuthWithIntermediary:
		p.Authentication, err = decodeAs[model.AuthOAuthWithIntermediary](pj.Auth)
	case model.AuthTypeCOPPAAgeGate:
		p.Authentication, err = decodeAs[model.AuthCOPPAAgeGate](pj.Auth)
	case model.AuthTypeAnonymous:
		p.Authentication = model.AuthAnonymous{}
	default:
		return model.AccountProvider{}, fmt.Errorf("unknown authentication type %q", pj.Auth.Kind)
	}
	if err != nil {
		return model.AccountProvider{}, fmt.Errorf("could not decode authentication: %w", err)
	}

	return p, nil
}

const (
	credentialsBasic = "basic"
	credentialsOAuth = "oauth-intermediary"
)

func encodeCredentials(c model.AccountAuthenticationCredentials) (*string, error) {
	if c == nil {
		return nil, nil
	}

	var (
		kv  *kindValue
		err error
	)
	switch v := c.(type) {
	case model.CredentialsBasic:
		kv, err = newKindValue(credentialsBasic, v)
	case model.CredentialsOAuthWithIntermediary:
		kv, err = newKindValue(credentialsOAuth, v)
	default:
		return nil, fmt.Errorf("unknown credentials type %T", c)
	}
	if err != nil {
		return nil, fmt.Errorf("could not encode credentials: %w", err)
	}

	data, err := json.Marshal(kv)
	if err != nil {
		return nil, fmt.Errorf("could not encode credentials: %w", err)
	}
	s := string(data)
	return &s, nil
}

func decodeCredentials(data *string) (model.AccountAuthenticationCredentials, error) {
	if data == nil {
		return nil, nil
	}

	var kv kindValue
	if err := json.Unmarshal([]byte(*data), &kv); err != nil {
		return nil, fmt.Errorf("could not decode credentials: %w", err)
	}

	switch kv.Kind {
	case credentialsBasic:
		c, err := decodeAs[model.CredentialsBasic](&kv)
		if err != nil {
			return nil, fmt.Errorf("could not decode credentials: %w", err)
		}
		return c, nil
	case credentialsOAuth:
		c, err := decodeAs[model.CredentialsOAuthWithIntermediary](&kv)
		if err != nil {
			return nil, fmt.Errorf("could not decode credentials: %w", err)
		}
		return c, nil
	}

	return nil, fmt.Errorf("unknown credentials kind %q", kv.Kind)
}

type entryJSON struct {
	model.FeedEntry
	Avail *kindValue `json:"availability,omitempty"`
}

func encodeEntry(e model.FeedEntry) (string, error) {
	ej := entryJSON{FeedEntry: e}
	if e.Availability != nil {
		kv, err := newKindValue(e.Availability.Kind(), e.Availability)
		if err != nil {
			return "", fmt.Errorf("could not encode availability: %w", err)
		}
		ej.Avail = kv
	}

	data, err := json.Marshal(ej)
	if err != nil {
		return "", fmt.Errorf("could not encode entry: %w", err)
	}
	return string(data), nil
}

func decodeEntry(data string) (model.FeedEntry, error) {
	var ej entryJSON
	if err := json.Unmarshal([]byte(data), &ej); err != nil {
		return model.FeedEntry{}, fmt.Errorf("could not decode entry: %w", err)
	}

	e := ej.FeedEntry
	if ej.Avail == nil {
		return e, nil
	}

	var err error
	switch ej.Avail.Kind {
	case model.AvailabilityLoanable{}.Kind():
		e.Availability = model.AvailabilityLoanable{}
	case model.AvailabilityHoldable{}.Kind():
		e.Availability = model.AvailabilityHoldable{}
	case model.AvailabilityLoaned{}.Kind():
		e.Availability, err = decodeAs[model.AvailabilityLoaned](ej.Avail)
	case model.AvailabilityHeld{}.Kind():
		e.Availability, err = decodeAs[model.AvailabilityHeld](ej.Avail)
	case model.AvailabilityHeldReady{}.Kind():
		e.Availability, err = decodeAs[model.AvailabilityHeldReady](ej.Avail)
	case model.AvailabilityOpenAccess{}.Kind():
		e.Availability, err = decodeAs[model.AvailabilityOpenAccess](ej.Avail)
	case model.AvailabilityRevoked{}.Kind():
		e.Availability, err = decodeAs[model.AvailabilityRevoked](ej.Avail)
	default:
		return model.FeedEntry{}, fmt.Errorf("unknown availability kind %q", ej.Avail.Kind)
	}
	if err != nil {
		return model.FeedEntry{}, fmt.Errorf("could not decode availability: %w", err)
	}

	return e, nil
}
