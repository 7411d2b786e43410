package provider

import (
	"fmt"
	"net/url"

	"github.com/go-playground/validator/v10"

	"github.com/slok/lendr/internal/model"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("opds_uri", validateOPDSURI)
}

// ValidateDescription checks the description has an ID, a title and usable
// start links.
func ValidateDescription(d model.AccountProviderDescription) error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("invalid description %q: %s: %w", d.ID, err, model.ErrNotValid)
	}
	if uri, ok := d.AuthenticationDocumentURI(); ok {
		if err := ValidateURI(uri); err != nil {
			return fmt.Errorf("invalid description %q authentication document: %w", d.ID, err)
		}
	}
	if uri, ok := d.CatalogURI(); ok {
		if err := ValidateURI(uri); err != nil {
			return fmt.Errorf("invalid description %q catalog: %w", d.ID, err)
		}
	}
	return nil
}

// ValidateURI checks the URI is an absolute http, https or urn URI.
func ValidateURI(uri string) error {
	if err := validate.Var(uri, "required,opds_uri"); err != nil {
		return fmt.Errorf("invalid URI %q: %w", uri, model.ErrNotValid)
	}
	return nil
}

func validateOPDSURI(fl validator.FieldLevel) bool {
	u, err := url.Parse(fl.Field().String())
	if err != nil {
		return false
	}

	switch u.Scheme {
	case "http", "https":
		return u.Host != ""
	case "urn":
		return u.Opaque != ""
	}
	return false
}
