package opds

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/slok/lendr/internal/model"
)

// AuthenticationDocument is an OPDS authentication document.
type AuthenticationDocument struct {
	ID               string
	Title            string
	Description      string
	MainColor        string
	Authentication   []AuthenticationMethod
	FeaturesEnabled  []string
	FeaturesDisabled []string
	Links            []model.Link
}

// AuthenticationMethod is one of the authentication methods a document offers.
type AuthenticationMethod struct {
	Type        string
	Description string
	Labels      map[string]string
	Inputs      map[string]AuthenticationInput
	Links       []model.Link
}

// AuthenticationInput describes a login form input.
type AuthenticationInput struct {
	Keyboard      string
	MaximumLength int
	BarcodeFormat string
}

type jsonAuthDocument struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	ColorScheme    string `json:"color_scheme"`
	Authentication []struct {
		Type        string            `json:"type"`
		Description string            `json:"description"`
		Labels      map[string]string `json:"labels"`
		Inputs      map[string]struct {
			Keyboard      string `json:"keyboard"`
			MaximumLength int    `json:"maximum_length"`
			BarcodeFormat string `json:"barcode_format"`
		} `json:"inputs"`
		Links []model.Link `json:"links"`
	} `json:"authentication"`
	Features struct {
		Enabled  []string `json:"enabled"`
		Disabled []string `json:"disabled"`
	} `json:"features"`
	Links []model.Link `json:"links"`
}

// ParseAuthenticationDocument parses an authentication document.
func ParseAuthenticationDocument(source string, data []byte) (AuthenticationDocument, []model.ParseMessage, error) {
	c := &collector{source: source}

	var jd jsonAuthDocument
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&jd); err != nil {
		c.fail("invalid JSON: %s", err)
		return AuthenticationDocument{}, c.warnings, c.err()
	}

	doc := AuthenticationDocument{
		ID:               strings.TrimSpace(jd.ID),
		Title:            strings.TrimSpace(jd.Title),
		Description:      strings.TrimSpace(jd.Description),
		MainColor:        jd.ColorScheme,
		FeaturesEnabled:  jd.Features.Enabled,
		FeaturesDisabled: jd.Features.Disabled,
	}
	if doc.ID == "" {
		c.fail("missing id")
	}
	if doc.Title == "" {
		c.fail("missing title")
	}
	if doc.MainColor == "" {
		doc.MainColor = "red"
	}

	for _, l := range jd.Links {
		if l.Href == "" {
			c.warn("link with relation %q has no href", l.Relation)
			continue
		}
		doc.Links = append(doc.Links, l)
	}

	for i, ja := range jd.Authentication {
		if ja.Type == "" {
			c.warn("authentication %d has no type", i)
			continue
		}
		m := AuthenticationMethod{
			Type:        ja.Type,
			Description: ja.Description,
			Labels:      ja.Labels,
			Links:       ja.Links,
			Inputs:      map[string]AuthenticationInput{},
		}
		for k, in := range ja.Inputs {
			m.Inputs[k] = AuthenticationInput{
				Keyboard:      in.Keyboard,
				MaximumLength: in.MaximumLength,
				BarcodeFormat: in.BarcodeFormat,
			}
		}
		doc.Authentication = append(doc.Authentication, m)
	}

	if err := c.err(); err != nil {
		return AuthenticationDocument{}, c.warnings, err
	}
	return doc, c.warnings, nil
}
