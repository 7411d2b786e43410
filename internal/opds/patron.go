package opds

import (
	"bytes"
	"encoding/json"

	"github.com/slok/lendr/internal/model"
)

const (
	// DRMSchemeACS is the Adobe Content Server DRM scheme.
	DRMSchemeACS = "http://librarysimplified.org/terms/drm/scheme/ACS"

	relDRMDevices = "http://librarysimplified.org/terms/drm/rel/devices"
)

// PatronProfile is the user profile document returned by the patron settings URI.
type PatronProfile struct {
	AuthorizationIdentifier string
	SynchronizeAnnotations  *bool
	DRM                     []PatronDRM
	Links                   []model.Link
}

// PatronDRM is a DRM system the patron is entitled to.
type PatronDRM struct {
	Scheme           string
	Vendor           string
	ClientToken      string
	DeviceManagerURI string
}

// Adobe returns the Adobe DRM descriptor of the profile, if any.
func (p PatronProfile) Adobe() (PatronDRM, bool) {
	for _, d := range p.DRM {
		if d.Scheme == DRMSchemeACS || (d.Scheme == "" && d.ClientToken != "") {
			return d, true
		}
	}
	return PatronDRM{}, false
}

type jsonPatron struct {
	AuthorizationIdentifier string `json:"simplified:authorization_identifier"`
	Settings                struct {
		SynchronizeAnnotations *bool `json:"simplified:synchronize_annotations"`
	} `json:"settings"`
	DRM []struct {
		Vendor      string       `json:"drm:vendor"`
		Scheme      string       `json:"drm:scheme"`
		ClientToken string       `json:"drm:clientToken"`
		Links       []model.Link `json:"links"`
	} `json:"drm"`
	Links []model.Link `json:"links"`
}

// ParsePatronProfile parses a patron profile document.
func ParsePatronProfile(source string, data []byte) (PatronProfile, []model.ParseMessage, error) {
	c := &collector{source: source}

	var jp jsonPatron
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&jp); err != nil {
		c.fail("invalid JSON: %s", err)
		return PatronProfile{}, c.warnings, c.err()
	}

	p := PatronProfile{
		AuthorizationIdentifier: jp.AuthorizationIdentifier,
		SynchronizeAnnotations:  jp.Settings.SynchronizeAnnotations,
		Links:                   jp.Links,
	}
	for i, jd := range jp.DRM {
		d := PatronDRM{Scheme: jd.Scheme, Vendor: jd.Vendor, ClientToken: jd.ClientToken}
		if l, ok := model.LinkByRelation(jd.Links, relDRMDevices); ok {
			d.DeviceManagerURI = l.Href
		}
		if d.Vendor == "" {
			c.fail("drm %d has no vendor", i)
			continue
		}
		if d.ClientToken == "" {
			c.fail("drm %d has no client token", i)
			continue
		}
		if d.DeviceManagerURI == "" {
			c.warn("drm %d has no device manager link", i)
		}
		p.DRM = append(p.DRM, d)
	}

	if err := c.err(); err != nil {
		return PatronProfile{}, c.warnings, err
	}
	return p, c.warnings, nil
}
