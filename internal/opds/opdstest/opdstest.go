// Package opdstest has helpers to build OPDS documents in tests.
package opdstest

import (
	"fmt"
	"strings"
)

// Entry is a test feed entry.
type Entry struct {
	ID    string
	Title string
	// Rel is the acquisition relation, defaults to the generic acquisition.
	Rel  string
	Href string
	Type string
	// Indirect are the indirect acquisition types, outermost first.
	Indirect []string
	// Status is the opds:availability status, empty omits the element.
	Status    string
	Position  int
	RevokeURI string
	IssuesURI string
}

// Feed renders an Atom OPDS feed with the entries.
func Feed(entries ...Entry) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:opds="http://opds-spec.org/2010/catalog" xmlns:dcterms="http://purl.org/dc/terms/">
  <id>urn:test:feed</id>
  <title>Loans</title>
  <updated>2020-01-01T00:00:00Z</updated>
`)
	for _, e := range entries {
		b.WriteString(renderEntry(e, false))
	}
	b.WriteString("</feed>\n")
	return b.String()
}

// EntryDocument renders a standalone Atom OPDS entry document.
func EntryDocument(e Entry) string {
	return `<?xml version="1.0" encoding="UTF-8"?>` + "\n" + renderEntry(e, true)
}

func renderEntry(e Entry, root bool) string {
	rel := e.Rel
	if rel == "" {
		rel = "http://opds-spec.org/acquisition"
	}
	href := e.Href
	if href == "" {
		href = "http://www.example.com/books/" + e.ID + ".epub"
	}
	typ := e.Type
	if typ == "" {
		typ = "application/epub+zip"
	}
	title := e.Title
	if title == "" {
		title = "Book " + e.ID
	}

	var b strings.Builder
	if root {
		b.WriteString(`<entry xmlns="http://www.w3.org/2005/Atom" xmlns:opds="http://opds-spec.org/2010/catalog" xmlns:dcterms="http://purl.org/dc/terms/">`)
	} else {
		b.WriteString("  <entry>")
	}
	fmt.Fprintf(&b, `
    <id>%s</id>
    <title>%s</title>
    <updated>2020-01-01T00:00:00Z</updated>
    <author><name>Author</name></author>
    <dcterms:publisher>Publisher</dcterms:publisher>
    <link rel="http://opds-spec.org/image" href="http://www.example.com/covers/%s.png" type="image/png"/>
`, e.ID, title, e.ID)
	fmt.Fprintf(&b, `    <link rel="%s" href="%s" type="%s">`, rel, href, typ)
	for _, t := range e.Indirect {
		fmt.Fprintf(&b, `<opds:indirectAcquisition type="%s">`, t)
	}
	for range e.Indirect {
		b.WriteString(`</opds:indirectAcquisition>`)
	}
	if e.Status != "" {
		fmt.Fprintf(&b, `<opds:availability status="%s" since="2020-01-01T00:00:00Z" until="2020-02-01T00:00:00Z"/>`, e.Status)
	}
	if e.Position > 0 {
		fmt.Fprintf(&b, `<opds:holds total="10" position="%d"/>`, e.Position)
	}
	b.WriteString("</link>\n")
	if e.RevokeURI != "" {
		fmt.Fprintf(&b, `    <link rel="http://librarysimplified.org/terms/rel/revoke" href="%s"/>`+"\n", e.RevokeURI)
	}
	if e.IssuesURI != "" {
		fmt.Fprintf(&b, `    <link rel="issues" href="%s"/>`+"\n", e.IssuesURI)
	}
	if root {
		b.WriteString("</entry>\n")
	} else {
		b.WriteString("  </entry>\n")
	}
	return b.String()
}

// ACSM renders an Adobe fulfillment token for content of the given type.
func ACSM(contentType string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<fulfillmentToken fulfillmentType="loan" xmlns="http://ns.adobe.com/adept">
  <distributor>urn:uuid:00000000-0000-0000-0000-000000000000</distributor>
  <operatorURL>https://acs.example.com/fulfillment</operatorURL>
  <transaction>1234</transaction>
  <resourceItemInfo>
    <resource>urn:uuid:11111111-1111-1111-1111-111111111111</resource>
    <metadata>
      <dc:title xmlns:dc="http://purl.org/dc/elements/1.1/">A Book</dc:title>
      <dc:format xmlns:dc="http://purl.org/dc/elements/1.1/">%s</dc:format>
    </metadata>
  </resourceItemInfo>
</fulfillmentToken>
`, contentType)
}

// BearerToken renders a bearer token document pointing at location.
func BearerToken(token, location string) string {
	return fmt.Sprintf(`{"access_token":%q,"expires_in":3600,"location":%q}`, token, location)
}

// PatronProfile renders a patron profile, with Adobe DRM when clientToken is set.
func PatronProfile(clientToken string) string {
	if clientToken == "" {
		return `{"simplified:authorization_identifier":"6120696828384","settings":{"simplified:synchronize_annotations":true},"links":[]}`
	}
	return fmt.Sprintf(`{
  "simplified:authorization_identifier": "6120696828384",
  "drm": [
    {
      "drm:vendor": "OmniConsumerProducts",
      "drm:scheme": "http://librarysimplified.org/terms/drm/scheme/ACS",
      "drm:clientToken": %q,
      "links": [{"rel": "http://librarysimplified.org/terms/drm/rel/devices", "href": "https://example.com/devices"}]
    }
  ],
  "links": [{"href": "https://example.com/annotations/", "rel": "http://www.w3.org/ns/oa#annotationService"}],
  "settings": {"simplified:synchronize_annotations": true}
}`, clientToken)
}
