package opds

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/slok/lendr/internal/model"
)

const (
	nsAtom = "http://www.w3.org/2005/Atom"

	relImage     = "http://opds-spec.org/image"
	relThumbnail = "http://opds-spec.org/image/thumbnail"
	relRevoke    = "http://librarysimplified.org/terms/rel/revoke"
	relIssues    = "issues"
)

type xmlFeed struct {
	XMLName xml.Name   `xml:"http://www.w3.org/2005/Atom feed"`
	ID      string     `xml:"http://www.w3.org/2005/Atom id"`
	Title   string     `xml:"http://www.w3.org/2005/Atom title"`
	Updated string     `xml:"http://www.w3.org/2005/Atom updated"`
	Links   []xmlLink  `xml:"http://www.w3.org/2005/Atom link"`
	Entries []xmlEntry `xml:"http://www.w3.org/2005/Atom entry"`
}

type xmlEntry struct {
	ID        string      `xml:"http://www.w3.org/2005/Atom id"`
	Title     string      `xml:"http://www.w3.org/2005/Atom title"`
	Updated   string      `xml:"http://www.w3.org/2005/Atom updated"`
	Summary   string      `xml:"http://www.w3.org/2005/Atom summary"`
	Authors   []xmlAuthor `xml:"http://www.w3.org/2005/Atom author"`
	Publisher string      `xml:"http://purl.org/dc/terms/ publisher"`
	Links     []xmlLink   `xml:"http://www.w3.org/2005/Atom link"`
}

type xmlAuthor struct {
	Name string `xml:"http://www.w3.org/2005/Atom name"`
}

type xmlLink struct {
	Href         string           `xml:"href,attr"`
	Rel          string           `xml:"rel,attr"`
	Type         string           `xml:"type,attr"`
	Indirect     []xmlIndirect    `xml:"http://opds-spec.org/2010/catalog indirectAcquisition"`
	Availability *xmlAvailability `xml:"http://opds-spec.org/2010/catalog availability"`
	Holds        *xmlHolds        `xml:"http://opds-spec.org/2010/catalog holds"`
}

type xmlIndirect struct {
	Type     string        `xml:"type,attr"`
	Indirect []xmlIndirect `xml:"http://opds-spec.org/2010/catalog indirectAcquisition"`
}

type xmlAvailability struct {
	Status string `xml:"status,attr"`
	Since  string `xml:"since,attr"`
	Until  string `xml:"until,attr"`
}

type xmlHolds struct {
	Total    string `xml:"total,attr"`
	Position string `xml:"position,attr"`
}

// ParseFeed parses an OPDS acquisition feed. Entries that can't be parsed make
// the whole feed fail, recoverable problems are returned as warnings.
func ParseFeed(source string, data []byte) (model.Feed, []model.ParseMessage, error) {
	c := &collector{source: source}

	var xf xmlFeed
	if err := decodeXML(c, data, &xf); err != nil {
		return model.Feed{}, c.warnings, err
	}

	feed := model.Feed{
		ID:      strings.TrimSpace(xf.ID),
		Title:   strings.TrimSpace(xf.Title),
		Updated: c.time("feed updated", xf.Updated),
		Links:   links(xf.Links),
	}
	if feed.ID == "" {
		c.warn("feed has no id")
	}

	for i, xe := range xf.Entries {
		e, ok := c.entry(i, xe)
		if ok {
			feed.Entries = append(feed.Entries, e)
		}
	}

	if err := c.err(); err != nil {
		return model.Feed{}, c.warnings, err
	}
	return feed, c.warnings, nil
}

// ParseEntry parses a single OPDS entry document, as returned by borrow and
// revoke links. A feed with exactly one entry is accepted too.
func ParseEntry(source string, data []byte) (model.FeedEntry, []model.ParseMessage, error) {
	c := &collector{source: source}

	var root struct {
		XMLName xml.Name
	}
	if err := decodeXML(c, data, &root); err != nil {
		return model.FeedEntry{}, c.warnings, err
	}

	switch root.XMLName {
	case xml.Name{Space: nsAtom, Local: "entry"}:
		var xe xmlEntry
		if err := decodeXML(c, data, &xe); err != nil {
			return model.FeedEntry{}, c.warnings, err
		}
		e, _ := c.entry(0, xe)
		if err := c.err(); err != nil {
			return model.FeedEntry{}, c.warnings, err
		}
		return e, c.warnings, nil

	case xml.Name{Space: nsAtom, Local: "feed"}:
		feed, warnings, err := ParseFeed(source, data)
		if err != nil {
			return model.FeedEntry{}, warnings, err
		}
		if len(feed.Entries) != 1 {
			c.warnings = warnings
			c.fail("expected exactly one entry, got %d", len(feed.Entries))
			return model.FeedEntry{}, c.warnings, c.err()
		}
		return feed.Entries[0], warnings, nil
	}

	c.fail("unexpected root element %q", root.XMLName.Local)
	return model.FeedEntry{}, c.warnings, c.err()
}

func decodeXML(c *collector, data []byte, v any) error {
	dec := xml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(v); err != nil {
		var serr *xml.SyntaxError
		if errors.As(err, &serr) {
			c.errors = append(c.errors, model.ParseMessage{Source: c.source, Line: serr.Line, Message: serr.Msg})
		} else {
			c.fail("%s", err)
		}
		return c.err()
	}
	return nil
}

func (c *collector) entry(idx int, xe xmlEntry) (model.FeedEntry, bool) {
	id := strings.TrimSpace(xe.ID)
	if id == "" {
		c.fail("entry %d has no id", idx)
		return model.FeedEntry{}, false
	}

	e := model.FeedEntry{
		ID:        id,
		Title:     strings.TrimSpace(xe.Title),
		Summary:   strings.TrimSpace(xe.Summary),
		Publisher: strings.TrimSpace(xe.Publisher),
		Updated:   c.time("entry "+id+" updated", xe.Updated),
	}
	if e.Title == "" {
		c.warn("entry %s has no title", id)
	}
	for _, a := range xe.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			e.Authors = append(e.Authors, name)
		}
	}

	var (
		revokeURI    string
		availability model.Availability
	)
	for _, l := range xe.Links {
		switch l.Rel {
		case relImage:
			e.CoverURI = l.Href
			continue
		case relThumbnail:
			e.ThumbnailURI = l.Href
			continue
		case relRevoke:
			revokeURI = l.Href
			continue
		case relIssues:
			e.IssuesURI = l.Href
			continue
		}

		if !strings.HasPrefix(l.Rel, string(model.AcquisitionGeneric)) {
			continue
		}
		if l.Href == "" {
			c.warn("entry %s has an acquisition without href", id)
			continue
		}

		acq := model.Acquisition{
			Relation:      model.AcquisitionRelation(l.Rel),
			URI:           l.Href,
			Type:          l.Type,
			IndirectTypes: indirectTypes(l.Indirect),
		}
		e.Acquisitions = append(e.Acquisitions, acq)

		if availability == nil {
			availability = c.availability(id, acq.Relation, l)
		}
	}

	if availability == nil {
		availability = model.AvailabilityLoanable{}
	}
	e.Availability = withRevokeURI(availability, revokeURI)

	return e, true
}

// indirectTypes flattens the first chain of nested indirect acquisitions.
func indirectTypes(ind []xmlIndirect) []string {
	var types []string
	for len(ind) > 0 {
		types = append(types, ind[0].Type)
		ind = ind[0].Indirect
	}
	return types
}

func (c *collector) availability(id string, rel model.AcquisitionRelation, l xmlLink) model.Availability {
	if rel == model.AcquisitionOpenAccess {
		return model.AvailabilityOpenAccess{}
	}

	if l.Availability == nil {
		if rel == model.AcquisitionGeneric {
			return model.AvailabilityLoaned{}
		}
		return nil
	}

	start := c.optTime("entry "+id+" availability since", l.Availability.Since)
	end := c.optTime("entry "+id+" availability until", l.Availability.Until)

	switch l.Availability.Status {
	case "available":
		if rel == model.AcquisitionGeneric {
			return model.AvailabilityLoaned{StartDate: start, EndDate: end}
		}
		return model.AvailabilityLoanable{}
	case "unavailable":
		return model.AvailabilityHoldable{}
	case "reserved":
		var pos *int
		if l.Holds != nil && l.Holds.Position != "" {
			p, err := strconv.Atoi(l.Holds.Position)
			if err != nil {
				c.warn("entry %s has an invalid hold position %q", id, l.Holds.Position)
			} else {
				pos = &p
			}
		}
		return model.AvailabilityHeld{Position: pos, StartDate: start, EndDate: end}
	case "ready":
		return model.AvailabilityHeldReady{EndDate: end}
	case "revoked":
		return model.AvailabilityRevoked{}
	}

	c.warn("entry %s has an unknown availability status %q", id, l.Availability.Status)
	return nil
}

func withRevokeURI(a model.Availability, uri string) model.Availability {
	if uri == "" {
		return a
	}
	switch v := a.(type) {
	case model.AvailabilityLoaned:
		v.RevokeURI = uri
		return v
	case model.AvailabilityHeld:
		v.RevokeURI = uri
		return v
	case model.AvailabilityHeldReady:
		v.RevokeURI = uri
		return v
	case model.AvailabilityOpenAccess:
		v.RevokeURI = uri
		return v
	case model.AvailabilityRevoked:
		v.RevokeURI = uri
		return v
	}
	return a
}

func links(xl []xmlLink) []model.Link {
	ls := make([]model.Link, 0, len(xl))
	for _, l := range xl {
		ls = append(ls, model.Link{Href: l.Href, Relation: l.Rel, Type: l.Type})
	}
	return ls
}

func (c *collector) time(what, s string) time.Time {
	t := c.optTime(what, s)
	if t == nil {
		return time.Time{}
	}
	return *t
}

func (c *collector) optTime(what, s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		c.warn("%s: invalid timestamp %q", what, s)
		return nil
	}
	return &t
}
