package model

import (
	"time"
)

// Link is a typed, relation-tagged URI.
type Link struct {
	Href     string `json:"href" yaml:"href"`
	Relation string `json:"rel,omitempty" yaml:"rel"`
	Type     string `json:"type,omitempty" yaml:"type"`
}

// AcquisitionRelation is the relation of an OPDS acquisition link.
type AcquisitionRelation string

const (
	AcquisitionBorrow     AcquisitionRelation = "http://opds-spec.org/acquisition/borrow"
	AcquisitionGeneric    AcquisitionRelation = "http://opds-spec.org/acquisition"
	AcquisitionOpenAccess AcquisitionRelation = "http://opds-spec.org/acquisition/open-access"
	AcquisitionBuy        AcquisitionRelation = "http://opds-spec.org/acquisition/buy"
	AcquisitionSample     AcquisitionRelation = "http://opds-spec.org/acquisition/sample"
	AcquisitionSubscribe  AcquisitionRelation = "http://opds-spec.org/acquisition/subscribe"
)

// Acquisition describes how to obtain a copy of a publication.
type Acquisition struct {
	Relation AcquisitionRelation `json:"relation"`
	URI      string              `json:"uri"`
	Type     string              `json:"type"`
	// IndirectTypes are the nested indirect acquisition types, outermost first.
	IndirectTypes []string `json:"indirectTypes,omitempty"`
}

// FinalType returns the content type that will be obtained once every indirection
// has been followed.
func (a Acquisition) FinalType() string {
	if len(a.IndirectTypes) > 0 {
		return a.IndirectTypes[len(a.IndirectTypes)-1]
	}
	return a.Type
}

// Borrowable returns true when the acquisition relation can be used to borrow.
func (a Acquisition) Borrowable() bool {
	switch a.Relation {
	case AcquisitionBorrow, AcquisitionGeneric, AcquisitionOpenAccess:
		return true
	}
	return false
}

// Availability is the loan availability of a feed entry.
type Availability interface {
	isAvailability()
	// Kind returns the stable name of the availability.
	Kind() string
}

type (
	AvailabilityLoanable struct{}
	AvailabilityHoldable struct{}
	AvailabilityLoaned   struct {
		StartDate *time.Time `json:"startDate,omitempty"`
		EndDate   *time.Time `json:"endDate,omitempty"`
		RevokeURI string     `json:"revokeURI,omitempty"`
	}
	AvailabilityHeld struct {
		Position  *int       `json:"position,omitempty"`
		StartDate *time.Time `json:"startDate,omitempty"`
		EndDate   *time.Time `json:"endDate,omitempty"`
		RevokeURI string     `json:"revokeURI,omitempty"`
	}
	AvailabilityHeldReady struct {
		EndDate   *time.Time `json:"endDate,omitempty"`
		RevokeURI string     `json:"revokeURI,omitempty"`
	}
	AvailabilityOpenAccess struct {
		RevokeURI string `json:"revokeURI,omitempty"`
	}
	AvailabilityRevoked struct {
		RevokeURI string `json:"revokeURI,omitempty"`
	}
)

func (AvailabilityLoanable) isAvailability()   {}
func (AvailabilityHoldable) isAvailability()   {}
func (AvailabilityLoaned) isAvailability()     {}
func (AvailabilityHeld) isAvailability()       {}
func (AvailabilityHeldReady) isAvailability()  {}
func (AvailabilityOpenAccess) isAvailability() {}
func (AvailabilityRevoked) isAvailability()    {}

func (AvailabilityLoanable) Kind() string   { return "loanable" }
func (AvailabilityHoldable) Kind() string   { return "holdable" }
func (AvailabilityLoaned) Kind() string     { return "loaned" }
func (AvailabilityHeld) Kind() string       { return "held" }
func (AvailabilityHeldReady) Kind() string  { return "held-ready" }
func (AvailabilityOpenAccess) Kind() string { return "open-access" }
func (AvailabilityRevoked) Kind() string    { return "revoked" }

// RevokeURIOf returns the revocation URI carried by an availability, if any.
func RevokeURIOf(a Availability) string {
	switch v := a.(type) {
	case AvailabilityLoaned:
		return v.RevokeURI
	case AvailabilityHeld:
		return v.RevokeURI
	case AvailabilityHeldReady:
		return v.RevokeURI
	case AvailabilityOpenAccess:
		return v.RevokeURI
	case AvailabilityRevoked:
		return v.RevokeURI
	}
	return ""
}

// FeedEntry is an OPDS acquisition feed entry.
type FeedEntry struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Authors      []string      `json:"authors,omitempty"`
	Summary      string        `json:"summary,omitempty"`
	Publisher    string        `json:"publisher,omitempty"`
	Updated      time.Time     `json:"updated"`
	Acquisitions []Acquisition `json:"acquisitions,omitempty"`
	Availability Availability  `json:"-"`
	CoverURI     string        `json:"coverURI,omitempty"`
	ThumbnailURI string        `json:"thumbnailURI,omitempty"`
	// IssuesURI is where problem reports are sent.
	IssuesURI string `json:"issuesURI,omitempty"`
}

// PreferredAcquisition returns the acquisition used when borrowing without an
// explicit choice.
func (e FeedEntry) PreferredAcquisition() (Acquisition, bool) {
	for _, rel := range []AcquisitionRelation{AcquisitionOpenAccess, AcquisitionBorrow, AcquisitionGeneric} {
		for _, a := range e.Acquisitions {
			if a.Relation == rel {
				return a, true
			}
		}
	}
	return Acquisition{}, false
}

// Feed is a parsed OPDS acquisition feed.
type Feed struct {
	ID      string
	Title   string
	Updated time.Time
	Entries []FeedEntry
	Links   []Link
}

// LinkByRelation returns the first link with the relation.
func LinkByRelation(links []Link, rel string) (Link, bool) {
	for _, l := range links {
		if l.Relation == rel {
			return l, true
		}
	}
	return Link{}, false
}
