package model_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/lendr/internal/model"
)

func TestNewBookID(t *testing.T) {
	tests := map[string]struct {
		entryID string
		expID   model.BookID
	}{
		"urn:book:0": {entryID: "urn:book:0", expID: "39434e1c3ea5620fdcc2303c878da54cc421175eb09ce1a6709b54589eb8711f"},
		"urn:book:1": {entryID: "urn:book:1", expID: "f9a7536a61caa60f870b3fbe9d4304b2d59ea03c71cbaee82609e3779d1e6e0f"},
		"urn:book:2": {entryID: "urn:book:2", expID: "251cc5f69cd2a329bb6074b47a26062e59f5bb01d09d14626f41073f63690113"},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.expID, model.NewBookID(test.entryID))
		})
	}
}

func TestParseAdobeClientToken(t *testing.T) {
	tests := map[string]struct {
		raw      string
		expToken model.AdobeClientToken
		expErr   bool
	}{
		"A token with multiple segments should use the last one as the password.": {
			raw: "NYNYPL|536818535|b54be3a5-385b-42eb-9496-3879cb3ac3cc|TWFuIHN1ZmZlcnM=",
			expToken: model.AdobeClientToken{
				UserName: "NYNYPL|536818535|b54be3a5-385b-42eb-9496-3879cb3ac3cc",
				Password: "TWFuIHN1ZmZlcnM=",
				RawToken: "NYNYPL|536818535|b54be3a5-385b-42eb-9496-3879cb3ac3cc|TWFuIHN1ZmZlcnM=",
			},
		},
		"A token with two segments should be parsed.": {
			raw:      "user|pass",
			expToken: model.AdobeClientToken{UserName: "user", Password: "pass", RawToken: "user|pass"},
		},
		"A token without separators should fail.": {
			raw:    "nothing",
			expErr: true,
		},
		"A token with an empty password should fail.": {
			raw:    "user|",
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			got, err := model.ParseAdobeClientToken(test.raw)
			if test.expErr {
				assert.Error(err)
				assert.True(errors.Is(err, model.ErrNotValid))
				return
			}
			assert.NoError(err)
			assert.Equal(test.expToken, got)
		})
	}
}

func TestStatusFromBook(t *testing.T) {
	pos := 3

	tests := map[string]struct {
		book      model.Book
		expStatus model.BookStatus
	}{
		"A loaned book without content should be loaned not downloaded.": {
			book:      model.Book{Entry: model.FeedEntry{Availability: model.AvailabilityLoaned{}}},
			expStatus: model.StatusLoanedNotDownloaded{},
		},
		"A loaned book with content should be loaned downloaded.": {
			book:      model.Book{ContentPath: "/tmp/b.epub", Entry: model.FeedEntry{Availability: model.AvailabilityLoaned{}}},
			expStatus: model.StatusLoanedDownloaded{},
		},
		"An open access book should be loaned.": {
			book:      model.Book{Entry: model.FeedEntry{Availability: model.AvailabilityOpenAccess{}}},
			expStatus: model.StatusLoanedNotDownloaded{},
		},
		"A held book should keep its queue position.": {
			book:      model.Book{Entry: model.FeedEntry{Availability: model.AvailabilityHeld{Position: &pos}}},
			expStatus: model.StatusHeld{Position: &pos},
		},
		"A ready hold should be held and ready.": {
			book:      model.Book{Entry: model.FeedEntry{Availability: model.AvailabilityHeldReady{}}},
			expStatus: model.StatusHeld{Ready: true},
		},
		"A holdable book should be holdable.": {
			book:      model.Book{Entry: model.FeedEntry{Availability: model.AvailabilityHoldable{}}},
			expStatus: model.StatusHoldable{},
		},
		"A revoked book should be revoked.": {
			book:      model.Book{Entry: model.FeedEntry{Availability: model.AvailabilityRevoked{}}},
			expStatus: model.StatusRevoked{},
		},
		"A book without availability should be loanable.": {
			book:      model.Book{},
			expStatus: model.StatusLoanable{},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.expStatus, model.StatusFromBook(test.book))
		})
	}
}

func TestFeedEntryPreferredAcquisition(t *testing.T) {
	tests := map[string]struct {
		acquisitions []model.Acquisition
		expAcq       model.Acquisition
		expOK        bool
	}{
		"Open access should be preferred over borrow.": {
			acquisitions: []model.Acquisition{
				{Relation: model.AcquisitionBorrow, URI: "http://example.com/borrow"},
				{Relation: model.AcquisitionOpenAccess, URI: "http://example.com/free"},
			},
			expAcq: model.Acquisition{Relation: model.AcquisitionOpenAccess, URI: "http://example.com/free"},
			expOK:  true,
		},
		"Borrow should be preferred over generic.": {
			acquisitions: []model.Acquisition{
				{Relation: model.AcquisitionGeneric, URI: "http://example.com/generic"},
				{Relation: model.AcquisitionBorrow, URI: "http://example.com/borrow"},
			},
			expAcq: model.Acquisition{Relation: model.AcquisitionBorrow, URI: "http://example.com/borrow"},
			expOK:  true,
		},
		"Only buy and sample acquisitions should not be usable.": {
			acquisitions: []model.Acquisition{
				{Relation: model.AcquisitionBuy, URI: "http://example.com/buy"},
				{Relation: model.AcquisitionSample, URI: "http://example.com/sample"},
			},
			expOK: false,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			got, ok := model.FeedEntry{Acquisitions: test.acquisitions}.PreferredAcquisition()
			assert.Equal(test.expOK, ok)
			assert.Equal(test.expAcq, got)
		})
	}
}

func TestBookValidate(t *testing.T) {
	tests := map[string]struct {
		book   model.Book
		expErr bool
	}{
		"A valid book should not fail.": {
			book: model.Book{ID: model.NewBookID("urn:book:0"), AccountID: "a0", Entry: model.FeedEntry{ID: "urn:book:0"}},
		},
		"A book without account should fail.": {
			book:   model.Book{ID: model.NewBookID("urn:book:0"), Entry: model.FeedEntry{ID: "urn:book:0"}},
			expErr: true,
		},
		"A book with an ID that doesn't match its entry should fail.": {
			book:   model.Book{ID: model.NewBookID("urn:book:1"), AccountID: "a0", Entry: model.FeedEntry{ID: "urn:book:0"}},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			err := test.book.Validate()
			if test.expErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, model.ErrNotValid)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTaskErrorMessages(t *testing.T) {
	tests := map[string]struct {
		err    model.TaskError
		expMsg string
	}{
		"Server error.": {
			err:    model.ServerError{Message: "login server error 404 NOT FOUND", URI: "urn:patron", Code: 404, Status: "NOT FOUND"},
			expMsg: "login server error 404 NOT FOUND (urn:patron 404 NOT FOUND)",
		},
		"DRM failure with code.": {
			err:    model.DRMFailure{Message: "device activation failed", ErrorCode: "E_FAIL_OFTEN_AND_LOUDLY"},
			expMsg: "device activation failed: E_FAIL_OFTEN_AND_LOUDLY",
		},
		"Unexpected exception with cause.": {
			err:    model.UnexpectedException{Message: "unexpected", Err: errors.New("boom")},
			expMsg: "unexpected: boom",
		},
		"Parse error with messages.": {
			err: model.ServerParseError{Message: "unparseable", Errors: []model.ParseMessage{
				{Source: "urn:patron", Line: 2, Message: "bad token"},
			}},
			expMsg: "unparseable: urn:patron:2: bad token",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.expMsg, test.err.Error())
		})
	}
}
