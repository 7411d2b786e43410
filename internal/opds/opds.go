// Package opds has the parsers for the documents served by library circulation
// servers: OPDS Atom feeds and entries, Adobe ACSM fulfillment tokens, bearer
// tokens, authentication documents and patron profiles.
package opds

import (
	"errors"
	"fmt"
	"strings"

	"github.com/slok/lendr/internal/model"
)

// Content types of fulfillment documents and publications.
const (
	ContentTypeACSM        = "application/vnd.adobe.adept+xml"
	ContentTypeBearerToken = "application/vnd.librarysimplified.bearer-token+json"
	ContentTypeEPUB        = "application/epub+zip"
	ContentTypePDF         = "application/pdf"
	ContentTypeAudiobook   = "application/audiobook+json"
)

// ParseError is returned when a document can't be parsed. It carries every
// problem found, not only the first one.
type ParseError struct {
	Source   string
	Warnings []model.ParseMessage
	Errors   []model.ParseMessage
}

func (e *ParseError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, m := range e.Errors {
		msgs = append(msgs, m.String())
	}
	return fmt.Sprintf("could not parse %s: %s", e.Source, strings.Join(msgs, "; "))
}

// ParseMessages returns the warnings and errors of a parse error. Errors that
// aren't parse errors are returned as a single error message.
func ParseMessages(source string, err error) (warnings, errs []model.ParseMessage) {
	var perr *ParseError
	if errors.As(err, &perr) {
		return perr.Warnings, perr.Errors
	}
	return nil, []model.ParseMessage{{Source: source, Message: err.Error()}}
}

type collector struct {
	source   string
	warnings []model.ParseMessage
	errors   []model.ParseMessage
}

func (c *collector) warn(format string, args ...any) {
	c.warnings = append(c.warnings, model.ParseMessage{Source: c.source, Message: fmt.Sprintf(format, args...)})
}

func (c *collector) fail(format string, args ...any) {
	c.errors = append(c.errors, model.ParseMessage{Source: c.source, Message: fmt.Sprintf(format, args...)})
}

func (c *collector) err() error {
	if len(c.errors) == 0 {
		return nil
	}
	return &ParseError{Source: c.source, Warnings: c.warnings, Errors: c.errors}
}
