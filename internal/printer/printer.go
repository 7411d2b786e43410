package printer

import (
	"strconv"
	"time"

	"github.com/slok/lendr/internal/model"
	"github.com/slok/lendr/internal/task"
)

// Printer knows how to print library information in different formats.
type Printer interface {
	PrintProfiles(profiles []model.Profile, current model.ProfileID) error
	PrintAccounts(accounts []model.Account, states map[model.AccountID]model.AccountLoginState) error
	PrintBooks(books []model.BookWithStatus) error
	PrintProviders(descriptions []model.AccountProviderDescription) error
	PrintTaskRecords(records []task.Record) error
	PrintMessage(msg string) error
}

// StatusDescription returns a short human description of a book status.
func StatusDescription(s model.BookStatus) string {
	switch s := s.(type) {
	case nil:
		return "unknown"
	case model.StatusDownloading:
		return "downloading " + FormatProgress(s.CurrentBytes, s.ExpectedBytes)
	case model.StatusHeld:
		if s.Ready {
			return "held (ready)"
		}
		if s.Position != nil {
			return "held (#" + strconv.Itoa(*s.Position) + ")"
		}
		return "held"
	case model.StatusError:
		return "error: " + s.Message
	default:
		return s.Name()
	}
}

// StateDescription returns the name of a login state, not logged in when unknown.
func StateDescription(s model.AccountLoginState) string {
	if s == nil {
		return model.LoginStateNotLoggedIn{}.Name()
	}
	return s.Name()
}

// DueDescription describes when a loan or a ready hold ends, empty when the
// library didn't say.
func DueDescription(a model.Availability, now time.Time) string {
	var end *time.Time
	switch a := a.(type) {
	case model.AvailabilityLoaned:
		end = a.EndDate
	case model.AvailabilityHeldReady:
		end = a.EndDate
	}
	if end == nil {
		return ""
	}
	if end.Before(now) {
		return "expired"
	}
	return RelativeTime(*end, now)
}
