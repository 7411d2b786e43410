package printer

import (
	"encoding/json"
	"io"
	"time"

	"github.com/slok/lendr/internal/model"
	"github.com/slok/lendr/internal/task"
)

// JSONPrinter prints library information in JSON format.
type JSONPrinter struct {
	writer io.Writer
}

// NewJSONPrinter creates a new JSON printer.
func NewJSONPrinter(w io.Writer) *JSONPrinter {
	return &JSONPrinter{writer: w}
}

type profileOutput struct {
	ID                   string    `json:"id"`
	DisplayName          string    `json:"display_name"`
	Current              bool      `json:"current"`
	ShowTestingLibraries bool      `json:"show_testing_libraries"`
	CreatedAt            time.Time `json:"created_at"`
}

type accountOutput struct {
	ID         string    `json:"id"`
	ProviderID string    `json:"provider_id"`
	Library    string    `json:"library"`
	State      string    `json:"state"`
	CreatedAt  time.Time `json:"created_at"`
}

type bookOutput struct {
	ID          string     `json:"id"`
	AccountID   string     `json:"account_id"`
	Title       string     `json:"title"`
	Authors     []string   `json:"authors,omitempty"`
	Status      string     `json:"status"`
	Downloaded  bool       `json:"downloaded"`
	ContentType string     `json:"content_type,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

type providerOutput struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	IsProduction bool      `json:"is_production"`
	Updated      time.Time `json:"updated"`
}

type recordOutput struct {
	Operation string             `json:"operation"`
	Subject   string             `json:"subject"`
	Failed    bool               `json:"failed"`
	Steps     []recordStepOutput `json:"steps"`
	CreatedAt time.Time          `json:"created_at"`
}

type recordStepOutput struct {
	Description string `json:"description"`
	Status      string `json:"status"`
	Message     string `json:"message,omitempty"`
	Error       string `json:"error,omitempty"`
}

type messageOutput struct {
	Message string `json:"message"`
}

// PrintProfiles prints profiles in JSON format.
func (j *JSONPrinter) PrintProfiles(profiles []model.Profile, current model.ProfileID) error {
	items := make([]profileOutput, len(profiles))
	for i, p := range profiles {
		items[i] = profileOutput{
			ID:                   string(p.ID),
			DisplayName:          p.DisplayName,
			Current:              p.ID == current,
			ShowTestingLibraries: p.Preferences.ShowTestingLibraries,
			CreatedAt:            p.CreatedAt.UTC(),
		}
	}
	return j.encode(items)
}

// PrintAccounts prints accounts with their login state in JSON format.
func (j *JSONPrinter) PrintAccounts(accounts []model.Account, states map[model.AccountID]model.AccountLoginState) error {
	items := make([]accountOutput, len(accounts))
	for i, a := range accounts {
		items[i] = accountOutput{
			ID:         string(a.ID),
			ProviderID: a.Provider.ID,
			Library:    a.Provider.DisplayName,
			State:      StateDescription(states[a.ID]),
			CreatedAt:  a.CreatedAt.UTC(),
		}
	}
	return j.encode(items)
}

// PrintBooks prints books in JSON format.
func (j *JSONPrinter) PrintBooks(books []model.BookWithStatus) error {
	items := make([]bookOutput, len(books))
	for i, b := range books {
		items[i] = bookOutput{
			ID:          string(b.Book.ID),
			AccountID:   string(b.Book.AccountID),
			Title:       b.Book.Entry.Title,
			Authors:     b.Book.Entry.Authors,
			Status:      StatusDescription(b.Status),
			Downloaded:  b.Book.Downloaded(),
			ContentType: b.Book.ContentType,
		}
		if !b.Book.UpdatedAt.IsZero() {
			utcTime := b.Book.UpdatedAt.UTC()
			items[i].UpdatedAt = &utcTime
		}
	}
	return j.encode(items)
}

// PrintProviders prints provider descriptions in JSON format.
func (j *JSONPrinter) PrintProviders(descriptions []model.AccountProviderDescription) error {
	items := make([]providerOutput, len(descriptions))
	for i, d := range descriptions {
		items[i] = providerOutput{
			ID:           d.ID,
			Title:        d.Title,
			IsProduction: d.IsProduction,
			Updated:      d.Updated.UTC(),
		}
	}
	return j.encode(items)
}

// PrintTaskRecords prints task records in JSON format.
func (j *JSONPrinter) PrintTaskRecords(records []task.Record) error {
	items := make([]recordOutput, len(records))
	for i, r := range records {
		steps := make([]recordStepOutput, len(r.Steps))
		for k, s := range r.Steps {
			steps[k] = recordStepOutput{
				Description: s.Description,
				Status:      string(s.Status),
				Message:     s.Message,
				Error:       s.Error,
			}
		}
		items[i] = recordOutput{
			Operation: r.Operation,
			Subject:   r.Subject,
			Failed:    r.Failed,
			Steps:     steps,
			CreatedAt: r.CreatedAt.UTC(),
		}
	}
	return j.encode(items)
}

// PrintMessage prints a simple message in JSON format.
func (j *JSONPrinter) PrintMessage(msg string) error {
	return j.encode(messageOutput{Message: msg})
}

func (j *JSONPrinter) encode(v any) error {
	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
