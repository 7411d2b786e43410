package provider

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/slok/lendr/internal/httpclient"
	"github.com/slok/lendr/internal/log"
	"github.com/slok/lendr/internal/model"
	"github.com/slok/lendr/internal/opds"
	"github.com/slok/lendr/internal/task"
)

// FeatureReservations is the authentication document feature enabling holds.
const FeatureReservations = "https://librarysimplified.org/rel/policy/reservations"

const relAuthenticate = "authenticate"

type resolver struct {
	client httpclient.Client
	logger log.Logger
}

func (r *resolver) resolve(ctx context.Context, d model.AccountProviderDescription, progress ResolutionProgress) model.TaskResult[model.AccountProvider] {
	rec := model.NewTaskRecorder()
	failure := func() model.TaskResult[model.AccountProvider] {
		return task.FinishFailure[model.TaskError, model.AccountProvider](rec)
	}
	step := func(msg string) {
		rec.BeginNewStep(msg)
		progress(d.ID, msg)
	}

	step(fmt.Sprintf("Resolving provider %s", d.ID))
	authURI, hasAuthDoc := d.AuthenticationDocumentURI()
	if !hasAuthDoc {
		catalog, ok := d.CatalogURI()
		if !ok {
			msg := "resolving: no start URI"
			rec.CurrentStepFailed(msg, model.MissingInformation{Message: msg}, nil)
			return failure()
		}

		rec.CurrentStepSucceeded("No authentication document, using the catalog")
		return task.FinishSuccess(rec, baseProvider(d, catalog))
	}
	rec.CurrentStepSucceeded("Found authentication document")

	step(fmt.Sprintf("Fetching authentication document %s", authURI))
	result := httpclient.Get(ctx, r.client, authURI, nil)
	ok, isOK := result.(httpclient.OK)
	if !isOK {
		msg := "resolving: could not retrieve the authentication document"
		rec.CurrentStepFailed(msg, httpclient.TaskErrorOf(msg, result), nil)
		return failure()
	}
	data, err := httpclient.ReadBody(ok)
	if err != nil {
		msg := "resolving: could not read the authentication document"
		rec.CurrentStepFailed(msg, model.ConnectionFailure{Message: msg, Err: err}, err)
		return failure()
	}
	rec.CurrentStepSucceeded("Fetched authentication document")

	step("Parsing authentication document")
	doc, warnings, err := opds.ParseAuthenticationDocument(authURI, data)
	if err != nil {
		w, errs := opds.ParseMessages(authURI, err)
		msg := "resolving: could not parse the authentication document"
		rec.CurrentStepFailed(msg, model.ServerParseError{Message: msg, Warnings: w, Errors: errs}, err)
		return failure()
	}
	for _, w := range warnings {
		r.logger.Warningf("Authentication document warning: %s", w)
	}
	rec.CurrentStepSucceeded("Parsed authentication document")

	step("Selecting authentication")
	auth, terr := authenticationOf(doc)
	if terr != nil {
		rec.CurrentStepFailed(terr.Error(), terr, nil)
		return failure()
	}
	rec.CurrentStepSucceeded("Selected authentication")

	p := providerFromDocument(d, authURI, doc, auth)
	if err := p.Validate(); err != nil {
		msg := "resolving: resolved provider is not valid"
		rec.CurrentStepFailedAppending(msg, model.MissingInformation{Message: fmt.Sprintf("%s: %s", msg, err)}, err)
		return failure()
	}

	progress(d.ID, "Resolved provider")
	return task.FinishSuccess(rec, p)
}

func baseProvider(d model.AccountProviderDescription, catalogURI string) model.AccountProvider {
	p := model.AccountProvider{
		ID:               d.ID,
		DisplayName:      d.Title,
		CatalogURI:       catalogURI,
		MainColor:        "red",
		AddAutomatically: d.IsAutomatic,
		IsProduction:     d.IsProduction,
		Updated:          d.Updated,
	}
	if len(d.Images) > 0 {
		p.Logo = d.Images[0].Href
	}
	return p
}

func providerFromDocument(d model.AccountProviderDescription, authURI string, doc opds.AuthenticationDocument, auth model.AuthenticationDescription) model.AccountProvider {
	catalog, _ := d.CatalogURI()
	p := baseProvider(d, catalog)
	p.AuthenticationDocumentURI = authURI
	p.Authentication = auth
	p.MainColor = doc.MainColor
	p.Subtitle = doc.Description
	p.SupportsReservations = slices.Contains(doc.FeaturesEnabled, FeatureReservations)
	if doc.Title != "" {
		p.DisplayName = doc.Title
	}

	for _, l := range doc.Links {
		switch l.Relation {
		case model.RelStart:
			p.CatalogURI = l.Href
		case model.RelRegister:
			p.CardCreatorURI = l.Href
		case model.RelLicense:
			p.License = l.Href
		case model.RelTermsOfService:
			p.EULA = l.Href
		case model.RelUserProfile:
			p.PatronSettingsURI = l.Href
		case model.RelPrivacyPolicy:
			p.PrivacyPolicy = l.Href
		case model.RelShelf:
			p.LoansURI = l.Href
		case model.RelHelp:
			if strings.HasPrefix(l.Href, "mailto:") {
				p.SupportEmail = l.Href
			}
		case model.RelLogo:
			p.Logo = l.Href
		case model.RelAnnotations:
			p.AnnotationsURI = l.Href
		}
	}

	return p
}

// authenticationOf returns the first supported authentication of the document,
// a document without authentication methods needs no login.
func authenticationOf(doc opds.AuthenticationDocument) (model.AuthenticationDescription, model.TaskError) {
	if len(doc.Authentication) == 0 {
		return nil, nil
	}

	var firstErr model.TaskError
	for _, m := range doc.Authentication {
		auth, err := authenticationOfMethod(m)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if auth != nil {
			return auth, nil
		}
	}

	if firstErr != nil {
		return nil, firstErr
	}
	return nil, model.MissingInformation{Message: "resolving: no supported authentication types"}
}

func authenticationOfMethod(m opds.AuthenticationMethod) (model.AuthenticationDescription, model.TaskError) {
	logo := ""
	if l, ok := model.LinkByRelation(m.Links, model.RelLogo); ok {
		logo = l.Href
	}

	switch m.Type {
	case model.AuthTypeBasic:
		login := inputOf(m.Inputs, "login")
		password := inputOf(m.Inputs, "password")
		return model.AuthBasic{
			Description:           m.Description,
			BarcodeFormat:         login.BarcodeFormat,
			Keyboard:              keyboardOf(login.Keyboard),
			PasswordMaximumLength: password.MaximumLength,
			PasswordKeyboard:      keyboardOf(password.Keyboard),
			Labels:                m.Labels,
			LogoURI:               logo,
		}, nil

	case model.AuthTypeOAuthWithIntermediary:
		l, ok := model.LinkByRelation(m.Links, relAuthenticate)
		if !ok {
			return nil, model.MissingInformation{Message: "resolving: OAuth authentication has no authenticate link"}
		}
		return model.AuthOAuthWithIntermediary{Description: m.Description, AuthenticateURI: l.Href, LogoURI: logo}, nil

	case model.AuthTypeCOPPAAgeGate:
		met, okMet := model.LinkByRelation(m.Links, model.RelRestrictionMet)
		notMet, okNotMet := model.LinkByRelation(m.Links, model.RelRestrictionNotMet)
		if !okMet || !okNotMet {
			return nil, model.MissingInformation{Message: "resolving: COPPA age gate requires both restriction links"}
		}
		return model.AuthCOPPAAgeGate{GreaterEqual13URI: met.Href, Under13URI: notMet.Href}, nil

	case model.AuthTypeAnonymous:
		return model.AuthAnonymous{}, nil
	}

	return nil, nil
}

func inputOf(inputs map[string]opds.AuthenticationInput, name string) opds.AuthenticationInput {
	for k, v := range inputs {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return opds.AuthenticationInput{}
}

func keyboardOf(s string) model.KeyboardInput {
	k := model.KeyboardInput(strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), " ", "_"))
	switch k {
	case model.KeyboardDefault, model.KeyboardEmailAddress, model.KeyboardNumberPad, model.KeyboardNoInput:
		return k
	}
	return model.KeyboardDefault
}
