package model

// AccountEvent is published on account lifecycle and login changes.
type AccountEvent interface {
	isAccountEvent()
	// EventMessage returns a human readable description of the event.
	EventMessage() string
}

type (
	AccountCreationInProgress struct {
		Message string
	}
	AccountCreationSucceeded struct {
		Message    string
		AccountID  AccountID
		ProviderID string
	}
	AccountCreationFailed struct {
		Message string
		Result  TaskResult[struct{}]
	}
	AccountDeletionInProgress struct {
		Message string
	}
	AccountDeletionSucceeded struct {
		Message    string
		AccountID  AccountID
		ProviderID string
	}
	AccountDeletionFailed struct {
		Message string
		Result  TaskResult[struct{}]
	}
	AccountLoginStateChanged struct {
		Message   string
		AccountID AccountID
		State     AccountLoginState
	}
)

func (AccountCreationInProgress) isAccountEvent() {}
func (AccountCreationSucceeded) isAccountEvent()  {}
func (AccountCreationFailed) isAccountEvent()     {}
func (AccountDeletionInProgress) isAccountEvent() {}
func (AccountDeletionSucceeded) isAccountEvent()  {}
func (AccountDeletionFailed) isAccountEvent()     {}
func (AccountLoginStateChanged) isAccountEvent()  {}

func (e AccountCreationInProgress) EventMessage() string { return e.Message }
func (e AccountCreationSucceeded) EventMessage() string  { return e.Message }
func (e AccountCreationFailed) EventMessage() string     { return e.Message }
func (e AccountDeletionInProgress) EventMessage() string { return e.Message }
func (e AccountDeletionSucceeded) EventMessage() string  { return e.Message }
func (e AccountDeletionFailed) EventMessage() string     { return e.Message }
func (e AccountLoginStateChanged) EventMessage() string  { return e.Message }

// ProfileCreationFailureReason classifies profile creation failures.
type ProfileCreationFailureReason string

const (
	ProfileDisplayNameAlreadyUsed ProfileCreationFailureReason = "display-name-already-used"
	ProfileCreationGeneralError   ProfileCreationFailureReason = "general"
)

// ProfileEvent is published on profile lifecycle changes.
type ProfileEvent interface {
	isProfileEvent()
}

type (
	ProfileCreationSucceeded struct {
		ProfileID   ProfileID
		DisplayName string
	}
	ProfileCreationFailed struct {
		DisplayName string
		Reason      ProfileCreationFailureReason
		Err         error
	}
	ProfileDeletionSucceeded struct {
		ProfileID ProfileID
	}
	ProfileDeletionFailed struct {
		ProfileID ProfileID
		Err       error
	}
	ProfileSelectionInProgress struct {
		ProfileID ProfileID
	}
	ProfileSelectionCompleted struct {
		ProfileID ProfileID
	}
	ProfileUpdated struct {
		ProfileID ProfileID
	}
)

func (ProfileCreationSucceeded) isProfileEvent()   {}
func (ProfileCreationFailed) isProfileEvent()      {}
func (ProfileDeletionSucceeded) isProfileEvent()   {}
func (ProfileDeletionFailed) isProfileEvent()      {}
func (ProfileSelectionInProgress) isProfileEvent() {}
func (ProfileSelectionCompleted) isProfileEvent()  {}
func (ProfileUpdated) isProfileEvent()             {}

// ProviderRegistryStatus is the refresh status of the provider registry.
type ProviderRegistryStatus string

const (
	ProviderRegistryIdle       ProviderRegistryStatus = "idle"
	ProviderRegistryRefreshing ProviderRegistryStatus = "refreshing"
)

// ProviderRegistryEvent is published by the account provider registry.
type ProviderRegistryEvent interface {
	isProviderRegistryEvent()
}

type (
	ProviderUpdated struct {
		ID string
	}
	ProviderSourceFailed struct {
		Source string
		Err    error
	}
	ProviderStatusChanged struct {
		Status ProviderRegistryStatus
	}
)

func (ProviderUpdated) isProviderRegistryEvent()       {}
func (ProviderSourceFailed) isProviderRegistryEvent()  {}
func (ProviderStatusChanged) isProviderRegistryEvent() {}
