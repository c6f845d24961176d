package domain

const (
	EventNameDraftSaved      = "draft.saved"
	EventNameDraftSaveFailed = "draft.save_failed"
	EventNameDraftDeleted    = "draft.deleted"

	EventNameSessionRestored          = "session.restored"
	EventNameSessionLoggedIn          = "session.logged_in"
	EventNameSessionRefreshed         = "session.refreshed"
	EventNameSessionRefreshFailed     = "session.refresh_failed"
	EventNameSessionLoggedOut         = "session.logged_out"
	EventNameSessionInactivityWarning = "session.inactivity_warning"
	EventNameSessionExpired           = "session.expired"
)

type EventDraftSaved struct {
	Draft Draft
	// Auto is true when the write came from the autosave timer.
	Auto bool
}

func (EventDraftSaved) Name() string { return EventNameDraftSaved }

type EventDraftSaveFailed struct {
	DraftID string
	Err     error
}

func (EventDraftSaveFailed) Name() string { return EventNameDraftSaveFailed }

type EventDraftDeleted struct {
	DraftID string
}

func (EventDraftDeleted) Name() string { return EventNameDraftDeleted }

type EventSessionRestored struct {
	Session Session
}

func (EventSessionRestored) Name() string { return EventNameSessionRestored }

type EventSessionLoggedIn struct {
	Session Session
}

func (EventSessionLoggedIn) Name() string { return EventNameSessionLoggedIn }

type EventSessionRefreshed struct {
	Session Session
}

func (EventSessionRefreshed) Name() string { return EventNameSessionRefreshed }

type EventSessionRefreshFailed struct {
	Attempts int
	Err      error
}

func (EventSessionRefreshFailed) Name() string { return EventNameSessionRefreshFailed }

type EventSessionLoggedOut struct {
	// Forced is true when the logout was triggered by inactivity.
	Forced bool
}

func (EventSessionLoggedOut) Name() string { return EventNameSessionLoggedOut }

type EventSessionInactivityWarning struct {
	// Remaining is the time left before the forced logout, in milliseconds.
	RemainingMillis int64
}

func (EventSessionInactivityWarning) Name() string { return EventNameSessionInactivityWarning }

type EventSessionExpired struct{}

func (EventSessionExpired) Name() string { return EventNameSessionExpired }
