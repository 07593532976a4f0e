package tui

// MsgBanner signals that the banner/title should be displayed.
type MsgBanner struct{ Command string }

// MsgWorking signals that a request is in flight.
type MsgWorking struct{ What string }

// MsgLoginOK signals that the user logged in.
type MsgLoginOK struct{ User string }

// MsgLoginFailed signals that the login was rejected or could not be sent.
type MsgLoginFailed struct{ Err error }

// MsgLoggedOut signals that the stored tokens were removed.
type MsgLoggedOut struct{}

// MsgStatus carries a summary of the stored tokens.
type MsgStatus struct{ Info StatusInfo }

// MsgWatching signals that token change notifications are being followed.
type MsgWatching struct{ Source string }

// MsgTokenChanged signals that the access token changed; Preview is empty
// when it was cleared.
type MsgTokenChanged struct{ Preview string }

// MsgAccessTokenRejected signals that the access token was rejected (401).
type MsgAccessTokenRejected struct{}

// MsgRefreshOK signals that the token was refreshed successfully.
type MsgRefreshOK struct{}

// MsgRefreshFailed signals that token refresh failed.
type MsgRefreshFailed struct{ Err error }

// MsgTokenRefreshedRetrying signals that the token was refreshed and a retry is starting.
type MsgTokenRefreshedRetrying struct{}

// MsgReAuthRequired signals that the session ended and a new login is needed.
type MsgReAuthRequired struct{}

// MsgTable carries tabular command output.
type MsgTable struct {
	Title   string
	Headers []string
	Rows    [][]string
}

// MsgResponse carries a raw API response.
type MsgResponse struct {
	Status int
	Body   string
}

// MsgDone signals that the command finished.
type MsgDone struct{ Summary string }

// MsgFatal signals a fatal error that should terminate the command.
type MsgFatal struct{ Err error }
