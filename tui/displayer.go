package tui

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"

	tea "charm.land/bubbletea/v2"
)

// StatusInfo summarizes the stored session.
type StatusInfo struct {
	Origin     string
	Storage    string
	HasAccess  bool
	HasRefresh bool
	// Preview is the first characters of the access token.
	Preview string
}

// Displayer abstracts all output of the CLI commands. Its refresh methods
// match apiclient.Observer so a Displayer can narrate the refresh cycle.
type Displayer interface {
	Banner(command string)
	Working(what string)
	LoginOK(user string)
	LoginFailed(err error)
	LoggedOut()
	Status(info StatusInfo)
	Watching(source string)
	TokenChanged(preview string)
	AccessTokenRejected()
	RefreshOK()
	RefreshFailed(err error)
	TokenRefreshedRetrying()
	ReAuthRequired()
	Table(title string, headers []string, rows [][]string)
	Response(status int, body string)
	Done(summary string)
	Fatal(err error)
}

// PlainDisplayer writes plain text progress to w and command results to out.
// Used when stderr is not a TTY (pipes, CI, SSH without pty).
type PlainDisplayer struct {
	w   io.Writer
	out io.Writer
}

// NewPlainDisplayer creates a PlainDisplayer. A nil out sends results to w.
func NewPlainDisplayer(w, out io.Writer) *PlainDisplayer {
	if out == nil {
		out = w
	}
	return &PlainDisplayer{w: w, out: out}
}

func (p *PlainDisplayer) Banner(command string) {
	fmt.Fprintf(p.w, "=== Slowfall CLI: %s ===\n", command)
}

func (p *PlainDisplayer) Working(what string) {
	fmt.Fprintf(p.w, "%s...\n", what)
}

func (p *PlainDisplayer) LoginOK(user string) {
	fmt.Fprintf(p.w, "Logged in as %s\n", user)
}

func (p *PlainDisplayer) LoginFailed(err error) {
	fmt.Fprintf(p.w, "Login failed: %v\n", err)
}

func (p *PlainDisplayer) LoggedOut() {
	fmt.Fprintln(p.w, "Logged out, tokens removed")
}

func (p *PlainDisplayer) Status(info StatusInfo) {
	fmt.Fprintf(p.out, "Origin:        %s\n", info.Origin)
	fmt.Fprintf(p.out, "Storage:       %s\n", info.Storage)
	if info.HasAccess {
		fmt.Fprintf(p.out, "Access Token:  %s...\n", info.Preview)
	} else {
		fmt.Fprintln(p.out, "Access Token:  (none)")
	}
	fmt.Fprintf(p.out, "Refresh Token: %s\n", presence(info.HasRefresh))
}

func (p *PlainDisplayer) Watching(source string) {
	fmt.Fprintf(p.w, "Watching token changes on %s (Ctrl+C to stop)\n", source)
}

func (p *PlainDisplayer) TokenChanged(preview string) {
	if preview == "" {
		fmt.Fprintln(p.out, "token cleared")
		return
	}
	fmt.Fprintf(p.out, "token set: %s...\n", preview)
}

func (p *PlainDisplayer) AccessTokenRejected() {
	fmt.Fprintln(p.w, "Access token rejected (401), refreshing...")
}

func (p *PlainDisplayer) RefreshOK() {
	fmt.Fprintln(p.w, "Token refreshed successfully!")
}

func (p *PlainDisplayer) RefreshFailed(err error) {
	fmt.Fprintf(p.w, "Refresh failed: %v\n", err)
}

func (p *PlainDisplayer) TokenRefreshedRetrying() {
	fmt.Fprintln(p.w, "Token refreshed, retrying API call...")
}

func (p *PlainDisplayer) ReAuthRequired() {
	fmt.Fprintln(p.w, "Session expired, run 'login' again")
}

func (p *PlainDisplayer) Table(title string, headers []string, rows [][]string) {
	if title != "" {
		fmt.Fprintln(p.out, title)
	}
	tw := tabwriter.NewWriter(p.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	_ = tw.Flush()
}

func (p *PlainDisplayer) Response(status int, body string) {
	fmt.Fprintf(p.w, "HTTP %d %s\n", status, http.StatusText(status))
	if body != "" {
		fmt.Fprintln(p.out, body)
	}
}

func (p *PlainDisplayer) Done(summary string) {
	if summary != "" {
		fmt.Fprintln(p.w, summary)
	}
}

func (p *PlainDisplayer) Fatal(err error) {
	fmt.Fprintf(p.w, "Error: %v\n", err)
}

func presence(ok bool) string {
	if ok {
		return "stored"
	}
	return "(none)"
}

// NoopDisplayer is a no-op implementation used in tests.
type NoopDisplayer struct{}

func (NoopDisplayer) Banner(_ string)                          {}
func (NoopDisplayer) Working(_ string)                         {}
func (NoopDisplayer) LoginOK(_ string)                         {}
func (NoopDisplayer) LoginFailed(_ error)                      {}
func (NoopDisplayer) LoggedOut()                               {}
func (NoopDisplayer) Status(_ StatusInfo)                      {}
func (NoopDisplayer) Watching(_ string)                        {}
func (NoopDisplayer) TokenChanged(_ string)                    {}
func (NoopDisplayer) AccessTokenRejected()                     {}
func (NoopDisplayer) RefreshOK()                               {}
func (NoopDisplayer) RefreshFailed(_ error)                    {}
func (NoopDisplayer) TokenRefreshedRetrying()                  {}
func (NoopDisplayer) ReAuthRequired()                          {}
func (NoopDisplayer) Table(_ string, _ []string, _ [][]string) {}
func (NoopDisplayer) Response(_ int, _ string)                 {}
func (NoopDisplayer) Done(_ string)                            {}
func (NoopDisplayer) Fatal(_ error)                            {}

// ProgramDisplayer sends BubbleTea messages to a running tea.Program.
type ProgramDisplayer struct {
	p *tea.Program
}

// NewProgramDisplayer creates a ProgramDisplayer that sends messages to p.
func NewProgramDisplayer(p *tea.Program) *ProgramDisplayer {
	return &ProgramDisplayer{p: p}
}

func (t *ProgramDisplayer) Banner(command string) {
	t.p.Send(MsgBanner{Command: command})
}

func (t *ProgramDisplayer) Working(what string) {
	t.p.Send(MsgWorking{What: what})
}

func (t *ProgramDisplayer) LoginOK(user string) {
	t.p.Send(MsgLoginOK{User: user})
}

func (t *ProgramDisplayer) LoginFailed(err error) {
	t.p.Send(MsgLoginFailed{Err: err})
}

func (t *ProgramDisplayer) LoggedOut() {
	t.p.Send(MsgLoggedOut{})
}

func (t *ProgramDisplayer) Status(info StatusInfo) {
	t.p.Send(MsgStatus{Info: info})
}

func (t *ProgramDisplayer) Watching(source string) {
	t.p.Send(MsgWatching{Source: source})
}

func (t *ProgramDisplayer) TokenChanged(preview string) {
	t.p.Send(MsgTokenChanged{Preview: preview})
}

func (t *ProgramDisplayer) AccessTokenRejected() {
	t.p.Send(MsgAccessTokenRejected{})
}

func (t *ProgramDisplayer) RefreshOK() {
	t.p.Send(MsgRefreshOK{})
}

func (t *ProgramDisplayer) RefreshFailed(err error) {
	t.p.Send(MsgRefreshFailed{Err: err})
}

func (t *ProgramDisplayer) TokenRefreshedRetrying() {
	t.p.Send(MsgTokenRefreshedRetrying{})
}

func (t *ProgramDisplayer) ReAuthRequired() {
	t.p.Send(MsgReAuthRequired{})
}

func (t *ProgramDisplayer) Table(title string, headers []string, rows [][]string) {
	t.p.Send(MsgTable{Title: title, Headers: headers, Rows: rows})
}

func (t *ProgramDisplayer) Response(status int, body string) {
	t.p.Send(MsgResponse{Status: status, Body: body})
}

func (t *ProgramDisplayer) Done(summary string) {
	t.p.Send(MsgDone{Summary: summary})
}

func (t *ProgramDisplayer) Fatal(err error) {
	t.p.Send(MsgFatal{Err: err})
}
