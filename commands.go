package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/go-authgate/slowfall-cli/apiclient"
	"github.com/go-authgate/slowfall-cli/slowfall"
	"github.com/go-authgate/slowfall-cli/tui"
)

// errUsage marks errors caused by bad command-line input.
var errUsage = errors.New("usage")

// tokenPreviewLen is how much of a token status output reveals.
const tokenPreviewLen = 12

type command struct {
	name    string
	args    string
	summary string
	minArgs int
	maxArgs int
	run     func(ctx context.Context, a *app, args []string) error
}

var commands = []command{
	{"login", "[username] [password]", "Log in and store the session tokens", 0, 2, cmdLogin},
	{"logout", "", "Remove the stored tokens", 0, 0, cmdLogout},
	{"status", "", "Show the stored session", 0, 0, cmdStatus},
	{"watch", "", "Follow access token changes made by other processes", 0, 0, cmdWatch},
	{"get", "<path>", "GET an API path with the stored token and print the response", 1, 1, cmdGet},
	{"airports", "", "List airports", 0, 0, cmdAirports},
	{"add-airport", "<name> <icao> <timezone>", "Create an airport", 3, 3, cmdAddAirport},
	{"delete-airport", "<id>", "Delete an airport", 1, 1, cmdDeleteAirport},
	{"crafts", "", "List aircraft", 0, 0, cmdCrafts},
	{"add-craft", "<name> <registration> [weight] [persons]", "Create an aircraft", 2, 4, cmdAddCraft},
	{"people", "", "List people", 0, 0, cmdPeople},
	{"pilots", "", "List pilots", 0, 0, cmdPilots},
	{"skydivers", "", "List skydivers", 0, 0, cmdSkydivers},
	{"add-person", "<first> <last> <weight> <email> [pilot] [skydiver]", "Create a person", 4, 6, cmdAddPerson},
	{"jumps", "", "List jumps by time", 0, 0, cmdJumps},
	{"next-jump", "", "Show the next upcoming jump", 0, 0, cmdNextJump},
	{"add-jump", "<time> <airport-id> <craft-registration> <altitude-ft> [pilot-id]", "Plan a jump", 4, 5, cmdAddJump},
	{"add-pilot", "<jump-id> <person-id>", "Assign a pilot to a jump", 2, 2, cmdAddPilot},
	{"add-skydiver", "<jump-id> <person-id>", "Add a skydiver to a jump", 2, 2, cmdAddSkydiver},
}

func findCommand(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func printUsage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintln(w, "Usage: slowfall [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-16s %s\n", c.name, c.summary)
		if c.args != "" {
			fmt.Fprintf(w, "  %-16s   %s %s\n", "", c.name, c.args)
		}
	}
	if fs != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Flags:")
		fs.PrintDefaults()
	}
}

// dispatch runs the named command.
func dispatch(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: no command given", errUsage)
	}
	c, ok := findCommand(args[0])
	if !ok {
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
	rest := args[1:]
	if len(rest) < c.minArgs || len(rest) > c.maxArgs {
		return fmt.Errorf("%w: slowfall %s %s", errUsage, c.name, c.args)
	}
	err := c.run(ctx, a, rest)
	if errors.Is(err, slowfall.ErrUnauthorized) {
		a.d.ReAuthRequired()
	}
	return err
}

func preview(token string) string {
	if len(token) > tokenPreviewLen {
		return token[:tokenPreviewLen]
	}
	return token
}

func statusInfo(a *app, token string, hasRefresh bool) tui.StatusInfo {
	return tui.StatusInfo{
		Origin:     a.cfg.Origin,
		Storage:    a.storageDescription(),
		HasAccess:  token != "",
		HasRefresh: hasRefresh,
		Preview:    preview(token),
	}
}

func cmdLogin(ctx context.Context, a *app, args []string) error {
	user, pass := a.cfg.Username, a.cfg.Password
	if len(args) > 0 {
		user = args[0]
	}
	if len(args) > 1 {
		pass = args[1]
	}
	if user == "" || pass == "" {
		return fmt.Errorf(
			"%w: username and password required (args, -username/-password or SLOWFALL_USERNAME/SLOWFALL_PASSWORD)",
			errUsage,
		)
	}

	a.d.Working("Logging in as " + user)
	if err := a.client.Login(ctx, user, pass); err != nil {
		a.d.LoginFailed(err)
		return err
	}
	a.d.LoginOK(user)
	a.d.Done("Session stored in " + a.storageDescription())
	return nil
}

func cmdLogout(ctx context.Context, a *app, _ []string) error {
	a.client.Logout(ctx)
	a.d.LoggedOut()
	a.d.Done("")
	return nil
}

func cmdStatus(ctx context.Context, a *app, _ []string) error {
	token := a.store.GetToken(ctx)
	a.d.Status(statusInfo(a, token, a.store.GetRefreshToken(ctx) != ""))
	a.d.Done("")
	return nil
}

func cmdWatch(ctx context.Context, a *app, _ []string) error {
	dispose := a.store.Subscribe(func(token string) {
		a.d.TokenChanged(preview(token))
	})
	defer dispose()

	a.d.Watching(a.watchSource())
	<-ctx.Done()
	a.d.Done("Stopped watching")
	return nil
}

func cmdGet(ctx context.Context, a *app, args []string) error {
	a.d.Working("GET " + args[0])
	resp, err := a.client.FetchWithAuth(ctx, args[0], &apiclient.RequestOptions{
		Method: http.MethodGet,
		Header: http.Header{"Accept": {"application/json"}},
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	a.d.Response(resp.StatusCode, strings.TrimSpace(string(body)))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &slowfall.APIError{Op: "GET " + args[0], Status: resp.StatusCode}
	}
	a.d.Done("")
	return nil
}

func cmdAirports(ctx context.Context, a *app, _ []string) error {
	a.d.Working("Fetching airports")
	airports, err := a.api.Airports(ctx)
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(airports))
	for _, ap := range airports {
		rows = append(rows, []string{ap.ID.String(), ap.Name, ap.ICAOCode, ap.Timezone})
	}
	a.d.Table("Airports", []string{"ID", "NAME", "ICAO", "TIMEZONE"}, rows)
	a.d.Done(countSummary(len(rows), "airport"))
	return nil
}

func cmdAddAirport(ctx context.Context, a *app, args []string) error {
	a.d.Working("Creating airport")
	ap, err := a.api.CreateAirport(ctx, slowfall.CreateAirportRequest{
		Name:     args[0],
		ICAOCode: strings.ToUpper(args[1]),
		Timezone: args[2],
	})
	if err != nil {
		return err
	}
	a.d.Done(fmt.Sprintf("Created airport %s (%s)", ap.Name, ap.ID))
	return nil
}

func cmdDeleteAirport(ctx context.Context, a *app, args []string) error {
	id, err := parseUUID("airport id", args[0])
	if err != nil {
		return err
	}
	a.d.Working("Deleting airport")
	if err := a.api.DeleteAirport(ctx, id); err != nil {
		return err
	}
	a.d.Done("Deleted airport " + id.String())
	return nil
}

func cmdCrafts(ctx context.Context, a *app, _ []string) error {
	a.d.Working("Fetching aircraft")
	crafts, err := a.api.Crafts(ctx)
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(crafts))
	for _, c := range crafts {
		rows = append(rows, []string{
			c.ID.String(), c.Name, c.RegistrationNumber,
			optionalInt(c.CapacityWeight), optionalInt(c.CapacityPersons),
		})
	}
	a.d.Table("Aircraft", []string{"ID", "NAME", "REGISTRATION", "MAX KG", "MAX PERSONS"}, rows)
	a.d.Done(countSummary(len(rows), "aircraft"))
	return nil
}

func cmdAddCraft(ctx context.Context, a *app, args []string) error {
	req := slowfall.CreateCraftRequest{Name: args[0], RegistrationNumber: strings.ToUpper(args[1])}
	var err error
	if len(args) > 2 {
		if req.CapacityWeight, err = parsePositiveInt("weight", args[2]); err != nil {
			return err
		}
	}
	if len(args) > 3 {
		if req.CapacityPersons, err = parsePositiveInt("persons", args[3]); err != nil {
			return err
		}
	}

	a.d.Working("Creating aircraft")
	c, err := a.api.CreateCraft(ctx, req)
	if err != nil {
		return err
	}
	a.d.Done(fmt.Sprintf("Created aircraft %s (%s)", c.RegistrationNumber, c.ID))
	return nil
}

func peopleTable(a *app, title string, people []slowfall.Person) {
	rows := make([][]string, 0, len(people))
	for _, p := range people {
		rows = append(rows, []string{
			string(p.ID), p.DisplayName(), yesNo(p.Pilot), yesNo(p.Skydiver),
			optionalFloat(p.Weight), p.Email,
		})
	}
	a.d.Table(title, []string{"ID", "NAME", "PILOT", "SKYDIVER", "KG", "EMAIL"}, rows)
	a.d.Done(countSummary(len(rows), "person"))
}

func cmdPeople(ctx context.Context, a *app, _ []string) error {
	a.d.Working("Fetching people")
	people, err := a.api.People(ctx)
	if err != nil {
		return err
	}
	peopleTable(a, "People", people)
	return nil
}

func cmdPilots(ctx context.Context, a *app, _ []string) error {
	a.d.Working("Fetching pilots")
	people, err := a.api.Pilots(ctx)
	if err != nil {
		return err
	}
	peopleTable(a, "Pilots", people)
	return nil
}

func cmdSkydivers(ctx context.Context, a *app, _ []string) error {
	a.d.Working("Fetching skydivers")
	people, err := a.api.Skydivers(ctx)
	if err != nil {
		return err
	}
	peopleTable(a, "Skydivers", people)
	return nil
}

func cmdAddPerson(ctx context.Context, a *app, args []string) error {
	weight, err := strconv.ParseFloat(args[2], 64)
	if err != nil || weight <= 0 {
		return fmt.Errorf("%w: weight must be a positive number, got %q", errUsage, args[2])
	}
	req := slowfall.CreatePersonRequest{
		FirstName: args[0],
		LastName:  args[1],
		Weight:    weight,
		Email:     args[3],
	}
	for _, role := range args[4:] {
		switch strings.ToLower(role) {
		case "pilot":
			req.Pilot = true
		case "skydiver":
			req.Skydiver = true
		default:
			return fmt.Errorf("%w: role must be pilot or skydiver, got %q", errUsage, role)
		}
	}

	a.d.Working("Creating person")
	p, err := a.api.CreatePerson(ctx, req)
	if err != nil {
		return err
	}
	a.d.Done(fmt.Sprintf("Created %s (%s)", p.DisplayName(), p.ID))
	return nil
}

func jumpRows(jumps []slowfall.Jump) [][]string {
	rows := make([][]string, 0, len(jumps))
	for _, j := range jumps {
		rows = append(rows, []string{
			j.ID.String(),
			j.JumpTime.Format("2006-01-02 15:04"),
			j.AirportID.String(),
			strconv.Itoa(j.AltitudeFeet),
			names(j.Pilots),
			names(j.Skydivers),
		})
	}
	return rows
}

var jumpHeaders = []string{"ID", "TIME", "AIRPORT", "ALTITUDE FT", "PILOTS", "SKYDIVERS"}

func cmdJumps(ctx context.Context, a *app, _ []string) error {
	a.d.Working("Fetching jumps")
	jumps, err := a.api.Jumps(ctx)
	if err != nil {
		return err
	}
	a.d.Table("Jumps", jumpHeaders, jumpRows(slowfall.SortJumps(jumps)))
	a.d.Done(countSummary(len(jumps), "jump"))
	return nil
}

func cmdNextJump(ctx context.Context, a *app, _ []string) error {
	a.d.Working("Fetching jumps")
	jumps, err := a.api.Jumps(ctx)
	if err != nil {
		return err
	}
	next, ok := slowfall.NextJump(jumps, a.now())
	if !ok {
		a.d.Done("No jumps planned")
		return nil
	}
	a.d.Table("Next jump", jumpHeaders, jumpRows([]slowfall.Jump{next}))
	a.d.Done("")
	return nil
}

func cmdAddJump(ctx context.Context, a *app, args []string) error {
	when, err := slowfall.ParseLocalTime(args[0])
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	airportID, err := parseUUID("airport id", args[1])
	if err != nil {
		return err
	}
	altitude, err := parsePositiveInt("altitude", args[3])
	if err != nil {
		return err
	}
	req := slowfall.CreateJumpRequest{
		JumpTime:                slowfall.LocalTime{Time: when},
		AirportID:               airportID,
		CraftRegistrationNumber: strings.ToUpper(args[2]),
		AltitudeFeet:            altitude,
	}
	if len(args) > 4 {
		req.PilotID = slowfall.PersonID(args[4])
	}

	a.d.Working("Planning jump")
	j, err := a.api.CreateJump(ctx, req)
	if err != nil {
		return err
	}
	a.d.Done(fmt.Sprintf("Planned jump %s at %s", j.ID, j.JumpTime.Format("2006-01-02 15:04")))
	return nil
}

func cmdAddPilot(ctx context.Context, a *app, args []string) error {
	jumpID, err := parseUUID("jump id", args[0])
	if err != nil {
		return err
	}
	a.d.Working("Assigning pilot")
	if err := a.api.AddPilot(ctx, jumpID, slowfall.PersonID(args[1])); err != nil {
		return err
	}
	a.d.Done("Pilot assigned")
	return nil
}

func cmdAddSkydiver(ctx context.Context, a *app, args []string) error {
	jumpID, err := parseUUID("jump id", args[0])
	if err != nil {
		return err
	}
	a.d.Working("Adding skydiver")
	if err := a.api.AddSkydiver(ctx, jumpID, slowfall.PersonID(args[1])); err != nil {
		return err
	}
	a.d.Done("Skydiver added")
	return nil
}

func parseUUID(what, s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid %s %q", errUsage, what, s)
	}
	return id, nil
}

func parsePositiveInt(what, s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer, got %q", errUsage, what, s)
	}
	return n, nil
}

func optionalInt(n int) string {
	if n == 0 {
		return "-"
	}
	return strconv.Itoa(n)
}

func optionalFloat(f float64) string {
	if f == 0 {
		return "-"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func names(people []slowfall.Person) string {
	out := make([]string, 0, len(people))
	for _, p := range people {
		out = append(out, p.DisplayName())
	}
	return strings.Join(out, ", ")
}

func countSummary(n int, noun string) string {
	switch {
	case n == 1:
		return "1 " + noun
	case noun == "person":
		return fmt.Sprintf("%d people", n)
	case noun == "aircraft":
		return fmt.Sprintf("%d aircraft", n)
	default:
		return fmt.Sprintf("%d %ss", n, noun)
	}
}
