package slowfall

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/go-authgate/slowfall-cli/apiclient"
	"github.com/go-authgate/slowfall-cli/tokenstore"
)

func newTestAPI(t *testing.T, handler http.Handler) (*API, *tokenstore.Store) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store := tokenstore.New(tokenstore.NewMemoryStorage())
	store.SetToken(context.Background(), "test-token")
	c, err := apiclient.New(apiclient.Config{Origin: srv.URL}, store)
	require.NoError(t, err)
	return New(c), store
}

func respond(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestAirports(t *testing.T) {
	id := uuid.New()
	var created CreateAirportRequest
	var deleted string

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/airports", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		respond(w, http.StatusOK, `[{"id":"`+id.String()+`","name":"Gryttjom","icaoCode":"ESKC","timezone":"Europe/Stockholm"}]`)
	})
	mux.HandleFunc("POST /api/airports", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&created))
		respond(w, http.StatusCreated, `{"id":"`+id.String()+`","name":"`+created.Name+`","icaoCode":"`+created.ICAOCode+`","timezone":"`+created.Timezone+`"}`)
	})
	mux.HandleFunc("DELETE /api/airports/{id}", func(w http.ResponseWriter, r *http.Request) {
		deleted = r.PathValue("id")
		w.WriteHeader(http.StatusNoContent)
	})
	api, _ := newTestAPI(t, mux)
	ctx := context.Background()

	airports, err := api.Airports(ctx)
	require.NoError(t, err)
	require.Equal(t, []Airport{{ID: id, Name: "Gryttjom", ICAOCode: "ESKC", Timezone: "Europe/Stockholm"}}, airports)

	a, err := api.CreateAirport(ctx, CreateAirportRequest{Name: "Skive", ICAOCode: "EKSV", Timezone: "Europe/Copenhagen"})
	require.NoError(t, err)
	require.Equal(t, "EKSV", created.ICAOCode)
	require.Equal(t, "Skive", a.Name)

	require.NoError(t, api.DeleteAirport(ctx, id))
	require.Equal(t, id.String(), deleted)
}

func TestCrafts(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/crafts", func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusOK, `[{"id":"`+uuid.NewString()+`","name":"Caravan","registrationNumber":"SE-KYD","capacityPersons":16}]`)
	})
	mux.HandleFunc("POST /api/crafts", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "SE-MAX", req["registrationNumber"])
		require.NotContains(t, req, "capacityWeight")
		respond(w, http.StatusCreated, `{"id":"`+uuid.NewString()+`","name":"Twin Otter","registrationNumber":"SE-MAX"}`)
	})
	api, _ := newTestAPI(t, mux)
	ctx := context.Background()

	crafts, err := api.Crafts(ctx)
	require.NoError(t, err)
	require.Len(t, crafts, 1)
	require.Equal(t, 16, crafts[0].CapacityPersons)
	require.Zero(t, crafts[0].CapacityWeight)

	c, err := api.CreateCraft(ctx, CreateCraftRequest{Name: "Twin Otter", RegistrationNumber: "SE-MAX"})
	require.NoError(t, err)
	require.Equal(t, "SE-MAX", c.RegistrationNumber)
}

const peopleJSON = `[
	{"id":1,"name":"Ada Pilot","pilot":true,"skydiver":false,"weight":70,"email":"ada@example.com"},
	{"id":2,"name":"Bo Jumper","pilot":false,"skydiver":true,"weight":82.5,"email":"bo@example.com"},
	{"id":"c0ffee00-0000-4000-8000-000000000003","firstName":"Cy","lastName":"Both","pilot":true,"skydiver":true}
]`

func TestPeople_SearchEndpoint(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"array", `[{"id":1,"name":"Ada Pilot","pilot":true}]`},
		{"page", `{"content":[{"id":1,"name":"Ada Pilot","pilot":true}],"totalElements":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("GET /api/person/search", func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "true", r.URL.Query().Get("pilot"))
				respond(w, http.StatusOK, tt.body)
			})
			api, _ := newTestAPI(t, mux)

			pilots, err := api.Pilots(context.Background())
			require.NoError(t, err)
			require.Len(t, pilots, 1)
			require.Equal(t, PersonID("1"), pilots[0].ID)
		})
	}
}

func TestPeople_SearchFallsBackToFullList(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/person", func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusOK, peopleJSON)
	})
	api, _ := newTestAPI(t, mux)
	ctx := context.Background()

	pilots, err := api.Pilots(ctx)
	require.NoError(t, err)
	require.Len(t, pilots, 2)
	require.Equal(t, "Ada Pilot", pilots[0].DisplayName())
	require.Equal(t, "Cy Both", pilots[1].DisplayName())

	skydivers, err := api.Skydivers(ctx)
	require.NoError(t, err)
	require.Len(t, skydivers, 2)
	require.Equal(t, PersonID("2"), skydivers[0].ID)
	require.Equal(t, PersonID("c0ffee00-0000-4000-8000-000000000003"), skydivers[1].ID)
}

func TestPeople_Create(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/person", func(w http.ResponseWriter, r *http.Request) {
		var req CreatePersonRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, CreatePersonRequest{
			FirstName: "Di", LastName: "Sky", Skydiver: true, Weight: 61, Email: "di@example.com",
		}, req)
		respond(w, http.StatusCreated, `{"id":9,"name":"Di Sky","skydiver":true,"weight":61,"email":"di@example.com"}`)
	})
	api, _ := newTestAPI(t, mux)

	p, err := api.CreatePerson(context.Background(), CreatePersonRequest{
		FirstName: "Di", LastName: "Sky", Skydiver: true, Weight: 61, Email: "di@example.com",
	})
	require.NoError(t, err)
	require.Equal(t, PersonID("9"), p.ID)
}

func TestJumps(t *testing.T) {
	jumpID := uuid.New()
	airportID := uuid.New()
	var created map[string]any
	var added []string

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/jumps", func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusOK, `[{"id":"`+jumpID.String()+`","jumpTime":"2026-06-01T10:30:00","airportId":"`+airportID.String()+
			`","altitudeFeet":13000,"passengers":[{"id":2,"name":"Bo"}],"pilots":[{"id":1,"name":"Ada"}]}]`)
	})
	mux.HandleFunc("POST /api/jumps", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&created))
		respond(w, http.StatusCreated, `{"id":"`+jumpID.String()+`","jumpTime":"2026-06-01T12:00:00Z","airportId":"`+airportID.String()+`","altitudeFeet":4000}`)
	})
	mux.HandleFunc("POST /api/jumps/{id}/{role}", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		added = append(added, r.PathValue("role")+" "+string(body))
		w.WriteHeader(http.StatusOK)
	})
	api, _ := newTestAPI(t, mux)
	ctx := context.Background()

	jumps, err := api.Jumps(ctx)
	require.NoError(t, err)
	require.Len(t, jumps, 1)
	require.Equal(t, 13000, jumps[0].AltitudeFeet)
	require.Equal(t, "Bo", jumps[0].Skydivers[0].Name)
	require.Equal(t, "Ada", jumps[0].Pilots[0].Name)
	require.Equal(t, 10, jumps[0].JumpTime.Hour())

	when := time.Date(2026, 6, 1, 12, 0, 0, 0, time.Local)
	j, err := api.CreateJump(ctx, CreateJumpRequest{
		JumpTime:                LocalTime{when},
		AirportID:               airportID,
		CraftRegistrationNumber: "SE-KYD",
		AltitudeFeet:            4000,
	})
	require.NoError(t, err)
	require.Equal(t, jumpID, j.ID)
	require.Equal(t, "2026-06-01T12:00:00", created["jumpTime"])
	require.Equal(t, "SE-KYD", created["craftRegistrationNumber"])
	require.NotContains(t, created, "pilotId")

	require.NoError(t, api.AddPilot(ctx, jumpID, "1"))
	require.NoError(t, api.AddSkydiver(ctx, jumpID, "c0ffee00-0000-4000-8000-000000000003"))
	require.Equal(t, []string{
		`pilots {"personId":1}`,
		`skydivers {"personId":"c0ffee00-0000-4000-8000-000000000003"}`,
	}, added)
}

func TestJumps_MissingEndpointIsEmpty(t *testing.T) {
	api, _ := newTestAPI(t, http.NotFoundHandler())

	jumps, err := api.Jumps(context.Background())
	require.NoError(t, err)
	require.NotNil(t, jumps)
	require.Empty(t, jumps)
}

func TestAPIError(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		wantUnauth bool
		wantNotFnd bool
	}{
		{"unauthorized", http.StatusUnauthorized, true, false},
		{"not found", http.StatusNotFound, false, true},
		{"conflict", http.StatusConflict, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api, _ := newTestAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == "/api/web-auth/refresh" {
					respond(w, http.StatusUnauthorized, `{}`)
					return
				}
				respond(w, tt.status, `{"message":"nope"}`)
			}))

			_, err := api.Crafts(context.Background())
			require.Error(t, err)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			require.Equal(t, tt.status, apiErr.Status)
			require.Equal(t, `{"message":"nope"}`, apiErr.Body)
			require.Equal(t, "list crafts", apiErr.Op)
			require.Equal(t, tt.wantUnauth, errors.Is(err, ErrUnauthorized))
			require.Equal(t, tt.wantNotFnd, errors.Is(err, ErrNotFound))
		})
	}
}

func TestUnauthorizedAfterFailedRefreshClearsSession(t *testing.T) {
	api, store := newTestAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusUnauthorized, `{}`)
	}))

	_, err := api.Airports(context.Background())
	require.ErrorIs(t, err, ErrUnauthorized)
	require.Empty(t, store.GetToken(context.Background()))
}

func TestNextJump(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	at := func(h int) Jump {
		return Jump{ID: uuid.New(), JumpTime: LocalTime{now.Add(time.Duration(h) * time.Hour)}, AltitudeFeet: h}
	}

	tests := []struct {
		name   string
		jumps  []Jump
		want   int
		wantOK bool
	}{
		{"empty", nil, 0, false},
		{"upcoming chosen", []Jump{at(3), at(-2), at(1)}, 1, true},
		{"all past gives earliest", []Jump{at(-1), at(-5)}, -5, true},
		{"exactly now is not upcoming", []Jump{at(0), at(-1)}, -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NextJump(tt.jumps, now)
			require.Equal(t, tt.wantOK, ok)
			if ok {
				require.Equal(t, tt.want, got.AltitudeFeet)
			}
		})
	}
}

func TestParseLocalTime(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"2026-06-01T10:30:00", false},
		{"2026-06-01T10:30", false},
		{"2026-06-01T10:30:00.123", false},
		{"2026-06-01T10:30:00Z", false},
		{"2026-06-01T10:30:00+02:00", false},
		{"tomorrow", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			_, err := ParseLocalTime(tt.in)
			require.Equal(t, tt.wantErr, err != nil)
		})
	}
}
