package slowfall

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
)

func (a *API) People(ctx context.Context) ([]Person, error) {
	var out []Person
	if err := a.call(ctx, "list people", http.MethodGet, "person", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *API) CreatePerson(ctx context.Context, req CreatePersonRequest) (*Person, error) {
	var out Person
	if err := a.call(ctx, "create person", http.MethodPost, "person", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Pilots lists people who can fly. Backends without the search endpoint are
// handled by filtering the full list.
func (a *API) Pilots(ctx context.Context) ([]Person, error) {
	return a.search(ctx, "list pilots", "pilot", func(p Person) bool { return p.Pilot })
}

// Skydivers lists people who jump.
func (a *API) Skydivers(ctx context.Context) ([]Person, error) {
	return a.search(ctx, "list skydivers", "skydiver", func(p Person) bool { return p.Skydiver })
}

func (a *API) search(ctx context.Context, op, flag string, keep func(Person) bool) ([]Person, error) {
	var page personPage
	err := a.call(ctx, op, http.MethodGet, "person/search?"+flag+"=true", nil, &page)
	if errors.Is(err, ErrNotFound) {
		all, err := a.People(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]Person, 0, len(all))
		for _, p := range all {
			if keep(p) {
				out = append(out, p)
			}
		}
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	return page.people, nil
}

// personPage decodes either a bare array or a page object with a content array.
type personPage struct {
	people []Person
}

func (p *personPage) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		return json.Unmarshal(data, &p.people)
	}
	var page struct {
		Content []Person `json:"content"`
	}
	if err := json.Unmarshal(data, &page); err != nil {
		return err
	}
	p.people = page.Content
	return nil
}
