package slowfall

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

func (a *API) Airports(ctx context.Context) ([]Airport, error) {
	var out []Airport
	if err := a.call(ctx, "list airports", http.MethodGet, "airports", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *API) CreateAirport(ctx context.Context, req CreateAirportRequest) (*Airport, error) {
	var out Airport
	if err := a.call(ctx, "create airport", http.MethodPost, "airports", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) DeleteAirport(ctx context.Context, id uuid.UUID) error {
	return a.call(ctx, "delete airport", http.MethodDelete, "airports/"+id.String(), nil, nil)
}
