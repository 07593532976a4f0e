package slowfall

import (
	"context"
	"net/http"
)

func (a *API) Crafts(ctx context.Context) ([]Craft, error) {
	var out []Craft
	if err := a.call(ctx, "list crafts", http.MethodGet, "crafts", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *API) CreateCraft(ctx context.Context, req CreateCraftRequest) (*Craft, error) {
	var out Craft
	if err := a.call(ctx, "create craft", http.MethodPost, "crafts", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
