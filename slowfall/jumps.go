package slowfall

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Jumps lists planned jumps. A backend without the jumps endpoint has none.
func (a *API) Jumps(ctx context.Context) ([]Jump, error) {
	var out []Jump
	err := a.call(ctx, "list jumps", http.MethodGet, "jumps", nil, &out)
	if errors.Is(err, ErrNotFound) {
		return []Jump{}, nil
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (a *API) CreateJump(ctx context.Context, req CreateJumpRequest) (*Jump, error) {
	var out Jump
	if err := a.call(ctx, "create jump", http.MethodPost, "jumps", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type personRef struct {
	PersonID PersonID `json:"personId"`
}

func (a *API) AddPilot(ctx context.Context, jumpID uuid.UUID, personID PersonID) error {
	return a.call(ctx, "add pilot", http.MethodPost,
		"jumps/"+jumpID.String()+"/pilots", personRef{PersonID: personID}, nil)
}

func (a *API) AddSkydiver(ctx context.Context, jumpID uuid.UUID, personID PersonID) error {
	return a.call(ctx, "add skydiver", http.MethodPost,
		"jumps/"+jumpID.String()+"/skydivers", personRef{PersonID: personID}, nil)
}

// SortJumps orders jumps by time, earliest first.
func SortJumps(jumps []Jump) []Jump {
	sorted := slices.Clone(jumps)
	slices.SortStableFunc(sorted, func(a, b Jump) int {
		return a.JumpTime.Compare(b.JumpTime.Time)
	})
	return sorted
}

// NextJump returns the first jump after now, or the earliest jump when all
// are in the past. It returns false for an empty list.
func NextJump(jumps []Jump, now time.Time) (Jump, bool) {
	sorted := SortJumps(jumps)
	if len(sorted) == 0 {
		return Jump{}, false
	}
	for _, j := range sorted {
		if j.JumpTime.After(now) {
			return j, true
		}
	}
	return sorted[0], true
}
