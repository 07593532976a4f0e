package slowfall

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Airport is a drop zone airfield.
type Airport struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	ICAOCode string    `json:"icaoCode"`
	// Timezone is an IANA zone name such as "Europe/Oslo".
	Timezone string `json:"timezone"`
}

type CreateAirportRequest struct {
	Name     string `json:"name"`
	ICAOCode string `json:"icaoCode"`
	Timezone string `json:"timezone"`
}

// Craft is an aircraft used for jumps.
type Craft struct {
	ID                 uuid.UUID `json:"id"`
	Name               string    `json:"name"`
	RegistrationNumber string    `json:"registrationNumber"`
	// Capacities are optional; zero means unknown.
	CapacityWeight  int `json:"capacityWeight,omitempty"`
	CapacityPersons int `json:"capacityPersons,omitempty"`
}

type CreateCraftRequest struct {
	Name               string `json:"name"`
	RegistrationNumber string `json:"registrationNumber"`
	CapacityWeight     int    `json:"capacityWeight,omitempty"`
	CapacityPersons    int    `json:"capacityPersons,omitempty"`
}

// PersonID identifies a person. The backend sends either a number or a UUID
// string; both are kept in their textual form.
type PersonID string

func (id *PersonID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = PersonID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("person id: %w", err)
	}
	*id = PersonID(n.String())
	return nil
}

// MarshalJSON writes integral ids as numbers and anything else as a string.
func (id PersonID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// Person is a pilot, a skydiver, or both.
type Person struct {
	ID        PersonID `json:"id"`
	Name      string   `json:"name"`
	FirstName string   `json:"firstName,omitempty"`
	LastName  string   `json:"lastName,omitempty"`
	Pilot     bool     `json:"pilot"`
	Skydiver  bool     `json:"skydiver"`
	// Weight is in kilograms.
	Weight float64 `json:"weight,omitempty"`
	Email  string  `json:"email,omitempty"`
}

// DisplayName returns Name, or the first and last name when Name is empty.
func (p Person) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	switch {
	case p.FirstName != "" && p.LastName != "":
		return p.FirstName + " " + p.LastName
	case p.FirstName != "":
		return p.FirstName
	default:
		return p.LastName
	}
}

type CreatePersonRequest struct {
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	Pilot     bool    `json:"pilot"`
	Skydiver  bool    `json:"skydiver"`
	Weight    float64 `json:"weight"`
	Email     string  `json:"email"`
}

// localTimeLayout is the backend's zone-less date-time format.
const localTimeLayout = "2006-01-02T15:04:05"

// LocalTime is a date-time that the backend exchanges without a zone.
// Parsing also accepts RFC 3339 values.
type LocalTime struct {
	time.Time
}

func (t LocalTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Format(localTimeLayout))
}

func (t *LocalTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("jump time: %w", err)
	}
	parsed, err := ParseLocalTime(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// ParseLocalTime parses "2006-01-02T15:04:05", its minute-precision form, or
// RFC 3339. Zone-less values are taken as local time.
func ParseLocalTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range []string{localTimeLayout + ".999999999", localTimeLayout, "2006-01-02T15:04"} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date-time %q", s)
}

// Jump is a planned load.
type Jump struct {
	ID           uuid.UUID `json:"id"`
	JumpTime     LocalTime `json:"jumpTime"`
	AirportID    uuid.UUID `json:"airportId"`
	AltitudeFeet int       `json:"altitudeFeet"`
	Skydivers    []Person  `json:"skydivers"`
	Pilots       []Person  `json:"pilots"`
}

// UnmarshalJSON also accepts the skydivers under "passengers".
func (j *Jump) UnmarshalJSON(data []byte) error {
	type plain Jump
	var aux struct {
		plain
		Passengers []Person `json:"passengers"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*j = Jump(aux.plain)
	if len(j.Skydivers) == 0 && len(aux.Passengers) > 0 {
		j.Skydivers = aux.Passengers
	}
	return nil
}

type CreateJumpRequest struct {
	JumpTime                LocalTime `json:"jumpTime"`
	AirportID               uuid.UUID `json:"airportId"`
	CraftRegistrationNumber string    `json:"craftRegistrationNumber"`
	AltitudeFeet            int       `json:"altitudeFeet"`
	PilotID                 PersonID  `json:"pilotId,omitempty"`
}
