// README: Booking aggregate, status definitions, and the transition table.
package booking

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/Sagnify/ambulance-booking/internal/types"
)

type Status string

const (
	StatusNone          Status = "none"
	StatusPending       Status = "pending"
	StatusAssigned      Status = "assigned"
	StatusOnRoute       Status = "on_route"
	StatusArrived       Status = "arrived"
	StatusCompleted     Status = "completed"
	StatusCancelled     Status = "cancelled"
	StatusAutoCancelled Status = "auto_cancelled"
)

var statusLabels = map[Status]string{
	StatusPending:       "Pending",
	StatusAssigned:      "Assigned",
	StatusOnRoute:       "On Route",
	StatusArrived:       "Arrived",
	StatusCompleted:     "Completed",
	StatusCancelled:     "Cancelled",
	StatusAutoCancelled: "Auto-Cancelled",
}

// Label is the display name shown to requesters, drivers, and hospitals.
func (s Status) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusAutoCancelled
}

// HasDriver reports whether a booking in this status holds a driver link.
func (s Status) HasDriver() bool {
	switch s {
	case StatusAssigned, StatusOnRoute, StatusArrived, StatusCompleted:
		return true
	}
	return false
}

// ParseStatus accepts both wire names ("on_route") and labels ("On Route", "Auto-Cancelled").
func ParseStatus(v string) (Status, error) {
	norm := strings.ToLower(strings.TrimSpace(v))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	s := Status(norm)
	if _, ok := statusLabels[s]; !ok {
		return "", ErrBadRequest
	}
	return s, nil
}

// ActiveStatuses are the non-terminal statuses.
var ActiveStatuses = []Status{StatusPending, StatusAssigned, StatusOnRoute, StatusArrived}

// OngoingStatuses are the non-terminal statuses that hold a driver.
var OngoingStatuses = []Status{StatusAssigned, StatusOnRoute, StatusArrived}

// AllowedTransitions represents the booking state flow as code.
var AllowedTransitions = map[Status][]Status{
	StatusPending:  {StatusAssigned, StatusCancelled, StatusAutoCancelled},
	StatusAssigned: {StatusOnRoute, StatusCancelled},
	StatusOnRoute:  {StatusArrived, StatusCancelled},
	StatusArrived:  {StatusCompleted, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

var driverProgress = map[Status]Status{
	StatusAssigned: StatusOnRoute,
	StatusOnRoute:  StatusArrived,
	StatusArrived:  StatusCompleted,
}

// NextDriverStatus returns the only status a driver may move the booking to from s.
func NextDriverStatus(s Status) (Status, bool) {
	next, ok := driverProgress[s]
	return next, ok
}

type ActorType string

const (
	ActorRequester ActorType = "requester"
	ActorHospital  ActorType = "hospital"
	ActorDriver    ActorType = "driver"
	ActorAdmin     ActorType = "admin"
	ActorSystem    ActorType = "system"
)

type Actor struct {
	Type ActorType
	ID   types.ID
}

var SystemActor = Actor{Type: ActorSystem}

func (a Actor) idPtr() *types.ID {
	if a.ID == "" {
		return nil
	}
	id := a.ID
	return &id
}

const (
	ReasonNoAmbulanceAvailable = "no_ambulance_available"
	ReasonRequesterCancelled   = "requester_cancelled"
	ReasonHospitalCancelled    = "hospital_cancelled"
	ReasonAdminCancelled       = "admin_cancelled"
)

var reasonLabels = map[string]string{
	ReasonNoAmbulanceAvailable: "No ambulance available",
	ReasonRequesterCancelled:   "Cancelled by requester",
	ReasonHospitalCancelled:    "Cancelled by hospital",
	ReasonAdminCancelled:       "Cancelled by administrator",
}

func ReasonLabel(reason string) string {
	if l, ok := reasonLabels[reason]; ok {
		return l
	}
	return reason
}

type Details struct {
	PickupLocation  string
	Pickup          *types.Point
	Destination     string
	BookingType     string
	EmergencyType   string
	Severity        string
	PatientName     string
	PatientPhone    string
	AccidentDetails json.RawMessage
}

type Booking struct {
	ID            types.ID
	RequesterID   types.ID
	HospitalID    types.ID
	Details       Details
	Status        Status
	StatusVersion int
	RequestedAt   time.Time
	AssignedAt    *time.Time
	CompletedAt   *time.Time
	DriverID      *types.ID
	AutoAssigned  bool
	CancelReason  *string
}

func (b *Booking) Age(now time.Time) time.Duration {
	return now.Sub(b.RequestedAt)
}

// IsCancelled covers both requester/hospital cancellation and auto-cancellation.
func (b *Booking) IsCancelled() bool {
	return b.Status == StatusCancelled || b.Status == StatusAutoCancelled
}

func (b *Booking) AssignedTo(driverID types.ID) bool {
	return b.DriverID != nil && *b.DriverID == driverID
}

// VisibleTo reports whether actor may read the booking.
func (b *Booking) VisibleTo(a Actor) bool {
	switch a.Type {
	case ActorAdmin, ActorSystem:
		return true
	case ActorRequester:
		return a.ID == b.RequesterID
	case ActorHospital:
		return a.ID == b.HospitalID
	case ActorDriver:
		return b.AssignedTo(a.ID)
	}
	return false
}

func (b *Booking) clone() *Booking {
	cp := *b
	if b.Details.Pickup != nil {
		p := *b.Details.Pickup
		cp.Details.Pickup = &p
	}
	if b.Details.AccidentDetails != nil {
		cp.Details.AccidentDetails = append(json.RawMessage(nil), b.Details.AccidentDetails...)
	}
	cp.AssignedAt = cloneTime(b.AssignedAt)
	cp.CompletedAt = cloneTime(b.CompletedAt)
	if b.DriverID != nil {
		d := *b.DriverID
		cp.DriverID = &d
	}
	if b.CancelReason != nil {
		r := *b.CancelReason
		cp.CancelReason = &r
	}
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

type Event struct {
	ID         int64
	BookingID  types.ID
	HospitalID types.ID
	FromStatus Status
	ToStatus   Status
	ActorType  ActorType
	ActorID    *types.ID
	DriverID   *types.ID
	Reason     string
	CreatedAt  time.Time
}
