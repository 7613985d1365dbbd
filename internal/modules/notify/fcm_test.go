package notify

import (
	"context"
	"errors"
	"testing"

	"firebase.google.com/go/v4/messaging"

	"github.com/Sagnify/ambulance-booking/internal/modules/booking"
	"github.com/Sagnify/ambulance-booking/internal/types"
)

type fakeSender struct {
	sent []*messaging.Message
	err  error
}

func (f *fakeSender) Send(_ context.Context, m *messaging.Message) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, m)
	return "projects/test/messages/1", nil
}

func TestPublishAssignmentNotifiesDriver(t *testing.T) {
	s := &fakeSender{}
	p := &FCMPublisher{client: s}
	d := types.ID("d7")

	err := p.Publish(context.Background(), booking.Event{BookingID: "b1", HospitalID: "h1", ToStatus: booking.StatusAssigned, DriverID: &d})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(s.sent) != 1 || s.sent[0].Topic != "driver-d7" {
		t.Fatalf("sent = %+v", s.sent)
	}
	if s.sent[0].Data["booking_id"] != "b1" {
		t.Fatalf("data = %v", s.sent[0].Data)
	}
}

func TestPublishAutoCancelNotifiesHospital(t *testing.T) {
	s := &fakeSender{}
	p := &FCMPublisher{client: s}

	err := p.Publish(context.Background(), booking.Event{
		BookingID:  "b1",
		HospitalID: "h1",
		ToStatus:   booking.StatusAutoCancelled,
		Reason:     booking.ReasonNoAmbulanceAvailable,
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(s.sent) != 1 || s.sent[0].Topic != "hospital-h1" {
		t.Fatalf("sent = %+v", s.sent)
	}
	if s.sent[0].Notification.Body != "No ambulance available" {
		t.Fatalf("body = %q", s.sent[0].Notification.Body)
	}
}

func TestPublishIgnoresOtherEvents(t *testing.T) {
	s := &fakeSender{err: errors.New("should not be called")}
	p := &FCMPublisher{client: s}

	for _, st := range []booking.Status{booking.StatusPending, booking.StatusOnRoute, booking.StatusCompleted, booking.StatusCancelled} {
		if err := p.Publish(context.Background(), booking.Event{BookingID: "b1", ToStatus: st}); err != nil {
			t.Fatalf("%s: %v", st, err)
		}
	}
}
