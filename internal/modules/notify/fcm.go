// README: Firebase Cloud Messaging push notifications for booking events.
package notify

import (
	"context"

	"firebase.google.com/go/v4/messaging"

	"github.com/Sagnify/ambulance-booking/internal/modules/booking"
)

type sender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMPublisher pushes a notification to the driver's topic on assignment and
// to the hospital's topic when a booking is auto-cancelled. Other events are ignored.
type FCMPublisher struct {
	client sender
}

func NewFCMPublisher(client *messaging.Client) *FCMPublisher {
	return &FCMPublisher{client: client}
}

func DriverTopic(id string) string   { return "driver-" + id }
func HospitalTopic(id string) string { return "hospital-" + id }

func (p *FCMPublisher) Publish(ctx context.Context, e booking.Event) error {
	msg := buildMessage(e)
	if msg == nil {
		return nil
	}
	_, err := p.client.Send(ctx, msg)
	return err
}

func buildMessage(e booking.Event) *messaging.Message {
	data := map[string]string{
		"booking_id": string(e.BookingID),
		"status":     string(e.ToStatus),
	}
	switch {
	case e.ToStatus == booking.StatusAssigned && e.DriverID != nil:
		return &messaging.Message{
			Topic: DriverTopic(string(*e.DriverID)),
			Notification: &messaging.Notification{
				Title: "New booking assigned",
				Body:  "Open the app to view the pickup location.",
			},
			Data: data,
		}
	case e.ToStatus == booking.StatusAutoCancelled && e.HospitalID != "":
		data["reason"] = e.Reason
		return &messaging.Message{
			Topic: HospitalTopic(string(e.HospitalID)),
			Notification: &messaging.Notification{
				Title: "Booking auto-cancelled",
				Body:  booking.ReasonLabel(e.Reason),
			},
			Data: data,
		}
	}
	return nil
}
