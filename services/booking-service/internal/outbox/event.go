package outbox

const (
	AggregateBooking = "booking"

	EventBookingBooked    = "booking.appointment.booked.v1"
	EventBookingCancelled = "booking.appointment.cancelled.v1"
)

// Event is written to outbox_events in the same transaction as the booking
// change it describes. The Kafka topic equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}
