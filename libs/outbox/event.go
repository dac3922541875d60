// Package outbox implements the transactional outbox shared by all services.
// A send or a cross-service effect is first a committed row, then a Kafka
// message; a crash between the two is recovered by the publisher poll.
package outbox

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType (event per topic).
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}
