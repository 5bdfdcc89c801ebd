// Package queue carries seat releases over RabbitMQ: a publisher used when
// a purchase cannot give its seats back in-process, and the reconnecting
// consumer that applies them.
package queue

// SeatReleaseQueue is durable; releases are model.SeatRelease JSON.
const SeatReleaseQueue = "seats.release"
