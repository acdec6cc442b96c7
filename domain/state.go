package domain

// ConnectionState is the lifecycle state of a RoomSession.
//
// Disconnected -> Connecting -> Subscribed -> Disconnected on leave.
// Errored is terminal until the next Open: it is reached when the
// transport never confirms the subscription within the deadline.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Subscribed
	Errored
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Subscribed:
		return "Subscribed"
	case Errored:
		return "Errored"
	default:
		return "Unknown"
	}
}
