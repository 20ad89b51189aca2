// Package realtime pushes domain events to websocket clients. Every role
// has its own channel; within a channel connections are addressed through
// named groups.
package realtime

import "github.com/chachabrian/mooveit-dispatch/internal/models"

// Channel is a role scoped connection namespace.
type Channel int

const (
	ChannelPassenger Channel = iota
	ChannelDriver
	ChannelAdmin
	channelCount
)

// Channels lists every channel in declaration order.
func Channels() []Channel {
	return []Channel{ChannelPassenger, ChannelDriver, ChannelAdmin}
}

func (c Channel) String() string {
	switch c {
	case ChannelPassenger:
		return "passenger"
	case ChannelDriver:
		return "driver"
	case ChannelAdmin:
		return "admin"
	}
	return "unknown"
}

// Role is the user type allowed to connect to c.
func (c Channel) Role() models.UserType {
	switch c {
	case ChannelDriver:
		return models.UserTypeDriver
	case ChannelAdmin:
		return models.UserTypeAdmin
	}
	return models.UserTypePassenger
}

func (c Channel) valid() bool { return c >= 0 && c < channelCount }

// Group names.
const (
	GroupAdminAll = "admin:all"
)

func SelfGroup(ownerID string) string { return "self:" + ownerID }

func EntityGroup(tripID string) string { return "entity:" + tripID }
