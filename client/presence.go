package client

import "github.com/pkg/errors"

// PresenceStatus is the closed set of statuses a user may announce with SendPresenceSet.
type PresenceStatus int

const (
	PresenceOnline PresenceStatus = iota + 1
	PresenceDoNotDisturb
)

func (s PresenceStatus) String() string {
	switch s {
	case PresenceOnline:
		return "online"
	case PresenceDoNotDisturb:
		return "do-not-disturb"
	default:
		return ""
	}
}

func (s PresenceStatus) Valid() bool {
	return s == PresenceOnline || s == PresenceDoNotDisturb
}

func ParsePresenceStatus(s string) (PresenceStatus, error) {
	switch s {
	case "online":
		return PresenceOnline, nil
	case "do-not-disturb":
		return PresenceDoNotDisturb, nil
	}
	return 0, errors.Wrapf(ErrInvalidPresenceStatus, "%q", s)
}
