package protocol

// Frame header identity for every message exchanged with the daemon.
const (
	Magic   uint32 = 0x47435450 // "GCTP"
	Version uint16 = 1
)

// Client library version reported by session.Version.
const (
	VersionMajor = 1
	VersionMinor = 2
	VersionPatch = 0
)

// MaxGroupName bounds group names on the wire, terminator included.
const MaxGroupName = 32

// Connect priorities. Only PriorityLow is currently honoured by daemons.
const (
	PriorityLow    = 0
	PriorityMedium = 1
	PriorityHigh   = 2
)
