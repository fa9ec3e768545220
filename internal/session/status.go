package session

import (
	"encoding/json"
)

// Status is the OS-reported lifecycle state of a live session.
type Status int

const (
	StatusUnknown Status = iota
	Active
	Stale
	Ended
	Dismissed
)

var statusNames = map[Status]string{
	StatusUnknown: "unknown",
	Active:        "active",
	Stale:         "stale",
	Ended:         "ended",
	Dismissed:     "dismissed",
}

var statusFromName = map[string]Status{
	"unknown":   StatusUnknown,
	"active":    Active,
	"stale":     Stale,
	"ended":     Ended,
	"dismissed": Dismissed,
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseStatus maps a status name back to its Status. Unrecognized names
// yield StatusUnknown and false.
func ParseStatus(name string) (Status, bool) {
	s, ok := statusFromName[name]
	return s, ok
}

// IsTerminal reports whether the OS will never bring the session back
// to Active.
func (s Status) IsTerminal() bool {
	return s == Ended || s == Dismissed
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	v, _ := ParseStatus(name)
	*s = v
	return nil
}
