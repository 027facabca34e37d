package event

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownReason indicates a reason code outside [Reasons].
var ErrUnknownReason = errors.New("unknown reason")

// Reason is a coarse classification attached to stop, block and reject events.
type Reason string

// Reason codes offered to users, in menu order.
const (
	ReasonBug            Reason = "BUG"
	ReasonHardware       Reason = "HARDWARE"
	ReasonFirmware       Reason = "FIRMWARE"
	ReasonDevOps         Reason = "DEVOPS"
	ReasonIT             Reason = "IT"
	ReasonBadAC          Reason = "BAD_AC"
	ReasonQA             Reason = "QA"
	ReasonPriorityChange Reason = "PRIORITY_CHANGE"
	ReasonOther          Reason = "OTHER"
)

// Reasons lists the reason codes in menu order.
var Reasons = []Reason{
	ReasonBug,
	ReasonHardware,
	ReasonFirmware,
	ReasonDevOps,
	ReasonIT,
	ReasonBadAC,
	ReasonQA,
	ReasonPriorityChange,
	ReasonOther,
}

// ParseReason accepts a reason code (any case) or its 1-based menu number.
func ParseReason(s string) (Reason, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		if n < 1 || n > len(Reasons) {
			return "", fmt.Errorf("%w: %d (choose 1-%d)", ErrUnknownReason, n, len(Reasons))
		}
		return Reasons[n-1], nil
	}
	r := Reason(strings.ToUpper(s))
	for _, known := range Reasons {
		if r == known {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownReason, s)
}
