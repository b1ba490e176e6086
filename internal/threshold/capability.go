package threshold

import (
	"strconv"
	"strings"
)

// Capabilities are the host resource signals gathered once at startup.
type Capabilities struct {
	MemoryMB  int
	Cores     int
	OSVersion string
}

const (
	highMemoryMB   = 6144
	highCores      = 8
	mediumMemoryMB = 3072
	mediumCores    = 4
	// Hosts below this OS major version never get the HIGH tier.
	minHighOSMajor = 10
)

// SelectTier classifies host signals into a capability tier.
func SelectTier(c Capabilities) Tier {
	tier := TierLow
	switch {
	case c.MemoryMB >= highMemoryMB && c.Cores >= highCores:
		tier = TierHigh
	case c.MemoryMB >= mediumMemoryMB && c.Cores >= mediumCores:
		tier = TierMedium
	}

	if tier == TierHigh {
		if major, ok := osMajor(c.OSVersion); ok && major < minHighOSMajor {
			tier = TierMedium
		}
	}

	return tier
}

func osMajor(version string) (int, bool) {
	version = strings.TrimSpace(version)
	if version == "" {
		return 0, false
	}
	head, _, _ := strings.Cut(version, ".")
	major, err := strconv.Atoi(head)
	if err != nil {
		return 0, false
	}
	return major, true
}
