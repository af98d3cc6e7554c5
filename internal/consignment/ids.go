package consignment

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	idPrefix = "CSG-"
	// platePrefix marks plates of consigned fleet vehicles.
	platePrefix    = "CONS-"
	plateSuffixLen = 8

	weeklyMultiplier  = 6
	monthlyMultiplier = 25
)

// NewID returns a time-ordered identifier such as "CSG-MGVX2K1Q7F3B":
// the base36 millisecond timestamp followed by four random characters.
func NewID(now time.Time) string {
	stamp := strconv.FormatInt(now.UnixMilli(), 36)
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:4]
	return idPrefix + strings.ToUpper(stamp+random)
}

// PlateFor derives the fleet plate of the vehicle promoted from the
// consignment id. The same id always yields the same plate.
func PlateFor(id string) string {
	compact := strings.ToUpper(strings.ReplaceAll(strings.TrimPrefix(id, idPrefix), "-", ""))
	if len(compact) > plateSuffixLen {
		compact = compact[len(compact)-plateSuffixLen:]
	}
	return platePrefix + compact
}

// RatesFromDaily returns the weekly and monthly rates for a daily rate.
func RatesFromDaily(daily float64) (weekly, monthly float64) {
	return daily * weeklyMultiplier, daily * monthlyMultiplier
}
