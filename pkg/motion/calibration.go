package motion

import "math"

// Achieved angles smaller than this produce no suggestion; the ratio
// would be dominated by sensor noise (and divides by ~zero).
const minAchievedForSuggestionDeg = 1

// TrackWidthSuggestion returns the multiplicative correction to the
// axle-track constant implied by one bulk rotation: the ratio of the
// angle we asked for to the angle the robot actually turned through.
// Pure function; the second return is false when no trustworthy
// suggestion can be made.
func TrackWidthSuggestion(requestedDeg, achievedDeg float64) (float64, bool) {
	if math.Abs(achievedDeg) < minAchievedForSuggestionDeg {
		return 0, false
	}
	return requestedDeg / achievedDeg, true
}
