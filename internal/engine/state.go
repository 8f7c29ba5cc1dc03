package engine

// symbolState is the per-symbol retry record. Owned by the orchestrator
// and keyed by symbol in its state map — never a package-level global, so
// resetting between runs (and tests) is just dropping the map entry.
type symbolState struct {
	zeroStreak   int  // consecutive cycles that ended with confidence 0
	selfAssessed bool // the one self-assessment call for this streak was spent
}

// recordConfidence updates the streak after a cycle's final confidence.
// Any non-zero confidence resets the streak and re-arms self-assessment.
func (s *symbolState) recordConfidence(confidence int) {
	if confidence > 0 {
		s.zeroStreak = 0
		s.selfAssessed = false
		return
	}
	s.zeroStreak++
}

// shouldSelfAssess reports whether this cycle escalates to the
// self-assessment call. It fires at most once per zero streak.
func (s *symbolState) shouldSelfAssess(threshold int) bool {
	return s.zeroStreak >= threshold && !s.selfAssessed
}

// shouldFallback reports whether the streak is deep enough to use the
// local heuristic once self-assessment has been spent.
func (s *symbolState) shouldFallback(threshold int) bool {
	return s.zeroStreak >= threshold && s.selfAssessed
}
