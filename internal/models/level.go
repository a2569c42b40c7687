package models

// LevelFor returns the 1-based level reached with points when each level costs perLevel points
func LevelFor(points, perLevel int) int {
	if perLevel <= 0 || points < 0 {
		return 1
	}
	return points/perLevel + 1
}

// ProgressInLevel returns how far through the current level points are, in [0, 100)
func ProgressInLevel(points, perLevel int) float64 {
	if perLevel <= 0 || points < 0 {
		return 0
	}
	return float64(points%perLevel) / float64(perLevel) * 100
}

// PointsToNextLevel returns the points still needed to reach the next level
func PointsToNextLevel(points, perLevel int) int {
	if perLevel <= 0 {
		return 0
	}
	if points < 0 {
		points = 0
	}
	return perLevel - points%perLevel
}

// LeveledUp reports whether moving from before to after points crosses into a higher level
func LeveledUp(before, after, perLevel int) bool {
	return LevelFor(after, perLevel) > LevelFor(before, perLevel)
}

// LevelInfo is the derived level state shown next to a points total
type LevelInfo struct {
	Level           int     `json:"level"`
	ProgressInLevel float64 `json:"progress_in_level"`
	PointsToNext    int     `json:"points_to_next_level"`
	PointsPerLevel  int     `json:"points_per_level"`
}

// NewLevelInfo derives the level state for points
func NewLevelInfo(points, perLevel int) LevelInfo {
	return LevelInfo{
		Level:           LevelFor(points, perLevel),
		ProgressInLevel: ProgressInLevel(points, perLevel),
		PointsToNext:    PointsToNextLevel(points, perLevel),
		PointsPerLevel:  perLevel,
	}
}
