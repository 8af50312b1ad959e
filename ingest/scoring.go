package ingest

// pointsByRank covers ranks 1-6; 7-10 earn a flat ConsolationPoints.
var pointsByRank = map[int]int{
	1: 100,
	2: 70,
	3: 50,
	4: 40,
	5: 30,
	6: 20,
}

const (
	ConsolationPoints = 10
	MaxScoredRank     = 10
)

// PointsForRank is the fixed award table. Ranks outside 1-10 earn nothing.
func PointsForRank(rank int) int {
	if p, ok := pointsByRank[rank]; ok {
		return p
	}
	if rank >= 7 && rank <= MaxScoredRank {
		return ConsolationPoints
	}
	return 0
}

// WinsForRank is 1 for the winner and 0 for everyone else.
func WinsForRank(rank int) int {
	if rank == 1 {
		return 1
	}
	return 0
}
