package usecase

// EstimatedWait maps a derived queue rank and the shop's average
// service duration to an estimated wait in minutes. Estimates are
// computed on demand at read time and never persisted, so positions
// recompute naturally as the line changes.
func EstimatedWait(rank, averageServiceMinutes int) int {
	if rank <= 0 || averageServiceMinutes <= 0 {
		return 0
	}
	return rank * averageServiceMinutes
}
