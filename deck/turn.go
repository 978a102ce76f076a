package deck

// Advance passes the turn to the next player, wrapping at the end of the list.
// With no players there is nobody to pass to, so turn is returned unchanged.
func Advance(turn, count int) int {
	if count < 1 {
		return turn
	}
	return (turn + 1) % count
}

// clampTurn resets turn to the first player whenever it no longer points at
// someone in a list of count players.
func clampTurn(turn, count int) int {
	if turn < 0 || turn >= count {
		return 0
	}
	return turn
}
