package karma

// Divisor is the number of net votes that make one point of karma.
const Divisor = 10

// FloorDiv divides a by b rounding toward negative infinity, so -23/10 is -3
// rather than Go's truncated -2. b must be positive.
func FloorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
