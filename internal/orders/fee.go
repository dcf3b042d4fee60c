package orders

// DefaultFeeBps is the platform's share of each order in basis points (10%).
const DefaultFeeBps int64 = 1000

// PlatformFee computes round-half-up(amount * bps / 10000) in integer minor
// units. The result is always within [0, amount] for bps in [0, 10000].
func PlatformFee(amount, bps int64) int64 {
	if amount <= 0 || bps <= 0 {
		return 0
	}
	if bps > 10000 {
		bps = 10000
	}
	// Split amount so amount*bps never has to fit in an int64.
	q, r := amount/10000, amount%10000
	return q*bps + (r*bps+5000)/10000
}
