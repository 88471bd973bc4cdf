package domain

import "fmt"

// PriceUnit is the number of ledger subunits per display unit.
const PriceUnit = 10_000_000

// ShortAddress abbreviates an account id for display: first four and last
// four characters.
func ShortAddress(addr string) string {
	if addr == "" {
		return "unknown"
	}
	if len(addr) <= 8 {
		return addr
	}
	return addr[:4] + "..." + addr[len(addr)-4:]
}

// FormatPrice renders a subunit price for display. Zero means not listed.
func FormatPrice(price uint64) string {
	if price == 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", float64(price)/float64(PriceUnit))
}
