// Package signal standardizes the trading primitives shared between the
// validation and execution layers.
package signal

// Side expresses the direction of a validated signal or order.
type Side string

const (
	// Long is a buy-side bias.
	Long Side = "LONG"
	// Short is a sell-side bias.
	Short Side = "SHORT"
	// None means no directional bias was established.
	None Side = "NONE"
)

// Opposite returns the mirrored side; None maps to None.
func (s Side) Opposite() Side {
	switch s {
	case Long:
		return Short
	case Short:
		return Long
	default:
		return None
	}
}

// Code maps the side onto the integer code the order wire contract expects.
func (s Side) Code() int {
	switch s {
	case Long:
		return 1
	case Short:
		return 2
	default:
		return 0
	}
}

// Valid reports whether the side carries a tradable direction.
func (s Side) Valid() bool { return s == Long || s == Short }
