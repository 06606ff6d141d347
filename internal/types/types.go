// README: Shared value objects used across modules.
package types

// ID is an opaque entity identifier (UUID or external key).
type ID string

type Point struct {
	Lat float64
	Lng float64
}

type Money struct {
	Amount   int64 // minor units (cents)
	Currency string
}
