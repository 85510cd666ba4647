// Package strategy converts indicator snapshots into entry/exit signals.
package strategy

// Signal expresses the trading action a generator wants taken this candle.
type Signal int

const (
	// None means no action this candle.
	None Signal = iota
	// EnterLong requests opening a long position.
	EnterLong
	// EnterShort requests opening a short position.
	EnterShort
	// Exit requests closing the open position.
	Exit
)

// String returns the log-friendly name of the signal.
func (s Signal) String() string {
	switch s {
	case EnterLong:
		return "ENTER_LONG"
	case EnterShort:
		return "ENTER_SHORT"
	case Exit:
		return "EXIT"
	default:
		return "NONE"
	}
}
