// Package capacity implements the shared seat counter for one slot-date pool
// and the interchangeable strategies that mutate it safely under concurrency.
package capacity

// Ledger is the pure remaining-seats counter. It enforces
// 0 <= Remaining <= Max at every observable point and performs no I/O.
type Ledger struct {
	Remaining int
	Max       int
}

func (l *Ledger) HasEnough(partySize int) bool {
	return partySize > 0 && l.Remaining >= partySize
}

// Decrease subtracts partySize when enough seats remain. It never mutates on
// refusal; callers translate false into a domain failure.
func (l *Ledger) Decrease(partySize int) bool {
	if !l.HasEnough(partySize) {
		return false
	}
	l.Remaining -= partySize
	return true
}

// Increase returns seats to the pool, clamped at Max so a misbehaving refund
// can never mint capacity.
func (l *Ledger) Increase(partySize int) {
	if partySize <= 0 {
		return
	}
	l.Remaining += partySize
	if l.Remaining > l.Max {
		l.Remaining = l.Max
	}
}
