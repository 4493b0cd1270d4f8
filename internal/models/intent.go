package models

// Intent is the single slot of conversational memory kept per session.
// The zero value means no follow-up is expected.
type Intent string

const (
	IntentNone               Intent = ""
	IntentPriceInquiry       Intent = "price_inquiry"
	IntentAwaitingPriceRange Intent = "awaiting_price_range"
)

// Valid reports whether i is one of the known intents.
func (i Intent) Valid() bool {
	switch i {
	case IntentNone, IntentPriceInquiry, IntentAwaitingPriceRange:
		return true
	default:
		return false
	}
}

// ParseIntent maps a stored value back to an Intent. Unknown values read as
// IntentNone so a stale row never strands a session in a dead state.
func ParseIntent(raw string) Intent {
	i := Intent(raw)
	if !i.Valid() {
		return IntentNone
	}
	return i
}

func (i Intent) String() string {
	if i == IntentNone {
		return "none"
	}
	return string(i)
}
