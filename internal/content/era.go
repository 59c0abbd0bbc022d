package content

import "fmt"

// Era is an ordered progression tier gating content availability.
type Era uint8

const (
	EraVillage Era = iota
	EraSettlement
	EraTown
	EraKingdom
)

var eraNames = [...]string{"village", "settlement", "town", "kingdom"}

// Eras lists every era in progression order.
func Eras() []Era {
	return []Era{EraVillage, EraSettlement, EraTown, EraKingdom}
}

func (e Era) String() string {
	if int(e) < len(eraNames) {
		return eraNames[e]
	}
	return fmt.Sprintf("era(%d)", uint8(e))
}

// ParseEra maps a name to an Era.
func ParseEra(name string) (Era, error) {
	for i, n := range eraNames {
		if n == name {
			return Era(i), nil
		}
	}
	return 0, fmt.Errorf("unknown era %q", name)
}

// Unlocks reports whether content requiring e is available in current.
func (e Era) Unlocks(current Era) bool {
	return current >= e
}

// Next returns the era after e and whether one exists.
func (e Era) Next() (Era, bool) {
	if e >= EraKingdom {
		return e, false
	}
	return e + 1, true
}

// MarshalText implements encoding.TextMarshaler.
func (e Era) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *Era) UnmarshalText(b []byte) error {
	v, err := ParseEra(string(b))
	if err != nil {
		return err
	}
	*e = v
	return nil
}
