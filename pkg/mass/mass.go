// Package mass is a unit-tagged mass value. Amounts are kept in micrograms
// and converted to the display unit on the way out.
package mass

import (
	"cmp"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/itohio/gohx711/pkg/errcode"
)

// Unit is a unit of mass.
type Unit int

const (
	UG Unit = iota
	MG
	G
	KG
	Ton
	ImpTon
	USTon
	Stone
	Pound
	Ounce
)

// ErrDivideByZero is returned by Div when the divisor has no mass.
var ErrDivideByZero = errcode.New(errcode.InvalidArgument, "mass.div", "divide by zero")

// ratio is the number of micrograms in one u, NaN for unknown units.
func (u Unit) ratio() float64 {
	switch u {
	case UG:
		return 1
	case MG:
		return 1e3
	case G:
		return 1e6
	case KG:
		return 1e9
	case Ton:
		return 1e12
	case ImpTon:
		return 1.0160469088e12
	case USTon:
		return 9.0718474e11
	case Stone:
		return 6.35029318e9
	case Pound:
		return 4.5359237e8
	case Ounce:
		return 2.8349523125e7
	default:
		return math.NaN()
	}
}

func (u Unit) String() string {
	switch u {
	case UG:
		return "μg"
	case MG:
		return "mg"
	case G:
		return "g"
	case KG:
		return "kg"
	case Ton:
		return "ton"
	case ImpTon:
		return "ton (imp)"
	case USTon:
		return "ton (US)"
	case Stone:
		return "st"
	case Pound:
		return "lb"
	case Ounce:
		return "oz"
	default:
		return "Unit(" + strconv.Itoa(int(u)) + ")"
	}
}

// Units lists every known unit.
func Units() []Unit {
	return []Unit{UG, MG, G, KG, Ton, ImpTon, USTon, Stone, Pound, Ounce}
}

// ParseUnit accepts a unit name as used in configuration files.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ug", "μg", "µg", "microgram":
		return UG, nil
	case "mg", "milligram":
		return MG, nil
	case "g", "gram":
		return G, nil
	case "kg", "kilogram":
		return KG, nil
	case "t", "ton", "tonne":
		return Ton, nil
	case "imp_ton", "ton (imp)", "long_ton":
		return ImpTon, nil
	case "us_ton", "ton (us)", "short_ton":
		return USTon, nil
	case "st", "stone":
		return Stone, nil
	case "lb", "lbs", "pound":
		return Pound, nil
	case "oz", "ounce":
		return Ounce, nil
	}
	return 0, errcode.New(errcode.InvalidArgument, "mass.parse_unit", fmt.Sprintf("unknown unit %q", s))
}

// Convert converts amount from one unit to another.
func Convert(amount float64, from, to Unit) float64 {
	if from == to {
		return amount
	}
	return amount * from.ratio() / to.ratio()
}

// Mass is an amount of mass with a display unit. The zero Mass is 0 μg.
type Mass struct {
	ug   float64
	unit Unit
}

// New returns amount of u, displayed in u.
func New(amount float64, u Unit) Mass {
	return Mass{ug: Convert(amount, u, UG), unit: u}
}

// Value returns the amount in the display unit.
func (m Mass) Value() float64 { return m.In(m.unit) }

// In returns the amount in u.
func (m Mass) In(u Unit) float64 { return Convert(m.ug, UG, u) }

func (m Mass) Unit() Unit { return m.unit }

// ConvertTo returns the same mass displayed in u.
func (m Mass) ConvertTo(u Unit) Mass {
	return Mass{ug: m.ug, unit: u}
}

// Add, Sub, Mul and Div operate on the canonical amounts and keep the
// display unit of m.

func (m Mass) Add(o Mass) Mass { return Mass{ug: m.ug + o.ug, unit: m.unit} }
func (m Mass) Sub(o Mass) Mass { return Mass{ug: m.ug - o.ug, unit: m.unit} }
func (m Mass) Mul(o Mass) Mass { return Mass{ug: m.ug * o.ug, unit: m.unit} }

func (m Mass) Div(o Mass) (Mass, error) {
	if o.ug == 0 {
		return Mass{}, ErrDivideByZero
	}
	return Mass{ug: m.ug / o.ug, unit: m.unit}, nil
}

// Scale multiplies the amount by f.
func (m Mass) Scale(f float64) Mass { return Mass{ug: m.ug * f, unit: m.unit} }

// Compare orders masses by amount regardless of display unit.
func (m Mass) Compare(o Mass) int { return cmp.Compare(m.ug, o.ug) }

func (m Mass) Equal(o Mass) bool { return m.ug == o.ug }
func (m Mass) Less(o Mass) bool  { return m.ug < o.ug }

func (m Mass) String() string {
	return strconv.FormatFloat(m.Value(), 'f', -1, 64) + " " + m.unit.String()
}
