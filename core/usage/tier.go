package usage

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// Tier is a subscription tier. The zero value is not a valid tier; use ParseTier.
type Tier string

const (
	TierFree    Tier = "free"
	TierPro     Tier = "pro"
	TierForever Tier = "forever"
)

var AllTiers = []Tier{TierFree, TierPro, TierForever}

func canonicalTier(s string) Tier {
	return Tier(strings.ToLower(strings.TrimSpace(s)))
}

// ParseTier normalizes s. Unknown tiers degrade to TierFree, the most restricted one.
func ParseTier(s string) (Tier, bool) {
	t := canonicalTier(s)
	if t.IsValid() {
		return t, true
	}
	return TierFree, false
}

func (t Tier) IsValid() bool {
	switch t {
	case TierFree, TierPro, TierForever:
		return true
	}
	return false
}

func (t Tier) String() string { return string(t) }

// UnmarshalText normalizes casing without falling back, so invalid input can still be reported by validators.
func (t *Tier) UnmarshalText(text []byte) error {
	*t = canonicalTier(string(text))
	return nil
}

func (t Tier) Value() (driver.Value, error) {
	tier, _ := ParseTier(string(t))
	return string(tier), nil
}

func (t *Tier) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*t, _ = ParseTier(v)
	case []byte:
		*t, _ = ParseTier(string(v))
	case nil:
		*t = TierFree
	default:
		return fmt.Errorf("usage.Tier: cannot scan %T", src)
	}
	return nil
}
