// Package item handles CS2 market hash name parsing and validation, used to
// get-or-create catalog items from user-entered purchases.
package item

import (
	"errors"
	"fmt"
	"strings"
)

// Wear grades a skin can carry in its market name.
const (
	FactoryNew    = "Factory New"
	MinimalWear   = "Minimal Wear"
	FieldTested   = "Field-Tested"
	WellWorn      = "Well-Worn"
	BattleScarred = "Battle-Scarred"
)

// Game is the only game the tracker catalogs.
const Game = "CS2"

const (
	statTrakPrefix = "StatTrak™ "
	souvenirPrefix = "Souvenir "
	starPrefix     = "★ "

	maxNameLen = 255
)

var exteriors = map[string]string{
	"factory new":    FactoryNew,
	"fn":             FactoryNew,
	"minimal wear":   MinimalWear,
	"mw":             MinimalWear,
	"field-tested":   FieldTested,
	"field tested":   FieldTested,
	"ft":             FieldTested,
	"well-worn":      WellWorn,
	"well worn":      WellWorn,
	"ww":             WellWorn,
	"battle-scarred": BattleScarred,
	"battle scarred": BattleScarred,
	"bs":             BattleScarred,
}

var (
	ErrInvalidName     = errors.New("item: invalid market name")
	ErrInvalidExterior = errors.New("item: unsupported exterior")
)

// Name is a parsed market hash name.
// Example: "StatTrak™ AK-47 | Redline (Field-Tested)".
type Name struct {
	HashName string `json:"market_name"`
	Weapon   string `json:"weapon"`
	Skin     string `json:"skin,omitempty"`
	Exterior string `json:"exterior,omitempty"`
	StatTrak bool   `json:"stattrak,omitempty"`
	Souvenir bool   `json:"souvenir,omitempty"`
	Star     bool   `json:"star,omitempty"`
}

// NormalizeExterior maps user input (full names or FN/MW/FT/WW/BS, any case)
// to the canonical wear name. Empty input is valid and means "no wear".
func NormalizeExterior(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	canon, ok := exteriors[strings.ToLower(s)]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrInvalidExterior, s)
	}
	return canon, nil
}

// ParseMarketName parses and validates a market hash name. A trailing
// parenthesised group is treated as the exterior only when it is a known wear
// grade, so names like "Sticker | Team (Holo)" keep their suffix.
func ParseMarketName(raw string) (*Name, error) {
	name := strings.Join(strings.Fields(raw), " ")
	if name == "" || len(name) > maxNameLen {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, raw)
	}

	n := &Name{HashName: name}
	rest := name
	if strings.HasPrefix(rest, starPrefix) {
		n.Star = true
		rest = strings.TrimPrefix(rest, starPrefix)
	}
	switch {
	case strings.HasPrefix(rest, statTrakPrefix):
		n.StatTrak = true
		rest = strings.TrimPrefix(rest, statTrakPrefix)
	case strings.HasPrefix(rest, souvenirPrefix):
		n.Souvenir = true
		rest = strings.TrimPrefix(rest, souvenirPrefix)
	}

	if open := strings.LastIndex(rest, " ("); open >= 0 && strings.HasSuffix(rest, ")") {
		if canon, ok := exteriors[strings.ToLower(rest[open+2:len(rest)-1])]; ok {
			n.Exterior = canon
			rest = rest[:open]
		}
	}

	weapon, skin, _ := strings.Cut(rest, "|")
	n.Weapon = strings.TrimSpace(weapon)
	n.Skin = strings.TrimSpace(skin)
	if n.Weapon == "" {
		return nil, fmt.Errorf("%w: %q has no item name", ErrInvalidName, raw)
	}
	return n, nil
}

// Compose builds the market hash name for a base name and an exterior.
// If base already ends with an exterior, the explicit exterior must agree.
func Compose(base, exterior string) (*Name, error) {
	ext, err := NormalizeExterior(exterior)
	if err != nil {
		return nil, err
	}
	n, err := ParseMarketName(base)
	if err != nil {
		return nil, err
	}
	switch {
	case ext == "" || ext == n.Exterior:
		return n, nil
	case n.Exterior != "":
		return nil, fmt.Errorf("%w: name says %s but exterior is %s", ErrInvalidExterior, n.Exterior, ext)
	}
	return ParseMarketName(n.HashName + " (" + ext + ")")
}

// Group returns the correlation key for position limits: the weapon name,
// ignoring StatTrak/Souvenir variants and wear.
func (n *Name) Group() string {
	return n.Weapon
}
