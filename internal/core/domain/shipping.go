package domain

import (
	"regexp"
	"strconv"
	"strings"
)

// Shipping rate table: a pure function of (destination country, item size
// descriptor). No state, no I/O.

type ShippingZone string

const (
	ZoneDomestic ShippingZone = "SK"
	ZoneEU       ShippingZone = "EU"
	ZoneWorld    ShippingZone = "ROW"
)

type SizeClass string

const (
	SizeSmall  SizeClass = "small"
	SizeMedium SizeClass = "medium"
	SizeLarge  SizeClass = "large"
)

// EU member states excluding the domestic zone.
var euCountries = map[string]struct{}{
	"AT": {}, "BE": {}, "BG": {}, "HR": {}, "CY": {}, "CZ": {}, "DK": {},
	"EE": {}, "FI": {}, "FR": {}, "DE": {}, "GR": {}, "HU": {}, "IE": {},
	"IT": {}, "LV": {}, "LT": {}, "LU": {}, "MT": {}, "NL": {}, "PL": {},
	"PT": {}, "RO": {}, "SI": {}, "ES": {}, "SE": {},
}

func ShippingZoneFor(country string) ShippingZone {
	c := strings.ToUpper(strings.TrimSpace(country))
	if c == "SK" || c == "SLOVAKIA" || c == "SLOVENSKO" {
		return ZoneDomestic
	}
	if _, ok := euCountries[c]; ok {
		return ZoneEU
	}
	return ZoneWorld
}

var dimensionPattern = regexp.MustCompile(`\d+`)

// ClassifySize derives a size class from a free-text dimension string
// such as "30x40 cm". The largest dimension decides: <20cm small,
// <=40cm medium, else large. Unparseable or empty input falls back to
// medium.
func ClassifySize(size string) SizeClass {
	numbers := dimensionPattern.FindAllString(size, -1)
	if len(numbers) == 0 {
		return SizeMedium
	}
	max := 0
	for _, n := range numbers {
		v, err := strconv.Atoi(n)
		if err != nil {
			continue
		}
		if v > max {
			max = v
		}
	}
	switch {
	case max < 20:
		return SizeSmall
	case max <= 40:
		return SizeMedium
	default:
		return SizeLarge
	}
}

// Rates in EUR cents.
var shippingRates = map[ShippingZone]map[SizeClass]int64{
	ZoneDomestic: {SizeSmall: 500, SizeMedium: 700, SizeLarge: 1000},
	ZoneEU:       {SizeSmall: 1200, SizeMedium: 1800, SizeLarge: 2500},
	ZoneWorld:    {SizeSmall: 2000, SizeMedium: 3500, SizeLarge: 5000},
}

// ShippingCents returns the shipping cost for a destination country and
// an item's dimension string.
func ShippingCents(country, size string) int64 {
	return shippingRates[ShippingZoneFor(country)][ClassifySize(size)]
}
