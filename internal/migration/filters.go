package migration

import (
	"github.com/tidwall/gjson"

	"github.com/launchkol/kolfeed/internal/feedsettings"
)

const (
	keyTokenSymbolColor        = "tokenSymbolColor"
	keyTokenSymbolNotification = "tokenSymbolNotification"
	keyFilterMintAddresses     = "filterMintAddresses"
	keyMintAddressColor        = "mintAddressColor"
	keyMintAddressNotification = "mintAddressNotification"
	keyKeywords                = "keywords"
	keyLegacyTokenSymbols      = "tokenSymbols"
	keyLegacyMintAddresses     = "mintAddresses"
)

// Filters converts stored content filters. Missing or non-object input yields
// the default filters.
func Filters(value gjson.Result) feedsettings.ContentFilters {
	switch DetectFiltersSchema(value) {
	case SchemaCurrent:
		return currentFilters(value)
	case SchemaLegacy:
		return legacyFilters(value)
	default:
		return feedsettings.DefaultContentFilters()
	}
}

// OptionalFilters converts an optional filters field: absent or null stays nil.
func OptionalFilters(value gjson.Result) *feedsettings.ContentFilters {
	if !present(value) {
		return nil
	}
	filters := Filters(value)
	return &filters
}

func currentFilters(value gjson.Result) feedsettings.ContentFilters {
	defaults := feedsettings.DefaultContentFilters()
	return feedsettings.ContentFilters{
		FilterTokenSymbols:      boolOr(value.Get(keyFilterTokenSymbols), defaults.FilterTokenSymbols),
		TokenSymbolColor:        stringOr(value.Get(keyTokenSymbolColor), defaults.TokenSymbolColor),
		TokenSymbolNotification: Notification(value.Get(keyTokenSymbolNotification), defaults.TokenSymbolNotification),
		FilterMintAddresses:     boolOr(value.Get(keyFilterMintAddresses), defaults.FilterMintAddresses),
		MintAddressColor:        stringOr(value.Get(keyMintAddressColor), defaults.MintAddressColor),
		MintAddressNotification: Notification(value.Get(keyMintAddressNotification), defaults.MintAddressNotification),
		Keywords:                Keywords(value.Get(keyKeywords)),
	}
}

// legacyFilters maps the symbol and address lists of older releases onto the
// detector switches: a non-empty list turns its detector on.
func legacyFilters(value gjson.Result) feedsettings.ContentFilters {
	filters := feedsettings.DefaultContentFilters()
	filters.FilterTokenSymbols = truthy(value.Get(keyLegacyTokenSymbols)) || truthy(value.Get(keyFilterTokenSymbols))
	filters.FilterMintAddresses = truthy(value.Get(keyLegacyMintAddresses)) || truthy(value.Get(keyFilterMintAddresses))
	filters.TokenSymbolColor = nonEmptyStringOr(value.Get(keyTokenSymbolColor), filters.TokenSymbolColor)
	filters.MintAddressColor = nonEmptyStringOr(value.Get(keyMintAddressColor), filters.MintAddressColor)
	filters.Keywords = Keywords(value.Get(keyKeywords))
	return filters
}
