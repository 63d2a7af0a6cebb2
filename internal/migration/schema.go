// Package migration converts loosely-typed stored feed configuration into the
// current schema. Every entry point accepts arbitrary JSON (wrapped in a
// gjson.Result), never fails, and falls back to defaults for anything it
// cannot interpret.
package migration

import (
	"github.com/tidwall/gjson"

	"github.com/launchkol/kolfeed/internal/feedsettings"
)

// Schema classifies a stored value before it is decoded.
type Schema int

const (
	// SchemaAbsent marks a missing value or one that is not a JSON object.
	SchemaAbsent Schema = iota
	// SchemaLegacy marks an object written by an older release.
	SchemaLegacy
	// SchemaCurrent marks an object in the current shape, possibly missing newer sub-fields.
	SchemaCurrent
)

const (
	// CurrentSchemaVersion is the version stamped on stored settings objects.
	CurrentSchemaVersion = 2
	// SchemaVersionKey is the object key carrying the stamped version.
	SchemaVersionKey = "schemaVersion"

	keyFilterTokenSymbols = "filterTokenSymbols"
	keyTweetTypes         = "tweetTypes"
	keyPostsTweetType     = "tweetTypes.posts"
)

// String returns a readable schema name.
func (schema Schema) String() string {
	switch schema {
	case SchemaLegacy:
		return "legacy"
	case SchemaCurrent:
		return "current"
	default:
		return "absent"
	}
}

// DetectFiltersSchema classifies a stored content filters object. Current filters
// carry a boolean filterTokenSymbols switch; legacy ones carry symbol lists.
func DetectFiltersSchema(value gjson.Result) Schema {
	if !value.IsObject() {
		return SchemaAbsent
	}
	if hasCurrentVersionStamp(value) {
		return SchemaCurrent
	}
	if value.Get(keyFilterTokenSymbols).IsBool() {
		return SchemaCurrent
	}
	return SchemaLegacy
}

// DetectFeedSettingsSchema classifies a stored global or group settings object.
// Current settings store each tweet type as an object; legacy ones store booleans.
func DetectFeedSettingsSchema(value gjson.Result) Schema {
	if !value.IsObject() {
		return SchemaAbsent
	}
	if hasCurrentVersionStamp(value) {
		return SchemaCurrent
	}
	if value.Get(keyPostsTweetType).IsObject() {
		return SchemaCurrent
	}
	return SchemaLegacy
}

// DetectAccountSchema classifies stored account overrides. Any boolean tweet type
// entry marks the legacy shape.
func DetectAccountSchema(value gjson.Result) Schema {
	if !value.IsObject() {
		return SchemaAbsent
	}
	if hasCurrentVersionStamp(value) {
		return SchemaCurrent
	}
	schema := SchemaCurrent
	value.Get(keyTweetTypes).ForEach(func(_, entry gjson.Result) bool {
		if entry.IsBool() {
			schema = SchemaLegacy
			return false
		}
		return true
	})
	return schema
}

func hasCurrentVersionStamp(value gjson.Result) bool {
	version := value.Get(SchemaVersionKey)
	return version.Type == gjson.Number && version.Int() >= CurrentSchemaVersion
}

func tweetTypeKey(tweetType feedsettings.TweetType) string {
	return string(tweetType)
}
