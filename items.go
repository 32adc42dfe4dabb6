package flagcache

import (
	"encoding/json"
	"fmt"
)

// FeatureFlag is one flag evaluation result as delivered by the service.
type FeatureFlag struct {
	Key                  string          `json:"key"`
	Value                json.RawMessage `json:"value,omitempty"`
	Variation            *int            `json:"variation,omitempty"`
	Version              *int            `json:"version,omitempty"`
	FlagVersion          *int            `json:"flagVersion,omitempty"`
	TrackEvents          bool            `json:"trackEvents,omitempty"`
	TrackReason          bool            `json:"trackReason,omitempty"`
	DebugEventsUntilDate *int64          `json:"debugEventsUntilDate,omitempty"`
	Reason               json.RawMessage `json:"reason,omitempty"`
	Prerequisites        []string        `json:"prerequisites,omitempty"`
}

// StoredItem is either a flag or a tombstone recording that the flag was
// deleted at some version.
type StoredItem struct {
	flag    *FeatureFlag
	version int
}

// Item wraps a present flag.
func Item(f FeatureFlag) StoredItem {
	return StoredItem{flag: &f}
}

// Tombstone marks a flag deleted at version.
func Tombstone(version int) StoredItem {
	return StoredItem{version: version}
}

// IsDeleted reports whether the item is a tombstone.
func (i StoredItem) IsDeleted() bool { return i.flag == nil }

// Flag returns the flag, or false for a tombstone.
func (i StoredItem) Flag() (FeatureFlag, bool) {
	if i.flag == nil {
		return FeatureFlag{}, false
	}
	return *i.flag, true
}

// Version returns the flag version, or the tombstone version.
func (i StoredItem) Version() int {
	if i.flag == nil {
		return i.version
	}
	if i.flag.Version != nil {
		return *i.flag.Version
	}
	return 0
}

type tombstoneJSON struct {
	Version int  `json:"version"`
	Deleted bool `json:"deleted"`
}

func (i StoredItem) MarshalJSON() ([]byte, error) {
	if i.flag == nil {
		return json.Marshal(tombstoneJSON{Version: i.version, Deleted: true})
	}
	return json.Marshal(i.flag)
}

func (i *StoredItem) UnmarshalJSON(data []byte) error {
	var head struct {
		Deleted bool `json:"deleted"`
		Version int  `json:"version"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return fmt.Errorf("decode stored item: %w", err)
	}
	if head.Deleted {
		*i = Tombstone(head.Version)
		return nil
	}
	var f FeatureFlag
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("decode flag: %w", err)
	}
	*i = Item(f)
	return nil
}

// StoredItemCollection is the persisted set of items for one context.
type StoredItemCollection struct {
	Flags map[string]StoredItem `json:"flags"`
}

// NewCollection wraps items, treating nil as empty.
func NewCollection(items map[string]StoredItem) StoredItemCollection {
	if items == nil {
		items = map[string]StoredItem{}
	}
	return StoredItemCollection{Flags: items}
}

// DecodeCollection parses a persisted collection. The "flags" object is
// required so that unrelated JSON is not mistaken for an empty collection.
func DecodeCollection(data []byte) (StoredItemCollection, error) {
	var raw struct {
		Flags *map[string]StoredItem `json:"flags"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return StoredItemCollection{}, fmt.Errorf("decode collection: %w", err)
	}
	if raw.Flags == nil {
		return StoredItemCollection{}, errMissingFlags
	}
	return NewCollection(*raw.Flags), nil
}
