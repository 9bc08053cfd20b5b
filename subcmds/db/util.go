// Copyright (c) 2023 BVK Chaitanya

package db

import (
	"fmt"

	"github.com/bvk/spotbot/gobs"
)

// TypeNameValue returns a pointer to a new value of the named gob type.
func TypeNameValue(typename string) (any, error) {
	var v any
	switch typename {
	case "Lot":
		v = new(gobs.Lot)
	case "Trade":
		v = new(gobs.Trade)
	case "TriggerConfig":
		v = new(gobs.TriggerConfig)
	case "StrategyState":
		v = new(gobs.StrategyState)
	case "BanditState":
		v = new(gobs.BanditState)
	case "TelegramState":
		v = new(gobs.TelegramState)
	case "KeyValue":
		v = new(gobs.KeyValue)
	default:
		return nil, fmt.Errorf("unsupported type name %q", typename)
	}
	return v, nil
}
