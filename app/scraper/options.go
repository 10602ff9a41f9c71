package scraper

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// decodeOptions copies the loosely typed vendor config blob into out. JSON
// numbers arrive as float64, so weak typing is enabled.
func decodeOptions(opts map[string]any, out any) error {
	if len(opts) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("failed to create options decoder: %w", err)
	}
	if err := dec.Decode(opts); err != nil {
		return fmt.Errorf("invalid vendor options: %w", err)
	}
	return nil
}
