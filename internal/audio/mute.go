package audio

import (
	"context"
	"errors"
	"strings"
)

// MuteProbe reports whether capture would start on a muted microphone.
type MuteProbe struct {
	Input    string
	Fallback string
	List     Lister
}

// Muted resolves deviceID (or the configured input) and reports a muted selection.
// Selection failures unrelated to muting are returned as errors.
func (p MuteProbe) Muted(ctx context.Context, deviceID string) (bool, error) {
	input := p.Input
	if strings.TrimSpace(deviceID) != "" {
		input = deviceID
	}
	_, err := SelectDevice(ctx, p.List, input, p.Fallback)
	if errors.Is(err, ErrDeviceMuted) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, nil
}
