//go:build opus

package audio

import (
	"fmt"

	"github.com/hraban/opus"
)

func openOpusDecoder(sampleRate, channels int) (packetDecoder, error) {
	dec, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("opus decoder: %w", err)
	}
	return dec, nil
}
