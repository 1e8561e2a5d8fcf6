//go:build !opus

package audio

// Builds without libopus cannot decode remote microphone packets.
func openOpusDecoder(sampleRate, channels int) (packetDecoder, error) {
	return nil, ErrUnsupported
}
