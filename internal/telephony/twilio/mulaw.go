package twilio

// mulaw implements the ITU-T G.711 μ-law codec Twilio Media Streams
// speaks (8-bit, 8kHz). This is a fixed bit-manipulation algorithm,
// not a moving-parts dependency, and none of the pack's example repos
// import a third-party package for it (square-key-labs-strawgo-ai's
// pipeline treats it as an opaque processor config, not exposing a
// reusable Go codec) — see DESIGN.md.

const (
	mulawBias = 0x84
	mulawClip = 32635
)

// pcmToMulaw encodes 16-bit signed little-endian PCM samples to
// 8-bit μ-law bytes.
func pcmToMulaw(pcm []byte) []byte {
	n := len(pcm) / 2
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		sample := int16(pcm[2*i]) | int16(pcm[2*i+1])<<8
		out[i] = encodeMulawSample(sample)
	}
	return out
}

// mulawToPCM decodes 8-bit μ-law bytes to 16-bit signed
// little-endian PCM.
func mulawToPCM(mulaw []byte) []byte {
	out := make([]byte, len(mulaw)*2)
	for i, b := range mulaw {
		sample := decodeMulawSample(b)
		out[2*i] = byte(sample)
		out[2*i+1] = byte(sample >> 8)
	}
	return out
}

func encodeMulawSample(sample int16) byte {
	sign := byte(0)
	s := int(sample)
	if s < 0 {
		sign = 0x80
		s = -s
	}
	if s > mulawClip {
		s = mulawClip
	}
	s += mulawBias

	exponent := 7
	for mask := 0x4000; (s&mask) == 0 && exponent > 0; mask >>= 1 {
		exponent--
	}
	mantissa := byte((s >> (exponent + 3)) & 0x0F)
	return ^(sign | byte(exponent<<4) | mantissa)
}

func decodeMulawSample(b byte) int16 {
	b = ^b
	sign := b & 0x80
	exponent := (b >> 4) & 0x07
	mantissa := b & 0x0F

	sample := int(mantissa)<<3 + mulawBias
	sample <<= exponent
	sample -= mulawBias
	if sign != 0 {
		sample = -sample
	}
	return int16(sample)
}
