package openai

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapWAV_HeaderFields(t *testing.T) {
	pcm := []byte{0x01, 0x00, 0x02, 0x00, 0x03, 0x00}
	wav := wrapWAV(pcm, 16000)

	require.Len(t, wav, 44+len(pcm))
	assert.Equal(t, "RIFF", string(wav[0:4]))
	assert.Equal(t, "WAVE", string(wav[8:12]))
	assert.Equal(t, "fmt ", string(wav[12:16]))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(wav[20:22])) // PCM format
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(wav[22:24])) // mono
	assert.Equal(t, uint32(16000), binary.LittleEndian.Uint32(wav[24:28]))
	assert.Equal(t, uint16(16), binary.LittleEndian.Uint16(wav[34:36])) // bits per sample
	assert.Equal(t, "data", string(wav[36:40]))
	assert.Equal(t, uint32(len(pcm)), binary.LittleEndian.Uint32(wav[40:44]))
	assert.Equal(t, pcm, wav[44:])
}

func TestWrapWAV_EmptyPCM(t *testing.T) {
	wav := wrapWAV(nil, 16000)
	require.Len(t, wav, 44)
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(wav[40:44]))
}

func le16(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func TestDownsample_SameRate_ReturnsInputUnchanged(t *testing.T) {
	src := le16(100, 200, 300)
	out := downsample(src, 16000, 16000)
	assert.Equal(t, src, out)
}

func TestDownsample_24kTo16k_ShrinksByTwoThirds(t *testing.T) {
	// 3 source samples per 2 destination samples at a 24000->16000 ratio.
	src := le16(1, 2, 3, 4, 5, 6)
	out := downsample(src, 24000, 16000)
	assert.Len(t, out, 8) // 4 samples * 2 bytes
}

func TestDownsample_TooShortToHaveASample(t *testing.T) {
	out := downsample([]byte{0x01}, 24000, 16000)
	assert.Equal(t, []byte{0x01}, out)
}

func TestDownsample_PreservesFirstSampleValue(t *testing.T) {
	src := le16(42, 99, 7, 123)
	out := downsample(src, 24000, 16000)
	require.GreaterOrEqual(t, len(out), 2)
	assert.Equal(t, int16(42), int16(binary.LittleEndian.Uint16(out[0:2])))
}
