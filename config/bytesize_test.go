package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseByteSize(t *testing.T) {
	for _, tc := range [...]struct {
		input string
		want  ByteSize
		err   bool
	}{
		{input: `1048576`, want: 1 << 20},
		{input: `0`, want: 0},
		{input: `16k`, want: 16 << 10},
		{input: `16K`, want: 16 << 10},
		{input: `128M`, want: 128 << 20},
		{input: `128m`, want: 128 << 20},
		{input: `2G`, want: 2 << 30},
		{input: `8MiB`, want: 8 << 20},
		{input: `8 MiB`, want: 8 << 20},
		{input: `1MB`, want: 1000 * 1000},
		{input: ` 64KiB `, want: 64 << 10},
		{input: ``, err: true},
		{input: `M`, err: true},
		{input: `lots`, err: true},
		{input: `-1`, err: true},
	} {
		t.Run(tc.input, func(t *testing.T) {
			v, err := ParseByteSize(tc.input)
			if tc.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, v)
		})
	}
}

func TestByteSize_String(t *testing.T) {
	assert.Equal(t, `128 MiB`, ByteSize(128<<20).String())
	assert.Equal(t, `16 KiB`, ByteSize(16<<10).String())
	assert.Equal(t, `5 B`, ByteSize(5).String())
}

func TestByteSize_Set(t *testing.T) {
	var v ByteSize
	require.NoError(t, v.Set(`32M`))
	assert.Equal(t, ByteSize(32<<20), v)
	require.Error(t, v.Set(`x`))
	assert.Equal(t, ByteSize(32<<20), v)
	assert.Equal(t, `size`, v.Type())
}

func TestByteSize_Int(t *testing.T) {
	assert.Equal(t, 1024, ByteSize(1024).Int())
	assert.Equal(t, int(^uint(0)>>1), ByteSize(^uint64(0)).Int())
}
