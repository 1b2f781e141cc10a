package hash

import (
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/require"
)

func TestChecksum(t *testing.T) {
	data := []byte("schema_version: 4\n")
	require.Equal(t, xxhash.Sum64(data), Checksum(data))
	require.NotEqual(t, Checksum(data), Checksum([]byte("schema_version: 3\n")))
}

func TestSignature(t *testing.T) {
	require.Equal(t, Signature([]string{"motion", "df/f"}), Signature([]string{"motion", "df/f"}))
	require.NotEqual(t, Signature([]string{"ab", "c"}), Signature([]string{"a", "bc"}))
	require.NotEqual(t, Signature(nil), Signature([]string{""}))
	require.Equal(t, xxhash.Sum64(nil), Signature(nil))
}
