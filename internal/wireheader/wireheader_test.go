package wireheader

import (
	"bytes"
	"testing"

	"github.com/chainforge/core/internal/chainparams"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	h := chainparams.GenesisHeader

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, h))
	require.Equal(t, HeaderSize, buf.Len())

	decoded, err := Decode(&buf)
	require.NoError(t, err)
	require.Equal(t, h, decoded)
}

func TestGenesisHash(t *testing.T) {
	require.Equal(t, chainparams.GenesisHash, Hash(chainparams.GenesisHeader))
}

func TestDecodeBatchRejectsNonZeroTxCount(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(1) // one header
	require.NoError(t, Encode(&buf, chainparams.GenesisHeader))
	buf.WriteByte(1) // nonzero trailing tx count

	_, err := DecodeBatch(&buf)
	require.Error(t, err)
}

func TestEncodeDecodeBatch(t *testing.T) {
	headers := []chainparams.BlockHeader{chainparams.GenesisHeader, chainparams.GenesisHeader}

	var buf bytes.Buffer
	require.NoError(t, EncodeBatch(&buf, headers))

	decoded, err := DecodeBatch(&buf)
	require.NoError(t, err)
	require.Equal(t, headers, decoded)
}
