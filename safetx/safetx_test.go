package safetx

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/oraclemesh/go-oraclemesh/period"
)

// TestExecGas verifies the gas limit formula max(estimated+75000, recommended)
// on both sides of the crossover.
func TestExecGas(t *testing.T) {
	require := require.New(t)

	// Recommended wins when the padded estimate falls short of it.
	require.Equal(uint64(175000), ExecGas(100000, 150000))

	// The padded estimate wins when it exceeds the recommendation.
	require.Equal(uint64(275000), ExecGas(200000, 150000))

	// Exact tie goes either way by value; the formula returns the shared value.
	require.Equal(uint64(150000), ExecGas(75000, 150000))
}

// TestHashDeterminism checks that the EIP-712 digest is stable for equal
// inputs and moves when any signed field moves.
func TestHashDeterminism(t *testing.T) {
	require := require.New(t)

	safe := common.HexToAddress("0x5afe000000000000000000000000000000000001")
	target := common.HexToAddress("0x7a00000000000000000000000000000000000002")
	chainID := big.NewInt(1337)

	data, err := EncodeEstimate(100.25)
	require.NoError(err)

	a := New(target, data, 0)
	b := New(target, data, 0)
	require.Equal(a.Hash(safe, chainID), b.Hash(safe, chainID))

	// Different nonce, different digest.
	c := New(target, data, 0)
	c.Nonce = 1
	require.NotEqual(a.Hash(safe, chainID), c.Hash(safe, chainID))

	// Different Safe address, different digest (domain separation).
	otherSafe := common.HexToAddress("0x5afe000000000000000000000000000000000002")
	require.NotEqual(a.Hash(safe, chainID), a.Hash(otherSafe, chainID))

	// Different chain, different digest.
	require.NotEqual(a.Hash(safe, chainID), a.Hash(safe, big.NewInt(1)))
}

// TestScaleEstimate checks the fixed-point conversion of the float estimate.
func TestScaleEstimate(t *testing.T) {
	require := require.New(t)

	require.Equal(big.NewInt(10025000000), ScaleEstimate(100.25))
	require.Equal(big.NewInt(0), ScaleEstimate(0))
	require.Equal(big.NewInt(100000000), ScaleEstimate(1.000000001))
}

// TestAssembleSignatures verifies ascending-address ordering regardless of
// submission order, and the silent skip of participants without a recorded
// signature.
func TestAssembleSignatures(t *testing.T) {
	require := require.New(t)

	mkAddr := func(b byte) common.Address {
		var a common.Address
		a[0] = b
		return a
	}
	mkSig := func(b byte) string {
		return strings.Repeat(fmt.Sprintf("%02x", b), SignatureLength)
	}

	participants := []common.Address{mkAddr(0x03), mkAddr(0x01), mkAddr(0x04), mkAddr(0x02)}

	// All four signed: the blob is sig(1)||sig(2)||sig(3)||sig(4) no matter
	// how the map was populated.
	{
		b := period.NewBuilder()
		b.SetParticipants(participants)
		b.SetSignatures(map[common.Address]string{
			mkAddr(0x04): mkSig(0x44),
			mkAddr(0x01): mkSig(0x11),
			mkAddr(0x03): mkSig(0x33),
			mkAddr(0x02): mkSig(0x22),
		})
		blob, err := AssembleSignatures(b.Snapshot())
		require.NoError(err)

		want, _ := hex.DecodeString(mkSig(0x11) + mkSig(0x22) + mkSig(0x33) + mkSig(0x44))
		require.Equal(want, blob)
	}

	// A missing signer is skipped, not an error.
	{
		b := period.NewBuilder()
		b.SetParticipants(participants)
		b.SetSignatures(map[common.Address]string{
			mkAddr(0x04): mkSig(0x44),
			mkAddr(0x02): mkSig(0x22),
		})
		st := b.Snapshot()

		blob, err := AssembleSignatures(st)
		require.NoError(err)
		want, _ := hex.DecodeString(mkSig(0x22) + mkSig(0x44))
		require.Equal(want, blob)
		require.Equal([]common.Address{mkAddr(0x02), mkAddr(0x04)}, Signers(st))
	}

	// A signature of the wrong byte length is a hard error.
	{
		b := period.NewBuilder()
		b.SetParticipants(participants[:1])
		b.SetSignatures(map[common.Address]string{mkAddr(0x03): "abcd"})
		_, err := AssembleSignatures(b.Snapshot())
		require.Error(err)
	}
}

// TestEncodings sanity-checks the three call-data builders: selectors
// present, determinism, and constructor argument validation.
func TestEncodings(t *testing.T) {
	require := require.New(t)

	// Estimate call-data: 4-byte selector + one 32-byte word.
	{
		data, err := EncodeEstimate(100.25)
		require.NoError(err)
		require.Len(data, 4+32)

		again, err := EncodeEstimate(100.25)
		require.NoError(err)
		require.Equal(data, again)
	}

	// execTransaction call-data embeds the signature blob.
	{
		target := common.HexToAddress("0x7a00000000000000000000000000000000000002")
		inner, err := EncodeEstimate(100.25)
		require.NoError(err)
		tx := New(target, inner, 0)

		sigs := make([]byte, 2*SignatureLength)
		for i := range sigs {
			sigs[i] = 0xee
		}
		data, err := ExecData(tx, sigs)
		require.NoError(err)
		require.Contains(hex.EncodeToString(data), strings.Repeat("ee", 2*SignatureLength))
	}

	// Deployment data carries the creation code prefix and rejects
	// impossible thresholds.
	{
		owners := []common.Address{
			common.HexToAddress("0x0100000000000000000000000000000000000000"),
			common.HexToAddress("0x0200000000000000000000000000000000000000"),
		}
		data, err := DeployData(owners, 2)
		require.NoError(err)
		require.True(strings.HasPrefix(hex.EncodeToString(data), strings.TrimPrefix(multisigCreationCode, "0x")))

		_, err = DeployData(owners, 3)
		require.Error(err)
		_, err = DeployData(owners, 0)
		require.Error(err)
	}
}

// TestDataGas checks the EIP-2028 style call-data pricing used for the
// deterministic SafeTxGas default.
func TestDataGas(t *testing.T) {
	require := require.New(t)

	require.Equal(uint64(21000), DataGas(nil))
	require.Equal(uint64(21000+4+16), DataGas([]byte{0x00, 0x01}))
}
