package statestore

import (
	"math/big"
	"os"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/loopnode/dex-rollup-state/state"
)

func buildSampleState(t *testing.T) *state.State {
	t.Helper()
	st := state.New(1)

	acc := st.GetAccount(10)
	acc.Owner = common.HexToAddress("0x5555555555555555555555555555555555555555")
	acc.Nonce = 4
	acc.FeeBipsAMM = 12
	acc.UpdateBalanceAndStorage(3, uint256.NewInt(7), uint256.NewInt(900), big.NewInt(5000), uint256.NewInt(2))
	st.UpdateAccountTree(10)

	return st
}

func TestSaveLoadRoundTripPreservesRoot(t *testing.T) {
	dir := t.TempDir()
	st := buildSampleState(t)
	root := st.Root()

	require.NoError(t, Save(dir, st, 1))

	loaded, err := Load(dir, 1, 1)
	require.NoError(t, err)
	require.True(t, loaded.Root().Equal(root), "reloaded state must reproduce the exact same accounts-tree root")
}

func TestSaveLoadRoundTripPreservesAccountFields(t *testing.T) {
	dir := t.TempDir()
	st := buildSampleState(t)
	require.NoError(t, Save(dir, st, 1))

	loaded, err := Load(dir, 1, 1)
	require.NoError(t, err)

	acc := loaded.GetAccount(10)
	require.Equal(t, uint32(4), acc.Nonce)
	require.Equal(t, uint8(12), acc.FeeBipsAMM)
	require.Equal(t, uint64(5000), acc.GetBalanceLeaf(3).Balance.Uint64())
	require.Equal(t, uint64(900), acc.GetBalanceLeaf(3).GetStorage(uint256.NewInt(7)).Data.Uint64())
}

func TestLoadMissingSnapshotFails(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(dir, 1, 999)
	require.Error(t, err)
}

func TestLoadRejectsIncompatibleSchema(t *testing.T) {
	dir := t.TempDir()
	st := state.New(1)
	require.NoError(t, Save(dir, st, 1))

	path := Path(dir, 1, 1)
	data := []byte(`{"schemaVersion":"2.0.0","exchangeID":1,"blockIndex":1,"accountsRoot":"0","accounts":{}}`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err := Load(dir, 1, 1)
	require.Error(t, err)
}
