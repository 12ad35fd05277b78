package repository_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"state-connector/db"
	"state-connector/models"
	"state-connector/repository"
)

func newJournal(t *testing.T) *repository.Journal {
	t.Helper()
	ldb, err := db.NewMemLevelDB()
	require.NoError(t, err)
	t.Cleanup(func() { ldb.Close() })
	return repository.NewJournal(ldb)
}

func TestCommitLifecycle(t *testing.T) {
	j := newJournal(t)

	got, err := j.GetCommit(2, 7)
	require.NoError(t, err)
	require.Nil(t, got)

	rec := models.CommitRecord{
		ChainID:    2,
		Epoch:      7,
		Submitter:  common.HexToAddress("0x01"),
		CommitHash: crypto.Keccak256Hash([]byte("c")),
		RevealHash: crypto.Keccak256Hash([]byte("r")),
		Root:       crypto.Keccak256Hash([]byte("root")),
	}
	require.NoError(t, j.PutCommit(rec))
	require.NoError(t, j.PutCommit(models.CommitRecord{ChainID: 2, Epoch: 12}))
	require.NoError(t, j.PutCommit(models.CommitRecord{ChainID: 1, Epoch: 7}))

	got, err = j.GetCommit(2, 7)
	require.NoError(t, err)
	assert.Equal(t, rec, *got)

	all, err := j.GetCommits(2)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, uint64(7), all[0].Epoch)
	assert.Equal(t, uint64(12), all[1].Epoch)

	require.NoError(t, j.DeleteCommit(2, 7))
	got, err = j.GetCommit(2, 7)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestProgressLifecycle(t *testing.T) {
	j := newJournal(t)
	p := models.PartialProgress{ChainID: 3, Epoch: 4, Skip: 120, Leaves: []common.Hash{crypto.Keccak256Hash([]byte("a"))}}
	require.NoError(t, j.PutProgress(p))

	got, err := j.GetProgress(3, 4)
	require.NoError(t, err)
	assert.Equal(t, p, *got)

	require.NoError(t, j.DeleteProgress(3, 4))
	got, err = j.GetProgress(3, 4)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLeavesCache(t *testing.T) {
	j := newJournal(t)

	got, err := j.GetLeaves(3, 9)
	require.NoError(t, err)
	assert.Nil(t, got)

	leaves := make([]common.Hash, 300)
	for i := range leaves {
		leaves[i] = crypto.Keccak256Hash([]byte{byte(i), byte(i >> 8)})
	}
	require.NoError(t, j.PutLeaves(3, 9, leaves))
	got, err = j.GetLeaves(3, 9)
	require.NoError(t, err)
	assert.Equal(t, leaves, got)

	require.NoError(t, j.PutLeaves(3, 10, nil))
	got, err = j.GetLeaves(3, 10)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
