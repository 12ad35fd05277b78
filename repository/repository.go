package repository

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang/snappy"

	"state-connector/db"
	"state-connector/models"
)

const (
	commitPrefix   = "commit:"
	progressPrefix = "progress:"
	leavesPrefix   = "leaves:"
)

// JournalInterface abstracts the local state kept between runs: outstanding
// commits, partial registration progress and the leaf sets of finalised
// periods.
type JournalInterface interface {
	PutCommit(rec models.CommitRecord) error
	GetCommit(chain models.ChainID, epoch uint64) (*models.CommitRecord, error)
	DeleteCommit(chain models.ChainID, epoch uint64) error
	GetCommits(chain models.ChainID) ([]*models.CommitRecord, error)

	PutProgress(p models.PartialProgress) error
	GetProgress(chain models.ChainID, epoch uint64) (*models.PartialProgress, error)
	DeleteProgress(chain models.ChainID, epoch uint64) error

	PutLeaves(chain models.ChainID, epoch uint64, leaves []common.Hash) error
	GetLeaves(chain models.ChainID, epoch uint64) ([]common.Hash, error)
}

// Journal implements JournalInterface using LevelDB as the storage backend.
// Getters return nil without error when nothing is stored.
type Journal struct {
	db *db.LevelDB
}

// NewJournal creates and returns a new Journal instance
func NewJournal(db *db.LevelDB) *Journal {
	return &Journal{db: db}
}

func key(prefix string, chain models.ChainID, epoch uint64) []byte {
	return []byte(fmt.Sprintf("%s%d:%020d", prefix, chain, epoch))
}

func chainPrefix(prefix string, chain models.ChainID) []byte {
	return []byte(fmt.Sprintf("%s%d:", prefix, chain))
}

// PutCommit stores the outstanding commit of a period
func (j *Journal) PutCommit(rec models.CommitRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return j.db.Put(key(commitPrefix, rec.ChainID, rec.Epoch), data)
}

// GetCommit retrieves the outstanding commit of a period
func (j *Journal) GetCommit(chain models.ChainID, epoch uint64) (*models.CommitRecord, error) {
	var rec models.CommitRecord
	ok, err := j.getJSON(key(commitPrefix, chain, epoch), &rec)
	if !ok || err != nil {
		return nil, err
	}
	return &rec, nil
}

// DeleteCommit forgets a commit once its reveal is included
func (j *Journal) DeleteCommit(chain models.ChainID, epoch uint64) error {
	return j.db.Delete(key(commitPrefix, chain, epoch))
}

// GetCommits lists the outstanding commits of a chain in period order
func (j *Journal) GetCommits(chain models.ChainID) ([]*models.CommitRecord, error) {
	iter := j.db.NewIterator(chainPrefix(commitPrefix, chain))
	defer iter.Release()

	var recs []*models.CommitRecord
	for iter.Next() {
		var rec models.CommitRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, err
		}
		recs = append(recs, &rec)
	}
	return recs, iter.Error()
}

// PutProgress records how far a chunked registration got
func (j *Journal) PutProgress(p models.PartialProgress) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return j.db.Put(key(progressPrefix, p.ChainID, p.Epoch), data)
}

// GetProgress retrieves the chunked registration progress of a period
func (j *Journal) GetProgress(chain models.ChainID, epoch uint64) (*models.PartialProgress, error) {
	var p models.PartialProgress
	ok, err := j.getJSON(key(progressPrefix, chain, epoch), &p)
	if !ok || err != nil {
		return nil, err
	}
	return &p, nil
}

// DeleteProgress drops the progress once the period is fully registered
func (j *Journal) DeleteProgress(chain models.ChainID, epoch uint64) error {
	return j.db.Delete(key(progressPrefix, chain, epoch))
}

// PutLeaves caches the leaf set of a period, snappy-compressed
func (j *Journal) PutLeaves(chain models.ChainID, epoch uint64, leaves []common.Hash) error {
	raw := make([]byte, 4, 4+len(leaves)*common.HashLength)
	binary.BigEndian.PutUint32(raw, uint32(len(leaves)))
	for _, l := range leaves {
		raw = append(raw, l.Bytes()...)
	}
	return j.db.Put(key(leavesPrefix, chain, epoch), snappy.Encode(nil, raw))
}

// GetLeaves returns the cached leaf set of a period. A cached empty period
// yields an empty, non-nil slice.
func (j *Journal) GetLeaves(chain models.ChainID, epoch uint64) ([]common.Hash, error) {
	data, err := j.db.Get(key(leavesPrefix, chain, epoch))
	if db.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("decode leaves of epoch %d: %w", epoch, err)
	}
	if len(raw) < 4 {
		return nil, fmt.Errorf("decode leaves of epoch %d: truncated", epoch)
	}
	n := int(binary.BigEndian.Uint32(raw))
	raw = raw[4:]
	if len(raw) != n*common.HashLength {
		return nil, fmt.Errorf("decode leaves of epoch %d: want %d leaves, have %d bytes", epoch, n, len(raw))
	}
	leaves := make([]common.Hash, n)
	for i := range leaves {
		leaves[i] = common.BytesToHash(raw[i*common.HashLength : (i+1)*common.HashLength])
	}
	return leaves, nil
}

func (j *Journal) getJSON(k []byte, v interface{}) (bool, error) {
	data, err := j.db.Get(k)
	if db.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(data, v)
}
