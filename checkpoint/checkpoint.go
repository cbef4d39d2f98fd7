// Package checkpoint keeps quartet tables and puzzling progress in a
// bolt database, so that an interrupted run can be resumed.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/op/go-logging"
	bolt "go.etcd.io/bbolt"

	"bitbucket.org/Davydov/qpuzzle/consensus"
	"bitbucket.org/Davydov/qpuzzle/quartet"
)

var log = logging.MustGetLogger("checkpoint")

var (
	// QuartetBucket holds packed quartet tables.
	QuartetBucket = []byte("quartets")
	// QuartetInfoBucket holds what is known about quartet tables
	// besides the masks.
	QuartetInfoBucket = []byte("quartetinfo")
	// ProgressBucket holds puzzling progress.
	ProgressBucket = []byte("progress")
)

// namespace is the UUID namespace of run keys.
var namespace = uuid.MustParse("0b6f1d7e-5a43-4c59-9a8e-1f2f3c4b5d6e")

// Key derives a checkpoint key from everything the stored results
// depend on. Equal inputs give equal keys.
func Key(parts ...string) []byte {
	data, err := json.Marshal(parts)
	if err != nil {
		panic(err)
	}
	return []byte(uuid.NewSHA1(namespace, data).String())
}

// Progress is the state of the puzzling step after a contiguous
// prefix of trials.
type Progress struct {
	RunID string `json:"runId"`
	Seed  uint64 `json:"seed"`
	// Trials is the number of completed trials, always the first
	// ones.
	Trials int `json:"trials"`
	// Bipartitions are the bipartition counts.
	Bipartitions *consensus.Snapshot `json:"bipartitions"`
	// Topologies maps canonical trees to counts.
	Topologies map[string]int `json:"topologies"`
	// Final is set when all the trials are done.
	Final bool `json:"final"`
}

// IO saves and loads checkpoints of one run.
type IO struct {
	db      *bolt.DB
	key     []byte
	last    time.Time
	seconds float64
}

// New creates IO. Progress is saved at most every seconds.
func New(db *bolt.DB, key []byte, seconds float64) *IO {
	return &IO{
		db:      db,
		key:     key,
		seconds: seconds,
		last:    time.Now(),
	}
}

// Open opens or creates the database file.
func Open(path string) (*bolt.DB, error) {
	db, err := bolt.Open(path, 0666, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening checkpoint database %s: %w", path, err)
	}
	return db, nil
}

// Key returns the key of the run.
func (s *IO) Key() []byte {
	return s.key
}

// quartetInfo is stored next to the packed quartet table.
type quartetInfo struct {
	NonConverged int64 `json:"nonConverged"`
}

// SaveQuartets stores the quartet table.
func (s *IO) SaveQuartets(r *quartet.Result) error {
	info, err := json.Marshal(quartetInfo{NonConverged: r.NonConverged})
	if err != nil {
		return err
	}
	if err := SaveData(s.db, QuartetBucket, s.key, r.Store.Bytes()); err != nil {
		log.Error("Error saving quartets", err)
		return err
	}
	if err := SaveData(s.db, QuartetInfoBucket, s.key, info); err != nil {
		log.Error("Error saving quartets", err)
		return err
	}
	log.Infof("Saved %d quartets", r.Store.Len())
	return nil
}

// LoadQuartets returns the stored quartet table for n taxa, or nil if
// there is none.
func (s *IO) LoadQuartets(n int) (*quartet.Result, error) {
	b, err := LoadData(s.db, QuartetBucket, s.key)
	if err != nil || b == nil {
		return nil, err
	}
	st, err := quartet.LoadStore(n, b)
	if err != nil {
		return nil, fmt.Errorf("stored quartets: %w", err)
	}
	var info quartetInfo
	b, err = LoadData(s.db, QuartetInfoBucket, s.key)
	if err != nil {
		return nil, err
	}
	if b != nil {
		if err := json.Unmarshal(b, &info); err != nil {
			return nil, fmt.Errorf("stored quartets: %w", err)
		}
	}
	log.Noticef("Found %d stored quartets", st.Len())
	return quartet.Summarize(st, info.NonConverged), nil
}

// SaveProgress stores the puzzling progress.
func (s *IO) SaveProgress(p *Progress) error {
	// Even if saving fails, we do not want to run this code too often.
	s.SetNow()
	data, err := json.Marshal(p)
	if err != nil {
		log.Error("Error serializing checkpoint", err)
		return err
	}
	if err := SaveData(s.db, ProgressBucket, s.key, data); err != nil {
		log.Error("Error saving checkpoint", err)
		return err
	}
	log.Debugf("Saved checkpoint after %d trials", p.Trials)
	return nil
}

// LoadProgress returns the stored progress, or nil if there is none.
func (s *IO) LoadProgress() (*Progress, error) {
	b, err := LoadData(s.db, ProgressBucket, s.key)
	if err != nil || b == nil {
		return nil, err
	}
	var p *Progress
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("decoding checkpoint: %w", err)
	}
	if p == nil || p.Bipartitions == nil {
		return nil, nil
	}
	if p.Final {
		log.Noticef("Found finished puzzling checkpoint (%d trials)", p.Trials)
	} else {
		log.Noticef("Found unfinished puzzling checkpoint (%d trials)", p.Trials)
	}
	return p, nil
}

// Old returns true if the last save was too long ago.
func (s *IO) Old() bool {
	return time.Since(s.last).Seconds() > s.seconds
}

// SetNow sets the last save time to now.
func (s *IO) SetNow() {
	s.last = time.Now()
}

// SaveData saves a value in the bucket.
func SaveData(db *bolt.DB, bucket, key, data []byte) error {
	if db == nil {
		return nil
	}
	return db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucket)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
}

// LoadData loads a value from the bucket. The result is nil if the
// key is not found.
func LoadData(db *bolt.DB, bucket, key []byte) ([]byte, error) {
	var data []byte
	if db == nil {
		return nil, nil
	}
	err := db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		// the value is only valid inside the transaction
		if v := b.Get(key); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}
