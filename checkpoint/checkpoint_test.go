package checkpoint

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/op/go-logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"bitbucket.org/Davydov/qpuzzle/consensus"
	"bitbucket.org/Davydov/qpuzzle/quartet"
)

func init() {
	logging.SetLevel(logging.CRITICAL, "checkpoint")
	logging.SetLevel(logging.CRITICAL, "quartet")
}

func openDB(tst *testing.T) *bolt.DB {
	db, err := Open(filepath.Join(tst.TempDir(), "test.db"))
	require.NoError(tst, err)
	tst.Cleanup(func() { db.Close() })
	return db
}

func TestKey(tst *testing.T) {
	assert.Equal(tst, Key("a", "b"), Key("a", "b"))
	assert.NotEqual(tst, Key("a", "b"), Key("ab"))
	assert.NotEqual(tst, Key("a", "b"), Key("b", "a"))
}

func TestData(tst *testing.T) {
	db := openDB(tst)
	b, err := LoadData(db, ProgressBucket, []byte("missing"))
	require.NoError(tst, err)
	assert.Nil(tst, b)

	require.NoError(tst, SaveData(db, ProgressBucket, []byte("k"), []byte("value")))
	b, err = LoadData(db, ProgressBucket, []byte("k"))
	require.NoError(tst, err)
	assert.Equal(tst, []byte("value"), b)

	// without a database nothing is stored
	assert.NoError(tst, SaveData(nil, ProgressBucket, []byte("k"), []byte("v")))
	b, err = LoadData(nil, ProgressBucket, []byte("k"))
	assert.NoError(tst, err)
	assert.Nil(tst, b)
}

func TestQuartets(tst *testing.T) {
	db := openDB(tst)
	io := New(db, Key("quartets"), 10)

	r, err := io.LoadQuartets(6)
	require.NoError(tst, err)
	assert.Nil(tst, r)

	st := quartet.NewStore(6)
	for k := int64(0); k < st.Len(); k++ {
		a, b, c, d := quartet.Unrank(k)
		st.Set(a, b, c, d, quartet.Mask(k%7+1))
	}
	saved := quartet.Summarize(st, 4)
	require.NoError(tst, io.SaveQuartets(saved))
	loaded, err := io.LoadQuartets(6)
	require.NoError(tst, err)
	require.NotNil(tst, loaded)
	assert.Equal(tst, st.Bytes(), loaded.Store.Bytes())
	assert.Equal(tst, saved.BadQuartets, loaded.BadQuartets)
	assert.Equal(tst, saved.BadTaxon, loaded.BadTaxon)
	// the convergence problems are reported again
	assert.Equal(tst, int64(4), loaded.NonConverged)
	assert.Equal(tst, 1, loaded.Warnings.Count("quartet"))

	_, err = io.LoadQuartets(7)
	assert.Error(tst, err)
}

func TestProgress(tst *testing.T) {
	db := openDB(tst)
	io := New(db, Key("progress"), 3600)
	assert.False(tst, io.Old())

	p, err := io.LoadProgress()
	require.NoError(tst, err)
	assert.Nil(tst, p)

	t := consensus.NewTable(5, 0)
	bs := bitset.New(5)
	bs.Set(1)
	bs.Set(2)
	t.RecordTrial([]*bitset.BitSet{bs})
	t.RecordTrial([]*bitset.BitSet{bs})
	p = &Progress{
		RunID:        "run",
		Trials:       2,
		Bipartitions: t.Snapshot(),
		Topologies:   map[string]int{"(0,(1,2),3,4);": 2},
	}
	require.NoError(tst, io.SaveProgress(p))
	loaded, err := io.LoadProgress()
	require.NoError(tst, err)
	assert.Equal(tst, p, loaded)

	// another run does not see it
	other, err := New(db, Key("other"), 3600).LoadProgress()
	require.NoError(tst, err)
	assert.Nil(tst, other)

	io = New(db, Key("progress"), 0)
	time.Sleep(time.Millisecond)
	assert.True(tst, io.Old())
	io.SetNow()
	io.seconds = 3600
	assert.False(tst, io.Old())
}
