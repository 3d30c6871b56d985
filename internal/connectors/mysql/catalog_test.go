package mysql

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"lwa-query-web/internal/lwa"
)

func TestListQuery_SpecUsesOverlap(t *testing.T) {
	q := listQuery(lwa.KindSpecFITS, lwa.SpecTable)
	assert.Contains(t, q, "FROM lwa_spec_fits_files")
	assert.Contains(t, q, "end_time >= ? AND start_time <= ?")
	assert.Contains(t, q, "ORDER BY start_time")
}

func TestListQuery_ImagesUseObsTime(t *testing.T) {
	tables := lwa.Tables(lwa.ImageMFS)
	q := listQuery(lwa.KindSlowLev15, tables[lwa.KindSlowLev15])
	assert.Contains(t, q, "FROM lwa_slow_mfs_lev15_hdf_files")
	assert.Contains(t, q, "obs_time BETWEEN ? AND ?")
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "(?, ?)", placeholders(1, 2))
	got := placeholders(3, 3)
	assert.Equal(t, 3, strings.Count(got, "(?, ?, ?)"))
}

func TestNewStoreFromDB_Defaults(t *testing.T) {
	s := NewStoreFromDB(nil, "", 0)
	assert.Equal(t, lwa.ImageMFS, s.imageType)
	assert.Equal(t, "lwa_slow_mfs_lev1_hdf_files", s.tables[lwa.KindSlowLev1])
	assert.NoError(t, s.Close())

	var nilStore *Store
	assert.NoError(t, nilStore.Close())
}
