package repository

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"laser-repair/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestJSONRepo(t *testing.T) (*JSONRecordsRepo, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Laser_App_Data", "laser_database.json")
	return NewJSONRecordsRepo(path, zap.NewNop()), path
}

func sampleRecord(sn string) domain.Record {
	return domain.Record{
		Date:     "2024-05-01",
		SN:       sn,
		Model:    "WYP-A",
		Voltage:  "24V",
		Operator: "张工",
		Problem:  "无输出 / no output",
		Note:     "客户加急 <urgent> & fragile",
		PowerTable: []domain.PowerRow{
			{Current: "10", PulseWidth: "5", Wavelength: "1064", Power: "3.1"},
			{Current: "12", Extra: map[string]string{"温度": "25℃"}},
		},
		OutputTable: []domain.OutputRow{{P355: "0.5", P532: "1.2", P1064: "3.0"}},
		ActionTable: []domain.ActionRow{{Action: "更换泵浦", Operator: "张工", Date: "2024-05-01"}},
	}
}

func TestJSONRecordsRepo_LoadMissingFileCreatesFolder(t *testing.T) {
	repo, path := newTestJSONRepo(t)

	records, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)

	info, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestJSONRecordsRepo_AppendRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo, path := newTestJSONRepo(t)

	saved, err := repo.Append(ctx, sampleRecord("激光-X100"))
	require.NoError(t, err)
	assert.Equal(t, 1, saved.ID)

	// 新实例从磁盘读取
	reopened := NewJSONRecordsRepo(path, zap.NewNop())
	records, err := reopened.Load(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, saved, records[0])

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "激光-X100", "non-ASCII stored verbatim")
	assert.Contains(t, string(raw), "<urgent> & fragile")
	assert.Contains(t, string(raw), "\n    {", "indented with four spaces")
}

func TestJSONRecordsRepo_EmptyPowerTableScenario(t *testing.T) {
	ctx := context.Background()
	repo, path := newTestJSONRepo(t)

	_, err := repo.Append(ctx, domain.Record{SN: "X100", Model: "WYP-A", PowerTable: []domain.PowerRow{}})
	require.NoError(t, err)

	records, err := NewJSONRecordsRepo(path, zap.NewNop()).Load(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "X100", records[0].SN)
	assert.NotNil(t, records[0].PowerTable)
	assert.Empty(t, records[0].PowerTable)
}

func TestJSONRecordsRepo_DeleteKeepsIDs(t *testing.T) {
	ctx := context.Background()
	repo, path := newTestJSONRepo(t)

	_, err := repo.Append(ctx, sampleRecord("A1"))
	require.NoError(t, err)
	_, err = repo.Append(ctx, sampleRecord("A2"))
	require.NoError(t, err)

	deleted, err := repo.Delete(ctx, 1)
	require.NoError(t, err)
	assert.True(t, deleted)

	records, err := NewJSONRecordsRepo(path, zap.NewNop()).Load(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 2, records[0].ID, "remaining record is not renumbered")
}

func TestJSONRecordsRepo_DeleteUnknownIsNoop(t *testing.T) {
	ctx := context.Background()
	repo, path := newTestJSONRepo(t)

	_, err := repo.Append(ctx, sampleRecord("A1"))
	require.NoError(t, err)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	deleted, err := repo.Delete(ctx, 42)
	require.NoError(t, err)
	assert.False(t, deleted)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestJSONRecordsRepo_IDsNeverReused(t *testing.T) {
	ctx := context.Background()
	repo, path := newTestJSONRepo(t)

	for _, sn := range []string{"A1", "A2", "A3"} {
		_, err := repo.Append(ctx, sampleRecord(sn))
		require.NoError(t, err)
	}
	_, err := repo.Delete(ctx, 3)
	require.NoError(t, err)

	// 重启后计数器仍然有效
	reopened := NewJSONRecordsRepo(path, zap.NewNop())
	rec, err := reopened.Append(ctx, sampleRecord("A4"))
	require.NoError(t, err)
	assert.Equal(t, 4, rec.ID)
}

func TestJSONRecordsRepo_LegacyFileWithoutCounter(t *testing.T) {
	ctx := context.Background()
	repo, path := newTestJSONRepo(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))

	legacy := `[
    {"id": 1, "date": "2024-01-02", "sn": "OLD-1", "model": "WYP-", "voltage": "24V", "operator": "Guest",
     "power_table": [{"电流 I [A]": "", "脉宽 [us]": "", "波长 λ": "", "功率 P [W]": ""}],
     "output_table": [{"355nm": "", "532nm": "", "1064nm": ""}],
     "action_table": [{"维修措施": "", "操作员": "Guest", "日期": "2024-01-02"}]},
    {"id": 5, "date": "2024-01-03", "sn": "OLD-5"}
]`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	rec, err := repo.Append(ctx, sampleRecord("NEW"))
	require.NoError(t, err)
	assert.Equal(t, 6, rec.ID)

	old, err := repo.Get(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "OLD-5", old.SN)
	assert.NotNil(t, old.ActionTable)
}

func TestJSONRecordsRepo_CorruptFileIsReported(t *testing.T) {
	ctx := context.Background()
	repo, path := newTestJSONRepo(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(`[{"id": 1, "sn": "trunc`), 0o644))

	_, err := repo.Load(ctx)
	assert.ErrorIs(t, err, ErrCorruptStore)

	err = repo.Open(ctx)
	assert.ErrorIs(t, err, ErrCorruptStore)

	// 写操作同样被拒绝，原文件不会被覆盖
	_, err = repo.Append(ctx, sampleRecord("X"))
	assert.ErrorIs(t, err, ErrCorruptStore)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `[{"id": 1, "sn": "trunc`, string(raw))
}

func TestJSONRecordsRepo_RecoverCorrupt(t *testing.T) {
	ctx := context.Background()
	repo, path := newTestJSONRepo(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(`not json`), 0o644))
	require.ErrorIs(t, repo.Open(ctx), ErrCorruptStore)

	backup, err := repo.RecoverCorrupt()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(backup), "laser_database.json.corrupt-"))

	raw, err := os.ReadFile(backup)
	require.NoError(t, err)
	assert.Equal(t, "not json", string(raw))

	require.NoError(t, repo.Open(ctx))
	all, err := repo.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestJSONRecordsRepo_ListNewestFirstWithSearch(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestJSONRepo(t)

	for _, sn := range []string{"X100", "Y200", "x100-b"} {
		_, err := repo.Append(ctx, sampleRecord(sn))
		require.NoError(t, err)
	}

	all, err := repo.List(ctx, RecordFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int{3, 2, 1}, []int{all[0].ID, all[1].ID, all[2].ID})

	hits, err := repo.List(ctx, RecordFilter{SN: "x100"})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "x100-b", hits[0].SN)
	assert.Equal(t, "X100", hits[1].SN)
}

func TestJSONRecordsRepo_GetNotFound(t *testing.T) {
	repo, _ := newTestJSONRepo(t)
	_, err := repo.Get(context.Background(), 9)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestJSONRecordsRepo_SaveReplacesCollection(t *testing.T) {
	ctx := context.Background()
	repo, path := newTestJSONRepo(t)

	a := sampleRecord("A")
	a.ID = 10
	require.NoError(t, repo.Save(ctx, []domain.Record{a}))

	var onDisk []map[string]any
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	require.Len(t, onDisk, 1)
	assert.EqualValues(t, 10, onDisk[0]["id"])

	next, err := repo.Append(ctx, sampleRecord("B"))
	require.NoError(t, err)
	assert.Equal(t, 11, next.ID)
}

func TestJSONRecordsRepo_ReturnedRecordsAreCopies(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestJSONRepo(t)

	saved, err := repo.Append(ctx, sampleRecord("A"))
	require.NoError(t, err)
	saved.PowerTable[0].Current = "mutated"

	got, err := repo.Get(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "10", got.PowerTable[0].Current)
}

func TestJSONRecordsRepo_SaveFailureKeepsMemoryClean(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	ctx := context.Background()
	repo, path := newTestJSONRepo(t)
	_, err := repo.Append(ctx, sampleRecord("A"))
	require.NoError(t, err)

	dir := filepath.Dir(path)
	require.NoError(t, os.Chmod(dir, 0o555))
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })

	_, err = repo.Append(ctx, sampleRecord("B"))
	require.Error(t, err)

	all, err := repo.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1, "failed save leaves no in-memory-only record")
}

func TestJSONRecordsRepo_SaveKeepsFileReadable(t *testing.T) {
	ctx := context.Background()
	repo, path := newTestJSONRepo(t)
	require.NoError(t, repo.Open(ctx))

	_, err := repo.Append(ctx, sampleRecord("X100"))
	require.NoError(t, err)
	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), fi.Mode().Perm())

	// 已有文件的权限保持不变
	require.NoError(t, os.Chmod(path, 0o664))
	_, err = repo.Append(ctx, sampleRecord("WYP-A"))
	require.NoError(t, err)
	fi, err = os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o664), fi.Mode().Perm())
}
