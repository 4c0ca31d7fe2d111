package service

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"laser-repair/internal/auth"
	"laser-repair/internal/domain"
	"laser-repair/internal/events"
	"laser-repair/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

var fixedNow = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

type recordingPublisher struct {
	mu      sync.Mutex
	events  []events.Event
	err     error
	release chan struct{} // 非 nil 时 Publish 阻塞到 close
}

func (p *recordingPublisher) Publish(ctx context.Context, ev events.Event) error {
	if p.release != nil {
		select {
		case <-p.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) snapshot() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.events...)
}

func newTestRecordService(t *testing.T) (*recordService, *repository.JSONRecordsRepo, *recordingPublisher) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Laser_App_Data", "laser_database.json")
	repo := repository.NewJSONRecordsRepo(path, zap.NewNop())
	require.NoError(t, repo.Open(context.Background()))

	pub := &recordingPublisher{}
	svc := NewRecordService(repo, pub, zap.NewNop()).(*recordService)
	svc.now = func() time.Time { return fixedNow }
	return svc, repo, pub
}

func adminCtx(t *testing.T) context.Context {
	t.Helper()
	cred, err := auth.NewCredential("admin", "", "admin")
	require.NoError(t, err)
	var g auth.Gate
	require.NoError(t, g.Login(cred, "admin", "admin"))
	return auth.WithGate(context.Background(), g)
}

func TestRecordService_CreateAssignsDateAndID(t *testing.T) {
	svc, _, pub := newTestRecordService(t)
	ctx := context.Background()

	rec := domain.NewDraft(fixedNow)
	rec.SN = "X100"
	rec.Date = "1999-01-01"
	rec.ID = 42

	saved, err := svc.Create(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, 1, saved.ID)
	assert.Equal(t, "2024-05-01", saved.Date)

	svc.Drain()
	got := pub.snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, events.TypeRecordCreated, got[0].Type)
	assert.Equal(t, "X100", got[0].SN)
}

func TestRecordService_EmptySerialNoWrite(t *testing.T) {
	svc, repo, pub := newTestRecordService(t)
	ctx := context.Background()

	for _, sn := range []string{"", "   "} {
		rec := domain.NewDraft(fixedNow)
		rec.SN = sn
		_, err := svc.Create(ctx, rec)
		assert.ErrorIs(t, err, domain.ErrSerialRequired)
	}

	_, err := os.Stat(repo.Path())
	assert.True(t, os.IsNotExist(err), "nothing persisted")
	svc.Drain()
	assert.Empty(t, pub.snapshot())
}

func TestRecordService_PublishFailureDoesNotFailCreate(t *testing.T) {
	svc, _, pub := newTestRecordService(t)
	pub.err = errors.New("broker down")

	saved, err := svc.Create(context.Background(), domain.Record{SN: "WYP-A"})
	require.NoError(t, err)
	assert.Equal(t, 1, saved.ID)
	svc.Drain()
}

func TestRecordService_SlowPublisherDoesNotBlockCreate(t *testing.T) {
	svc, _, pub := newTestRecordService(t)
	pub.release = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := svc.Create(ctx, domain.Record{SN: "X100"})
		assert.NoError(t, err)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Create waited for the event publisher")
	}
	// 请求结束后取消 context，不影响后台通知
	cancel()
	assert.Empty(t, pub.snapshot())

	close(pub.release)
	svc.Drain()
	got := pub.snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, "X100", got[0].SN)
}

func TestRecordService_ListSearch(t *testing.T) {
	svc, _, _ := newTestRecordService(t)
	ctx := context.Background()

	for _, sn := range []string{"X100", "WYP-A", "x1000"} {
		_, err := svc.Create(ctx, domain.Record{SN: sn})
		require.NoError(t, err)
	}

	all, err := svc.List(ctx, ListRecordsRequest{})
	require.NoError(t, err)
	assert.Equal(t, 3, all.Total)
	assert.Equal(t, 3, all.Items[0].ID, "newest first")

	res, err := svc.List(ctx, ListRecordsRequest{SN: " x100 "})
	require.NoError(t, err)
	require.Equal(t, 2, res.Total)
	assert.Equal(t, "x1000", res.Items[0].SN)
	assert.Equal(t, "X100", res.Items[1].SN)

	none, err := svc.List(ctx, ListRecordsRequest{SN: "zzz"})
	require.NoError(t, err)
	assert.NotNil(t, none.Items)
	assert.Equal(t, 0, none.Total)
}

func TestRecordService_DeleteRequiresAdmin(t *testing.T) {
	svc, _, pub := newTestRecordService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, domain.Record{SN: "X100"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, domain.Record{SN: "WYP-A"})
	require.NoError(t, err)

	_, err = svc.Delete(ctx, 1)
	assert.ErrorIs(t, err, auth.ErrAdminRequired)

	deleted, err := svc.Delete(adminCtx(t), 1)
	require.NoError(t, err)
	assert.True(t, deleted)

	list, err := svc.List(ctx, ListRecordsRequest{})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, 2, list.Items[0].ID)

	deleted, err = svc.Delete(adminCtx(t), 99)
	require.NoError(t, err)
	assert.False(t, deleted)

	svc.Drain()
	var deletedEvents []events.Event
	for _, ev := range pub.snapshot() {
		if ev.Type == events.TypeRecordDeleted {
			deletedEvents = append(deletedEvents, ev)
		}
	}
	require.Len(t, deletedEvents, 1)
	assert.Equal(t, 1, deletedEvents[0].RecordID)
	assert.Equal(t, "X100", deletedEvents[0].SN)
}

func TestRecordService_GetNotFound(t *testing.T) {
	svc, _, _ := newTestRecordService(t)
	_, err := svc.Get(context.Background(), 5)
	assert.ErrorIs(t, err, repository.ErrRecordNotFound)
}

type fakeRenderer struct {
	data map[string]string
	err  error
}

func (f *fakeRenderer) Render(_ string, data map[string]string) ([]byte, error) {
	f.data = data
	if f.err != nil {
		return nil, f.err
	}
	return []byte("docx-bytes"), nil
}

func writeFakeTemplate(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "template.docx")
	require.NoError(t, os.WriteFile(p, []byte("stub"), 0o644))
	return p
}

func TestReportService_Generate(t *testing.T) {
	records, _, _ := newTestRecordService(t)
	ctx := context.Background()

	rec := domain.Record{
		SN:         "X100",
		PowerTable: []domain.PowerRow{{Current: "10"}, {Current: "20"}},
	}
	_, err := records.Create(ctx, rec)
	require.NoError(t, err)

	r := &fakeRenderer{}
	svc := NewReportService(records, r, writeFakeTemplate(t), zap.NewNop())

	out, err := svc.Generate(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Report_X100.docx", out.Filename)
	assert.Equal(t, []byte("docx-bytes"), out.Data)
	assert.Equal(t, "X100", r.data["sn"])
	assert.Equal(t, "20", r.data["current_2"])

	_, err = svc.Generate(ctx, 9)
	assert.ErrorIs(t, err, repository.ErrRecordNotFound)
}

func TestReportService_MissingTemplate(t *testing.T) {
	records, _, _ := newTestRecordService(t)
	r := &fakeRenderer{}
	svc := NewReportService(records, r, filepath.Join(t.TempDir(), "missing.docx"), zap.NewNop())

	_, err := svc.Render(context.Background(), domain.Record{SN: "X100"})
	assert.ErrorIs(t, err, ErrReportNotAvailable)
	assert.Nil(t, r.data, "renderer not called")

	_, err = svc.ValidateTemplate(context.Background())
	assert.ErrorIs(t, err, ErrReportNotAvailable)
}

func TestReportService_RenderFailureCollapses(t *testing.T) {
	records, _, _ := newTestRecordService(t)
	svc := NewReportService(records, &fakeRenderer{err: errors.New("bad zip")}, writeFakeTemplate(t), zap.NewNop())

	_, err := svc.Render(context.Background(), domain.Record{SN: "X100"})
	assert.ErrorIs(t, err, ErrReportNotAvailable)
}

func TestReportFilename(t *testing.T) {
	assert.Equal(t, "Report_WYP-A.docx", ReportFilename("WYP-A"))
	assert.Equal(t, "Report_A_B_C.docx", ReportFilename(" A/B:C "))
}

func TestExportService_Export(t *testing.T) {
	records, _, _ := newTestRecordService(t)
	ctx := context.Background()

	_, err := records.Create(ctx, domain.Record{
		SN:          "X100",
		ObsCase:     "外壳划痕",
		TEC1Set:     "25",
		TEC2Peltier: "1.2",
		Problem:     "无输出",
		PowerTable:  []domain.PowerRow{{Current: "10", Power: "1.5"}, {Current: "20", Power: "3.1"}},
		OutputTable: []domain.OutputRow{{P355: "0.8", P1064: "4.0"}},
		ActionTable: []domain.ActionRow{{Action: "更换晶体", Operator: "张三", Date: "2024-05-01"}},
	})
	require.NoError(t, err)
	_, err = records.Create(ctx, domain.Record{SN: "WYP-A"})
	require.NoError(t, err)

	svc := NewExportService(records, zap.NewNop()).(*exportService)
	svc.now = func() time.Time { return fixedNow }

	out, err := svc.Export(ctx, ListRecordsRequest{})
	require.NoError(t, err)
	assert.Equal(t, "Repair_History_20240501.xlsx", out.Filename)
	assert.Equal(t, ExportContentType, out.ContentType)

	f, err := excelize.OpenReader(bytes.NewReader(out.Data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{recordsSheet, powerSheet, outputSheet, actionsSheet}, f.GetSheetList())

	rows, err := f.GetRows(recordsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, RecordsExportHeader, rows[0])
	assert.Equal(t, "2", rows[1][0], "newest first")
	assert.Equal(t, "X100", rows[2][2])
	assert.Equal(t, "外壳划痕", rows[2][6])
	assert.Equal(t, "25", rows[2][13])
	assert.Equal(t, "1.2", rows[2][18])
	assert.Equal(t, "无输出", rows[2][19])

	power, err := f.GetRows(powerSheet)
	require.NoError(t, err)
	require.Len(t, power, 3)
	assert.Equal(t, []string{"1", "X100", "2", "20", "", "", "3.1"}, power[2])

	output, err := f.GetRows(outputSheet)
	require.NoError(t, err)
	require.Len(t, output, 2)
	assert.Equal(t, OutputExportHeader, output[0])
	assert.Equal(t, []string{"1", "X100", "1", "0.8", "", "4.0"}, output[1])

	actions, err := f.GetRows(actionsSheet)
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, ActionsExportHeader, actions[0])
	assert.Equal(t, []string{"1", "X100", "1", "更换晶体", "张三", "2024-05-01"}, actions[1])
}
