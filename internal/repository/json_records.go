package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"laser-repair/internal/domain"

	"go.uber.org/zap"
)

// JSONRecordsRepo 单文件 JSON 存储
// 整个集合保存在一个 JSON 数组里，每次变更整体重写（先写临时文件再 rename）。
// 同一进程内所有写操作串行；多个进程共用同一文件仍会互相覆盖。
type JSONRecordsRepo struct {
	path     string
	metaPath string
	logger   *zap.Logger

	mu      sync.Mutex
	loaded  bool
	records []domain.Record
	nextID  int
}

// storeMeta id 计数器，与数据文件放在同一目录
type storeMeta struct {
	NextID int `json:"next_id"`
}

func NewJSONRecordsRepo(path string, logger *zap.Logger) *JSONRecordsRepo {
	if logger == nil {
		logger = zap.NewNop()
	}
	ext := filepath.Ext(path)
	return &JSONRecordsRepo{
		path:     path,
		metaPath: strings.TrimSuffix(path, ext) + ".meta.json",
		logger:   logger,
	}
}

// Path 数据文件路径
func (r *JSONRecordsRepo) Path() string { return r.path }

// Open 加载数据文件到内存，启动时调用
func (r *JSONRecordsRepo) Open(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.openLocked(ctx)
}

func (r *JSONRecordsRepo) openLocked(ctx context.Context) error {
	if r.loaded {
		return nil
	}
	records, err := r.Load(ctx)
	if err != nil {
		return err
	}
	r.records = records
	r.nextID = nextIDFor(records, r.loadMeta().NextID)
	r.loaded = true
	r.logger.Info("record store loaded",
		zap.String("path", r.path),
		zap.Int("records", len(records)),
		zap.Int("next_id", r.nextID),
	)
	return nil
}

// Load 读取数据文件
// 文件不存在 -> 空集合；目录不存在时自动创建；文件损坏 -> ErrCorruptStore
func (r *JSONRecordsRepo) Load(_ context.Context) ([]domain.Record, error) {
	if err := r.ensureDir(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []domain.Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", r.path, err)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return []domain.Record{}, nil
	}

	var records []domain.Record
	if err := json.Unmarshal(b, &records); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptStore, r.path, err)
	}
	if records == nil {
		records = []domain.Record{}
	}
	for i := range records {
		records[i].Normalize()
	}
	return records, nil
}

// Save 整体写入全部工单，并作为新的内存集合
func (r *JSONRecordsRepo) Save(ctx context.Context, all []domain.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	records := make([]domain.Record, len(all))
	for i, rec := range all {
		records[i] = rec.Clone()
		records[i].Normalize()
	}
	next := nextIDFor(records, r.nextID)
	if err := r.persist(records, next); err != nil {
		return err
	}
	r.records = records
	r.nextID = next
	r.loaded = true
	return nil
}

// RecoverCorrupt 将损坏的数据文件改名备份，之后以空集合启动
func (r *JSONRecordsRepo) RecoverCorrupt() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	backup := fmt.Sprintf("%s.corrupt-%d", r.path, time.Now().Unix())
	if err := os.Rename(r.path, backup); err != nil {
		return "", fmt.Errorf("backup corrupt store: %w", err)
	}
	r.loaded = false
	r.records = nil
	r.logger.Warn("corrupt record store moved aside",
		zap.String("path", r.path),
		zap.String("backup", backup),
	)
	return backup, nil
}

func (r *JSONRecordsRepo) All(ctx context.Context) ([]domain.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.openLocked(ctx); err != nil {
		return nil, err
	}

	out := make([]domain.Record, len(r.records))
	for i, rec := range r.records {
		out[i] = rec.Clone()
	}
	return out, nil
}

func (r *JSONRecordsRepo) List(ctx context.Context, filter RecordFilter) ([]domain.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.openLocked(ctx); err != nil {
		return nil, err
	}

	out := []domain.Record{}
	for i := len(r.records) - 1; i >= 0; i-- {
		if r.records[i].MatchesSerial(filter.SN) {
			out = append(out, r.records[i].Clone())
		}
	}
	return out, nil
}

func (r *JSONRecordsRepo) Get(ctx context.Context, id int) (*domain.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.openLocked(ctx); err != nil {
		return nil, err
	}

	for _, rec := range r.records {
		if rec.ID == id {
			c := rec.Clone()
			return &c, nil
		}
	}
	return nil, ErrRecordNotFound
}

func (r *JSONRecordsRepo) Append(ctx context.Context, rec domain.Record) (domain.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.openLocked(ctx); err != nil {
		return domain.Record{}, err
	}

	rec = rec.Clone()
	rec.Normalize()
	rec.ID = r.nextID

	records := make([]domain.Record, 0, len(r.records)+1)
	records = append(records, r.records...)
	records = append(records, rec)
	if err := r.persist(records, r.nextID+1); err != nil {
		return domain.Record{}, err
	}
	r.records = records
	r.nextID++
	return rec.Clone(), nil
}

func (r *JSONRecordsRepo) Delete(ctx context.Context, id int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.openLocked(ctx); err != nil {
		return false, err
	}

	idx := -1
	for i, rec := range r.records {
		if rec.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, nil
	}

	records := make([]domain.Record, 0, len(r.records)-1)
	records = append(records, r.records[:idx]...)
	records = append(records, r.records[idx+1:]...)
	if err := r.persist(records, r.nextID); err != nil {
		return false, err
	}
	r.records = records
	return true, nil
}

// persist 先写计数器再写数据：数据写失败时最多跳过一个 id，不会重复分配
func (r *JSONRecordsRepo) persist(records []domain.Record, nextID int) error {
	if err := r.ensureDir(); err != nil {
		return err
	}
	meta, err := encodeIndented(storeMeta{NextID: nextID})
	if err != nil {
		return err
	}
	if err := writeFileAtomic(r.metaPath, meta); err != nil {
		return err
	}
	data, err := encodeIndented(records)
	if err != nil {
		return err
	}
	return writeFileAtomic(r.path, data)
}

func (r *JSONRecordsRepo) loadMeta() storeMeta {
	var m storeMeta
	b, err := os.ReadFile(r.metaPath)
	if err != nil {
		return m
	}
	if err := json.Unmarshal(b, &m); err != nil {
		r.logger.Warn("ignoring unreadable id counter", zap.String("path", r.metaPath), zap.Error(err))
		return storeMeta{}
	}
	return m
}

func (r *JSONRecordsRepo) ensureDir() error {
	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data folder %s: %w", dir, err)
	}
	return nil
}

// nextIDFor 计数器只增不减：取 持久化计数器 与 max(id)+1 的较大值
func nextIDFor(records []domain.Record, persisted int) int {
	next := persisted
	if next < 1 {
		next = 1
	}
	for _, rec := range records {
		if rec.ID >= next {
			next = rec.ID + 1
		}
	}
	return next
}

// encodeIndented 4 空格缩进，中文等非 ASCII 字符原样输出
func encodeIndented(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode records: %w", err)
	}
	return buf.Bytes(), nil
}

// writeFileAtomic 写临时文件 -> fsync -> rename；权限沿用原文件，新文件为 0644
func writeFileAtomic(path string, data []byte) error {
	mode := os.FileMode(0o644)
	if fi, err := os.Stat(path); err == nil {
		mode = fi.Mode().Perm()
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
