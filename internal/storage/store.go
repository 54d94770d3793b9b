package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Record 为一条文档记录，字段名即 JSON 键。
type Record = map[string]any

var (
	// ErrNotFound 表示键不存在。
	ErrNotFound = errors.New("record not found")
	// ErrConditionFailed 表示条件写入的条件不满足。
	ErrConditionFailed = errors.New("conditional check failed")
	// ErrAlreadyExists 表示 PutIfAbsent 的键已存在。
	ErrAlreadyExists = errors.New("record already exists")
	// ErrConcurrentUpdate 表示多次比较交换后仍被并发修改。
	ErrConcurrentUpdate = errors.New("record modified concurrently")
)

const maxCASAttempts = 5

// Config 描述底层数据库。
type Config struct {
	Driver string `yaml:"driver" json:"driver"`
	Path   string `yaml:"path" json:"path"`
	DSN    string `yaml:"dsn" json:"dsn"`
}

// Document 为所有集合共用的文档表，(collection, doc_key) 唯一。
type Document struct {
	ID         uint              `gorm:"primaryKey"`
	Collection string            `gorm:"size:128;not null;uniqueIndex:idx_collection_key"`
	Key        string            `gorm:"column:doc_key;size:255;not null;uniqueIndex:idx_collection_key"`
	Data       datatypes.JSONMap `gorm:"not null"`
	Version    int64             `gorm:"not null;default:1"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Condition 为字段等值条件，既用于扫描过滤也用于条件写入。
type Condition struct {
	Field string
	Value any
}

// Eq 构造等值条件。
func Eq(field string, value any) Condition {
	return Condition{Field: field, Value: value}
}

// Matches 判断记录是否满足条件，缺失字段只匹配 nil。
func (c Condition) Matches(rec Record) bool {
	v, ok := rec[c.Field]
	if !ok || v == nil {
		return c.Value == nil
	}
	if c.Value == nil {
		return false
	}
	return fmt.Sprint(v) == fmt.Sprint(c.Value)
}

// Index 描述二级索引：索引名与被索引字段。
type Index struct {
	Name  string
	Field string
}

// Store 封装文档存储，提供 get/put/scan/query/条件更新。
type Store struct {
	db *gorm.DB
}

// NewStore 以 SQLite 文件创建 Store。
func NewStore(dbPath string) (*Store, error) {
	return Open(Config{Driver: "sqlite", Path: dbPath})
}

// Open 按配置打开数据库并自动迁移文档表。
func Open(cfg Config) (*Store, error) {
	var dialector gorm.Dialector
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "sqlite":
		dbPath := cfg.Path
		if dbPath == "" {
			dbPath = "jobboard.db"
		}
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
		dialector = sqlite.Open(dbPath)
	case "postgres":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres dsn required")
		}
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialector.Name(), err)
	}

	if dialector.Name() == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("get sql DB: %w", err)
		}
		// SQLite 单写者，串行化连接避免 database is locked。
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&Document{}); err != nil {
		return nil, fmt.Errorf("auto migrate documents: %w", err)
	}

	return &Store{db: db}, nil
}

// Close 关闭底层数据库连接。
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}
	return nil
}

// Get 按键读取记录，不存在返回 ErrNotFound。
func (s *Store) Get(ctx context.Context, collection, key string) (Record, error) {
	doc, err := s.load(ctx, collection, key)
	if err != nil {
		return nil, err
	}
	return cloneRecord(doc.Data), nil
}

// Put 无条件写入（存在则覆盖）。
func (s *Store) Put(ctx context.Context, collection, key string, rec Record) error {
	data, err := normalize(rec)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, key, err)
	}
	doc := Document{Collection: collection, Key: key, Data: datatypes.JSONMap(data), Version: 1}
	tx := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "collection"}, {Name: "doc_key"}},
		DoUpdates: clause.Assignments(map[string]any{
			"data":       gorm.Expr("excluded.data"),
			"updated_at": gorm.Expr("excluded.updated_at"),
			"version":    gorm.Expr("documents.version + 1"),
		}),
	}).Create(&doc)
	if tx.Error != nil {
		return fmt.Errorf("put %s/%s: %w", collection, key, tx.Error)
	}
	return nil
}

// PutIfAbsent 仅在键不存在时写入，存在返回 ErrAlreadyExists。
func (s *Store) PutIfAbsent(ctx context.Context, collection, key string, rec Record) error {
	data, err := normalize(rec)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, key, err)
	}
	doc := Document{Collection: collection, Key: key, Data: datatypes.JSONMap(data), Version: 1}
	tx := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "collection"}, {Name: "doc_key"}},
		DoNothing: true,
	}).Create(&doc)
	if tx.Error != nil {
		return fmt.Errorf("put if absent %s/%s: %w", collection, key, tx.Error)
	}
	if tx.RowsAffected == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// Delete 删除记录，键不存在时不报错。
func (s *Store) Delete(ctx context.Context, collection, key string) error {
	tx := s.db.WithContext(ctx).Where("collection = ? AND doc_key = ?", collection, key).Delete(&Document{})
	if tx.Error != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, key, tx.Error)
	}
	return nil
}

// Scan 返回集合内满足全部等值条件的记录，按写入顺序。
func (s *Store) Scan(ctx context.Context, collection string, filters ...Condition) ([]Record, error) {
	query := s.db.WithContext(ctx).Model(&Document{}).Where("collection = ?", collection)
	for _, f := range filters {
		query = query.Where(datatypes.JSONQuery("data").Equals(f.Value, f.Field))
	}
	var docs []Document
	if err := query.Order("id ASC").Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("scan %s: %w", collection, err)
	}
	return records(docs), nil
}

var fieldName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ScanFields 同 Scan，但只在数据库侧取出指定的顶层字段，值为空的字段不出现在结果中。
func (s *Store) ScanFields(ctx context.Context, collection string, fields []string, filters ...Condition) ([]Record, error) {
	expr, err := s.projection(fields)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", collection, err)
	}
	query := s.db.WithContext(ctx).Model(&Document{}).Where("collection = ?", collection)
	for _, f := range filters {
		query = query.Where(datatypes.JSONQuery("data").Equals(f.Value, f.Field))
	}
	var rows []string
	if err := query.Order("id ASC").Pluck(expr, &rows).Error; err != nil {
		return nil, fmt.Errorf("scan %s: %w", collection, err)
	}

	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		var rec Record
		if err := json.Unmarshal([]byte(row), &rec); err != nil {
			return nil, fmt.Errorf("scan %s: decode projection: %w", collection, err)
		}
		for k, v := range rec {
			if v == nil {
				delete(rec, k)
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

// projection 生成按方言构造 JSON 对象的查询表达式，字段名须为标识符。
func (s *Store) projection(fields []string) (string, error) {
	if len(fields) == 0 {
		return "", errors.New("no fields to project")
	}
	dialect := s.db.Dialector.Name()
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if !fieldName.MatchString(f) {
			return "", fmt.Errorf("invalid field name %q", f)
		}
		switch dialect {
		case "sqlite":
			parts = append(parts, fmt.Sprintf("'%s', json_extract(data, '$.%s')", f, f))
		case "postgres":
			parts = append(parts, fmt.Sprintf("'%s', data->'%s'", f, f))
		default:
			return "", fmt.Errorf("projection unsupported for %s", dialect)
		}
	}
	if dialect == "postgres" {
		return "json_build_object(" + strings.Join(parts, ", ") + ")", nil
	}
	return "json_object(" + strings.Join(parts, ", ") + ")", nil
}

// FindOne 返回首条满足条件的记录，没有则 ErrNotFound。
func (s *Store) FindOne(ctx context.Context, collection string, filters ...Condition) (Record, error) {
	recs, err := s.Scan(ctx, collection, filters...)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return recs[0], nil
}

// Query 按二级索引字段取值检索，最新写入在前。
func (s *Store) Query(ctx context.Context, collection string, idx Index, value any) ([]Record, error) {
	if idx.Field == "" {
		return nil, fmt.Errorf("query %s: index %q has no field", collection, idx.Name)
	}
	var docs []Document
	err := s.db.WithContext(ctx).Model(&Document{}).
		Where("collection = ?", collection).
		Where(datatypes.JSONQuery("data").Equals(value, idx.Field)).
		Order("id DESC").
		Find(&docs).Error
	if err != nil {
		return nil, fmt.Errorf("query %s by %s: %w", collection, idx.Name, err)
	}
	return records(docs), nil
}

// UpdateFields 合并字段并返回更新后的完整记录。
// 条件在存储的当前版本上判定，写入以 version 比较交换；
// 条件不满足立即返回 ErrConditionFailed，只有版本冲突才重读重试。
func (s *Store) UpdateFields(ctx context.Context, collection, key string, fields Record, conds ...Condition) (Record, error) {
	patch, err := normalize(fields)
	if err != nil {
		return nil, fmt.Errorf("encode %s/%s: %w", collection, key, err)
	}

	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		doc, err := s.load(ctx, collection, key)
		if err != nil {
			return nil, err
		}
		for _, c := range conds {
			if !c.Matches(doc.Data) {
				return nil, ErrConditionFailed
			}
		}

		merged := cloneRecord(doc.Data)
		for k, v := range patch {
			merged[k] = v
		}

		tx := s.db.WithContext(ctx).Model(&Document{}).
			Where("id = ? AND version = ?", doc.ID, doc.Version).
			Updates(map[string]any{
				"data":       datatypes.JSONMap(merged),
				"version":    doc.Version + 1,
				"updated_at": time.Now(),
			})
		if tx.Error != nil {
			return nil, fmt.Errorf("update %s/%s: %w", collection, key, tx.Error)
		}
		if tx.RowsAffected == 1 {
			return merged, nil
		}
	}
	return nil, ErrConcurrentUpdate
}

func (s *Store) load(ctx context.Context, collection, key string) (*Document, error) {
	var doc Document
	err := s.db.WithContext(ctx).Where("collection = ? AND doc_key = ?", collection, key).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, key, err)
	}
	return &doc, nil
}

func records(docs []Document) []Record {
	out := make([]Record, 0, len(docs))
	for _, d := range docs {
		out = append(out, cloneRecord(d.Data))
	}
	return out
}

func cloneRecord(m map[string]any) Record {
	out := make(Record, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// normalize 经 JSON 往返，使写入与读出的值形态一致（数字为 float64，时间为字符串）。
func normalize(rec Record) (Record, error) {
	if rec == nil {
		return Record{}, nil
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	out := Record{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Encode 将结构体编码为记录。
func Encode(v any) (Record, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	out := Record{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return out, nil
}

// Decode 将记录解码到结构体。
func Decode(rec Record, v any) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	return nil
}

