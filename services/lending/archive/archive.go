// Package archive persists committed protocol events and idempotent HTTP
// responses in a relational database.
package archive

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"nexum/core/events"
	"nexum/crypto"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	defaultListLimit = 100
	maxListLimit     = 1000
)

// ErrUnknownDriver is returned by Open for unsupported database drivers.
var ErrUnknownDriver = errors.New("archive: unknown database driver")

// Config selects the backing database.
type Config struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// Store writes events and idempotency records through gorm.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	nextSeq uint64
}

// Open connects to the configured database and migrates the schema.
func Open(cfg Config, log *slog.Logger) (*Store, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case DriverPostgres:
		dialector = postgres.Open(cfg.DSN)
	case DriverSQLite, "":
		dsn := strings.TrimSpace(cfg.DSN)
		if dsn == "" {
			dsn = fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
		}
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open archive database: %w", err)
	}
	return New(db, log)
}

// New wraps an existing gorm handle and migrates the schema.
func New(db *gorm.DB, log *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("archive: database required")
	}
	if log == nil {
		log = slog.Default()
	}
	if err := db.AutoMigrate(&EventRecord{}, &IdempotencyKey{}); err != nil {
		return nil, fmt.Errorf("migrate archive: %w", err)
	}
	var last EventRecord
	var next uint64 = 1
	err := db.Order("sequence desc").Limit(1).Find(&last).Error
	if err != nil {
		return nil, fmt.Errorf("load archive sequence: %w", err)
	}
	if last.Sequence > 0 {
		next = last.Sequence + 1
	}
	return &Store{db: db, logger: log, now: time.Now, nextSeq: next}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Emit implements events.Emitter. Failures are logged since the protocol
// state has already been committed when events are flushed.
func (s *Store) Emit(e events.Event) {
	if s == nil || e == nil {
		return
	}
	if err := s.Record(context.Background(), e); err != nil {
		s.logger.Error("archive event failed", slog.String("type", e.EventType()), slog.Any("error", err))
	}
}

// Record persists a single event.
func (s *Store) Record(ctx context.Context, e events.Event) error {
	payload, err := json.Marshal(encodePayload(reflect.ValueOf(e)))
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	eventType := e.EventType()
	module, _, _ := strings.Cut(eventType, ".")

	s.mu.Lock()
	defer s.mu.Unlock()
	rec := EventRecord{
		ID:        uuid.New(),
		Sequence:  s.nextSeq,
		Module:    module,
		Type:      eventType,
		Payload:   string(payload),
		CreatedAt: s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	s.nextSeq++
	return nil
}

// Query filters archived events.
type Query struct {
	Type   string
	Module string
	// After returns only events with a greater sequence number.
	After uint64
	Limit int
}

// List returns archived events in commit order.
func (s *Store) List(ctx context.Context, q Query) ([]EventRecord, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	tx := s.db.WithContext(ctx).Where("sequence > ?", q.After)
	if t := strings.TrimSpace(q.Type); t != "" {
		tx = tx.Where("type = ?", t)
	}
	if m := strings.TrimSpace(q.Module); m != "" {
		tx = tx.Where("module = ?", m)
	}
	var out []EventRecord
	if err := tx.Order("sequence asc").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return out, nil
}

// LookupIdempotency returns the stored response for key, if any.
func (s *Store) LookupIdempotency(ctx context.Context, key string) (*IdempotencyKey, bool, error) {
	var record IdempotencyKey
	err := s.db.WithContext(ctx).First(&record, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lookup idempotency key: %w", err)
	}
	return &record, true, nil
}

// SaveIdempotency stores the response produced for a key.
func (s *Store) SaveIdempotency(ctx context.Context, record *IdempotencyKey) error {
	if record == nil {
		return nil
	}
	if record.RequestID == "" {
		record.RequestID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("save idempotency key: %w", err)
	}
	return nil
}

var (
	bigIntType  = reflect.TypeOf(big.Int{})
	addressType = reflect.TypeOf([crypto.AddressLength]byte{})
	hashType    = reflect.TypeOf([32]byte{})
)

// encodePayload renders an event as JSON friendly values: principals become
// bech32 strings, hashes hex and amounts decimal strings.
func encodePayload(v reflect.Value) any {
	if !v.IsValid() {
		return nil
	}
	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return encodePayload(v.Elem())
	case reflect.Pointer:
		if v.IsNil() {
			return nil
		}
		if v.Type().Elem() == bigIntType {
			return v.Interface().(*big.Int).String()
		}
		return encodePayload(v.Elem())
	case reflect.Struct:
		out := make(map[string]any, v.NumField())
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			field := t.Field(i)
			if !field.IsExported() {
				continue
			}
			out[lowerFirst(field.Name)] = encodePayload(v.Field(i))
		}
		return out
	case reflect.Array:
		switch v.Type() {
		case addressType:
			return crypto.FromRaw(v.Interface().([crypto.AddressLength]byte)).String()
		case hashType:
			raw := v.Interface().([32]byte)
			return "0x" + hex.EncodeToString(raw[:])
		}
		fallthrough
	case reflect.Slice:
		out := make([]any, v.Len())
		for i := range out {
			out[i] = encodePayload(v.Index(i))
		}
		return out
	default:
		return v.Interface()
	}
}

func lowerFirst(name string) string {
	if name == "" {
		return name
	}
	if name == "ID" {
		return "id"
	}
	return strings.ToLower(name[:1]) + name[1:]
}
