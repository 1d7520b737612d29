package sqlstore

import (
	"context"
	"encoding"
	"fmt"
	"reflect"
	"time"

	"github.com/lamassuiot/rpki-core/core/pkg/engines/storage"
	"github.com/lamassuiot/rpki-core/core/pkg/helpers"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

const defaultPageSize = 15

func init() {
	schema.RegisterSerializer("text", TextSerializer{})
}

type txKey struct{}

func withTx(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

func txFromContext(ctx context.Context) (*gorm.DB, bool) {
	tx, ok := ctx.Value(txKey{}).(*gorm.DB)
	return tx, ok && tx != nil
}

// conn returns the transaction carried by ctx, or a fresh session on db.
func conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := txFromContext(ctx); ok {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}

// TextSerializer stores values through their encoding.TextMarshaler form.
type TextSerializer struct{}

func (TextSerializer) Scan(ctx context.Context, field *schema.Field, dst reflect.Value, dbValue interface{}) (err error) {
	fieldValue := reflect.New(field.FieldType).Interface()

	unmarshaler, ok := fieldValue.(encoding.TextUnmarshaler)
	if !ok {
		return fmt.Errorf("field type does not implement encoding.TextUnmarshaler")
	}

	var textData []byte
	switch v := dbValue.(type) {
	case nil:
		return nil
	case string:
		textData = []byte(v)
	case []byte:
		textData = v
	default:
		return fmt.Errorf("unsupported dbValue type: %T", dbValue)
	}

	if err := unmarshaler.UnmarshalText(textData); err != nil {
		return fmt.Errorf("failed to unmarshal text: %w", err)
	}

	field.ReflectValueOf(ctx, dst).Set(reflect.ValueOf(fieldValue).Elem())
	return nil
}

func (TextSerializer) Value(ctx context.Context, field *schema.Field, dst reflect.Value, fieldValue interface{}) (interface{}, error) {
	if marshaler, ok := fieldValue.(encoding.TextMarshaler); ok {
		text, err := marshaler.MarshalText()
		if err != nil {
			return nil, fmt.Errorf("failed to marshal text: %w", err)
		}
		return string(text), nil
	}

	return nil, fmt.Errorf("fieldValue does not implement encoding.TextMarshaler")
}

type gormExtraOps struct {
	query           interface{}
	additionalWhere []interface{}
}

func applyExtraOpts(tx *gorm.DB, extraOpts []gormExtraOps) *gorm.DB {
	for _, whereQuery := range extraOpts {
		tx = tx.Where(whereQuery.query, whereQuery.additionalWhere...)
	}
	return tx
}

type gormQuerier[E any] struct {
	db               *gorm.DB
	tableName        string
	primaryKeyColumn string
	rowLocks         bool
}

func newGormQuerier[E any](db *gorm.DB, tableName string, primaryKeyColumn string) *gormQuerier[E] {
	return &gormQuerier[E]{
		db:               db,
		tableName:        tableName,
		primaryKeyColumn: primaryKeyColumn,
		rowLocks:         db.Dialector.Name() == "postgres",
	}
}

func (q *gormQuerier[E]) table(ctx context.Context) *gorm.DB {
	return conn(ctx, q.db).Table(q.tableName)
}

func (q *gormQuerier[E]) Count(ctx context.Context, extraOpts []gormExtraOps) (int, error) {
	var count int64
	tx := applyExtraOpts(q.table(ctx), extraOpts).Count(&count)
	if err := tx.Error; err != nil {
		return -1, err
	}

	return int(count), nil
}

func (q *gormQuerier[E]) SelectAll(ctx context.Context, extraOpts []gormExtraOps, req storage.StorageListRequest[E]) error {
	limit := defaultPageSize
	if req.PageSize > 0 {
		limit = req.PageSize
	}

	var elems []E
	tx := applyExtraOpts(q.table(ctx), extraOpts)

	if req.ExhaustiveRun {
		res := tx.FindInBatches(&elems, limit, func(tx *gorm.DB, batch int) error {
			for _, elem := range elems {
				req.ApplyFunc(elem)
			}
			return nil
		})
		return res.Error
	}

	rs := tx.Order(q.primaryKeyColumn + " ASC").Limit(limit).Find(&elems)
	if rs.Error != nil {
		return rs.Error
	}

	for _, elem := range elems {
		req.ApplyFunc(elem)
	}

	return nil
}

// SelectWhere returns every row matching extraOpts, ordered by orderBy or by
// the primary key when orderBy is empty.
func (q *gormQuerier[E]) SelectWhere(ctx context.Context, extraOpts []gormExtraOps, orderBy string) ([]E, error) {
	if orderBy == "" {
		orderBy = q.primaryKeyColumn + " ASC"
	}

	elems := []E{}
	tx := applyExtraOpts(q.table(ctx), extraOpts).Order(orderBy).Find(&elems)
	if tx.Error != nil {
		return nil, tx.Error
	}

	return elems, nil
}

func (q *gormQuerier[E]) SelectFirst(ctx context.Context, extraOpts []gormExtraOps, orderBy string) (bool, *E, error) {
	if orderBy == "" {
		orderBy = q.primaryKeyColumn + " ASC"
	}

	var elem E
	tx := applyExtraOpts(q.table(ctx), extraOpts).Order(orderBy).Limit(1).Find(&elem)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	if tx.RowsAffected == 0 {
		return false, nil, nil
	}

	return true, &elem, nil
}

func (q *gormQuerier[E]) SelectExists(ctx context.Context, id uint) (bool, *E, error) {
	return q.SelectFirst(ctx, []gormExtraOps{
		{query: q.primaryKeyColumn + " = ?", additionalWhere: []any{id}},
	}, "")
}

// SelectForUpdate reads a row and locks it until the surrounding transaction
// ends. Engines without row locks fall back to a plain read.
func (q *gormQuerier[E]) SelectForUpdate(ctx context.Context, id uint) (bool, *E, error) {
	tx := q.table(ctx)
	if q.rowLocks {
		tx = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var elem E
	tx = tx.Where(q.primaryKeyColumn+" = ?", id).Limit(1).Find(&elem)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	if tx.RowsAffected == 0 {
		return false, nil, nil
	}

	return true, &elem, nil
}

func (q *gormQuerier[E]) Insert(ctx context.Context, elem *E) (*E, error) {
	tx := q.table(ctx).Create(elem)
	if err := tx.Error; err != nil {
		return nil, err
	}

	helpers.MarkChanged(ctx)
	return elem, nil
}

func (q *gormQuerier[E]) Update(ctx context.Context, elem *E) (*E, error) {
	tx := q.table(ctx).Save(elem)
	if err := tx.Error; err != nil {
		return nil, err
	}

	if tx.RowsAffected != 1 {
		return nil, gorm.ErrRecordNotFound
	}

	helpers.MarkChanged(ctx)
	return elem, nil
}

func (q *gormQuerier[E]) Delete(ctx context.Context, id uint) error {
	tx := q.table(ctx).Where(q.primaryKeyColumn+" = ?", id).Delete(new(E))
	if err := tx.Error; err != nil {
		return err
	}

	if tx.RowsAffected != 1 {
		return gorm.ErrRecordNotFound
	}

	helpers.MarkChanged(ctx)
	return nil
}

// DeleteWhere removes every matching row. Deleting nothing is not an error.
func (q *gormQuerier[E]) DeleteWhere(ctx context.Context, extraOpts []gormExtraOps) error {
	if len(extraOpts) == 0 {
		return fmt.Errorf("refusing to delete every row of %s", q.tableName)
	}

	tx := applyExtraOpts(q.table(ctx), extraOpts).Delete(new(E))
	if err := tx.Error; err != nil {
		return err
	}

	if tx.RowsAffected > 0 {
		helpers.MarkChanged(ctx)
	}
	return nil
}

// UpdateColumnWhere sets one column on every matching row.
func (q *gormQuerier[E]) UpdateColumnWhere(ctx context.Context, extraOpts []gormExtraOps, column string, value any) error {
	tx := applyExtraOpts(q.table(ctx), extraOpts).Update(column, value)
	if err := tx.Error; err != nil {
		return err
	}

	if tx.RowsAffected > 0 {
		helpers.MarkChanged(ctx)
	}
	return nil
}

func NewGormLogger(logger *logrus.Entry) *GormLogger {
	return &GormLogger{
		logger: logger,
	}
}

// GormLogger forwards gorm logs to logrus.
type GormLogger struct {
	logger *logrus.Entry
}

func (l *GormLogger) LogMode(lvl gormlogger.LogLevel) gormlogger.Interface {
	newlogger := *l
	return &newlogger
}

func (l *GormLogger) Info(ctx context.Context, str string, rest ...interface{}) {
	le := helpers.ConfigureLogger(ctx, l.logger)
	le.Infof(str, rest...)
}

func (l *GormLogger) Warn(ctx context.Context, str string, rest ...interface{}) {
	le := helpers.ConfigureLogger(ctx, l.logger)
	le.Warnf(str, rest...)
}

func (l *GormLogger) Error(ctx context.Context, str string, rest ...interface{}) {
	le := helpers.ConfigureLogger(ctx, l.logger)
	le.Errorf(str, rest...)
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	le := helpers.ConfigureLogger(ctx, l.logger)
	sql, rows := fc()
	if err != nil {
		le.Errorf("Took: %s, Err:%s, SQL: %s, AffectedRows: %d", time.Since(begin).String(), err, sql, rows)
	} else {
		le.Tracef("Took: %s, SQL: %s, AffectedRows: %d", time.Since(begin).String(), sql, rows)
	}
}
