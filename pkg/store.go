package pkg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const defaultBatchSize = 100

var ErrUnknownDriver = errors.New("unknown database driver")

// Store is an append-only history of percentage batches.
type Store interface {
	AppendBatch(ctx context.Context, dataset VaccinationDataset, capturedAt time.Time) ([]PersistedRow, error)
	LatestBatch(ctx context.Context) ([]PersistedRow, error)
	History(ctx context.Context, isoCode string) ([]PersistedRow, error)
	Close() error
}

// StampDataset gives every row of the dataset the same capture time.
func StampDataset(dataset VaccinationDataset, capturedAt time.Time) []PersistedRow {
	date := capturedAt.UTC().Truncate(time.Microsecond)
	rows := make([]PersistedRow, 0, dataset.Len())
	for _, row := range dataset.Rows {
		rows = append(rows, PersistedRow{
			ISOCode:         row.ISOCode,
			Date:            date,
			Vaccinated:      row.Vaccinated,
			FullyVaccinated: row.FullyVaccinated,
		})
	}
	return rows
}

type SQLStore struct {
	db        *gorm.DB
	logger    *zerolog.Logger
	batchSize int
}

func OpenSQLStore(driver, dsn string, logger *zerolog.Logger) (*SQLStore, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: NewGormLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed opening %s database: %w", driver, err)
	}
	store := NewSQLStore(db, logger)
	if err := store.Migrate(); err != nil {
		return nil, err
	}
	logger.Info().Str("driver", driver).Msg("Connected to percentages database")
	return store, nil
}

func NewSQLStore(db *gorm.DB, logger *zerolog.Logger) *SQLStore {
	return &SQLStore{db: db, logger: logger, batchSize: defaultBatchSize}
}

// Migrate creates the percentages table when it does not exist yet.
func (s *SQLStore) Migrate() error {
	if err := s.db.AutoMigrate(&PersistedRow{}); err != nil {
		return fmt.Errorf("failed creating percentages table: %w", err)
	}
	return nil
}

// AppendBatch writes the whole dataset in one transaction. Nothing is written when
// any insert fails.
func (s *SQLStore) AppendBatch(
	ctx context.Context,
	dataset VaccinationDataset,
	capturedAt time.Time,
) ([]PersistedRow, error) {
	rows := StampDataset(dataset, capturedAt)
	if len(rows) == 0 {
		return rows, nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(&rows, s.batchSize).Error
	})
	if err != nil {
		s.logger.Err(err).Int("rows", len(rows)).Msg("Failed to append percentages batch")
		return nil, fmt.Errorf("failed appending percentages batch: %w", err)
	}
	s.logger.Info().Int("rows", len(rows)).Time("date", rows[0].Date).Msg("Appended percentages batch")
	return rows, nil
}

func (s *SQLStore) LatestBatch(ctx context.Context) (rows []PersistedRow, err error) {
	latest := s.db.Model(&PersistedRow{}).Select("MAX(date)")
	err = s.db.WithContext(ctx).
		Where("date = ?", latest).
		Order("iso_code").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed reading latest batch: %w", err)
	}
	return rows, nil
}

func (s *SQLStore) History(ctx context.Context, isoCode string) (rows []PersistedRow, err error) {
	err = s.db.WithContext(ctx).
		Where("iso_code = ?", isoCode).
		Order("date").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed reading history of %s: %w", isoCode, err)
	}
	return rows, nil
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type gormLogger struct {
	logger        *zerolog.Logger
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

// NewGormLogger routes gorm's logging to zerolog.
func NewGormLogger(logger *zerolog.Logger) gormlogger.Interface {
	return &gormLogger{logger: logger, level: gormlogger.Warn, slowThreshold: time.Second}
}

func (l *gormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *gormLogger) Info(_ context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Info {
		l.logger.Info().Msgf(msg, data...)
	}
}

func (l *gormLogger) Warn(_ context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Warn {
		l.logger.Warn().Msgf(msg, data...)
	}
}

func (l *gormLogger) Error(_ context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Error {
		l.logger.Error().Msgf(msg, data...)
	}
}

func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && l.level >= gormlogger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		query, affected := fc()
		l.logger.Err(err).Str("sql", query).Int64("rows", affected).Dur("elapsed", elapsed).Msg("Query failed")
	case elapsed > l.slowThreshold && l.level >= gormlogger.Warn:
		query, affected := fc()
		l.logger.Warn().Str("sql", query).Int64("rows", affected).Dur("elapsed", elapsed).Msg("Slow query")
	case l.level >= gormlogger.Info:
		query, affected := fc()
		l.logger.Debug().Str("sql", query).Int64("rows", affected).Dur("elapsed", elapsed).Msg("Query")
	}
}
