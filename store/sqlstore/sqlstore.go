// Package sqlstore persists auctions and bids with gorm on SQLite.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cloudx-io/openbid/core"
)

var openStates = []string{string(core.StateScheduled), string(core.StateActive), string(core.StateExtended)}

// Store implements the auction store and bid ledger contracts on a SQL database.
// A compare-and-swap runs in one transaction: the versioned row update and the
// bid writes commit or roll back together.
type Store struct {
	db  *gorm.DB
	log *logrus.Entry
}

// Open connects to the SQLite database at dsn and migrates the schema.
func Open(dsn string, log *logrus.Entry) (*Store, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("component", "store")

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.New(log, logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	// SQLite has a single writer; one connection also keeps :memory: databases shared.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&auctionRow{}, &bidRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	log.Infof("SQL store ready (dsn=%s)", dsn)
	return &Store{db: db, log: log}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Create(ctx context.Context, a *core.Auction) error {
	a.Version = 1
	if err := s.db.WithContext(ctx).Create(newAuctionRow(a)).Error; err != nil {
		a.Version = 0
		return fmt.Errorf("insert auction %s: %w", a.ID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*core.Auction, error) {
	var row auctionRow
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, core.Errorf(core.CodeNotFound, "auction %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load auction %s: %w", id, err)
	}
	return row.auction(), nil
}

// CompareAndSwap updates the auction row only where version = expectedVersion and
// applies writes in the same transaction. On success next.Version is bumped.
func (s *Store) CompareAndSwap(ctx context.Context, expectedVersion int64, next *core.Auction, writes core.BidWrites) error {
	row := newAuctionRow(next)
	row.Version = expectedVersion + 1

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&auctionRow{}).
			Where("id = ? AND version = ?", next.ID, expectedVersion).
			Select("*").Omit("id").
			Updates(row)
		if res.Error != nil {
			return fmt.Errorf("update auction %s: %w", next.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&auctionRow{}).Where("id = ?", next.ID).Count(&count).Error; err != nil {
				return fmt.Errorf("check auction %s: %w", next.ID, err)
			}
			if count == 0 {
				return core.Errorf(core.CodeNotFound, "auction %s not found", next.ID)
			}
			return core.ErrVersionConflict
		}

		if b := writes.Append; b != nil {
			if b.AuctionID != next.ID {
				return fmt.Errorf("bid %s belongs to auction %s, not %s", b.ID, b.AuctionID, next.ID)
			}
			if err := tx.Create(newBidRow(b)).Error; err != nil {
				return fmt.Errorf("insert bid %s: %w", b.ID, err)
			}
		}

		for _, u := range writes.Updates {
			cols := map[string]any{}
			if u.IsWinning != nil {
				cols["is_winning"] = *u.IsWinning
			}
			if u.IsRetracted != nil {
				cols["is_retracted"] = *u.IsRetracted
			}
			if len(cols) == 0 {
				continue
			}
			res := tx.Model(&bidRow{}).Where("id = ? AND auction_id = ?", u.BidID, next.ID).Updates(cols)
			if res.Error != nil {
				return fmt.Errorf("update bid %s: %w", u.BidID, res.Error)
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("bid %s not found", u.BidID)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	next.Version = row.Version
	return nil
}

func (s *Store) ListExpired(ctx context.Context, now time.Time, limit int) ([]string, error) {
	q := s.db.WithContext(ctx).Model(&auctionRow{}).
		Where("state IN ? AND end_time <= ?", openStates, now.UnixNano()).
		Order("end_time ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var ids []string
	if err := q.Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list expired auctions: %w", err)
	}
	return ids, nil
}

func (s *Store) GetBid(ctx context.Context, bidID string) (*core.Bid, error) {
	var row bidRow
	err := s.db.WithContext(ctx).Where("id = ?", bidID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, core.Errorf(core.CodeNotFound, "bid %s not found", bidID)
	}
	if err != nil {
		return nil, fmt.Errorf("load bid %s: %w", bidID, err)
	}
	b := row.bid()
	return &b, nil
}

func (s *Store) ListByAuction(ctx context.Context, auctionID string, excludeRetracted bool) ([]core.Bid, error) {
	q := s.db.WithContext(ctx).Where("auction_id = ?", auctionID)
	if excludeRetracted {
		q = q.Where("is_retracted = ?", false)
	}

	var rows []bidRow
	if err := q.Order("sequence ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list bids for auction %s: %w", auctionID, err)
	}

	bids := make([]core.Bid, len(rows))
	for i := range rows {
		bids[i] = rows[i].bid()
	}
	return bids, nil
}
