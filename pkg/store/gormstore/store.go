// Package gormstore implements store.Store on a SQL database through gorm.
// Postgres is the production driver; SQLite serves local runs and tests.
package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/partnerforge/progression/pkg/model"
	"github.com/partnerforge/progression/pkg/store"
)

// Store implements store.Store using gorm.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// New creates a SQL-backed progression store. The schema must already be migrated.
func New(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

var _ store.Store = (*Store)(nil)

func (s *Store) CreateAccount(ctx context.Context, acc *model.Account) error {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(toAccountRow(acc))
	if res.Error != nil {
		logrus.Errorf("failed to create account %s: %v", acc.ID, res.Error)
		return store.Wrap("create account", res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrAccountExists
	}
	logrus.Infof("created account %s", acc.ID)
	return nil
}

func (s *Store) GetAccount(ctx context.Context, sellerID string) (*model.Account, error) {
	return getAccount(s.db.WithContext(ctx), sellerID)
}

func getAccount(db *gorm.DB, sellerID string) (*model.Account, error) {
	var row accountRow
	if err := db.First(&row, "id = ?", sellerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, store.ErrAccountNotFound
		}
		return nil, store.Wrap("get account", err)
	}
	return row.toModel(), nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]model.Account, error) {
	var rows []accountRow
	if err := s.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, store.Wrap("list accounts", err)
	}

	accounts := make([]model.Account, 0, len(rows))
	for i := range rows {
		accounts = append(accounts, *rows[i].toModel())
	}
	return accounts, nil
}

func (s *Store) UpdateStreak(ctx context.Context, sellerID string, streak int, lastLoginDate string) (*model.Account, error) {
	db := s.db.WithContext(ctx)

	res := db.Model(&accountRow{}).
		Where("id = ? AND last_login_date <= ?", sellerID, lastLoginDate).
		Updates(map[string]interface{}{
			"login_streak":    streak,
			"last_login_date": lastLoginDate,
			"updated_at":      s.now().UTC(),
		})
	if res.Error != nil {
		return nil, store.Wrap("update streak", res.Error)
	}
	if res.RowsAffected == 0 {
		logrus.Debugf("skipped stale streak update for %s (%s)", sellerID, lastLoginDate)
	}
	return getAccount(db, sellerID)
}

// eventScope applies the filters of q.
func eventScope(db *gorm.DB, q store.EventQuery) *gorm.DB {
	db = db.Model(&eventRow{}).Where("seller_id = ?", q.SellerID)
	if len(q.Types) > 0 {
		types := make([]string, len(q.Types))
		for i, t := range q.Types {
			types[i] = string(t)
		}
		db = db.Where("event_type IN ?", types)
	}
	if !q.Since.IsZero() {
		db = db.Where("created_at >= ?", q.Since.UTC())
	}
	return db
}

func (s *Store) ListEvents(ctx context.Context, q store.EventQuery) ([]model.ActivityEvent, error) {
	var rows []eventRow
	if err := eventScope(s.db.WithContext(ctx), q).Order("created_at ASC, seq ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, store.Wrap("list events", err)
	}

	events := make([]model.ActivityEvent, 0, len(rows))
	for i := range rows {
		events = append(events, rows[i].toModel())
	}
	return events, nil
}

func (s *Store) CountEvents(ctx context.Context, q store.EventQuery) (int, error) {
	var n int64
	if err := eventScope(s.db.WithContext(ctx), q).Count(&n).Error; err != nil {
		return 0, store.Wrap("count events", err)
	}
	return int(n), nil
}

func (s *Store) HasEvent(ctx context.Context, sellerID string, t model.EventType, dedupeKey string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&eventRow{}).
		Where("seller_id = ? AND event_type = ? AND dedupe_key = ?", sellerID, string(t), dedupeKey).
		Count(&n).Error
	if err != nil {
		return false, store.Wrap("has event", err)
	}
	return n > 0, nil
}

// Award inserts ev and bumps the XP totals in one transaction. The unique index on
// (seller_id, event_type, dedupe_key) turns a replayed milestone into a zero-row insert,
// which rolls the XP update back.
func (s *Store) Award(ctx context.Context, ev *model.ActivityEvent, weekStart time.Time) (*model.Account, error) {
	var result *model.Account
	ws := weekStart.UTC()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The account update comes first so its row lock serializes the seq below.
		upd := tx.Model(&accountRow{}).Where("id = ?", ev.SellerID).Updates(map[string]interface{}{
			"current_xp": gorm.Expr("current_xp + ?", ev.XP),
			"season_xp":  gorm.Expr("season_xp + ?", ev.XP),
			"weekly_xp":  gorm.Expr("CASE WHEN week_start < ? THEN ? ELSE weekly_xp + ? END", ws, ev.XP, ev.XP),
			"week_start": gorm.Expr("CASE WHEN week_start < ? THEN ? ELSE week_start END", ws, ws),
			"updated_at": s.now().UTC(),
		})
		if upd.Error != nil {
			return upd.Error
		}
		if upd.RowsAffected == 0 {
			return store.ErrAccountNotFound
		}

		row := toEventRow(ev)
		seq, err := nextSeq(tx, ev.SellerID)
		if err != nil {
			return err
		}
		row.Seq = seq

		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return store.ErrDuplicateEvent
		}

		result, err = getAccount(tx, ev.SellerID)
		return err
	})
	if err != nil {
		if !errors.Is(err, store.ErrDuplicateEvent) {
			logrus.Errorf("failed to award %s to %s: %v", ev.Type, ev.SellerID, err)
		}
		return nil, store.Wrap("award", err)
	}
	return result, nil
}

// Transition locks the account row for the duration of fn.
func (s *Store) Transition(ctx context.Context, sellerID string, fn store.TransitionFunc) (*model.Account, error) {
	var (
		result *model.Account
		fnErr  error
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row accountRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&row, "id = ?", sellerID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return store.ErrAccountNotFound
		}
		if err != nil {
			return err
		}

		var lessonIDs []string
		err = tx.Model(&eventRow{}).
			Where("seller_id = ? AND event_type IN ? AND dedupe_key IS NOT NULL", sellerID,
				[]string{string(model.EventTaskCompleted), string(model.EventQuizCompleted)}).
			Pluck("dedupe_key", &lessonIDs).Error
		if err != nil {
			return err
		}
		completed := make(map[string]bool, len(lessonIDs))
		for _, id := range lessonIDs {
			completed[id] = true
		}

		acc := row.toModel()
		tr, err := fn(acc, completed)
		if err != nil {
			fnErr = err
			return err
		}
		if tr == nil {
			result = acc
			return nil
		}

		updatedAt := s.now().UTC()
		err = tx.Model(&accountRow{}).Where("id = ?", sellerID).Updates(map[string]interface{}{
			"current_rank":    tr.NewRank,
			"highest_rank":    tr.HighestRank,
			"commission_rate": tr.CommissionRate,
			"updated_at":      updatedAt,
		}).Error
		if err != nil {
			return err
		}

		evRow := toEventRow(tr.Event)
		if evRow.Seq, err = nextSeq(tx, sellerID); err != nil {
			return err
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(evRow)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return store.ErrDuplicateEvent
		}

		acc.CurrentRank = tr.NewRank
		acc.HighestRank = tr.HighestRank
		acc.CommissionRate = tr.CommissionRate
		acc.UpdatedAt = updatedAt
		result = acc
		return nil
	})
	if err != nil {
		if fnErr != nil && errors.Is(err, fnErr) {
			return nil, fnErr
		}
		return nil, store.Wrap("rank transition", err)
	}
	return result, nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// nextSeq returns the seq for the seller's next event. Callers hold the
// account row lock.
func nextSeq(tx *gorm.DB, sellerID string) (int64, error) {
	var last int64
	err := tx.Model(&eventRow{}).Where("seller_id = ?", sellerID).
		Select("COALESCE(MAX(seq), 0)").Row().Scan(&last)
	return last + 1, err
}
