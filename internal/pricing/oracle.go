// Package pricing publishes gold prices and serves the active one.
package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Aidin1998/talabin/common/dbutil"
	"github.com/Aidin1998/talabin/internal/events"
	"github.com/Aidin1998/talabin/pkg/errors"
	"github.com/Aidin1998/talabin/pkg/metrics"
	"github.com/Aidin1998/talabin/pkg/models"
)

// Topic is the websocket topic carrying price updates.
const Topic = "prices"

const defaultCacheTTL = time.Minute

// Broadcaster pushes a payload to live subscribers of a topic.
type Broadcaster interface {
	Broadcast(topic string, data []byte)
}

// ActiveStore holds the id of the active price, shared by every instance.
// *redis.Client satisfies it.
type ActiveStore interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// Options wires the optional collaborators of an Oracle.
type Options struct {
	Redis       ActiveStore
	RedisPrefix string
	Hub         Broadcaster
	Events      *events.Publisher
	CacheTTL    time.Duration
}

// Oracle owns the single active gold price and its history.
//
// Price rows never change once written, so the local cache maps price ids to
// rows. Which id is active is read from the shared store on every call, or
// from the database when there is no shared store.
type Oracle struct {
	logger *zap.Logger
	db     *gorm.DB
	local  *cache.Cache
	remote ActiveStore
	key    string
	hub    Broadcaster
	events *events.Publisher
	now    func() time.Time
}

// PriceUpdate is the payload pushed on the price stream.
type PriceUpdate struct {
	BuyPrice  decimal.Decimal `json:"buy_price"`
	SellPrice decimal.Decimal `json:"sell_price"`
	Source    string          `json:"source"`
	Timestamp time.Time       `json:"timestamp"`
}

func NewOracle(logger *zap.Logger, db *gorm.DB, opts Options) *Oracle {
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	prefix := opts.RedisPrefix
	if prefix == "" {
		prefix = "talabin"
	}
	return &Oracle{
		logger: logger,
		db:     db,
		local:  cache.New(ttl, 2*ttl),
		remote: opts.Redis,
		key:    prefix + ":price:active",
		hub:    opts.Hub,
		events: opts.Events,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Current returns the active price, newest first if several rows are active.
func (o *Oracle) Current(ctx context.Context) (*models.GoldPrice, error) {
	if o.remote == nil {
		return o.loadActive(ctx)
	}

	id, err := o.remote.Get(ctx, o.key).Result()
	switch {
	case err == redis.Nil:
		p, err := o.loadActive(ctx)
		if err != nil {
			return nil, err
		}
		// NX: a pointer written by a Publish that committed after our read wins
		if err := o.remote.SetNX(ctx, o.key, p.ID.String(), 0).Err(); err != nil {
			o.logger.Warn("failed to record active price id", zap.Error(err))
		}
		o.local.SetDefault(p.ID.String(), *p)
		return p, nil
	case err != nil:
		o.logger.Warn("failed to read active price id", zap.Error(err))
		return o.loadActive(ctx)
	}

	if v, ok := o.local.Get(id); ok {
		p := v.(models.GoldPrice)
		return &p, nil
	}
	var p models.GoldPrice
	if err := o.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to load price %s: %w", id, err)
		}
		o.logger.Warn("active price id points to a missing row", zap.String("price_id", id))
		return o.loadActive(ctx)
	}
	o.local.SetDefault(id, p)
	return &p, nil
}

func (o *Oracle) loadActive(ctx context.Context) (*models.GoldPrice, error) {
	var p models.GoldPrice
	err := o.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at DESC").
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.PriceUnavailable.Explain("no active gold price")
		}
		return nil, fmt.Errorf("failed to load active price: %w", err)
	}
	return &p, nil
}

// Publish deactivates the current price and activates a new one in a single
// transaction, appending a history point at the sell price.
func (o *Oracle) Publish(ctx context.Context, buy, sell decimal.Decimal, source string) (*models.GoldPrice, error) {
	if !buy.IsPositive() || !sell.IsPositive() {
		return nil, errors.InvalidAmount.Explain("prices must be positive")
	}
	source = strings.TrimSpace(source)
	if source == "" {
		source = "manual"
	}

	now := o.now()
	price := &models.GoldPrice{
		BuyPrice:  models.RoundCash(buy),
		SellPrice: models.RoundCash(sell),
		IsActive:  true,
		Source:    source,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// serialize concurrent publishers so the deactivation sees every active row
		if tx.Dialector.Name() == "postgres" {
			if err := tx.Exec("LOCK TABLE gold_prices IN SHARE ROW EXCLUSIVE MODE").Error; err != nil {
				return fmt.Errorf("failed to lock prices: %w", err)
			}
		}
		err := tx.Model(&models.GoldPrice{}).
			Where("is_active = ?", true).
			Updates(map[string]interface{}{"is_active": false, "updated_at": now}).Error
		if err != nil {
			return fmt.Errorf("failed to deactivate prices: %w", err)
		}
		if err := tx.Create(price).Error; err != nil {
			return fmt.Errorf("failed to insert price: %w", err)
		}
		point := &models.PriceHistory{Timestamp: now, Price: price.SellPrice, Source: source}
		if err := tx.Create(point).Error; err != nil {
			return fmt.Errorf("failed to append price history: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, dbutil.WrapError(err)
	}

	metrics.PricePublishes.WithLabelValues(source).Inc()
	o.logger.Info("gold price published",
		zap.String("buy_price", price.BuyPrice.String()),
		zap.String("sell_price", price.SellPrice.String()),
		zap.String("source", source),
	)

	o.activate(ctx, price)
	o.broadcast(price)
	o.events.Emit(ctx, events.PricePublished, nil, price.ID.String(), map[string]interface{}{
		"buy_price":  price.BuyPrice.String(),
		"sell_price": price.SellPrice.String(),
		"source":     source,
	})
	return price, nil
}

// History returns the price points of the last window, oldest first.
func (o *Oracle) History(ctx context.Context, window time.Duration) ([]models.PriceHistory, error) {
	var points []models.PriceHistory
	err := o.db.WithContext(ctx).
		Where("timestamp >= ?", o.now().Add(-window)).
		Order("timestamp ASC").
		Find(&points).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load price history: %w", err)
	}
	return points, nil
}

var timeframes = map[string]time.Duration{
	"1h":  time.Hour,
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

// ParseTimeframe maps 1h, 24h, 7d and 30d to a window. Anything else is 24h.
func ParseTimeframe(s string) time.Duration {
	if d, ok := timeframes[strings.ToLower(strings.TrimSpace(s))]; ok {
		return d
	}
	return 24 * time.Hour
}

func (o *Oracle) activate(ctx context.Context, p *models.GoldPrice) {
	o.local.SetDefault(p.ID.String(), *p)
	if o.remote == nil {
		return
	}
	if err := o.remote.Set(ctx, o.key, p.ID.String(), 0).Err(); err != nil {
		o.logger.Error("failed to record active price id", zap.String("price_id", p.ID.String()), zap.Error(err))
	}
}

func (o *Oracle) broadcast(p *models.GoldPrice) {
	if o.hub == nil {
		return
	}
	data, err := json.Marshal(PriceUpdate{
		BuyPrice:  p.BuyPrice,
		SellPrice: p.SellPrice,
		Source:    p.Source,
		Timestamp: p.CreatedAt,
	})
	if err != nil {
		return
	}
	o.hub.Broadcast(Topic, data)
}
