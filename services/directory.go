package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"i8gateway/cache"
	"i8gateway/metrics"
	"i8gateway/models"

	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

var (
	ErrAgentNotFound      = errors.New("agent not found")
	ErrCommissionNotFound = errors.New("commission config not found")
)

// ConfigSource reads agent and commission rows from their owner. It returns
// nil without error when a row does not exist.
type ConfigSource interface {
	Agent(ctx context.Context, agentID int) (*models.Agent, error)
	Commission(ctx context.Context, gameID string, agentID int) (*models.Commission, error)
}

// Directory serves agent and commission config through a cache. Misses
// for the same key are coalesced into one source read.
type Directory struct {
	source  ConfigSource
	cache   cache.Cache
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
}

func NewDirectory(source ConfigSource, c cache.Cache, ttl time.Duration, m *metrics.Metrics) *Directory {
	return &Directory{source: source, cache: c, ttl: ttl, metrics: m}
}

func AgentKey(agentID int) string {
	return fmt.Sprintf("agent-%d", agentID)
}

func CommissionKey(gameID string, agentID int) string {
	return fmt.Sprintf("comm-%s-%d", gameID, agentID)
}

func (d *Directory) Agent(ctx context.Context, agentID int) (*models.Agent, error) {
	v, err := d.load(AgentKey(agentID), func() (any, error) {
		agent, err := d.source.Agent(ctx, agentID)
		if err != nil {
			return nil, fmt.Errorf("load agent %d: %w", agentID, err)
		}
		if agent == nil {
			return nil, fmt.Errorf("%w: %d", ErrAgentNotFound, agentID)
		}
		return agent, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Agent), nil
}

func (d *Directory) Commission(ctx context.Context, gameID string, agentID int) (*models.Commission, error) {
	v, err := d.load(CommissionKey(gameID, agentID), func() (any, error) {
		comm, err := d.source.Commission(ctx, gameID, agentID)
		if err != nil {
			return nil, fmt.Errorf("load commission %s/%d: %w", gameID, agentID, err)
		}
		if comm == nil {
			return nil, fmt.Errorf("%w: agentId %d, gameId %s", ErrCommissionNotFound, agentID, gameID)
		}
		return comm, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Commission), nil
}

func (d *Directory) DropAgent(agentID int) {
	d.cache.Drop(AgentKey(agentID))
}

func (d *Directory) DropCommission(gameID string, agentID int) {
	d.cache.Drop(CommissionKey(gameID, agentID))
}

// load returns the cached value for key or fills it with fetch. Failed
// fetches are not cached.
func (d *Directory) load(key string, fetch func() (any, error)) (any, error) {
	if v, ok := d.cache.Get(key); ok {
		d.count("hit")
		return v, nil
	}
	d.count("miss")

	v, err, _ := d.group.Do(key, func() (any, error) {
		v, err := fetch()
		if err != nil {
			return nil, err
		}
		d.cache.Set(key, v, d.ttl)
		return v, nil
	})
	return v, err
}

func (d *Directory) count(result string) {
	if d.metrics != nil {
		d.metrics.CacheLookups.WithLabelValues(result).Inc()
	}
}

// GormSource reads the back-office agent and commission tables.
type GormSource struct {
	db *gorm.DB
}

func NewGormSource(db *gorm.DB) *GormSource {
	return &GormSource{db: db}
}

func (s *GormSource) Agent(ctx context.Context, agentID int) (*models.Agent, error) {
	var agent models.Agent
	err := s.db.WithContext(ctx).Where("agent_id = ?", agentID).Take(&agent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &agent, nil
}

func (s *GormSource) Commission(ctx context.Context, gameID string, agentID int) (*models.Commission, error) {
	var comm models.Commission
	err := s.db.WithContext(ctx).
		Where("casino_game_id = ? AND agent_id = ?", gameID, agentID).
		Take(&comm).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &comm, nil
}
