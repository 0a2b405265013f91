package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fernandovargasjimenez085-jpg/captura-datos-app/types"
	log "github.com/sirupsen/logrus"
)

type RecordSource interface {
	Stats(ctx context.Context) (types.RecordStats, error)
}

type SessionSource interface {
	Active(ctx context.Context) (int, error)
}

// Collector samples record and session counts on each tick.
type Collector struct {
	records  RecordSource
	sessions SessionSource

	mu      sync.RWMutex
	stats   types.CollectionStats
	sampled bool
	now     func() time.Time
}

func NewCollector(records RecordSource, sessions SessionSource) *Collector {
	return &Collector{
		records:  records,
		sessions: sessions,
		now:      time.Now,
		stats: types.CollectionStats{
			StartTime: time.Now(),
		},
	}
}

func (c *Collector) GetStats() types.CollectionStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// Collect takes one sample. Session counting failures are logged and do not fail the sample.
func (c *Collector) Collect(ctx context.Context) error {
	records, err := c.records.Stats(ctx)
	if err != nil {
		return fmt.Errorf("error sampling records: %w", err)
	}

	active := 0
	if c.sessions != nil {
		if active, err = c.sessions.Active(ctx); err != nil {
			log.WithError(err).Warn("Error counting sessions")
		}
	}

	c.mu.Lock()
	prev := c.stats.Records
	if c.sampled && records.Total > prev.Total {
		c.stats.RecordsAdded += int64(records.Total - prev.Total)
	}
	c.sampled = true
	c.stats.Records = records
	c.stats.ActiveSessions = active
	c.stats.LastUpdate = c.now()
	c.stats.TotalSnapshots++
	snapshot := c.stats
	c.mu.Unlock()

	if records == prev && snapshot.TotalSnapshots > 1 {
		return nil
	}

	log.WithFields(log.Fields{
		"records":   records.Total,
		"located":   records.Located,
		"owners":    records.Owners,
		"sessions":  active,
		"snapshots": snapshot.TotalSnapshots,
		"uptime":    snapshot.LastUpdate.Sub(snapshot.StartTime).Round(time.Second),
	}).Info("Collection update")
	return nil
}

// Run samples once immediately and then on every tick until ctx is done.
func (c *Collector) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := c.Collect(ctx); err != nil {
		log.WithError(err).Error("Error collecting stats")
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Collect(ctx); err != nil {
				log.WithError(err).Error("Error collecting stats")
			}
		}
	}
}
