package logger

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"slices"
	"sort"
	"sync"
	"time"
)

// Publisher ships a digest to a topic (a Redis queue message type here).
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

// CollectionConfig configures a LogCollector.
type CollectionConfig struct {
	TimeInterval   time.Duration // flush interval
	CountThreshold int           // distinct entries that force an early flush
	MaxEntries     int           // entries per digest, the rest are counted in Dropped
	Topic          string
	Source         string
	// IgnoreFields are left out when deciding whether two logs are the same,
	// e.g. Kafka offsets or timings that differ on every occurrence.
	IgnoreFields []string
	Publisher    Publisher
}

// AggregatedLogEntry is one distinct warning or error and how often it fired.
type AggregatedLogEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// LogDigest is the payload published on every flush. Entries are ordered by
// count, highest first.
type LogDigest struct {
	Source  string               `json:"source,omitempty"`
	From    time.Time            `json:"from"`
	To      time.Time            `json:"to"`
	Entries []AggregatedLogEntry `json:"entries"`
	Dropped int                  `json:"dropped,omitempty"`
}

// LogCollector folds repeated warnings and errors into periodic digests so a
// failing dependency produces one message per interval instead of a flood.
type LogCollector struct {
	config  *CollectionConfig
	mu      sync.Mutex
	entries map[uint64]*AggregatedLogEntry
	since   time.Time
	now     func() time.Time

	out    chan LogDigest
	stop   chan struct{}
	done   sync.WaitGroup
	closed sync.Once
}

func NewLogCollector(config *CollectionConfig) *LogCollector {
	if config.TimeInterval <= 0 {
		config.TimeInterval = time.Minute
	}
	if config.CountThreshold <= 0 {
		config.CountThreshold = 100
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = 50
	}
	if config.IgnoreFields == nil {
		config.IgnoreFields = []string{"duration_ms", "offset", "partition", "job_id"}
	}

	c := &LogCollector{
		config:  config,
		entries: make(map[uint64]*AggregatedLogEntry),
		now:     time.Now,
		out:     make(chan LogDigest, 4),
		stop:    make(chan struct{}),
	}
	c.since = c.now()

	c.done.Add(2)
	go c.tick()
	go c.send()
	return c
}

// AddLog records one occurrence.
func (c *LogCollector) AddLog(level, message string, fields map[string]interface{}, caller string) {
	now := c.now()
	key := c.key(level, message, fields, caller)

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.Count++
		e.LastSeen = now
		e.Fields = fields
	} else {
		c.entries[key] = &AggregatedLogEntry{
			Level:     level,
			Message:   message,
			Fields:    fields,
			Caller:    caller,
			Count:     1,
			FirstSeen: now,
			LastSeen:  now,
		}
	}
	if len(c.entries) >= c.config.CountThreshold {
		c.flushLocked()
	}
}

func (c *LogCollector) key(level, message string, fields map[string]interface{}, caller string) uint64 {
	names := make([]string, 0, len(fields))
	for k := range fields {
		if !slices.Contains(c.config.IgnoreFields, k) {
			names = append(names, k)
		}
	}
	sort.Strings(names)

	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%s", level, message, caller)
	for _, k := range names {
		fmt.Fprintf(h, "|%s=%v", k, fields[k])
	}
	return h.Sum64()
}

func (c *LogCollector) tick() {
	defer c.done.Done()
	t := time.NewTicker(c.config.TimeInterval)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			c.mu.Lock()
			c.flushLocked()
			c.mu.Unlock()
		case <-c.stop:
			c.mu.Lock()
			c.flushLocked()
			c.mu.Unlock()
			close(c.out)
			return
		}
	}
}

// flushLocked hands the current window to the sender. A digest that does not
// fit the buffer is discarded. Caller holds mu.
func (c *LogCollector) flushLocked() {
	now := c.now()
	if len(c.entries) == 0 || c.config.Publisher == nil {
		c.since = now
		return
	}

	d := LogDigest{Source: c.config.Source, From: c.since, To: now}
	d.Entries = make([]AggregatedLogEntry, 0, len(c.entries))
	for _, e := range c.entries {
		d.Entries = append(d.Entries, *e)
	}
	sort.Slice(d.Entries, func(i, j int) bool {
		if d.Entries[i].Count != d.Entries[j].Count {
			return d.Entries[i].Count > d.Entries[j].Count
		}
		return d.Entries[i].FirstSeen.Before(d.Entries[j].FirstSeen)
	})
	if len(d.Entries) > c.config.MaxEntries {
		d.Dropped = len(d.Entries) - c.config.MaxEntries
		d.Entries = d.Entries[:c.config.MaxEntries]
	}

	c.entries = make(map[uint64]*AggregatedLogEntry)
	c.since = now

	select {
	case c.out <- d:
	default:
		fmt.Fprintf(os.Stderr, "log digest discarded: %d entries\n", len(d.Entries))
	}
}

func (c *LogCollector) send() {
	defer c.done.Done()
	for d := range c.out {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := c.config.Publisher.PublishMessage(ctx, c.config.Topic, d); err != nil {
			fmt.Fprintf(os.Stderr, "log digest publish failed: %v\n", err)
		}
		cancel()
	}
}

// Close flushes what is pending and waits for it to be published.
func (c *LogCollector) Close() {
	c.closed.Do(func() {
		close(c.stop)
		c.done.Wait()
	})
}
