// Package telemetry records query statistics for the HR assistant and the
// meeting search. Data stays on the local machine.
package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// QueryKind identifies which endpoint served a query.
type QueryKind string

const (
	// KindAsk is an HR policy question.
	KindAsk QueryKind = "ask"
	// KindMeetingSearch is a meeting archive search.
	KindMeetingSearch QueryKind = "meeting_search"
)

// LatencyBucket represents a latency histogram bucket.
type LatencyBucket string

const (
	BucketP100   LatencyBucket = "p100"   // <100ms
	BucketP500   LatencyBucket = "p500"   // 100-500ms
	BucketP1000  LatencyBucket = "p1000"  // 500ms-1s
	BucketP5000  LatencyBucket = "p5000"  // 1-5s
	BucketP10000 LatencyBucket = "p10000" // >=5s
)

// LatencyToBucket converts a duration to its histogram bucket. The buckets
// are wide because answers include an LLM round trip.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	case ms < 1000:
		return BucketP1000
	case ms < 5000:
		return BucketP5000
	default:
		return BucketP10000
	}
}

// QueryEvent is one served query.
type QueryEvent struct {
	Query       string
	Kind        QueryKind
	ResultCount int
	Latency     time.Duration
	Cached      bool
	Degraded    bool
	Timestamp   time.Time
}

// IsZeroResult returns true if nothing relevant was retrieved.
func (e QueryEvent) IsZeroResult() bool {
	return e.ResultCount == 0
}

// CircularBuffer is a fixed-capacity FIFO buffer.
type CircularBuffer[T any] struct {
	mu       sync.RWMutex
	items    []T
	head     int
	size     int
	capacity int
}

// NewCircularBuffer creates a buffer. A non-positive capacity means 100.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Add appends item, evicting the oldest when full.
func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
}

// Items returns the buffered items, oldest first.
func (b *CircularBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]T, b.size)
	if b.size < b.capacity {
		copy(result, b.items[:b.size])
	} else {
		copy(result, b.items[b.head:])
		copy(result[b.capacity-b.head:], b.items[:b.head])
	}
	return result
}

// Size returns the current number of items.
func (b *CircularBuffer[T]) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// stopWords are dropped from term statistics.
var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "can": true,
	"how": true, "what": true, "when": true, "who": true, "does": true,
	"with": true, "our": true, "your": true, "about": true, "there": true,
	"is": true, "do": true, "i": true, "my": true, "we": true,
}

// ExtractTerms lowercases query, strips punctuation and keeps words of at
// least three characters that are not stop words.
func ExtractTerms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		w = strings.Trim(w, ".,;:!?\"'()[]{}")
		if len([]rune(w)) >= 3 && !stopWords[w] {
			terms = append(terms, w)
		}
	}
	return terms
}

// TermCount represents a term and its frequency count.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Snapshot is a point-in-time copy of the in-memory metrics.
type Snapshot struct {
	KindCounts          map[QueryKind]int64     `json:"kind_counts"`
	TopTerms            []TermCount             `json:"top_terms"`
	ZeroResultQueries   []string                `json:"zero_result_queries"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	TotalQueries        int64                   `json:"total_queries"`
	ZeroResultCount     int64                   `json:"zero_result_count"`
	CacheHits           int64                   `json:"cache_hits"`
	DegradedCount       int64                   `json:"degraded_count"`
	ExactRepeatCount    int64                   `json:"exact_repeat_count"`
	Since               time.Time               `json:"since"`
}

// ZeroResultPercentage returns the share of queries with no results.
func (s *Snapshot) ZeroResultPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries) * 100
}

// CacheHitPercentage returns the share of queries served from cache.
func (s *Snapshot) CacheHitPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(s.TotalQueries) * 100
}

// Config configures a Collector.
type Config struct {
	TopTermsCapacity      int           // default 100
	ZeroResultsCapacity   int           // default 100
	RecentQueriesCapacity int           // default 500
	FlushInterval         time.Duration // 0 disables periodic flushing
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{
		TopTermsCapacity:      100,
		ZeroResultsCapacity:   100,
		RecentQueriesCapacity: 500,
		FlushInterval:         time.Minute,
	}
}

// pending holds counts recorded since the last flush.
type pending struct {
	kinds       map[QueryKind]int64
	terms       map[string]int64
	latencies   map[LatencyBucket]int64
	zeroResults []ZeroResult
}

func newPending() pending {
	return pending{
		kinds:     make(map[QueryKind]int64),
		terms:     make(map[string]int64),
		latencies: make(map[LatencyBucket]int64),
	}
}

func (p pending) empty() bool {
	return len(p.kinds) == 0 && len(p.terms) == 0 && len(p.latencies) == 0 && len(p.zeroResults) == 0
}

// Collector aggregates query events in memory and periodically flushes the
// increments to a Store. Safe for concurrent use.
type Collector struct {
	mu sync.Mutex

	kinds           map[QueryKind]int64
	topTerms        *lru.Cache[string, int64]
	zeroResults     *CircularBuffer[string]
	latencies       map[LatencyBucket]int64
	recentQueries   *lru.Cache[string, struct{}]
	totalQueries    int64
	zeroResultCount int64
	cacheHits       int64
	degraded        int64
	exactRepeats    int64
	startTime       time.Time

	delta pending

	store  Store
	stopCh chan struct{}
	wg     sync.WaitGroup
	closed bool
}

// NewCollector creates a Collector. A nil store keeps metrics in memory.
func NewCollector(store Store, cfg Config) *Collector {
	def := DefaultConfig()
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = def.TopTermsCapacity
	}
	if cfg.ZeroResultsCapacity <= 0 {
		cfg.ZeroResultsCapacity = def.ZeroResultsCapacity
	}
	if cfg.RecentQueriesCapacity <= 0 {
		cfg.RecentQueriesCapacity = def.RecentQueriesCapacity
	}

	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	recent, _ := lru.New[string, struct{}](cfg.RecentQueriesCapacity)

	c := &Collector{
		kinds:         make(map[QueryKind]int64),
		topTerms:      topTerms,
		zeroResults:   NewCircularBuffer[string](cfg.ZeroResultsCapacity),
		latencies:     make(map[LatencyBucket]int64),
		recentQueries: recent,
		startTime:     time.Now(),
		delta:         newPending(),
		store:         store,
		stopCh:        make(chan struct{}),
	}

	if cfg.FlushInterval > 0 && store != nil {
		c.wg.Add(1)
		go c.flushLoop(cfg.FlushInterval)
	}
	return c
}

func (c *Collector) flushLoop(interval time.Duration) {
	defer c.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.Flush(); err != nil {
				slog.Warn("telemetry_flush_failed", slog.String("error", err.Error()))
			}
		case <-c.stopCh:
			return
		}
	}
}

// Record captures one query.
func (c *Collector) Record(e QueryEvent) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	terms := ExtractTerms(e.Query)
	bucket := LatencyToBucket(e.Latency)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	c.totalQueries++
	c.kinds[e.Kind]++
	c.delta.kinds[e.Kind]++
	c.latencies[bucket]++
	c.delta.latencies[bucket]++

	for _, term := range terms {
		n, _ := c.topTerms.Get(term)
		c.topTerms.Add(term, n+1)
		c.delta.terms[term]++
	}

	if e.IsZeroResult() {
		c.zeroResultCount++
		c.zeroResults.Add(e.Query)
		c.delta.zeroResults = append(c.delta.zeroResults, ZeroResult{Query: e.Query, Kind: e.Kind, Timestamp: e.Timestamp})
	}
	if e.Cached {
		c.cacheHits++
	}
	if e.Degraded {
		c.degraded++
	}

	key := hashQuery(e.Kind, e.Query)
	if _, seen := c.recentQueries.Get(key); seen {
		c.exactRepeats++
	}
	c.recentQueries.Add(key, struct{}{})
}

func hashQuery(kind QueryKind, query string) string {
	normalized := string(kind) + "\x00" + strings.Join(strings.Fields(strings.ToLower(query)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:16])
}

// Snapshot returns the metrics collected since start.
func (c *Collector) Snapshot() *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	kinds := make(map[QueryKind]int64, len(c.kinds))
	for k, v := range c.kinds {
		kinds[k] = v
	}
	latencies := make(map[LatencyBucket]int64, len(c.latencies))
	for k, v := range c.latencies {
		latencies[k] = v
	}

	terms := make([]TermCount, 0, c.topTerms.Len())
	for _, key := range c.topTerms.Keys() {
		if n, ok := c.topTerms.Peek(key); ok {
			terms = append(terms, TermCount{Term: key, Count: n})
		}
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].Count != terms[j].Count {
			return terms[i].Count > terms[j].Count
		}
		return terms[i].Term < terms[j].Term
	})

	return &Snapshot{
		KindCounts:          kinds,
		TopTerms:            terms,
		ZeroResultQueries:   c.zeroResults.Items(),
		LatencyDistribution: latencies,
		TotalQueries:        c.totalQueries,
		ZeroResultCount:     c.zeroResultCount,
		CacheHits:           c.cacheHits,
		DegradedCount:       c.degraded,
		ExactRepeatCount:    c.exactRepeats,
		Since:               c.startTime,
	}
}

// Flush writes the increments recorded since the previous flush. On failure
// the increments are kept for the next attempt.
func (c *Collector) Flush() error {
	if c.store == nil {
		return nil
	}

	c.mu.Lock()
	batch := c.delta
	c.delta = newPending()
	c.mu.Unlock()

	if batch.empty() {
		return nil
	}
	if err := c.store.Save(time.Now().Format(DateLayout), batch.kinds, batch.terms, batch.latencies, batch.zeroResults); err != nil {
		c.mu.Lock()
		c.delta.merge(batch)
		c.mu.Unlock()
		return err
	}
	return nil
}

func (p *pending) merge(o pending) {
	for k, v := range o.kinds {
		p.kinds[k] += v
	}
	for k, v := range o.terms {
		p.terms[k] += v
	}
	for k, v := range o.latencies {
		p.latencies[k] += v
	}
	p.zeroResults = append(o.zeroResults, p.zeroResults...)
}

// Close stops periodic flushing, flushes once more and closes the store.
func (c *Collector) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.stopCh)
	c.wg.Wait()

	if c.store == nil {
		return nil
	}
	err := c.Flush()
	if cerr := c.store.Close(); err == nil {
		err = cerr
	}
	return err
}
