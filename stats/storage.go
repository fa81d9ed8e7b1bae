package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
)

const monthLayout = "2006-01"

// Outcome is the result of one analysis request as recorded in the monthly totals
type Outcome struct {
	ContentType string
	// Assessed is set when the model stage contributed a score
	Assessed bool
	// Rejected is set when the request failed validation or extraction
	Rejected bool
}

// MonthlyStats represents statistics for a specific month
type MonthlyStats struct {
	Analyses               int            `json:"analyses"`
	QualitativeAssessed    int            `json:"qualitative_assessed"`
	QualitativeUnavailable int            `json:"qualitative_unavailable"`
	Rejected               int            `json:"rejected"`
	ContentTypes           map[string]int `json:"content_types,omitempty"`
	LastUpdated            time.Time      `json:"last_updated"`
}

func (m MonthlyStats) clone() MonthlyStats {
	if m.ContentTypes != nil {
		types := make(map[string]int, len(m.ContentTypes))
		for k, v := range m.ContentTypes {
			types[k] = v
		}
		m.ContentTypes = types
	}
	return m
}

// Storage handles persistent storage of statistics
type Storage struct {
	mutex       sync.RWMutex
	stats       map[string]*MonthlyStats // key: "YYYY-MM"
	filePath    string
	lastWrite   time.Time
	writeBuffer chan struct{}
	done        chan struct{}
	stopped     chan struct{}
	closeOnce   sync.Once
	interval    time.Duration
	logger      arbor.ILogger
	now         func() time.Time
}

// Option configures a Storage
type Option func(*Storage)

func WithLogger(logger arbor.ILogger) Option {
	return func(s *Storage) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the clock used to pick the current month
func WithClock(now func() time.Time) Option {
	return func(s *Storage) {
		if now != nil {
			s.now = now
		}
	}
}

// WithFlushInterval sets how often the background writer persists
func WithFlushInterval(d time.Duration) Option {
	return func(s *Storage) {
		if d > 0 {
			s.interval = d
		}
	}
}

// NewStorage creates a new statistics storage instance
func NewStorage(dataDir string, opts ...Option) (*Storage, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	s := &Storage{
		stats:       make(map[string]*MonthlyStats),
		filePath:    filepath.Join(dataDir, "stats.json"),
		writeBuffer: make(chan struct{}, 1),
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
		interval:    5 * time.Minute,
		logger:      arbor.NewNoOpLogger(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load stats: %w", err)
	}

	go s.backgroundWriter()

	return s, nil
}

func (s *Storage) load() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	return json.Unmarshal(data, &s.stats)
}

// save writes statistics through a temporary file and rename
func (s *Storage) save() error {
	s.mutex.RLock()
	data, err := json.MarshalIndent(s.stats, "", "  ")
	s.mutex.RUnlock()

	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}

	tempFile := s.filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}

	if err := os.Rename(tempFile, s.filePath); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	return nil
}

func (s *Storage) backgroundWriter() {
	defer close(s.stopped)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.writeBuffer:
		case <-ticker.C:
		case <-s.done:
			return
		}
		if err := s.save(); err != nil {
			s.logger.Warn().Err(err).Str("path", s.filePath).Msg("Failed to persist statistics")
		}
	}
}

func (s *Storage) currentMonth() string {
	return s.now().Format(monthLayout)
}

// requestWrite signals that a write to disk is needed
func (s *Storage) requestWrite() {
	select {
	case s.writeBuffer <- struct{}{}:
	default:
		// write already pending
	}
}

// Record adds one analysis outcome to the current month
func (s *Storage) Record(o Outcome) {
	switch {
	case o.Rejected:
		s.IncrementStats(0, 0, 0, 1)
	case o.Assessed:
		s.IncrementStats(1, 1, 0, 0)
	default:
		s.IncrementStats(1, 0, 1, 0)
	}
	if o.ContentType != "" && !o.Rejected {
		s.mutex.Lock()
		m := s.monthLocked()
		if m.ContentTypes == nil {
			m.ContentTypes = make(map[string]int)
		}
		m.ContentTypes[o.ContentType]++
		s.mutex.Unlock()
	}
}

// IncrementStats increments the specified statistics
func (s *Storage) IncrementStats(analyses, assessed, unavailable, rejected int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	stats := s.monthLocked()
	stats.Analyses += analyses
	stats.QualitativeAssessed += assessed
	stats.QualitativeUnavailable += unavailable
	stats.Rejected += rejected
	stats.LastUpdated = s.now()

	if s.now().Sub(s.lastWrite) > time.Minute {
		s.requestWrite()
		s.lastWrite = s.now()
	}
}

func (s *Storage) monthLocked() *MonthlyStats {
	month := s.currentMonth()
	stats, exists := s.stats[month]
	if !exists {
		stats = &MonthlyStats{}
		s.stats[month] = stats
	}
	return stats
}

// GetCurrentStats returns statistics for the current month
func (s *Storage) GetCurrentStats() MonthlyStats {
	stats, _ := s.GetMonthlyStats(s.currentMonth())
	return stats
}

// Cleanup removes statistics older than retainMonths, counting the current month
func (s *Storage) Cleanup(retainMonths int) {
	if retainMonths < 1 {
		retainMonths = 1
	}
	keep := make(map[string]bool, retainMonths)
	current := s.now()
	for i := 0; i < retainMonths; i++ {
		keep[current.AddDate(0, -i, 0).Format(monthLayout)] = true
	}

	s.mutex.Lock()
	removed := 0
	for key := range s.stats {
		if !keep[key] {
			delete(s.stats, key)
			removed++
		}
	}
	s.mutex.Unlock()

	s.requestWrite()
	s.logger.Debug().Int("retained_months", retainMonths).Int("removed", removed).Msg("Cleaned up statistics")
}

// GetMonthlyStats returns statistics for a specific month
func (s *Storage) GetMonthlyStats(yearMonth string) (MonthlyStats, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if stats, exists := s.stats[yearMonth]; exists {
		return stats.clone(), true
	}
	return MonthlyStats{}, false
}

// GetAllMonths returns all months that have statistics, newest first
func (s *Storage) GetAllMonths() []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	months := make([]string, 0, len(s.stats))
	for month := range s.stats {
		months = append(months, month)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(months)))
	return months
}

// Shutdown stops the background writer and persists the final state
func (s *Storage) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.done) })

	select {
	case <-s.stopped:
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.save()
}
