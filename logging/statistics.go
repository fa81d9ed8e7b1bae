package logging

import (
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

// Statistics represents usage counters collected since process start
type Statistics struct {
	UniqueVisitors       map[string]time.Time `json:"uniqueVisitors"`       // IP -> Last Visit Time
	AnalysisRequests     int                  `json:"analysisRequests"`     // Total number of analysis requests
	ErrorCount           int                  `json:"errorCount"`           // Requests rejected or failed
	QualitativeFallbacks int                  `json:"qualitativeFallbacks"` // Analyses scored without the model
	ContentTypes         map[string]int       `json:"contentTypes"`         // Content type -> Count
	PopularHosts         map[string]int       `json:"popularHosts"`         // Host -> Count
	AverageLoadTime      float64              `json:"averageLoadTime"`      // Average analysis time in milliseconds
	totalLoadTime        float64
	mutex                sync.RWMutex
	now                  func() time.Time
}

// AnalysisEvent describes one finished analysis request
type AnalysisEvent struct {
	URL                    string
	ContentType            string
	Duration               time.Duration
	Failed                 bool
	QualitativeUnavailable bool
}

// HostCount is one entry of the popular hosts ranking
type HostCount struct {
	Host  string `json:"host"`
	Count int    `json:"count"`
}

var (
	stats *Statistics
	once  sync.Once
)

// Initialize returns the process-wide statistics
func Initialize() *Statistics {
	once.Do(func() {
		stats = NewStatistics(time.Now)
	})
	return stats
}

// NewStatistics creates an empty collector using now as its clock
func NewStatistics(now func() time.Time) *Statistics {
	if now == nil {
		now = time.Now
	}
	return &Statistics{
		UniqueVisitors: make(map[string]time.Time),
		ContentTypes:   make(map[string]int),
		PopularHosts:   make(map[string]int),
		now:            now,
	}
}

// TrackVisitor records a unique visitor
func (s *Statistics) TrackVisitor(ip string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.UniqueVisitors[ip] = s.now()
}

// cleanHost reduces a page URL to its host. Local and API URLs are not tracked.
func cleanHost(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	if host == "localhost" || host == "127.0.0.1" || strings.Contains(strings.ToLower(u.Path), "/api/") {
		return ""
	}
	return strings.TrimPrefix(host, "www.")
}

// TrackAnalysis records an analysis request
func (s *Statistics) TrackAnalysis(ev AnalysisEvent) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.AnalysisRequests++
	if ev.Failed {
		s.ErrorCount++
	} else {
		if ev.ContentType != "" {
			s.ContentTypes[ev.ContentType]++
		}
		if ev.QualitativeUnavailable {
			s.QualitativeFallbacks++
		}
	}
	if host := cleanHost(ev.URL); host != "" {
		s.PopularHosts[host]++
	}

	s.totalLoadTime += float64(ev.Duration.Microseconds()) / 1000
	s.AverageLoadTime = s.totalLoadTime / float64(s.AnalysisRequests)
}

// GetUniqueVisitorsCount returns the number of unique visitors in the last 24 hours
func (s *Statistics) GetUniqueVisitorsCount() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.visitorsSince(s.now().Add(-24 * time.Hour))
}

func (s *Statistics) visitorsSince(cutoff time.Time) int {
	count := 0
	for _, lastVisit := range s.UniqueVisitors {
		if lastVisit.After(cutoff) {
			count++
		}
	}
	return count
}

// GetPopularHosts returns the n most analyzed hosts, busiest first
func (s *Statistics) GetPopularHosts(n int) []HostCount {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.popularHosts(n)
}

func (s *Statistics) popularHosts(n int) []HostCount {
	out := make([]HostCount, 0, len(s.PopularHosts))
	for host, count := range s.PopularHosts {
		out = append(out, HostCount{Host: host, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Host < out[j].Host
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// GetErrorRate returns the error rate as a percentage
func (s *Statistics) GetErrorRate() float64 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.errorRate()
}

func (s *Statistics) errorRate() float64 {
	if s.AnalysisRequests == 0 {
		return 0
	}
	return (float64(s.ErrorCount) / float64(s.AnalysisRequests)) * 100
}

// GetStatistics returns a snapshot. Host rankings are only included when
// detailed is set, which the server does outside production.
func (s *Statistics) GetStatistics(detailed bool) map[string]interface{} {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	contentTypes := make(map[string]int, len(s.ContentTypes))
	for k, v := range s.ContentTypes {
		contentTypes[k] = v
	}

	result := map[string]interface{}{
		"uniqueVisitors24h":    s.visitorsSince(s.now().Add(-24 * time.Hour)),
		"totalRequests":        s.AnalysisRequests,
		"errorRate":            s.errorRate(),
		"averageLoadTime":      s.AverageLoadTime,
		"qualitativeFallbacks": s.QualitativeFallbacks,
		"contentTypes":         contentTypes,
	}
	if detailed {
		result["popularHosts"] = s.popularHosts(5)
	}
	return result
}
