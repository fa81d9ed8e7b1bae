package logging

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatistics_TrackAnalysis(t *testing.T) {
	s := NewStatistics(nil)

	s.TrackAnalysis(AnalysisEvent{URL: "https://www.example.com/a", ContentType: "saas", Duration: 40 * time.Millisecond})
	s.TrackAnalysis(AnalysisEvent{URL: "https://example.com/b", ContentType: "saas", Duration: 20 * time.Millisecond, QualitativeUnavailable: true})
	s.TrackAnalysis(AnalysisEvent{URL: "https://shop.test/", ContentType: "e-commerce", Duration: 30 * time.Millisecond})
	s.TrackAnalysis(AnalysisEvent{URL: "ftp://", Failed: true, Duration: 10 * time.Millisecond})

	assert.Equal(t, 4, s.AnalysisRequests)
	assert.Equal(t, 1, s.ErrorCount)
	assert.Equal(t, 1, s.QualitativeFallbacks)
	assert.Equal(t, map[string]int{"saas": 2, "e-commerce": 1}, s.ContentTypes)
	assert.InDelta(t, 25.0, s.AverageLoadTime, 1e-9)
	assert.InDelta(t, 25.0, s.GetErrorRate(), 1e-9)

	assert.Equal(t, []HostCount{{Host: "example.com", Count: 2}, {Host: "shop.test", Count: 1}}, s.GetPopularHosts(5))
	assert.Len(t, s.GetPopularHosts(1), 1)
}

func TestCleanHost(t *testing.T) {
	assert.Equal(t, "example.com", cleanHost("https://WWW.Example.com/page?x=1"))
	assert.Equal(t, "", cleanHost("http://localhost:8082/page"))
	assert.Equal(t, "", cleanHost("https://example.com/api/analyze"))
	assert.Equal(t, "", cleanHost("not a url"))
}

func TestStatistics_UniqueVisitorsWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	s := NewStatistics(func() time.Time { return clock })

	s.TrackVisitor("10.0.0.1")
	clock = now.Add(23 * time.Hour)
	s.TrackVisitor("10.0.0.2")
	assert.Equal(t, 2, s.GetUniqueVisitorsCount())

	clock = now.Add(25 * time.Hour)
	assert.Equal(t, 1, s.GetUniqueVisitorsCount())
}

func TestStatistics_GetStatistics(t *testing.T) {
	s := NewStatistics(nil)
	s.TrackAnalysis(AnalysisEvent{URL: "https://example.com", ContentType: "generic"})

	limited := s.GetStatistics(false)
	assert.NotContains(t, limited, "popularHosts")
	assert.Equal(t, 1, limited["totalRequests"])

	detailed := s.GetStatistics(true)
	require.Contains(t, detailed, "popularHosts")
	assert.Equal(t, []HostCount{{Host: "example.com", Count: 1}}, detailed["popularHosts"])
}

func TestStatistics_Concurrent(t *testing.T) {
	s := NewStatistics(nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.TrackVisitor("10.0.0.1")
			s.TrackAnalysis(AnalysisEvent{URL: "https://example.com", ContentType: "generic"})
			_ = s.GetStatistics(true)
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, s.AnalysisRequests)
	assert.Equal(t, 1, s.GetUniqueVisitorsCount())
}
