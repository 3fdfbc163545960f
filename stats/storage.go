package stats

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// MonthlyStats is the usage of one calendar month
type MonthlyStats struct {
	Requests        int            `json:"requests"`
	ClientErrors    int            `json:"client_errors"`
	ServerErrors    int            `json:"server_errors"`
	Analyses        int            `json:"analyses"`
	AIAnalyses      int            `json:"ai_analyses"`
	FailedAnalyses  int            `json:"failed_analyses"`
	TokensUsed      int            `json:"tokens_used"`
	TotalLoadTimeMs int64          `json:"total_load_time_ms"`
	Sites           map[string]int `json:"sites,omitempty"`
	LastUpdated     time.Time      `json:"last_updated"`
}

// AverageLoadTime is the mean page load time in milliseconds
func (m MonthlyStats) AverageLoadTime() float64 {
	ok := m.Analyses - m.FailedAnalyses
	if ok <= 0 {
		return 0
	}
	return float64(m.TotalLoadTimeMs) / float64(ok)
}

// ErrorRate is the share of failed analyses in percent
func (m MonthlyStats) ErrorRate() float64 {
	if m.Analyses == 0 {
		return 0
	}
	return float64(m.FailedAnalyses) / float64(m.Analyses) * 100
}

// Analysis is one finished analysis as the statistics see it
type Analysis struct {
	URL        string
	Mode       string
	Failed     bool
	LoadTimeMs int64
	Tokens     int
}

// Storage keeps monthly usage counters and persists them to a JSON file
type Storage struct {
	mutex       sync.RWMutex
	stats       map[string]*MonthlyStats // key: "YYYY-MM"
	filePath    string
	lastWrite   time.Time
	writeBuffer chan struct{}
	done        chan struct{}
	stopped     chan struct{}
	closeOnce   sync.Once
	now         func() time.Time
	logger      *slog.Logger
}

// NewStorage loads dataDir/stats.json if present and starts the background
// writer. Call Close to flush and stop it.
func NewStorage(dataDir string, logger *slog.Logger) (*Storage, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Storage{
		stats:       make(map[string]*MonthlyStats),
		filePath:    filepath.Join(dataDir, "stats.json"),
		writeBuffer: make(chan struct{}, 1),
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
		now:         time.Now,
		logger:      logger,
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

// save writes the counters through a temp file and a rename
func (s *Storage) save() error {
	s.mutex.RLock()
	data, err := json.Marshal(s.stats)
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

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.writeBuffer:
		case <-ticker.C:
		case <-s.done:
			return
		}
		if err := s.save(); err != nil {
			s.logger.Error("failed to persist statistics", "error", err)
		}
	}
}

func (s *Storage) requestWrite() {
	select {
	case s.writeBuffer <- struct{}{}:
	default:
		// a write is already pending
	}
}

// Close stops the background writer and flushes the counters once more
func (s *Storage) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	<-s.stopped
	return s.save()
}

func (s *Storage) monthKey() string {
	return s.now().Format("2006-01")
}

// current returns this month's counters. Callers hold the write lock.
func (s *Storage) current() *MonthlyStats {
	month := s.monthKey()
	m, ok := s.stats[month]
	if !ok {
		m = &MonthlyStats{}
		s.stats[month] = m
	}
	m.LastUpdated = s.now()
	return m
}

func (s *Storage) maybeWrite() {
	if s.now().Sub(s.lastWrite) > time.Minute {
		s.requestWrite()
		s.lastWrite = s.now()
	}
}

// RecordRequest counts one served HTTP request by status class
func (s *Storage) RecordRequest(status int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	m := s.current()
	m.Requests++
	switch {
	case status >= 500:
		m.ServerErrors++
	case status >= 400:
		m.ClientErrors++
	}
	s.maybeWrite()
}

// RecordAnalysis counts one finished analysis
func (s *Storage) RecordAnalysis(a Analysis) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	m := s.current()
	m.Analyses++
	if a.Mode == "ai" {
		m.AIAnalyses++
	}
	if a.Failed {
		m.FailedAnalyses++
	} else {
		m.TotalLoadTimeMs += a.LoadTimeMs
	}
	m.TokensUsed += a.Tokens
	if site := siteKey(a.URL); site != "" {
		if m.Sites == nil {
			m.Sites = make(map[string]int)
		}
		m.Sites[site]++
	}
	s.maybeWrite()
}

// siteKey reduces a URL to host and path without query or trailing slash.
// Local addresses are not tracked.
func siteKey(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return ""
	}
	key := host
	if u.Path != "" && u.Path != "/" {
		key += strings.TrimSuffix(u.Path, "/")
	}
	return key
}

func copyStats(m *MonthlyStats) MonthlyStats {
	out := *m
	if m.Sites != nil {
		out.Sites = make(map[string]int, len(m.Sites))
		for k, v := range m.Sites {
			out.Sites[k] = v
		}
	}
	return out
}

// GetCurrentStats returns a copy of this month's counters
func (s *Storage) GetCurrentStats() MonthlyStats {
	month := s.monthKey()

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if m, ok := s.stats[month]; ok {
		return copyStats(m)
	}
	return MonthlyStats{}
}

// GetMonthlyStats returns the counters for a "YYYY-MM" month
func (s *Storage) GetMonthlyStats(yearMonth string) (MonthlyStats, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if m, ok := s.stats[yearMonth]; ok {
		return copyStats(m), true
	}
	return MonthlyStats{}, false
}

// GetAllMonths lists the months with statistics, newest first
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

// Cleanup keeps the current month and the retainMonths-1 before it
func (s *Storage) Cleanup(retainMonths int) int {
	if retainMonths < 1 {
		retainMonths = 1
	}
	keep := make(map[string]bool, retainMonths)
	now := s.now()
	for i := 0; i < retainMonths; i++ {
		keep[now.AddDate(0, -i, 0).Format("2006-01")] = true
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
	s.logger.Info("statistics cleaned up", "retained_months", retainMonths, "removed", removed)
	return removed
}

type SiteCount struct {
	Site  string `json:"site"`
	Count int    `json:"count"`
}

// TopSites returns this month's most analyzed sites
func (s *Storage) TopSites(n int) []SiteCount {
	current := s.GetCurrentStats()

	out := make([]SiteCount, 0, len(current.Sites))
	for site, count := range current.Sites {
		out = append(out, SiteCount{Site: site, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Site < out[j].Site
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// Summary is the public view of this month's usage. Analyzed sites are only
// included when detailed is set (development mode).
func (s *Storage) Summary(detailed bool) map[string]interface{} {
	current := s.GetCurrentStats()

	summary := map[string]interface{}{
		"month":           s.monthKey(),
		"totalRequests":   current.Requests,
		"analyses":        current.Analyses,
		"aiAnalyses":      current.AIAnalyses,
		"errorRate":       current.ErrorRate(),
		"averageLoadTime": current.AverageLoadTime(),
		"tokensUsed":      current.TokensUsed,
	}
	if detailed {
		summary["popularSites"] = s.TopSites(5)
		summary["months"] = s.GetAllMonths()
	}
	return summary
}
