// Package analytics aggregates the run history into per-document and
// per-failure-kind statistics.
package analytics

import (
	"database/sql"
	"fmt"
	"math"
	"sort"
)

// DB is the interface for database queries used by analytics.
type DB interface {
	Conn() *sql.DB
}

// RootStats holds run counts and resolution durations for one root document.
type RootStats struct {
	RootPath   string  `json:"root_path"`
	Runs       int     `json:"runs"`
	Failed     int     `json:"failed"`
	FailurePct float64 `json:"failure_pct"`
	AvgMs      float64 `json:"avg_ms"`
	P50Ms      float64 `json:"p50_ms"`
	P95Ms      float64 `json:"p95_ms"`
	LastStatus string  `json:"last_status"`
}

// QueryRootStats returns statistics per root document, ordered by path.
// Only successful runs contribute to durations.
func QueryRootStats(database DB, since string) ([]RootStats, error) {
	query := `SELECT root_path, status, duration_ms FROM runs`
	args := []interface{}{}
	if since != "" {
		query += ` WHERE timestamp >= ?`
		args = append(args, since)
	}
	query += ` ORDER BY id`

	rows, err := database.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query root stats: %w", err)
	}
	defer rows.Close()

	byRoot := make(map[string]*RootStats)
	durations := make(map[string][]float64)
	for rows.Next() {
		var root, status string
		var ms int64
		if err := rows.Scan(&root, &status, &ms); err != nil {
			return nil, fmt.Errorf("scan root stats: %w", err)
		}
		s, ok := byRoot[root]
		if !ok {
			s = &RootStats{RootPath: root}
			byRoot[root] = s
		}
		s.Runs++
		s.LastStatus = status
		if status == "failed" {
			s.Failed++
			continue
		}
		durations[root] = append(durations[root], float64(ms))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	results := make([]RootStats, 0, len(byRoot))
	for root, s := range byRoot {
		d := durations[root]
		sort.Float64s(d)
		s.FailurePct = pct(s.Failed, s.Runs)
		s.AvgMs = avg(d)
		s.P50Ms = percentile(d, 50)
		s.P95Ms = percentile(d, 95)
		results = append(results, *s)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].RootPath < results[j].RootPath
	})
	return results, nil
}

// ErrorKindCount holds how often one failure kind ended a run.
type ErrorKindCount struct {
	Kind     string  `json:"kind"`
	Count    int     `json:"count"`
	Pct      float64 `json:"pct_of_failures"`
	LastSeen string  `json:"last_seen"`
}

// QueryErrorKinds returns failure kinds, most frequent first. The percentage
// is relative to all failed runs in the window.
func QueryErrorKinds(database DB, since string) ([]ErrorKindCount, error) {
	query := `
		SELECT COALESCE(error_kind, ''), COUNT(*), MAX(timestamp)
		FROM runs
		WHERE status = 'failed'`
	args := []interface{}{}
	if since != "" {
		query += ` AND timestamp >= ?`
		args = append(args, since)
	}
	query += ` GROUP BY COALESCE(error_kind, '') ORDER BY COUNT(*) DESC, 1`

	rows, err := database.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error kinds: %w", err)
	}
	defer rows.Close()

	var results []ErrorKindCount
	total := 0
	for rows.Next() {
		var c ErrorKindCount
		if err := rows.Scan(&c.Kind, &c.Count, &c.LastSeen); err != nil {
			return nil, fmt.Errorf("scan error kind: %w", err)
		}
		if c.Kind == "" {
			c.Kind = "other"
		}
		total += c.Count
		results = append(results, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range results {
		results[i].Pct = pct(results[i].Count, total)
	}
	return results, nil
}

// DailyRuns holds the number of runs started on one day.
type DailyRuns struct {
	Day    string `json:"day"`
	Runs   int    `json:"runs"`
	Failed int    `json:"failed"`
}

// QueryDailyRuns returns run counts grouped by day, oldest first.
func QueryDailyRuns(database DB, since string) ([]DailyRuns, error) {
	query := `
		SELECT date(timestamp) AS day, COUNT(*),
			SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END)
		FROM runs`
	args := []interface{}{}
	if since != "" {
		query += ` WHERE timestamp >= ?`
		args = append(args, since)
	}
	query += ` GROUP BY day ORDER BY day`

	rows, err := database.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query daily runs: %w", err)
	}
	defer rows.Close()

	var results []DailyRuns
	for rows.Next() {
		var d DailyRuns
		if err := rows.Scan(&d.Day, &d.Runs, &d.Failed); err != nil {
			return nil, fmt.Errorf("scan daily runs: %w", err)
		}
		results = append(results, d)
	}
	return results, rows.Err()
}

func avg(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return math.Round(sum/float64(len(values))*10) / 10
}

func percentile(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := float64(p) / 100.0 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper || upper >= len(sorted) {
		return math.Round(sorted[lower]*10) / 10
	}
	weight := rank - float64(lower)
	return math.Round((sorted[lower]*(1-weight)+sorted[upper]*weight)*10) / 10
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(total)*1000) / 10
}
