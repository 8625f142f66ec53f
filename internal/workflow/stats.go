package workflow

import (
	"sort"
	"sync"
	"time"
)

// RunStats aggregates the results of one run.
type RunStats struct {
	RunID          string        `json:"run_id"`
	Requested      int           `json:"requested"`
	Processed      int           `json:"processed"`
	Succeeded      int           `json:"succeeded"`
	Failed         int           `json:"failed"`
	Canceled       int           `json:"canceled"`
	TasksCompleted int           `json:"tasks_completed"`
	TasksTotal     int           `json:"tasks_total"`
	Duration       time.Duration `json:"duration"`
	Results        []Result      `json:"-"`
}

type statsCollector struct {
	mu    sync.Mutex
	stats RunStats
}

func (c *statsCollector) add(result Result) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Processed++
	switch result.Outcome() {
	case "succeeded":
		c.stats.Succeeded++
	case "canceled":
		c.stats.Canceled++
	default:
		c.stats.Failed++
	}
	c.stats.TasksCompleted += result.Completed
	c.stats.TasksTotal += result.Total
	c.stats.Results = append(c.stats.Results, result)
	return c.stats.Processed
}

func (c *statsCollector) snapshot() RunStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.stats
	out.Results = append([]Result(nil), c.stats.Results...)
	sort.Slice(out.Results, func(i, j int) bool { return out.Results[i].Index < out.Results[j].Index })
	return out
}
