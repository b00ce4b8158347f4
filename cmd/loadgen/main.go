// Command loadgen posts batches of jobs against a running API for load and
// soak testing.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

func main() {
	var (
		baseURL     = flag.String("url", "http://localhost:8000", "API base URL")
		count       = flag.Int("count", 100, "number of jobs to create")
		concurrency = flag.Int("concurrency", 8, "concurrent producers")
		taskType    = flag.String("task-type", "echo", "task type for generated jobs")
		partitions  = flag.Int("partitions", 10, "partition key spread")
	)
	flag.Parse()

	if *count < 1 || *concurrency < 1 || *partitions < 1 {
		fmt.Fprintln(os.Stderr, "count, concurrency and partitions must be positive")
		os.Exit(2)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	jobs := make(chan int)
	var created, failed atomic.Int64

	start := time.Now()
	var wg sync.WaitGroup
	for w := 0; w < *concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if err := postJob(client, *baseURL, *taskType, i, *partitions); err != nil {
					failed.Add(1)
					slog.Warn("job create failed", slog.Int("index", i), slog.Any("error", err))
					continue
				}
				created.Add(1)
			}
		}()
	}
	for i := 0; i < *count; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	elapsed := time.Since(start)
	fmt.Printf("created=%d failed=%d elapsed=%s rate=%.1f/s\n",
		created.Load(), failed.Load(), elapsed.Round(time.Millisecond),
		float64(created.Load())/elapsed.Seconds())
	if failed.Load() > 0 {
		os.Exit(1)
	}
}

func postJob(client *http.Client, baseURL, taskType string, index, partitions int) error {
	body, err := json.Marshal(map[string]any{
		"payload": map[string]any{
			"task_type": taskType,
			"data":      map[string]any{"message": fmt.Sprintf("load-%d", index), "index": index},
		},
		"partition_key": fmt.Sprintf("load-%d", index%partitions),
	})
	if err != nil {
		return err
	}
	resp, err := client.Post(baseURL+"/jobs", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
