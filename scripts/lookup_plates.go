package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// lookupResult is one plate checked against a running proxy.
type lookupResult struct {
	Plate    string
	Status   int
	Cached   bool
	Error    string
	Duration time.Duration
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run lookup_plates.go <path-to-csv> [base-url]")
		fmt.Println("Example: go run lookup_plates.go plates.csv http://localhost:3000")
		os.Exit(1)
	}

	csvPath := os.Args[1]
	baseURL := "http://localhost:3000"
	if len(os.Args) > 2 {
		baseURL = strings.TrimRight(os.Args[2], "/")
	}

	plates, err := readPlates(csvPath)
	if err != nil {
		fmt.Printf("Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Read %d plates from %s\n", len(plates), csvPath)

	results := lookupAll(baseURL, plates, 4)

	byStatus := map[int]int{}
	cached := 0
	for _, r := range results {
		byStatus[r.Status]++
		if r.Cached {
			cached++
		}
		line := fmt.Sprintf("%-10s %3d %8s", r.Plate, r.Status, r.Duration.Round(time.Millisecond))
		if r.Error != "" {
			line += "  " + r.Error
		}
		fmt.Println(line)
	}

	statuses := make([]int, 0, len(byStatus))
	for s := range byStatus {
		statuses = append(statuses, s)
	}
	sort.Ints(statuses)

	fmt.Println("\nSummary:")
	for _, s := range statuses {
		fmt.Printf("  %3d: %d\n", s, byStatus[s])
	}
	fmt.Printf("  served from cache: %d\n", cached)
}

// readPlates takes the first column of every row, skipping a header row
// named "kenteken" or "plate".
func readPlates(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	var plates []string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(record) == 0 {
			continue
		}
		plate := strings.TrimSpace(record[0])
		switch strings.ToLower(plate) {
		case "", "kenteken", "plate":
			continue
		}
		plates = append(plates, plate)
	}
	return plates, nil
}

func lookupAll(baseURL string, plates []string, workers int) []lookupResult {
	client := &http.Client{Timeout: 30 * time.Second}
	results := make([]lookupResult, len(plates))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = lookup(client, baseURL, plates[i])
			}
		}()
	}
	for i := range plates {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}

func lookup(client *http.Client, baseURL, plate string) lookupResult {
	start := time.Now()
	res := lookupResult{Plate: plate}

	resp, err := client.Get(baseURL + "/api/vehicle?plate=" + url.QueryEscape(plate))
	res.Duration = time.Since(start)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	defer resp.Body.Close()

	res.Status = resp.StatusCode

	var body struct {
		Cached bool   `json:"cached"`
		Error  string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		res.Error = fmt.Sprintf("decode response: %v", err)
		return res
	}
	res.Cached = body.Cached
	res.Error = body.Error
	return res
}
