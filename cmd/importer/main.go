// Importer loads a CSV card statement into Kestrel and reports how the
// fraud rules did against labelled rows.
//
// Usage:
//
//	go run ./cmd/importer -csv statement.csv -url http://localhost:8080 -user user-001
//
// The CSV needs a header. Recognized columns (case-insensitive):
// id, userid, cardid, date, amount, merchant, category, country, city,
// isfraud. Only amount, merchant and category are required. When isfraud
// is present the run ends with a confusion matrix.
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Row is one parsed statement line.
type Row struct {
	ID       string
	UserID   string
	CardID   string
	Date     string
	Amount   float64
	Merchant string
	Category string
	Country  string
	City     string

	Labelled bool
	IsFraud  bool
}

// TransactionRequest is the Kestrel ingest payload.
type TransactionRequest struct {
	ID           string    `json:"id,omitempty"`
	UserID       string    `json:"userId"`
	CardID       string    `json:"cardId,omitempty"`
	Amount       float64   `json:"amount"`
	MerchantName string    `json:"merchantName"`
	Category     string    `json:"category"`
	Date         string    `json:"date,omitempty"`
	Location     *Location `json:"location,omitempty"`
}

type Location struct {
	Country string `json:"country,omitempty"`
	City    string `json:"city,omitempty"`
}

// IngestResponse is the inline-mode ingest response.
type IngestResponse struct {
	Flagged bool `json:"flagged"`
}

// ScanResponse is the scan endpoint response.
type ScanResponse struct {
	Scanned int `json:"scanned"`
	Flagged int `json:"flagged"`
}

// Metrics tracks import results
type Metrics struct {
	TruePositives  int64 // Fraud flagged
	FalsePositives int64 // Legitimate flagged
	TrueNegatives  int64 // Legitimate passed
	FalseNegatives int64 // Fraud passed (missed fraud!)

	Imported int64
	Flagged  int64
	Queued   int64
	Errors   int64

	ProcessingTimeMs int64
}

func main() {
	csvPath := flag.String("csv", "", "Path to the statement CSV")
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	userID := flag.String("user", "default_user", "User for rows without a userid column")
	limit := flag.Int("limit", 0, "Maximum rows to import (0 = all)")
	workers := flag.Int("workers", 4, "Number of concurrent workers")
	scan := flag.Bool("scan", true, "Run a fraud scan for each imported user afterwards")
	verbose := flag.Bool("verbose", false, "Print each row result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: importer -csv statement.csv [-url http://localhost:8080] [-user user-001]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║              KESTREL IMPORTER - CSV Statements                ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("Kestrel URL: %s\n", *baseURL)
	fmt.Printf("User:        %s\n", *userID)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  go run ./cmd/kestrel serve")
		os.Exit(1)
	}
	fmt.Println("✓ Kestrel is healthy")

	rows, err := readStatement(*csvPath, *userID, *limit)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d rows\n", len(rows))

	fmt.Printf("\nImporting with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runImport(rows, *baseURL, *workers, *verbose)
	duration := time.Since(startTime)

	if *scan {
		runScans(rows, *baseURL)
	}

	printResults(metrics, duration, hasLabels(rows))
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func readStatement(path, defaultUser string, limit int) ([]Row, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return parseStatement(file, defaultUser, limit)
}

func parseStatement(r io.Reader, defaultUser string, limit int) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, required := range []string{"amount", "merchant", "category"} {
		if _, ok := colIndex[required]; !ok {
			return nil, fmt.Errorf("missing required column %q", required)
		}
	}

	field := func(record []string, name string) string {
		i, ok := colIndex[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var rows []Row
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		amount, err := strconv.ParseFloat(field(record, "amount"), 64)
		if err != nil {
			continue
		}

		row := Row{
			ID:       field(record, "id"),
			UserID:   field(record, "userid"),
			CardID:   field(record, "cardid"),
			Date:     field(record, "date"),
			Amount:   amount,
			Merchant: field(record, "merchant"),
			Category: field(record, "category"),
			Country:  field(record, "country"),
			City:     field(record, "city"),
		}
		if row.UserID == "" {
			row.UserID = defaultUser
		}
		if label := field(record, "isfraud"); label != "" {
			row.Labelled = true
			row.IsFraud = label == "1" || strings.EqualFold(label, "true")
		}

		rows = append(rows, row)
		if limit > 0 && len(rows) >= limit {
			break
		}
	}

	return rows, nil
}

func hasLabels(rows []Row) bool {
	for _, r := range rows {
		if r.Labelled {
			return true
		}
	}
	return false
}

func runImport(rows []Row, baseURL string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan Row, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for row := range work {
				start := time.Now()
				flagged, queued, err := ingest(client, baseURL, row)
				atomic.AddInt64(&metrics.ProcessingTimeMs, time.Since(start).Milliseconds())

				if err != nil {
					atomic.AddInt64(&metrics.Errors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", row.Merchant, err)
					}
					continue
				}
				atomic.AddInt64(&metrics.Imported, 1)

				if queued {
					atomic.AddInt64(&metrics.Queued, 1)
					continue
				}
				if flagged {
					atomic.AddInt64(&metrics.Flagged, 1)
				}

				if row.Labelled {
					switch {
					case flagged && row.IsFraud:
						atomic.AddInt64(&metrics.TruePositives, 1)
					case flagged && !row.IsFraud:
						atomic.AddInt64(&metrics.FalsePositives, 1)
					case !flagged && !row.IsFraud:
						atomic.AddInt64(&metrics.TrueNegatives, 1)
					default:
						atomic.AddInt64(&metrics.FalseNegatives, 1)
					}
				}

				if verbose {
					fmt.Printf("%-30s | %-14s | $%10.2f | flagged: %v\n", row.Merchant, row.Category, row.Amount, flagged)
				}
			}
		}()
	}

	for _, row := range rows {
		work <- row
	}
	close(work)

	wg.Wait()

	return metrics
}

// ingest posts one row. queued is true when the server handed the row to
// its worker, in which case flagged is unknown.
func ingest(client *http.Client, baseURL string, row Row) (flagged, queued bool, err error) {
	req := TransactionRequest{
		ID:           row.ID,
		UserID:       row.UserID,
		CardID:       row.CardID,
		Amount:       row.Amount,
		MerchantName: row.Merchant,
		Category:     row.Category,
		Date:         row.Date,
	}
	if row.Country != "" || row.City != "" {
		req.Location = &Location{Country: row.Country, City: row.City}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return false, false, err
	}

	resp, err := client.Post(baseURL+"/transactions", "application/json", bytes.NewReader(body))
	if err != nil {
		return false, false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted:
		return false, true, nil
	case http.StatusCreated:
	default:
		msg, _ := io.ReadAll(resp.Body)
		return false, false, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result IngestResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, false, err
	}
	return result.Flagged, false, nil
}

func runScans(rows []Row, baseURL string) {
	seen := make(map[string]bool)
	client := &http.Client{Timeout: 30 * time.Second}

	fmt.Println()
	for _, row := range rows {
		if seen[row.UserID] {
			continue
		}
		seen[row.UserID] = true

		body, _ := json.Marshal(map[string]string{"userId": row.UserID})
		resp, err := client.Post(baseURL+"/security/transactions/scan", "application/json", bytes.NewReader(body))
		if err != nil {
			fmt.Printf("✗ scan %s: %v\n", row.UserID, err)
			continue
		}

		var result ScanResponse
		err = json.NewDecoder(resp.Body).Decode(&result)
		resp.Body.Close()
		if err != nil || resp.StatusCode != http.StatusOK {
			fmt.Printf("✗ scan %s: status %d\n", row.UserID, resp.StatusCode)
			continue
		}
		fmt.Printf("✓ scanned %s: %d checked, %d flagged\n", row.UserID, result.Scanned, result.Flagged)
	}
}

func printResults(m *Metrics, duration time.Duration, labelled bool) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                        IMPORT RESULTS                         ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 IMPORT\n")
	fmt.Printf("   Imported:  %d\n", m.Imported)
	fmt.Printf("   Flagged:   %d\n", m.Flagged)
	fmt.Printf("   Queued:    %d\n", m.Queued)
	fmt.Printf("   Errors:    %d\n", m.Errors)

	if labelled && m.Queued == 0 {
		fmt.Printf("\n📈 CONFUSION MATRIX\n")
		fmt.Println("                        Predicted")
		fmt.Println("                   FLAGGED     PASSED")
		fmt.Println("              ┌──────────┬──────────┐")
		fmt.Printf("   Actual  F  │ %8d │ %8d │  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
		fmt.Println("              ├──────────┼──────────┤")
		fmt.Printf("          NF  │ %8d │ %8d │  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
		fmt.Println("              └──────────┴──────────┘")

		precision := float64(0)
		if m.TruePositives+m.FalsePositives > 0 {
			precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
		}
		recall := float64(0)
		if m.TruePositives+m.FalseNegatives > 0 {
			recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
		}

		fmt.Printf("\n🎯 DETECTION\n")
		fmt.Printf("   Precision:  %.4f\n", precision)
		fmt.Printf("   Recall:     %.4f\n", recall)
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if total := m.Imported + m.Errors; total > 0 {
		fmt.Printf("   Avg Latency:      %.2f ms\n", float64(m.ProcessingTimeMs)/float64(total))
		fmt.Printf("   Throughput:       %.2f tx/sec\n", float64(total)/duration.Seconds())
	}
	fmt.Println()
}
