package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/payrail/internal/domain"
	"github.com/punchamoorthee/payrail/internal/models"
)

var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
	accounts    int
	schemeName  string
	idempotent  bool
)

// Outcome counters
var (
	totalRequests uint64
	succeeded     uint64 // 200
	rejected      uint64 // 400 business rejections
	conflicts     uint64 // 409 in-flight idempotency keys
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot")
	flag.IntVar(&accounts, "accounts", 1000, "Number of seeded BENCH accounts")
	flag.StringVar(&schemeName, "scheme", string(domain.SchemeFasterPayments), "Payment scheme")
	flag.BoolVar(&idempotent, "idempotency", true, "Send an Idempotency-Key per request")
}

func main() {
	flag.Parse()
	if _, err := domain.ParseScheme(schemeName); err != nil {
		log.Fatal(err)
	}
	log.Printf("Starting Benchmark: %s | Workers: %d | Duration: %s", workload, concurrency, duration)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, start)
	}

	wg.Wait()
	printResults(time.Since(start))
}

func worker(wg *sync.WaitGroup, start time.Time) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}

	for time.Since(start) < duration {
		from, to := generateAccounts()

		body, _ := json.Marshal(models.PaymentRequest{
			DebtorAccountNumber:   from,
			CreditorAccountNumber: to,
			Amount:                decimal.NewFromInt(1),
			PaymentScheme:         schemeName,
		})

		req, _ := http.NewRequest(http.MethodPost, targetURL+"/api/v1/payments", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		if idempotent {
			req.Header.Set("Idempotency-Key", uuid.NewString())
		}

		resp, err := client.Do(req)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}

		atomic.AddUint64(&totalRequests, 1)
		switch resp.StatusCode {
		case http.StatusOK:
			atomic.AddUint64(&succeeded, 1)
		case http.StatusBadRequest:
			atomic.AddUint64(&rejected, 1)
		case http.StatusConflict:
			atomic.AddUint64(&conflicts, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
		resp.Body.Close()
	}
}

// generateAccounts picks a debtor/creditor pair of seeded benchmark accounts.
func generateAccounts() (string, string) {
	if workload == "hotspot" {
		// Hotspot: 90% of traffic bounces between the first two accounts
		if rand.Float32() < 0.90 {
			if rand.Float32() < 0.5 {
				return benchAccount(1), benchAccount(2)
			}
			return benchAccount(2), benchAccount(1)
		}
	}

	a := rand.Intn(accounts) + 1
	b := rand.Intn(accounts) + 1
	for a == b {
		b = rand.Intn(accounts) + 1
	}
	return benchAccount(a), benchAccount(b)
}

// benchAccount must match the seeder's numbering.
func benchAccount(i int) string {
	return fmt.Sprintf("BENCH%05d", i)
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	ok := atomic.LoadUint64(&succeeded)
	rej := atomic.LoadUint64(&rejected)
	f409 := atomic.LoadUint64(&conflicts)
	fErr := atomic.LoadUint64(&failOther)

	var rejectRate float64
	if total > 0 {
		rejectRate = float64(rej) / float64(total) * 100
	}

	results := map[string]interface{}{
		"workload":        workload,
		"scheme":          schemeName,
		"duration_sec":    d.Seconds(),
		"total_requests":  total,
		"throughput_tps":  float64(total) / d.Seconds(),
		"succeeded":       ok,
		"rejected":        rej,
		"reject_rate_pct": rejectRate,
		"conflicts":       f409,
		"errors":          fErr,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	filename := fmt.Sprintf("results_%s.json", workload)
	file, err := os.Create(filename)
	if err != nil {
		log.Printf("could not write %s: %v", filename, err)
		return
	}
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
