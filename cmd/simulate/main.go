package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicdesk/clinic-scheduling/internal/db"
)

// The simulator hammers one doctor's day with concurrent bookings and then
// verifies the persisted schedule is pairwise non-overlapping. Any overlap in
// the final state is a correctness failure, not a load problem.

type SimConfig struct {
	APIBaseURL  string
	Workers     int
	Requests    int
	PostgresDSN string
	Date        string
}

type Metrics struct {
	Total    int64
	Success  int64
	Conflict int64
	Invalid  int64
	Error    int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (m *Metrics) Record(latency time.Duration, status int) {
	atomic.AddInt64(&m.Total, 1)
	switch {
	case status == http.StatusCreated:
		atomic.AddInt64(&m.Success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&m.Conflict, 1)
	case status == http.StatusBadRequest:
		atomic.AddInt64(&m.Invalid, 1)
	default:
		atomic.AddInt64(&m.Error, 1)
	}

	m.mu.Lock()
	m.latencies = append(m.latencies, latency)
	m.mu.Unlock()
}

func (m *Metrics) Stats() (avg, p50, p95 time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.latencies) == 0 {
		return 0, 0, 0
	}

	latencies := make([]time.Duration, len(m.latencies))
	copy(latencies, m.latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	p50 = latencies[len(latencies)*50/100]
	p95 = latencies[min(len(latencies)*95/100, len(latencies)-1)]
	return avg, p50, p95
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := loadSimConfig()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	cancel()
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	doctorID, err := pickDoctor(context.Background(), pool)
	if err != nil {
		log.Fatalf("pick doctor: %v", err)
	}
	patients, err := loadPatients(context.Background(), pool, 200)
	if err != nil {
		log.Fatalf("load patients: %v", err)
	}
	log.Printf("simulating against doctor=%s date=%s workers=%d requests=%d", doctorID, cfg.Date, cfg.Workers, cfg.Requests)

	slots, err := fetchFreeSlots(cfg.APIBaseURL, doctorID, cfg.Date)
	if err != nil {
		log.Fatalf("fetch availability: %v", err)
	}
	if len(slots) == 0 {
		log.Fatalf("doctor %s has no free slots on %s", doctorID, cfg.Date)
	}
	log.Printf("found %d free slots", len(slots))

	metrics := &Metrics{}
	client := &http.Client{Timeout: 10 * time.Second}

	var wg sync.WaitGroup
	requests := make(chan int)

	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range requests {
				slot := slots[rand.Intn(len(slots))]
				patient := patients[rand.Intn(len(patients))]
				bookSlot(client, cfg.APIBaseURL, metrics, doctorID, patient, slot)
			}
		}()
	}

	start := time.Now()
	for i := 0; i < cfg.Requests; i++ {
		requests <- i
	}
	close(requests)
	wg.Wait()
	elapsed := time.Since(start)

	avg, p50, p95 := metrics.Stats()
	log.Printf("done in %s: total=%d success=%d conflict=%d invalid=%d error=%d",
		elapsed, metrics.Total, metrics.Success, metrics.Conflict, metrics.Invalid, metrics.Error)
	log.Printf("latency avg=%s p50=%s p95=%s", avg, p50, p95)

	if err := verifyNoOverlap(context.Background(), pool, doctorID, cfg.Date); err != nil {
		log.Fatalf("INVARIANT VIOLATION: %v", err)
	}
	log.Println("verified: scheduled appointments are pairwise non-overlapping")

	if int64(len(slots)) < metrics.Success {
		log.Fatalf("INVARIANT VIOLATION: %d bookings succeeded for %d slots", metrics.Success, len(slots))
	}
}

func loadSimConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:  getEnv("API_BASE_URL", "http://127.0.0.1:8080"),
		Workers:     getInt("SIM_WORKERS", 16),
		Requests:    getInt("SIM_REQUESTS", 500),
		PostgresDSN: os.Getenv("POSTGRES_DSN"),
		Date:        getEnv("SIM_DATE", nextMonday().Format("2006-01-02")),
	}
	if cfg.PostgresDSN == "" {
		log.Fatal("POSTGRES_DSN is required")
	}
	return cfg
}

func nextMonday() time.Time {
	d := time.Now().AddDate(0, 0, 1)
	for d.Weekday() != time.Monday {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

func pickDoctor(ctx context.Context, pool *pgxpool.Pool) (uuid.UUID, error) {
	var id uuid.UUID
	err := pool.QueryRow(ctx, `SELECT id FROM doctors ORDER BY random() LIMIT 1`).Scan(&id)
	return id, err
}

func loadPatients(ctx context.Context, pool *pgxpool.Pool, limit int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, `SELECT id FROM patients LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no patients seeded")
	}
	return ids, rows.Err()
}

type availabilityPayload struct {
	Slots []struct {
		Start  time.Time `json:"start"`
		End    time.Time `json:"end"`
		Status string    `json:"status"`
	} `json:"slots"`
}

func fetchFreeSlots(baseURL string, doctorID uuid.UUID, date string) ([]time.Time, error) {
	resp, err := http.Get(fmt.Sprintf("%s/doctors/%s/availability?date=%s", baseURL, doctorID, date))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("availability returned %d: %s", resp.StatusCode, body)
	}

	var payload availabilityPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	var free []time.Time
	for _, s := range payload.Slots {
		if s.Status == "free" {
			free = append(free, s.Start)
		}
	}
	return free, nil
}

func bookSlot(client *http.Client, baseURL string, metrics *Metrics, doctorID, patientID uuid.UUID, slot time.Time) {
	body, _ := json.Marshal(map[string]string{
		"patient_id":     patientID.String(),
		"doctor_id":      doctorID.String(),
		"scheduled_time": slot.Format(time.RFC3339),
		"reason":         "simulated booking",
	})

	start := time.Now()
	resp, err := client.Post(baseURL+"/appointments", "application/json", bytes.NewReader(body))
	latency := time.Since(start)
	if err != nil {
		metrics.Record(latency, 0)
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	metrics.Record(latency, resp.StatusCode)
}

func verifyNoOverlap(ctx context.Context, pool *pgxpool.Pool, doctorID uuid.UUID, date string) error {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return err
	}

	rows, err := pool.Query(ctx, `
		SELECT id, scheduled_time, duration_minutes
		FROM appointments
		WHERE doctor_id = $1
		  AND status = 'scheduled'
		  AND scheduled_time >= $2
		  AND scheduled_time < $3
		ORDER BY scheduled_time
	`, doctorID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return err
	}
	defer rows.Close()

	type interval struct {
		id         uuid.UUID
		start, end time.Time
	}

	var prev *interval
	for rows.Next() {
		var cur interval
		var durationMinutes int
		if err := rows.Scan(&cur.id, &cur.start, &durationMinutes); err != nil {
			return err
		}
		cur.end = cur.start.Add(time.Duration(durationMinutes) * time.Minute)

		if prev != nil && cur.start.Before(prev.end) {
			return fmt.Errorf("appointments %s and %s overlap", prev.id, cur.id)
		}
		prev = &cur
	}
	return rows.Err()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
