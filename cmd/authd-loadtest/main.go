package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrEthical07/tenantauth"
	otelexport "github.com/MrEthical07/tenantauth/metrics/export/otel"
	"github.com/MrEthical07/tenantauth/store/memory"
)

const loadPassword = "Load-test-1!"

type sessionState struct {
	access  string
	refresh string
	mu      sync.Mutex
}

// codeBox hands OTP codes from the notifier to the seeding loop.
type codeBox struct {
	mu    sync.Mutex
	codes map[string]string
}

func (b *codeBox) SendOTP(_ context.Context, msg tenantauth.OTPMessage) error {
	b.mu.Lock()
	b.codes[msg.UserID] = msg.Code
	b.mu.Unlock()
	return nil
}

func (b *codeBox) SendPasswordReset(context.Context, tenantauth.ResetMessage) error { return nil }

func (b *codeBox) take(userID string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	code := b.codes[userID]
	delete(b.codes, userID)
	return code
}

func main() {
	var (
		users       = flag.Int("users", 200, "number of users to seed, one session each")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "operations per phase (validate + refresh)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		argonMemory = flag.Uint("argon-memory", 8*1024, "argon2id memory in KiB for seeded users")
		strict      = flag.Bool("strict", true, "validate access tokens in strict mode")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	store := memory.New()
	store.AddCompany("load")
	store.AddRole(tenantauth.Role{ID: "member", Name: "Member", TenantScoped: true}, "view_reports")

	cfg := tenantauth.DefaultConfig()
	cfg.JWT.PrivateKey = []byte(strings.Repeat("k", 32))
	cfg.Password.Memory = uint32(*argonMemory)
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Audit.Enabled = false
	// Each session refreshes many times per minute here.
	cfg.Refresh.MaxAttempts = 0

	codes := &codeBox{codes: make(map[string]string)}
	engine, err := tenantauth.New().
		WithConfig(cfg).
		WithRedis(client).
		WithCredentialStore(store).
		WithNotifier(codes).
		WithLatencyHistograms(true).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build failed: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(ctx) }()
	exporter, err := otelexport.NewExporter(provider.Meter("tenantauth-loadtest"), engine)
	if err != nil {
		fmt.Fprintf(os.Stderr, "exporter failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = exporter.Close() }()

	states := make([]sessionState, *users)
	fmt.Printf("seeding %d users...\n", *users)
	startSeed := time.Now()
	for i := range states {
		if err := seed(ctx, engine, codes, i, &states[i]); err != nil {
			fmt.Fprintf(os.Stderr, "seed %d failed: %v\n", i, err)
			os.Exit(1)
		}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	mode := tenantauth.ModeJWTOnly
	if *strict {
		mode = tenantauth.ModeStrict
	}
	validateStats := runValidatePhase(ctx, engine, mode, states, *ops, *concurrency)
	refreshStats := runRefreshPhase(ctx, engine, states, *ops, *concurrency)

	fmt.Println("---- results ----")
	printStats("validate", validateStats)
	printStats("refresh", refreshStats)

	if err := printCounters(ctx, reader); err != nil {
		fmt.Fprintf(os.Stderr, "collect metrics: %v\n", err)
		os.Exit(1)
	}
}

func seed(ctx context.Context, engine *tenantauth.Engine, codes *codeBox, i int, state *sessionState) error {
	email := fmt.Sprintf("user%d@load.test", i)
	if _, err := engine.CreateUser(ctx, tenantauth.NewUser{
		Email: email, Password: loadPassword, RoleID: "member", CompanyID: "load",
	}); err != nil {
		return err
	}
	res, err := engine.Login(ctx, email, loadPassword)
	if err != nil {
		return err
	}
	pair, err := engine.VerifyLoginOTP(ctx, res.UserID, codes.take(res.UserID))
	if err != nil {
		return err
	}
	state.access = pair.AccessToken
	state.refresh = pair.RefreshToken
	return nil
}

func runValidatePhase(ctx context.Context, engine *tenantauth.Engine, mode tenantauth.ValidationMode, states []sessionState, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				state := &states[r.Intn(len(states))]
				state.mu.Lock()
				token := state.access
				state.mu.Unlock()

				t0 := time.Now()
				_, err := engine.ValidateAccessMode(ctx, token, mode)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

// runRefreshPhase serializes rotations per session; presenting a rotated
// token twice would trip reuse detection and revoke the family.
func runRefreshPhase(ctx context.Context, engine *tenantauth.Engine, states []sessionState, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*6151))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				state := &states[r.Intn(len(states))]

				state.mu.Lock()
				t0 := time.Now()
				pair, err := engine.Refresh(ctx, state.refresh)
				d := time.Since(t0)
				if err == nil {
					state.access = pair.AccessToken
					state.refresh = pair.RefreshToken
				} else {
					atomic.AddInt64(&failures, 1)
				}
				state.mu.Unlock()

				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

// printCounters prints every non-zero engine counter as seen by the otel
// exporter.
func printCounters(ctx context.Context, reader *sdkmetric.ManualReader) error {
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		return err
	}

	values := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				if dp.Value != 0 {
					values[m.Name] += dp.Value
				}
			}
		}
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("---- counters ----")
	for _, name := range names {
		fmt.Printf("%-40s %d\n", name, values[name])
	}
	return nil
}
