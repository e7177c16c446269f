package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"connectrpc.com/connect"
	"golang.org/x/time/rate"

	"github.com/kkkkikiki/referral/internal/auth"
	"github.com/kkkkikiki/referral/internal/model"
	"github.com/kkkkikiki/referral/internal/rpc"
	"github.com/kkkkikiki/referral/internal/service"
)

// PerfResult gathers aggregated metrics for the test run.
// Atomic counters are used to avoid lock‑contention on hot paths.
// LatencySum & P95Latency are in nanoseconds.
//
// P95Latency is maintained via a lightweight reservoir sampler.
type PerfResult struct {
	TotalRequests  int64
	SuccessCount   int64
	ExhaustedCount int64
	ErrorCount     int64
	LatencySum     int64
	P95Latency     int64
}

const (
	fixedWorkers   = 50
	fixedRPSTarget = 700
	defaultTimeout = 30 * time.Second
	// More referrals than uses, so the tail of the run races for the last slots.
	fixedMaxUses   = 2000
	fixedReferrals = 3000
	fixedConsumers = 200
	defaultBaseURL = "http://localhost:8080"
	defaultSecret  = "referral-dev-secret"
)

func main() {
	baseURL := envOr("PERF_BASE_URL", defaultBaseURL)
	secret := envOr("AUTH_JWT_SECRET", defaultSecret)
	issuer := auth.NewIssuer(secret, envOr("AUTH_ISSUER", "referral"), time.Hour)
	workers := fixedWorkers
	rps := fixedRPSTarget

	// ─── HTTP Client & Transport ─────────────────────────────────
	transport := &http.Transport{
		MaxIdleConns:        workers * 4,
		MaxIdleConnsPerHost: workers * 4,
		IdleConnTimeout:     90 * time.Second,
	}
	httpClient := &http.Client{
		Transport: transport,
		Timeout:   defaultTimeout,
	}

	// ─── Campaign handling ───────────────────────────────────────
	ownerID := fmt.Sprintf("perf-owner-%d", time.Now().UnixNano())
	biz := rpc.NewBusinessClient(httpClient, baseURL, mustToken(issuer, ownerID, service.RoleBusiness))

	campaign, err := createNewCampaign(biz, fixedMaxUses)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create campaign: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✅ 새 캠페인 생성됨: ID %s (최대 %d회 사용)\n", campaign.ID, fixedMaxUses)

	referrals, err := mintReferrals(httpClient, baseURL, issuer, campaign.ID.String(), workers)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to mint referrals: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✅ 추천 코드 발급됨: %d개\n", len(referrals))

	// ─── Banner ──────────────────────────────────────────────────
	fmt.Println("==========================================")
	fmt.Println("🚀 추천 정산 경합 부하 테스트")
	fmt.Println("==========================================")
	fmt.Printf("캠페인 ID  : %s\n", campaign.ID)
	fmt.Printf("RPS        : %d\n", rps)
	fmt.Printf("추천 코드  : %d\n", len(referrals))
	fmt.Println("==========================================")

	// ─── Rate limiter ───────────────────────────────────────────
	burst := rps / workers
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	var result PerfResult
	var wg sync.WaitGroup

	// latencyChan collects latencies for P95 estimation.
	latencyChan := make(chan time.Duration, 4096)
	p95Done := make(chan struct{})
	go func() {
		trackP95(latencyChan, &result)
		close(p95Done)
	}()

	jobs := make(chan string)
	ctx := context.Background()

	// ─── Workers ────────────────────────────────────────────────
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for referralID := range jobs {
				if err := limiter.Wait(ctx); err != nil {
					return
				}
				doRequest(biz, referralID, &result, latencyChan)
			}
		}()
	}

	start := time.Now()
	for _, id := range referrals {
		jobs <- id
	}
	close(jobs)

	// ─── Cleanup ────────────────────────────────────────────────
	wg.Wait()
	close(latencyChan)
	<-p95Done

	totalDur := time.Since(start)

	// ─── Report ─────────────────────────────────────────────────
	fmt.Println("==========================================")
	fmt.Println("📊 성능 테스트 결과")
	fmt.Println("==========================================")
	fmt.Printf("테스트 시간        : %.2f초\n", totalDur.Seconds())
	fmt.Printf("총 요청 수         : %d\n", result.TotalRequests)
	fmt.Printf("정산 성공          : %d\n", result.SuccessCount)
	fmt.Printf("사용 한도 초과     : %d\n", result.ExhaustedCount)
	fmt.Printf("실패한 요청        : %d\n", result.ErrorCount)

	actualRPS := float64(result.TotalRequests) / totalDur.Seconds()

	var avgLatency time.Duration
	if result.SuccessCount > 0 {
		avgLatency = time.Duration(result.LatencySum / result.SuccessCount)
	}

	fmt.Printf("실제 RPS           : %.2f\n", actualRPS)
	fmt.Printf("평균 레이턴시      : %v\n", avgLatency)
	fmt.Printf("P95 레이턴시       : %v\n", time.Duration(atomic.LoadInt64(&result.P95Latency)))
	fmt.Println("==========================================")

	// ─── Data Consistency Check ─────────────────────────────────
	fmt.Println("==========================================")
	fmt.Println("🔍 데이터 정합성 검증")
	fmt.Println("==========================================")

	if err := verifyDataConsistency(biz, campaign, result.SuccessCount); err != nil {
		fmt.Printf("❌ 정합성 검증 실패: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("✅ 데이터 정합성 확인 완료")
	fmt.Println("==========================================")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func mustToken(issuer *auth.Issuer, id string, role service.Role) string {
	tok, err := issuer.Issue(service.Caller{ID: id, Role: role})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to sign token: %v\n", err)
		os.Exit(1)
	}
	return tok
}

// createNewCampaign registers a business and creates a campaign capped at maxUses.
func createNewCampaign(biz *rpc.BusinessClient, maxUses int64) (*model.Campaign, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := biz.RegisterBusiness(ctx, &rpc.RegisterBusinessRequest{Name: "Perf Shop"}); err != nil {
		return nil, fmt.Errorf("register business failed: %w", err)
	}

	resp, err := biz.CreateCampaign(ctx, &rpc.CreateCampaignRequest{
		Title:     "perf run",
		ListPrice: 10_000,
		Budget:    2_000,
		MaxUses:   &maxUses,
	})
	if err != nil {
		return nil, fmt.Errorf("create campaign failed: %w", err)
	}
	if resp.Campaign == nil {
		return nil, fmt.Errorf("campaign response is nil")
	}
	return resp.Campaign, nil
}

// mintReferrals hands out fixedReferrals codes spread over fixedConsumers referrers.
func mintReferrals(httpClient *http.Client, baseURL string, issuer *auth.Issuer, campaignID string, workers int) ([]string, error) {
	clients := make([]*rpc.ConsumerClient, fixedConsumers)
	for i := range clients {
		id := fmt.Sprintf("perf-consumer-%d", i)
		clients[i] = rpc.NewConsumerClient(httpClient, baseURL, mustToken(issuer, id, service.RoleConsumer))
	}

	var (
		mu       sync.Mutex
		ids      = make([]string, 0, fixedReferrals)
		firstErr error
		next     int64 = -1
		wg       sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := atomic.AddInt64(&next, 1)
				if i >= fixedReferrals {
					return
				}
				ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
				resp, err := clients[i%fixedConsumers].CreateReferral(ctx, &rpc.CreateReferralRequest{CampaignID: campaignID})
				cancel()

				mu.Lock()
				if err != nil {
					if firstErr == nil {
						firstErr = err
					}
				} else {
					ids = append(ids, resp.Referral.ID.String())
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(ids) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return ids, nil
}

// doRequest performs a single CompleteRedemption RPC and collects metrics.
func doRequest(biz *rpc.BusinessClient, referralID string, result *PerfResult, latencyChan chan<- time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	start := time.Now()
	atomic.AddInt64(&result.TotalRequests, 1)

	resp, err := biz.CompleteRedemption(ctx, &rpc.CompleteRedemptionRequest{
		ReferralID:     referralID,
		IdempotencyKey: "perf-" + referralID,
	})
	latency := time.Since(start)

	var cerr *connect.Error
	switch {
	case err == nil && resp.Settlement != nil:
		atomic.AddInt64(&result.SuccessCount, 1)
		atomic.AddInt64(&result.LatencySum, latency.Nanoseconds())
		select {
		case latencyChan <- latency:
		default:
		}
	case errors.As(err, &cerr) && rpc.ReasonOf(err) == "campaign_usage_exceeded":
		atomic.AddInt64(&result.ExhaustedCount, 1)
	default:
		atomic.AddInt64(&result.ErrorCount, 1)
	}
}

// trackP95 maintains a best‑effort rolling P95 latency estimation.
func trackP95(latencies <-chan time.Duration, result *PerfResult) {
	const size = 1000
	buf := make([]int64, 0, size)

	for lat := range latencies {
		if len(buf) < size {
			buf = append(buf, lat.Nanoseconds())
		} else {
			// Replace random element (simple reservoir sampling)
			if idx := time.Now().UnixNano() % int64(size); idx < int64(size/10) {
				buf[idx] = lat.Nanoseconds()
			}
		}

		// Update P95 periodically
		if len(buf) >= 100 && len(buf)%100 == 0 {
			copyBuf := make([]int64, len(buf))
			copy(copyBuf, buf)
			quickSort(copyBuf)
			p95Index := int(float64(len(copyBuf)) * 0.95)
			if p95Index >= len(copyBuf) {
				p95Index = len(copyBuf) - 1
			}
			atomic.StoreInt64(&result.P95Latency, copyBuf[p95Index])
		}
	}
}

// quickSort sorts the array in ascending order
func quickSort(arr []int64) {
	if len(arr) < 2 {
		return
	}

	left, right := 0, len(arr)-1
	pivot := len(arr) / 2

	arr[pivot], arr[right] = arr[right], arr[pivot]

	for i := range arr {
		if arr[i] < arr[right] {
			arr[left], arr[i] = arr[i], arr[left]
			left++
		}
	}

	arr[left], arr[right] = arr[right], arr[left]

	quickSort(arr[:left])
	quickSort(arr[left+1:])
}

// verifyDataConsistency checks the settled count against the campaign counter
// and the business dashboard.
func verifyDataConsistency(biz *rpc.BusinessClient, campaign *model.Campaign, expected int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	list, err := biz.ListCampaigns(ctx, &rpc.ListCampaignsRequest{})
	if err != nil {
		return fmt.Errorf("failed to list campaigns: %w", err)
	}
	var current *model.Campaign
	for i := range list.Campaigns {
		if list.Campaigns[i].ID == campaign.ID {
			current = &list.Campaigns[i]
		}
	}
	if current == nil {
		return fmt.Errorf("campaign not found")
	}

	stats, err := biz.GetDashboardStats(ctx, &rpc.GetDashboardStatsRequest{})
	if err != nil {
		return fmt.Errorf("failed to get dashboard stats: %w", err)
	}

	fmt.Printf("캠페인 ID          : %s\n", current.ID)
	fmt.Printf("최대 사용 횟수     : %d\n", *current.MaxUses)
	fmt.Printf("사용 횟수 (DB)     : %d\n", current.CurrentUses)
	fmt.Printf("정산 성공 (테스트) : %d\n", expected)
	fmt.Printf("리워드 합계        : %d\n", stats.Stats.TotalRewardsPaid)

	if current.CurrentUses != expected {
		return fmt.Errorf("데이터 불일치: DB=%d, 테스트=%d, 차이=%d",
			current.CurrentUses, expected, current.CurrentUses-expected)
	}
	if current.CurrentUses > *current.MaxUses {
		return fmt.Errorf("over-redemption 발생: 사용=%d > 최대=%d", current.CurrentUses, *current.MaxUses)
	}
	if stats.Stats.TotalRedemptions != current.CurrentUses {
		return fmt.Errorf("대시보드 불일치: 대시보드=%d, 캠페인=%d", stats.Stats.TotalRedemptions, current.CurrentUses)
	}
	if want := current.CurrentUses * current.ReferrerReward; stats.Stats.TotalRewardsPaid != want {
		return fmt.Errorf("리워드 불일치: 대시보드=%d, 기대값=%d", stats.Stats.TotalRewardsPaid, want)
	}
	return nil
}
