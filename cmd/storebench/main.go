package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/d60-Lab/market-chat/config"
	"github.com/d60-Lab/market-chat/internal/model"
	"github.com/d60-Lab/market-chat/internal/repository"
	"github.com/d60-Lab/market-chat/pkg/database"
)

// 压测参数，可用同名环境变量覆盖
var (
	Pairs       = envInt("PAIRS", 500)      // 买家-商品会话数
	PerPair     = envInt("PER_PAIR", 20)    // 每个会话的消息数
	Duration    = envInt("DURATION", 15)    // 每个查询场景的秒数
	Concurrency = envInt("CONCURRENCY", 50) // 并发 goroutine 数
)

type BenchResult struct {
	Name            string
	Duration        time.Duration
	TotalRequests   int64
	SuccessRequests int64
	FailedRequests  int64
	QPS             float64
	AvgLatency      time.Duration
	P50Latency      time.Duration
	P95Latency      time.Duration
	P99Latency      time.Duration
}

type conversation struct {
	buyer, seller, product string
}

func envInt(name string, def int) int {
	if s := os.Getenv(name); s != "" {
		if v, e := strconv.Atoi(s); e == nil && v > 0 {
			return v
		}
	}
	return def
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func main() {
	ctx := context.Background()
	cfg := must(config.Load())

	fmt.Println("===== 消息存储压测 =====")
	fmt.Printf("会话数: %d, 每会话消息: %d, 并发: %d, 查询时长: %ds\n\n", Pairs, PerPair, Concurrency, Duration)

	convs := make([]conversation, Pairs)
	for i := range convs {
		convs[i] = conversation{buyer: uuid.NewString(), seller: uuid.NewString(), product: uuid.NewString()}
	}

	stores := map[string]repository.MessageRepository{}

	db := must(database.InitDB(cfg))
	defer database.Close(db)
	if err := db.AutoMigrate(&model.Message{}); err != nil {
		panic(err)
	}
	_ = db.Exec("DELETE FROM messages").Error
	stores["sql/"+cfg.Database.Driver] = repository.NewMessageRepository(db)

	// mongo 可选：没有配置地址时只压 SQL
	if uri := os.Getenv("MONGO_URI"); uri != "" {
		cfg.Database.MongoURI = uri
	}
	if cfg.Database.MongoURI != "" {
		client := must(database.InitMongo(ctx, cfg))
		defer client.Disconnect(context.Background())
		mdb := client.Database(cfg.Database.MongoDB)
		_ = mdb.Collection("messages").Drop(ctx)
		if err := repository.EnsureMessageIndexes(ctx, mdb); err != nil {
			panic(err)
		}
		stores["mongo"] = repository.NewMongoMessageRepository(mdb)
	}

	names := make([]string, 0, len(stores))
	for name := range stores {
		names = append(names, name)
	}
	sort.Strings(names)

	var results []*BenchResult
	for _, name := range names {
		repo := stores[name]
		fmt.Printf("--- %s ---\n", name)
		results = append(results, benchAppend(ctx, repo, convs, name+" append"))
		results = append(results, benchQuery(ctx, name+" history", func() error {
			c := convs[rand.Intn(len(convs))]
			_, err := repo.History(ctx, c.buyer, c.seller, c.product)
			return err
		}))
		results = append(results, benchQuery(ctx, name+" inbox scan", func() error {
			c := convs[rand.Intn(len(convs))]
			_, err := repo.ListReceived(ctx, c.seller)
			return err
		}))
		fmt.Println()
	}

	for _, r := range results {
		printBenchResult(r)
	}
}

// benchAppend 并发写入全部消息，同一会话内按顺序写
func benchAppend(ctx context.Context, repo repository.MessageRepository, convs []conversation, name string) *BenchResult {
	var (
		total, failed int64
		latencies     []time.Duration
		mu            sync.Mutex
		wg            sync.WaitGroup
	)
	work := make(chan conversation)
	start := time.Now()
	for i := 0; i < Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]time.Duration, 0, PerPair)
			for c := range work {
				for k := 0; k < PerPair; k++ {
					m := &model.Message{SenderID: c.buyer, ReceiverID: c.seller, ProductID: c.product, Body: fmt.Sprintf("msg %d", k)}
					if k%2 == 1 {
						m.SenderID, m.ReceiverID = c.seller, c.buyer
					}
					st := time.Now()
					err := repo.Append(ctx, m)
					local = append(local, time.Since(st))
					atomic.AddInt64(&total, 1)
					if err != nil {
						if atomic.AddInt64(&failed, 1) <= 3 {
							fmt.Printf("写入失败: %v\n", err)
						}
					}
				}
			}
			mu.Lock()
			latencies = append(latencies, local...)
			mu.Unlock()
		}()
	}
	for _, c := range convs {
		work <- c
	}
	close(work)
	wg.Wait()
	return calculateResult(name, time.Since(start), total, total-failed, failed, latencies)
}

// benchQuery 在固定时长内并发执行 call
func benchQuery(ctx context.Context, name string, call func() error) *BenchResult {
	var (
		total, failed int64
		latencies     []time.Duration
		mu            sync.Mutex
		wg            sync.WaitGroup
	)
	start := time.Now()
	stopAt := start.Add(time.Duration(Duration) * time.Second)
	for i := 0; i < Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var local []time.Duration
			for time.Now().Before(stopAt) && ctx.Err() == nil {
				st := time.Now()
				err := call()
				local = append(local, time.Since(st))
				atomic.AddInt64(&total, 1)
				if err != nil {
					atomic.AddInt64(&failed, 1)
				}
			}
			mu.Lock()
			latencies = append(latencies, local...)
			mu.Unlock()
		}()
	}
	wg.Wait()
	return calculateResult(name, time.Since(start), total, total-failed, failed, latencies)
}

func calculateResult(name string, duration time.Duration, total, success, failed int64, latencies []time.Duration) *BenchResult {
	r := &BenchResult{
		Name:            name,
		Duration:        duration,
		TotalRequests:   total,
		SuccessRequests: success,
		FailedRequests:  failed,
	}
	if duration > 0 {
		r.QPS = float64(total) / duration.Seconds()
	}
	if len(latencies) == 0 {
		return r
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	r.AvgLatency = sum / time.Duration(len(latencies))
	r.P50Latency = percentile(latencies, 0.50)
	r.P95Latency = percentile(latencies, 0.95)
	r.P99Latency = percentile(latencies, 0.99)
	return r
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func printBenchResult(r *BenchResult) {
	fmt.Printf("%-24s total=%d ok=%d failed=%d qps=%.0f avg=%v p50=%v p95=%v p99=%v (%v)\n",
		r.Name, r.TotalRequests, r.SuccessRequests, r.FailedRequests, r.QPS,
		r.AvgLatency, r.P50Latency, r.P95Latency, r.P99Latency, r.Duration.Round(time.Millisecond))
}
