package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/d60-Lab/market-chat/config"
	"github.com/d60-Lab/market-chat/internal/model"
	"github.com/d60-Lab/market-chat/internal/repository"
	"github.com/d60-Lab/market-chat/pkg/database"
)

// request 模拟一次收件箱渲染需要解析的对端与商品
type request struct {
	users    []string
	products []string
}

type scenarioResult struct {
	durations   []time.Duration
	bulkLoads   int64
	cacheKeys   int
	memoryBytes int64
}

func main() {
	ctx := context.Background()
	cfg := must(config.Load())
	db := must(database.InitDB(cfg))
	defer database.Close(db)
	mustDo(db.AutoMigrate(&model.User{}, &model.Product{}))
	mustDo(db.Exec("DELETE FROM products").Error)
	mustDo(db.Exec("DELETE FROM users").Error)

	userCount := envInt("USERS", 20000)
	productCount := envInt("PRODUCTS", 2000)
	requests := envInt("REQUESTS", 3000)

	fmt.Println("Setting up directory data...")
	users := make([]model.User, userCount)
	userIDs := make([]string, userCount)
	for i := range users {
		id := uuid.NewString()
		users[i] = model.User{ID: id, Name: fmt.Sprintf("user_%d", i), Email: fmt.Sprintf("user_%d@example.com", i), Password: "secret", Role: model.RoleBuyer}
		userIDs[i] = id
	}
	mustDo(db.CreateInBatches(&users, 1000).Error)
	products := make([]model.Product, productCount)
	productIDs := make([]string, productCount)
	for i := range products {
		id := uuid.NewString()
		products[i] = model.Product{ID: id, Title: fmt.Sprintf("item %d", i), Images: []string{id[:8] + ".jpg"}, Status: model.ProductAvailable, PostedBy: userIDs[i%userCount]}
		productIDs[i] = id
	}
	mustDo(db.CreateInBatches(&products, 1000).Error)

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = cfg.Redis.Addr
	}
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer client.Close()
	if err := client.Ping(ctx).Err(); err != nil {
		panic(fmt.Sprintf("Failed to connect to Redis at %s: %v", redisAddr, err))
	}

	reqs := makeRequests(requests, userIDs, productIDs)
	userRepo := repository.NewUserRepository(db)
	productRepo := repository.NewProductRepository(db)

	noCache := runScenario(ctx, client, nil, reqs, false, func(ctx context.Context, r request) error {
		if _, err := userRepo.Users(ctx, r.users); err != nil {
			return err
		}
		_, err := productRepo.Products(ctx, r.products)
		return err
	})

	run := func(warm bool) scenarioResult {
		cache := repository.NewDirectoryCache(client, "bench", 10*time.Minute)
		cu := repository.NewCachedUserRepository(userRepo, cache)
		cp := repository.NewCachedProductRepository(productRepo, cache)
		return runScenario(ctx, client, cache, reqs, warm, func(ctx context.Context, r request) error {
			if _, err := cu.Users(ctx, r.users); err != nil {
				return err
			}
			_, err := cp.Products(ctx, r.products)
			return err
		})
	}
	cold := run(false)
	warm := run(true)

	fmt.Printf("\nInbox directory resolution (%d req, %d users, %d products, %s + Redis)\n", requests, userCount, productCount, cfg.Database.Driver)
	for _, row := range []struct {
		name string
		r    scenarioResult
	}{{"No cache", noCache}, {"Cold cache", cold}, {"Warm cache", warm}} {
		fmt.Printf("%-12s avg=%v p95=%v p99=%v db_bulk=%d cache_keys=%d mem=%s\n",
			row.name, avg(row.r.durations), pct(row.r.durations, 0.95), pct(row.r.durations, 0.99),
			row.r.bulkLoads, row.r.cacheKeys, formatBytes(row.r.memoryBytes))
	}
}

func runScenario(ctx context.Context, client *redis.Client, cache *repository.DirectoryCache, reqs []request, warm bool, call func(context.Context, request) error) scenarioResult {
	client.FlushDB(ctx)

	if warm {
		fmt.Print("  Warming cache...")
		for _, r := range reqs {
			mustDo(call(ctx, r))
		}
		fmt.Println(" done")
	}
	var before int64
	if cache != nil {
		before = cache.BulkLoads()
	}

	fmt.Print("  Running benchmark...")
	out := make([]time.Duration, 0, len(reqs))
	for _, r := range reqs {
		start := time.Now()
		mustDo(call(ctx, r))
		out = append(out, time.Since(start))
	}
	fmt.Println(" done")

	res := scenarioResult{durations: out, bulkLoads: int64(len(reqs)) * 2}
	if cache != nil {
		res.bulkLoads = cache.BulkLoads() - before
	}
	if n, err := client.DBSize(ctx).Result(); err == nil {
		res.cacheKeys = int(n)
	}
	if info, err := client.Info(ctx, "memory").Result(); err == nil {
		res.memoryBytes = parseRedisMemory(info)
	}
	return res
}

// parseRedisMemory 从 INFO memory 中取 used_memory
func parseRedisMemory(info string) int64 {
	for _, line := range strings.Split(info, "\n") {
		if v, ok := strings.CutPrefix(strings.TrimSpace(line), "used_memory:"); ok {
			n, _ := strconv.ParseInt(v, 10, 64)
			return n
		}
	}
	return 0
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// makeRequests 热门对端/商品集中在前 20%，模拟活跃卖家的收件箱
func makeRequests(n int, userIDs, productIDs []string) []request {
	sizes := []int{20, 40, 60}
	rnd := rand.New(rand.NewSource(42))
	pick := func(ids []string) string {
		if rnd.Float64() < 0.8 {
			return ids[rnd.Intn(len(ids)/5+1)]
		}
		return ids[rnd.Intn(len(ids))]
	}
	out := make([]request, n)
	for i := range out {
		size := sizes[rnd.Intn(len(sizes))]
		r := request{users: make([]string, size), products: make([]string, size)}
		for k := 0; k < size; k++ {
			r.users[k] = pick(userIDs)
			r.products[k] = pick(productIDs)
		}
		out[i] = r
	}
	return out
}

func envInt(name string, def int) int {
	if s := os.Getenv(name); s != "" {
		if v, e := strconv.Atoi(s); e == nil && v > 0 {
			return v
		}
	}
	return def
}

func avg(vs []time.Duration) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	var sum time.Duration
	for _, v := range vs {
		sum += v
	}
	return sum / time.Duration(len(vs))
}

func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), vs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func mustDo(err error) {
	if err != nil {
		panic(err)
	}
}
