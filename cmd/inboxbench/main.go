package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/d60-Lab/market-chat/config"
	"github.com/d60-Lab/market-chat/internal/model"
	"github.com/d60-Lab/market-chat/internal/repository"
	"github.com/d60-Lab/market-chat/internal/service"
	"github.com/d60-Lab/market-chat/pkg/database"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	xs := append([]time.Duration(nil), vs...)
	sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
	k := int(math.Ceil(p*float64(len(xs)))) - 1
	if k < 0 {
		k = 0
	}
	if k >= len(xs) {
		k = len(xs) - 1
	}
	return xs[k]
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
	for _, d := range vs {
		sum += d
	}
	return sum / time.Duration(len(vs))
}

func main() {
	ctx := context.Background()
	cfg := must(config.Load())
	db := must(database.InitDB(cfg))
	defer database.Close(db)
	if err := db.AutoMigrate(&model.User{}, &model.Product{}, &model.Message{}); err != nil {
		panic(err)
	}

	// params
	BUYERS := envInt("BUYERS", 500)    // buyers writing to the seller
	PRODUCTS := envInt("PRODUCTS", 20) // seller listings
	PER := envInt("PER", 10)           // messages per (buyer, product)
	ROUNDS := envInt("ROUNDS", 50)     // inbox reads to time
	BATCH := envInt("BATCH", 1000)     // insert batch

	// clean tables for a reproducible run (ok for local bench)
	_ = db.Exec("DELETE FROM messages").Error
	_ = db.Exec("DELETE FROM products").Error
	_ = db.Exec("DELETE FROM users").Error

	users := repository.NewUserRepository(db)
	products := repository.NewProductRepository(db)
	messages := repository.NewMessageRepository(db)

	seller := &model.User{Name: "seller0", Email: "seller0@example.com", Password: "p", Role: model.RoleSeller}
	if err := users.Create(ctx, seller); err != nil {
		panic(err)
	}
	listing := make([]string, PRODUCTS)
	for i := range listing {
		p := &model.Product{Title: fmt.Sprintf("item %d", i), PostedBy: seller.ID}
		if err := products.Create(ctx, p); err != nil {
			panic(err)
		}
		listing[i] = p.ID
	}
	buyers := make([]model.User, BUYERS)
	for i := range buyers {
		id := uuid.NewString()
		buyers[i] = model.User{ID: id, Name: "b" + id[:8], Email: id[:8] + "@example.com", Password: "p", Role: model.RoleBuyer}
	}
	if err := db.CreateInBatches(&buyers, BATCH).Error; err != nil {
		panic(err)
	}

	// seed messages buyer -> seller
	st := time.Now()
	batch := make([]*model.Message, 0, BATCH)
	total := 0
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := db.CreateInBatches(batch, BATCH).Error; err != nil {
			panic(err)
		}
		total += len(batch)
		batch = batch[:0]
	}
	for i := range buyers {
		for _, pid := range listing {
			for k := 0; k < PER; k++ {
				m := &model.Message{SenderID: buyers[i].ID, ReceiverID: seller.ID, ProductID: pid, Body: fmt.Sprintf("hi %d", k)}
				if err := repository.PrepareMessage(m); err != nil {
					panic(err)
				}
				batch = append(batch, m)
				if len(batch) == BATCH {
					flush()
				}
			}
		}
	}
	flush()
	fmt.Printf("BUYERS=%d PRODUCTS=%d PER=%d ROUNDS=%d\n", BUYERS, PRODUCTS, PER, ROUNDS)
	fmt.Printf("Seeded %d messages in %v\n", total, time.Since(st))

	// 只读一半，让未读计数有意义
	for i := 0; i < len(buyers); i += 2 {
		_, _ = messages.MarkRead(ctx, seller.ID, buyers[i].ID, listing[0])
	}

	inbox := service.NewInboxService(messages, users, products)
	reads := make([]time.Duration, 0, ROUNDS)
	var conversations int
	for i := 0; i < ROUNDS; i++ {
		st := time.Now()
		entries, err := inbox.Inbox(ctx, seller.ID)
		if err != nil {
			panic(err)
		}
		reads = append(reads, time.Since(st))
		conversations = len(entries)
	}
	fmt.Printf("Inbox read: conversations=%d avg=%v p95=%v p99=%v\n", conversations, avg(reads), pct(reads, 0.95), pct(reads, 0.99))

	// 单独测量内存归并，排除存储耗时
	received := must(messages.ListReceived(ctx, seller.ID))
	groups := make([]time.Duration, 0, ROUNDS)
	for i := 0; i < ROUNDS; i++ {
		st := time.Now()
		_ = service.Group(received)
		groups = append(groups, time.Since(st))
	}
	fmt.Printf("Group only (%d messages): avg=%v p95=%v p99=%v\n", len(received), avg(groups), pct(groups, 0.95), pct(groups, 0.99))
}
