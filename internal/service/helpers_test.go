package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/d60-Lab/market-chat/internal/event"
	"github.com/d60-Lab/market-chat/internal/model"
	"github.com/d60-Lab/market-chat/internal/repository"
)

type fixture struct {
	db       *gorm.DB
	messages repository.MessageRepository
	users    repository.UserRepository
	products repository.ProductRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&model.User{}, &model.Product{}, &model.Message{}))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return &fixture{
		db:       db,
		messages: repository.NewMessageRepository(db),
		users:    repository.NewUserRepository(db),
		products: repository.NewProductRepository(db),
	}
}

func (f *fixture) user(t *testing.T, name, role string) *model.User {
	t.Helper()
	u := &model.User{Name: name, Email: name + "@market.test", Password: "x", Role: role, IsActive: true}
	require.NoError(t, f.users.Create(context.Background(), u))
	return u
}

func (f *fixture) product(t *testing.T, title, owner string) *model.Product {
	t.Helper()
	p := &model.Product{Title: title, Images: []string{title + ".jpg"}, PostedBy: owner}
	require.NoError(t, f.products.Create(context.Background(), p))
	return p
}

func (f *fixture) count(t *testing.T) int64 {
	t.Helper()
	n, err := f.messages.Count(context.Background())
	require.NoError(t, err)
	return n
}

// recordingBroadcaster 记录每个房间推送的消息
type recordingBroadcaster struct {
	mu        sync.Mutex
	published map[string][]*model.Message
}

func newRecordingBroadcaster() *recordingBroadcaster {
	return &recordingBroadcaster{published: make(map[string][]*model.Message)}
}

func (b *recordingBroadcaster) Sequence(roomID string, persist func() (*model.Message, error)) (*model.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, err := persist()
	if err != nil {
		return nil, err
	}
	b.published[roomID] = append(b.published[roomID], m)
	return m, nil
}

func (b *recordingBroadcaster) room(id string) []*model.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*model.Message(nil), b.published[id]...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []event.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, events ...event.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) snapshot() []event.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]event.Event(nil), p.events...)
}
