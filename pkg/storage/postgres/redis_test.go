package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/quarryhost/quarry/pkg/models"
	"github.com/quarryhost/quarry/pkg/storage"
)

// setupRedisClientTest creates a miniredis instance and returns the client and cleanup function
func setupRedisClientTest(t *testing.T) (*RedisClient, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}

	config := storage.Config{
		RedisURL: "redis://" + mr.Addr(),
		CacheTTL: map[string]time.Duration{
			"project": 5 * time.Minute,
			"user":    1 * time.Minute,
		},
		RedisDB:         0,
		RedisMaxRetries: 3,
		RedisPoolSize:   10,
	}

	client, err := NewRedisClient(config)
	if err != nil {
		mr.Close()
		t.Fatalf("Failed to create Redis client: %v", err)
	}

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return client, mr, cleanup
}

func TestNewRedisClient_Success(t *testing.T) {
	client, _, cleanup := setupRedisClientTest(t)
	defer cleanup()

	if client == nil {
		t.Fatal("Expected client to be non-nil")
	}

	if client.client == nil {
		t.Fatal("Expected underlying redis client to be non-nil")
	}
}

func TestNewRedisClient_InvalidURL(t *testing.T) {
	config := storage.Config{
		RedisURL: "invalid://url",
	}

	_, err := NewRedisClient(config)
	if err == nil {
		t.Fatal("Expected error for invalid Redis URL")
	}
}

func TestRedisClient_ProjectRoundTrip(t *testing.T) {
	client, _, cleanup := setupRedisClientTest(t)
	defer cleanup()

	ctx := context.Background()

	project := &models.Project{
		ID:     42,
		TeamID: 7,
		Slug:   "iron-furnaces",
		Title:  "Iron Furnaces",
		Status: models.ProjectStatusApproved,
	}

	if err := client.SetProject(ctx, project); err != nil {
		t.Fatalf("SetProject failed: %v", err)
	}

	got, err := client.GetProject(ctx, 42)
	if err != nil {
		t.Fatalf("GetProject failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected cache hit, got nil")
	}
	if got.ID != project.ID || got.Slug != project.Slug || got.Status != project.Status {
		t.Errorf("GetProject = %+v, want %+v", got, project)
	}
}

func TestRedisClient_GetProject_CacheMiss(t *testing.T) {
	client, _, cleanup := setupRedisClientTest(t)
	defer cleanup()

	got, err := client.GetProject(context.Background(), 999)
	if err != nil {
		t.Fatalf("GetProject failed: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil on cache miss, got %+v", got)
	}
}

func TestRedisClient_GetProject_CorruptData(t *testing.T) {
	client, mr, cleanup := setupRedisClientTest(t)
	defer cleanup()

	mr.Set("project:13", "not-json")

	_, err := client.GetProject(context.Background(), 13)
	if err == nil {
		t.Fatal("Expected error for corrupt cache data")
	}

	// Corrupt entry should be deleted
	if mr.Exists("project:13") {
		t.Error("Expected corrupt key to be deleted")
	}
}

func TestRedisClient_InvalidateProject(t *testing.T) {
	client, mr, cleanup := setupRedisClientTest(t)
	defer cleanup()

	ctx := context.Background()

	project := &models.Project{ID: 5, Slug: "copper-tools", Status: models.ProjectStatusApproved}
	if err := client.SetProject(ctx, project); err != nil {
		t.Fatalf("SetProject failed: %v", err)
	}

	if err := client.InvalidateProject(ctx, 5); err != nil {
		t.Fatalf("InvalidateProject failed: %v", err)
	}

	if mr.Exists("project:5") {
		t.Error("Expected project key to be removed")
	}
}

func TestRedisClient_UserRoundTrip(t *testing.T) {
	client, _, cleanup := setupRedisClientTest(t)
	defer cleanup()

	ctx := context.Background()

	user := &models.User{ID: 3, Username: "picks", Role: models.RoleModerator}
	if err := client.SetUser(ctx, user); err != nil {
		t.Fatalf("SetUser failed: %v", err)
	}

	got, err := client.GetUser(ctx, 3)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected cache hit, got nil")
	}
	if got.ID != user.ID || got.Username != user.Username || got.Role != user.Role {
		t.Errorf("GetUser = %+v, want %+v", got, user)
	}
}

func TestRedisClient_ProjectTTL(t *testing.T) {
	client, mr, cleanup := setupRedisClientTest(t)
	defer cleanup()

	ctx := context.Background()

	project := &models.Project{ID: 8, Slug: "quartz-lamps", Status: models.ProjectStatusApproved}
	if err := client.SetProject(ctx, project); err != nil {
		t.Fatalf("SetProject failed: %v", err)
	}

	if got := mr.TTL("project:8"); got != 5*time.Minute {
		t.Errorf("TTL = %v, want 5m", got)
	}

	// After the TTL elapses the entry is gone
	mr.FastForward(6 * time.Minute)
	got, err := client.GetProject(ctx, 8)
	if err != nil {
		t.Fatalf("GetProject failed: %v", err)
	}
	if got != nil {
		t.Errorf("Expected expired entry to miss, got %+v", got)
	}
}

func TestRedisClient_InvalidatePatterns(t *testing.T) {
	client, mr, cleanup := setupRedisClientTest(t)
	defer cleanup()

	ctx := context.Background()

	for _, p := range []*models.Project{
		{ID: 1, Slug: "a", Status: models.ProjectStatusApproved},
		{ID: 2, Slug: "b", Status: models.ProjectStatusApproved},
	} {
		if err := client.SetProject(ctx, p); err != nil {
			t.Fatalf("SetProject failed: %v", err)
		}
	}
	data, _ := json.Marshal(&models.User{ID: 1})
	mr.Set("user:1", string(data))

	if err := client.InvalidatePatterns(ctx, "project:*"); err != nil {
		t.Fatalf("InvalidatePatterns failed: %v", err)
	}

	if mr.Exists("project:1") || mr.Exists("project:2") {
		t.Error("Expected project keys to be removed")
	}
	if !mr.Exists("user:1") {
		t.Error("Expected user key to survive")
	}
}

func TestRedisClient_SetNX(t *testing.T) {
	client, _, cleanup := setupRedisClientTest(t)
	defer cleanup()

	ctx := context.Background()

	ok, err := client.SetNX(ctx, "lock:sweep", "1", time.Minute)
	if err != nil {
		t.Fatalf("SetNX failed: %v", err)
	}
	if !ok {
		t.Error("Expected first SetNX to succeed")
	}

	ok, err = client.SetNX(ctx, "lock:sweep", "1", time.Minute)
	if err != nil {
		t.Fatalf("SetNX failed: %v", err)
	}
	if ok {
		t.Error("Expected second SetNX to fail while lock held")
	}
}
