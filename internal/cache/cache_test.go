package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	// Create a mini Redis server for testing
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}

	cache, err := NewCache(mr.Host(), mr.Server().Addr().Port, "", 0, time.Minute)
	if err != nil {
		mr.Close()
		t.Fatalf("Failed to create cache: %v", err)
	}

	return cache, mr
}

func TestNewCache(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()
	defer cache.Close()

	ctx := context.Background()
	if err := cache.Ping(ctx); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestNewCache_Unreachable(t *testing.T) {
	_, err := NewCache("localhost", 1, "", 0, time.Minute)
	if err == nil {
		t.Fatal("Expected connection error for unreachable Redis")
	}
}

func TestCache_SubtitleDocumentOperations(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()
	defer cache.Close()

	ctx := context.Background()
	locator := "https://subs.example.com/en.vtt?token=very-long-signed-token"
	doc := "WEBVTT\n\n00:00:01.000 --> 00:00:03.000\nHello\n"

	// Miss before set
	if _, ok := cache.GetSubtitleDocument(ctx, locator); ok {
		t.Error("Expected miss before set")
	}

	cache.SetSubtitleDocument(ctx, locator, doc)

	got, ok := cache.GetSubtitleDocument(ctx, locator)
	if !ok {
		t.Fatal("Expected hit after set")
	}
	if got != doc {
		t.Errorf("Expected document %q, got %q", doc, got)
	}

	// A different locator must not alias onto the same entry
	if _, ok := cache.GetSubtitleDocument(ctx, locator+"x"); ok {
		t.Error("Expected miss for different locator")
	}
}

func TestCache_DurationOperations(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()
	defer cache.Close()

	ctx := context.Background()
	locator := "https://subs.example.com/en.vtt"

	if _, ok := cache.GetDuration(ctx, locator); ok {
		t.Error("Expected miss before set")
	}

	cache.SetDuration(ctx, locator, 1523.4)

	d, ok := cache.GetDuration(ctx, locator)
	if !ok {
		t.Fatal("Expected hit after set")
	}
	if d != 1523.4 {
		t.Errorf("Expected duration 1523.4, got %v", d)
	}
}

func TestCache_TTLExpiry(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()
	defer cache.Close()

	ctx := context.Background()
	locator := "https://subs.example.com/en.vtt"

	cache.SetSubtitleDocument(ctx, locator, "WEBVTT\n")

	// Advance miniredis past the TTL
	mr.FastForward(2 * time.Minute)

	if _, ok := cache.GetSubtitleDocument(ctx, locator); ok {
		t.Error("Expected miss after TTL expiry")
	}
}
