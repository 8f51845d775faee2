package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

func TestInMemoryStore_StoreSearchDelete(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryStore()

	ids := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		id, err := svc.Store(ctx, "s1", fmt.Sprintf("note %c", 'A'+i), map[string]any{"idx": i})
		if err != nil {
			t.Fatalf("store failed: %v", err)
		}
		if id == "" {
			t.Fatalf("expected generated id")
		}
		ids = append(ids, id)
	}

	// empty query matches everything, insertion order preserved
	res, err := svc.Search(ctx, "s1", "", 10)
	if err != nil {
		t.Fatalf("search all failed: %v", err)
	}
	if len(res) != 5 {
		t.Fatalf("expected 5 results, got %d", len(res))
	}
	if res[0].Content != "note A" || res[4].Content != "note E" {
		t.Fatalf("unexpected order: %#v", res)
	}
	if res[0].Score != 1.0 {
		t.Fatalf("expected constant score 1.0, got %v", res[0].Score)
	}

	// substring query
	res2, _ := svc.Search(ctx, "s1", "note B", 5)
	if len(res2) != 1 || res2[0].ID != ids[1] {
		t.Fatalf("expected single match for ids[1], got %#v", res2)
	}

	// limit applies
	res3, _ := svc.Search(ctx, "s1", "", 3)
	if len(res3) != 3 {
		t.Fatalf("expected 3 limited results, got %d", len(res3))
	}

	// delete
	if err := svc.Delete(ctx, "s1", ids[0]); err != nil {
		t.Fatalf("delete existing failed: %v", err)
	}
	res4, _ := svc.Search(ctx, "s1", "", 10)
	if len(res4) != 4 {
		t.Fatalf("expected 4 after delete, got %d", len(res4))
	}
	if err := svc.Delete(ctx, "s1", "does_not_exist"); err == nil {
		t.Fatalf("expected error deleting nonexistent memory")
	}
}

func TestInMemoryStore_SearchIgnoresCase(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryStore()
	if _, err := svc.Store(ctx, "s1", "Dreamy synth textures", nil); err != nil {
		t.Fatalf("store failed: %v", err)
	}

	res, err := svc.Search(ctx, "s1", "SYNTH", 5)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(res) != 1 {
		t.Fatalf("expected case-insensitive match, got %d results", len(res))
	}
}

func TestInMemoryStore_ScopesAreIsolated(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryStore()
	if _, err := svc.Store(ctx, "voice", "late night demo", nil); err != nil {
		t.Fatalf("store failed: %v", err)
	}

	res, _ := svc.Search(ctx, "other", "demo", 5)
	if len(res) != 0 {
		t.Fatalf("expected no cross-scope hits, got %#v", res)
	}
}

func TestInMemoryStore_MetadataIsCopied(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryStore()
	md := map[string]any{"platform": "instagram"}
	if _, err := svc.Store(ctx, "s1", "caption draft", md); err != nil {
		t.Fatalf("store failed: %v", err)
	}
	md["platform"] = "changed"

	res, _ := svc.Search(ctx, "s1", "", 1)
	if len(res) != 1 || res[0].Metadata["platform"] != "instagram" {
		t.Fatalf("expected copy isolation, got %#v", res)
	}
	res[0].Metadata["platform"] = "mutated"

	res2, _ := svc.Search(ctx, "s1", "", 1)
	if res2[0].Metadata["platform"] != "instagram" {
		t.Fatalf("expected result metadata to be a copy, got %#v", res2)
	}
}

func TestInMemoryStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryStore()
	wg := sync.WaitGroup{}
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := svc.Store(ctx, "s1", fmt.Sprintf("entry %d", i), nil); err != nil {
				t.Errorf("store error: %v", err)
			}
			if _, err := svc.Search(ctx, "s1", "entry", 5); err != nil {
				t.Errorf("search error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	res, _ := svc.Search(ctx, "s1", "", 0)
	if len(res) != 25 {
		t.Fatalf("expected 25 entries after concurrent stores, got %d", len(res))
	}
}
