package store

import (
	"context"
	"errors"
	"testing"
)

func TestIndexRoundTrip(t *testing.T) {
	s := openTestStore(t)
	repo := s.IndexRepo()
	ctx := context.Background()

	has, err := repo.HasIndex(ctx, "grammar")
	if err != nil {
		t.Fatalf("has index: %v", err)
	}
	if has {
		t.Fatal("expected no index before save")
	}
	if _, _, err := repo.LoadIndex(ctx, "grammar"); !errors.Is(err, ErrNoIndex) {
		t.Fatalf("expected ErrNoIndex, got %v", err)
	}

	chunks := []IndexChunk{
		{Source: "sandhi.txt", Position: 0, Content: "Vowel sandhi joins words.", Embedding: []float32{0.5, -0.25}},
		{Source: "cases.txt", Position: 1, Content: "The dative marks the recipient.", Embedding: []float32{1, 0}},
	}
	meta := IndexMeta{Domain: "grammar", Embedder: "hash:2", Dimensions: 2}
	if err := repo.SaveIndex(ctx, meta, chunks); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, loaded, err := repo.LoadIndex(ctx, "grammar")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Embedder != "hash:2" || got.Dimensions != 2 || got.ChunkCount != 2 {
		t.Errorf("unexpected meta %+v", got)
	}
	if got.BuiltAt.IsZero() {
		t.Error("expected BuiltAt to be set")
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(loaded))
	}
	if loaded[1].Content != chunks[1].Content || loaded[1].Source != "cases.txt" {
		t.Errorf("chunk 1 mismatch: %+v", loaded[1])
	}
	if loaded[0].Embedding[1] != -0.25 {
		t.Errorf("embedding not preserved: %v", loaded[0].Embedding)
	}
}

func TestSaveIndexReplaces(t *testing.T) {
	s := openTestStore(t)
	repo := s.IndexRepo()
	ctx := context.Background()

	first := []IndexChunk{{Content: "a", Embedding: []float32{1}}, {Position: 1, Content: "b", Embedding: []float32{1}}}
	if err := repo.SaveIndex(ctx, IndexMeta{Domain: "grammar", Dimensions: 1}, first); err != nil {
		t.Fatalf("first save: %v", err)
	}
	second := []IndexChunk{{Content: "c", Embedding: []float32{1}}}
	if err := repo.SaveIndex(ctx, IndexMeta{Domain: "grammar", Dimensions: 1}, second); err != nil {
		t.Fatalf("second save: %v", err)
	}

	_, loaded, err := repo.LoadIndex(ctx, "grammar")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 1 || loaded[0].Content != "c" {
		t.Errorf("expected only the replacement chunk, got %+v", loaded)
	}
}
