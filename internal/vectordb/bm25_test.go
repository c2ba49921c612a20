package vectordb

import "testing"

func TestTokenizeLowercasesAndDropsStopWords(t *testing.T) {
	tokens := Tokenize("The Quick Brown Fox jumps over the lazy dog")
	want := []string{"quick", "brown", "fox", "jumps", "over", "lazy", "dog"}

	if len(tokens) != len(want) {
		t.Fatalf("got %v, want %v", tokens, want)
	}
	for i, tok := range tokens {
		if tok != want[i] {
			t.Errorf("token %d: got %q, want %q", i, tok, want[i])
		}
	}
}

func TestTokenizeSplitsOnUnicodeBoundaries(t *testing.T) {
	tokens := Tokenize("hello, world! café-au-lait")
	want := []string{"hello", "world", "café", "au", "lait"}

	if len(tokens) != len(want) {
		t.Fatalf("got %v, want %v", tokens, want)
	}
}

func TestCorpusScoreFavorsRareTerms(t *testing.T) {
	c := NewCorpus()
	c.Add(Tokenize("vector search engine"))
	c.Add(Tokenize("vector database engine"))
	c.Add(Tokenize("vector index engine"))

	sv := c.Score(Tokenize("vector search"))

	if sv["search"] <= sv["vector"] {
		t.Errorf("expected rare term %q to outweigh common term %q: %v", "search", "vector", sv)
	}
}

func TestTokenizeQueryHonorsIncludeStopWords(t *testing.T) {
	dropped := TokenizeQuery("the quick brown fox", false)
	if len(dropped) != 3 {
		t.Fatalf("expected stop words dropped, got %v", dropped)
	}

	kept := TokenizeQuery("the quick brown fox", true)
	if len(kept) != 4 {
		t.Fatalf("expected stop words kept, got %v", kept)
	}
}

func TestCorpusScoreEmptyCorpus(t *testing.T) {
	c := NewCorpus()
	sv := c.Score(Tokenize("hello world"))
	if len(sv) != 2 {
		t.Fatalf("expected 2 scored terms, got %d", len(sv))
	}
}
