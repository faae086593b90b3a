package embedding

import (
	"reflect"
	"testing"
)

func TestSimpleTokenizer_Tokenize(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, attn, _ := tok.Tokenize("hello world", 10)
	if len(ids) != 10 {
		t.Errorf("len(ids)=%d", len(ids))
	}
	if ids[0] != 101 {
		t.Errorf("expected CLS 101, got %d", ids[0])
	}
	if ids[3] != 102 {
		t.Errorf("expected SEP 102 after two words, got %d", ids[3])
	}
	if attn[0] != 1 || attn[4] != 0 {
		t.Errorf("unexpected attention mask %v", attn)
	}
}

func TestTokens(t *testing.T) {
	got := Tokens("  Jazz Night @ The Lyric, 7pm! ")
	want := []string{"jazz", "night", "the", "lyric", "7pm"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokens = %v, want %v", got, want)
	}
	if len(Tokens("")) != 0 {
		t.Error("empty string should return no tokens")
	}
}

func TestHashString(t *testing.T) {
	if HashString("abc") == HashString("abd") {
		t.Error("different strings should hash differently")
	}
	if HashString("abc") != HashString("abc") {
		t.Error("hash should be deterministic")
	}
	if HashString("a very long token that would overflow a naive hash") < 0 {
		t.Error("hash should be non-negative")
	}
}
