package tokenizer

import (
	"strings"
	"testing"
)

type wordTok struct {
	vocab []string
}

func (w *wordTok) Encode(text string) []int {
	var ids []int
	for _, f := range strings.Fields(text) {
		for i, v := range w.vocab {
			if v == f {
				ids = append(ids, i)
			}
		}
	}
	return ids
}

func (w *wordTok) Decode(ids []int) string {
	var parts []string
	for _, id := range ids {
		parts = append(parts, w.vocab[id]) // panics when out of range
	}
	return strings.Join(parts, " ")
}

type encodeOnly struct{}

func (encodeOnly) Encode(string) []int { return []int{7, 8} }

type panicky struct{}

func (panicky) Encode(string) []int  { panic("boom") }
func (panicky) Decode([]int) string { panic("boom") }

func TestByteFallbackEncode(t *testing.T) {
	a := New(nil)
	ids := a.Encode("Hi")
	if len(ids) != 2 || ids[0] != 'H' || ids[1] != 'i' {
		t.Fatalf("unexpected ids %v", ids)
	}
	for _, id := range a.Encode("héllo") {
		if id < 0 || id > 255 {
			t.Fatalf("fallback id out of byte range: %d", id)
		}
	}
	if a.HasEncoder() || a.HasDecoder() {
		t.Fatalf("expected fallback strategies, got %s", a.Strategy())
	}
}

func TestByteFallbackDecode(t *testing.T) {
	a := New(nil)
	cases := []struct {
		id   int
		want string
	}{
		{'A', "A"},
		{' ', " "},
		{'\n', "\n"},
		{0, Placeholder},
		{300, Placeholder},
		{-1, Placeholder},
	}
	for _, c := range cases {
		if got := a.Decode(c.id); got != c.want {
			t.Fatalf("Decode(%d)=%q want %q", c.id, got, c.want)
		}
	}
}

func TestCapabilitiesResolvedIndependently(t *testing.T) {
	a := New(encodeOnly{})
	if !a.HasEncoder() || a.HasDecoder() {
		t.Fatalf("strategy=%s", a.Strategy())
	}
	if got := a.Strategy(); got != "real/bytes" {
		t.Fatalf("strategy=%s", got)
	}
	if got := a.Decode('x'); got != "x" {
		t.Fatalf("decode fallback=%q", got)
	}
}

func TestDecodeOutOfRangeNeverPanics(t *testing.T) {
	a := New(&wordTok{vocab: []string{"a", "b"}})
	if got := a.Decode(5); got != Placeholder {
		t.Fatalf("got %q", got)
	}
	a = New(&wordTok{vocab: []string{"a", "b"}}, WithVocabSize(2))
	if got := a.Decode(2); got != Placeholder {
		t.Fatalf("got %q", got)
	}
	if got := a.Decode(1); got != "b" {
		t.Fatalf("got %q", got)
	}
}

func TestPanickingTokenizerRecovers(t *testing.T) {
	a := New(panicky{})
	if got := a.Decode(3); got != Placeholder {
		t.Fatalf("decode=%q", got)
	}
	if ids := a.Encode("ok"); len(ids) != 2 || ids[0] != 'o' {
		t.Fatalf("encode fallback=%v", ids)
	}
	if eos := a.ResolveEOS(EndMarker, DefaultEOS); eos != DefaultEOS {
		t.Fatalf("eos=%d", eos)
	}
}

func TestResolveEOS(t *testing.T) {
	if got := New(nil).ResolveEOS(EndMarker, DefaultEOS); got != DefaultEOS {
		t.Fatalf("no encoder: got %d", got)
	}
	tok := &wordTok{vocab: []string{"x", EndMarker}}
	if got := New(tok).ResolveEOS(EndMarker, DefaultEOS); got != 1 {
		t.Fatalf("got %d", got)
	}
	if got := New(tok).ResolveEOS("missing", 9); got != 9 {
		t.Fatalf("empty encoding: got %d", got)
	}
}

func TestRenderConversation(t *testing.T) {
	got := RenderConversation([]Message{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "Hi"},
		{Role: RoleAssistant, Content: "Hello"},
		{Role: RoleUser, Content: "Bye"},
	})
	want := "System: be brief\nUser: Hi\nAssistant: Hello\nUser: Bye\nAssistant: "
	if got != want {
		t.Fatalf("got %q", got)
	}
}

func TestEncodeConversationSentinel(t *testing.T) {
	a := New(nil)
	if ids := a.EncodeConversation(nil); len(ids) != 1 || ids[0] != SentinelToken {
		t.Fatalf("empty conversation: %v", ids)
	}
	// a real encoder that knows none of the words yields nothing
	b := New(&wordTok{vocab: []string{"zzz"}})
	if ids := b.EncodeConversation([]Message{{Role: RoleUser, Content: "Hi"}}); len(ids) != 1 || ids[0] != SentinelToken {
		t.Fatalf("empty encoding: %v", ids)
	}
	if ids := a.EncodeConversation([]Message{{Role: RoleUser, Content: "Hi"}}); len(ids) != len("User: Hi\nAssistant: ") {
		t.Fatalf("len=%d", len(ids))
	}
}
