package chunker

import (
	"strings"
	"testing"
)

func TestSplitEmptyInput(t *testing.T) {
	t.Parallel()
	c := New(100, 20)
	if got := c.Split(""); len(got) != 0 {
		t.Errorf("Split(\"\") = %v, want empty", got)
	}
	if got := c.Split("   \n\t "); len(got) != 0 {
		t.Errorf("Split(whitespace) = %v, want empty", got)
	}
}

func TestSplitShortTextSingleChunk(t *testing.T) {
	t.Parallel()
	c := New(1000, 200)
	got := c.Split("One sentence. Another one.")
	if len(got) != 1 {
		t.Fatalf("len(chunks) = %d, want 1", len(got))
	}
	if got[0] != "One sentence. Another one." {
		t.Errorf("chunk = %q, want full text", got[0])
	}
}

func TestSplitRespectsSentenceBoundaries(t *testing.T) {
	t.Parallel()
	c := New(60, 0)
	text := "The first sentence is here. The second sentence follows it. The third finishes."
	got := c.Split(text)
	if len(got) < 2 {
		t.Fatalf("len(chunks) = %d, want >= 2", len(got))
	}
	for i, chunk := range got {
		if !strings.HasSuffix(chunk, ".") {
			t.Errorf("chunk %d = %q, does not end on a sentence boundary", i, chunk)
		}
	}
}

func TestSplitOverlapCarriesTail(t *testing.T) {
	t.Parallel()
	c := New(60, 25)
	text := "Alpha beta gamma delta epsilon. Zeta eta theta iota kappa. Lambda mu nu xi omicron."
	got := c.Split(text)
	if len(got) < 2 {
		t.Fatalf("len(chunks) = %d, want >= 2", len(got))
	}
	// Each later chunk should start with words repeated from the previous one.
	for i := 1; i < len(got); i++ {
		firstWord := strings.Fields(got[i])[0]
		if !strings.Contains(got[i-1], firstWord) {
			t.Errorf("chunk %d starts with %q, not found in previous chunk %q", i, firstWord, got[i-1])
		}
	}
}

func TestSplitFullCoverage(t *testing.T) {
	t.Parallel()
	c := New(50, 10)
	text := "One two three four five. Six seven eight nine ten. Eleven twelve thirteen fourteen. Fifteen sixteen seventeen"
	got := c.Split(text)

	joined := strings.Join(got, " ")
	for _, word := range strings.Fields(text) {
		if !strings.Contains(joined, strings.TrimRight(word, ".")) {
			t.Errorf("word %q missing from chunks %v", word, got)
		}
	}
	// The trailing segment without terminal punctuation must still appear.
	if !strings.Contains(joined, "seventeen") {
		t.Errorf("trailing unterminated text dropped: %v", got)
	}
}

func TestSplitOversizedSentenceHardCut(t *testing.T) {
	t.Parallel()
	c := New(40, 10)
	long := strings.Repeat("word ", 30) + "end."
	got := c.Split(long)
	if len(got) < 2 {
		t.Fatalf("len(chunks) = %d, want hard split into multiple", len(got))
	}
	for i, chunk := range got {
		if len(chunk) > 40 {
			t.Errorf("chunk %d length = %d, exceeds chunk size 40", i, len(chunk))
		}
	}
	if !strings.Contains(got[len(got)-1], "end.") {
		t.Errorf("final chunk %q missing tail of oversized sentence", got[len(got)-1])
	}
}

func TestSplitChunksWithinSizeBound(t *testing.T) {
	t.Parallel()
	c := New(80, 20)
	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("A reasonably sized sentence goes right here. ")
	}
	got := c.Split(b.String())
	if len(got) == 0 {
		t.Fatal("no chunks produced")
	}
	// Sentence packing plus overlap may slightly exceed the target, but
	// never by more than one sentence plus the overlap.
	for i, chunk := range got {
		if len(chunk) > 80+45+20 {
			t.Errorf("chunk %d length = %d, far exceeds target", i, len(chunk))
		}
	}
}

func TestNewClampsArguments(t *testing.T) {
	t.Parallel()
	c := New(0, -5)
	if c.chunkSize != DefaultChunkSize {
		t.Errorf("chunkSize = %d, want default %d", c.chunkSize, DefaultChunkSize)
	}
	if c.overlap != 0 {
		t.Errorf("overlap = %d, want 0", c.overlap)
	}
	c = New(100, 150)
	if c.overlap >= c.chunkSize {
		t.Errorf("overlap = %d not clamped below chunk size %d", c.overlap, c.chunkSize)
	}
}
