package logs

import (
	"strconv"
	"sync"
	"testing"

	"github.com/charliek/sidecar/internal/domain"
	"github.com/stretchr/testify/assert"
)

func makeEntry(msg string) domain.LogEntry {
	return domain.NewLogEntry(msg)
}

func messages(entries []domain.LogEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Message
	}
	return out
}

func TestRingBuffer_Write_Read(t *testing.T) {
	b := NewRingBuffer(5)

	b.Write(makeEntry("1"))
	b.Write(makeEntry("2"))
	b.Write(makeEntry("3"))

	assert.Equal(t, []string{"1", "2", "3"}, messages(b.Read()))
}

func TestRingBuffer_Overflow(t *testing.T) {
	b := NewRingBuffer(3)

	b.Write(makeEntry("1"))
	b.Write(makeEntry("2"))
	b.Write(makeEntry("3"))
	b.Write(makeEntry("4")) // evicts "1"

	assert.Equal(t, []string{"2", "3", "4"}, messages(b.Read()))
}

func TestRingBuffer_BoundedAtDefaultCapacity(t *testing.T) {
	b := NewRingBuffer(0)
	assert.Equal(t, 50, b.Capacity())

	for i := 1; i <= 60; i++ {
		b.Write(makeEntry(strconv.Itoa(i)))
	}

	entries := b.Read()
	assert.Len(t, entries, 50)
	assert.Equal(t, "11", entries[0].Message)
	assert.Equal(t, "60", entries[49].Message)
}

func TestRingBuffer_ReadLast(t *testing.T) {
	b := NewRingBuffer(4)
	for i := 1; i <= 6; i++ {
		b.Write(makeEntry(strconv.Itoa(i)))
	}

	tests := []struct {
		n    int
		want []string
	}{
		{0, []string{}},
		{2, []string{"5", "6"}},
		{4, []string{"3", "4", "5", "6"}},
		{10, []string{"3", "4", "5", "6"}},
	}
	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.n), func(t *testing.T) {
			assert.Equal(t, tt.want, messages(b.ReadLast(tt.n)))
		})
	}
}

func TestRingBuffer_ReadIsCopy(t *testing.T) {
	b := NewRingBuffer(3)
	b.Write(makeEntry("a"))

	snap := b.Read()
	snap[0].Message = "mutated"

	assert.Equal(t, "a", b.Read()[0].Message)
}

func TestRingBuffer_Empty(t *testing.T) {
	b := NewRingBuffer(3)
	assert.Empty(t, b.Read())
	assert.NotNil(t, b.Read())
	assert.Equal(t, 0, b.Count())
}

func TestRingBuffer_Clear(t *testing.T) {
	b := NewRingBuffer(3)
	b.Write(makeEntry("a"))
	b.Write(makeEntry("b"))
	b.Clear()

	assert.Equal(t, 0, b.Count())
	assert.Empty(t, b.Read())

	b.Write(makeEntry("c"))
	assert.Equal(t, []string{"c"}, messages(b.Read()))
}

func TestRingBuffer_Concurrent(t *testing.T) {
	b := NewRingBuffer(50)
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.Write(makeEntry("x"))
				_ = b.Read()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, b.Count())
}
