package ioutil

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadLimited(t *testing.T) {
	t.Run("reads content up to limit", func(t *testing.T) {
		assert.Equal(t, "invalid_grant", ReadLimited(strings.NewReader("invalid_grant\n"), 1024))
	})

	t.Run("marks truncation", func(t *testing.T) {
		assert.Equal(t, "hello...", ReadLimited(strings.NewReader("hello world"), 5))
	})

	t.Run("exact limit is not truncated", func(t *testing.T) {
		assert.Equal(t, "hello", ReadLimited(strings.NewReader("hello"), 5))
	})

	t.Run("empty reader", func(t *testing.T) {
		assert.Equal(t, "", ReadLimited(strings.NewReader(""), 1024))
	})

	t.Run("read error returns description", func(t *testing.T) {
		r := &failingReader{err: fmt.Errorf("connection reset")}
		assert.Equal(t, "<unreadable: connection reset>", ReadLimited(r, 1024))
	})
}

type failingReader struct {
	err error
}

func (r *failingReader) Read(_ []byte) (int, error) {
	return 0, r.err
}
