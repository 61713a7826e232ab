package querycache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalize_StableAcrossMapOrder(t *testing.T) {
	a, err := canonicalize(Key{"tickets", "list", map[string]string{"status": "open", "page": "2"}})
	require.NoError(t, err)

	b, err := canonicalize(Key{"tickets", "list", map[string]string{"page": "2", "status": "open"}})
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestCanonicalize_DistinguishesTypes(t *testing.T) {
	a, err := canonicalize(Key{"tickets", "detail", 5})
	require.NoError(t, err)

	b, err := canonicalize(Key{"tickets", "detail", "5"})
	require.NoError(t, err)

	assert.NotEqual(t, joinSegments(a), joinSegments(b), "the number 5 and the string \"5\" are different keys")
}

func TestHasPrefix(t *testing.T) {
	tests := []struct {
		name   string
		key    Key
		prefix Key
		want   bool
	}{
		{"exact match", Key{"tickets", "list"}, Key{"tickets", "list"}, true},
		{"descendant", Key{"tickets", "list", map[string]string{"status": "open"}}, Key{"tickets"}, true},
		{"sibling", Key{"tickets", "list"}, Key{"tickets", "detail"}, false},
		{"prefix longer than key", Key{"tickets"}, Key{"tickets", "list"}, false},
		{"param object prefix", Key{"tickets", "list", map[string]string{"a": "1"}}, Key{"tickets", "list", map[string]string{"a": "1"}}, true},
		{"param object mismatch", Key{"tickets", "list", map[string]string{"a": "1"}}, Key{"tickets", "list", map[string]string{"a": "2"}}, false},
		{"empty prefix matches everything", Key{"tickets"}, Key{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			segs := mustCanonicalize(t, tt.key)
			prefix := mustCanonicalize(t, tt.prefix)
			assert.Equal(t, tt.want, hasPrefix(segs, prefix))
		})
	}
}

func TestKeyString(t *testing.T) {
	k := Key{"tickets", "detail", 5}
	assert.Equal(t, `["tickets","detail",5]`, k.String())
}
