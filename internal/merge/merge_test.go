package merge

import (
	"fmt"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLines(t *testing.T) {
	tests := []struct {
		name     string
		base     string
		left     string
		right    string
		want     string
		conflict bool
	}{
		{
			name:  "left only",
			base:  "a\nb\nc\n",
			left:  "a\nB\nc\n",
			right: "a\nb\nc\n",
			want:  "a\nB\nc\n",
		},
		{
			name:  "right only",
			base:  "a\nb\nc\n",
			left:  "a\nb\nc\n",
			right: "a\nb\nc\nd\n",
			want:  "a\nb\nc\nd\n",
		},
		{
			name:  "disjoint edits",
			base:  "a\nb\nc\nd\ne\n",
			left:  "A\nb\nc\nd\ne\n",
			right: "a\nb\nc\nd\nE\n",
			want:  "A\nb\nc\nd\nE\n",
		},
		{
			name:  "identical edit collapses",
			base:  "a\nx\nb\nm\n",
			left:  "a\ny\nb\nm\n",
			right: "a\ny\nb\nM\n",
			want:  "a\ny\nb\nM\n",
		},
		{
			name:  "both delete",
			base:  "a\nb\nc\n",
			left:  "a\nc\n",
			right: "a\nc\n",
			want:  "a\nc\n",
		},
		{
			name:     "divergent edit",
			base:     "a\nx\nb\n",
			left:     "a\ny\nb\n",
			right:    "a\nz\nb\n",
			want:     "a\n<<<<<<< left\ny\n||||||| base\nx\n=======\nz\n>>>>>>> right\nb\n",
			conflict: true,
		},
		{
			name:     "missing trailing newline",
			base:     "x",
			left:     "y",
			right:    "z",
			want:     "<<<<<<< left\ny\n||||||| base\nx\n=======\nz\n>>>>>>> right\n",
			conflict: true,
		},
		{
			name:  "empty base",
			base:  "",
			left:  "",
			right: "new\n",
			want:  "new\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Lines([]byte(tt.base), []byte(tt.left), []byte(tt.right), Labels{})
			assert.Equal(t, tt.want, string(got.Content))
			assert.Equal(t, tt.conflict, got.Conflict)
		})
	}
}

func TestLines_Labels(t *testing.T) {
	got := Lines([]byte("x\n"), []byte("y\n"), []byte("z\n"), Labels{
		Base:  "parent",
		Left:  "rebased",
		Right: "destination",
	})
	assert.True(t, got.Conflict)
	assert.Equal(t, 1, got.Conflicts)
	assert.Equal(t,
		"<<<<<<< rebased\ny\n||||||| parent\nx\n=======\nz\n>>>>>>> destination\n",
		string(got.Content))
}

func TestHasMarkers(t *testing.T) {
	conflicted := Lines([]byte("a\nx\n"), []byte("a\ny\n"), []byte("a\nz\n"), Labels{})
	assert.True(t, HasMarkers(conflicted.Content))
	assert.False(t, HasMarkers([]byte("a\n<<<<<<<nospace\n")))
	assert.False(t, HasMarkers([]byte("plain text\n")))
}

func TestWhole(t *testing.T) {
	got := Whole([]byte("a\n"), nil, []byte("b"), Labels{})
	assert.True(t, got.Conflict)
	assert.Equal(t, "<<<<<<< left\n||||||| base\na\n=======\nb\n>>>>>>> right\n", string(got.Content))
}

func numbered(prefix string, n int) []string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("%s %d\n", prefix, i)
	}
	return lines
}

// allocated reports the bytes fn allocates.
func allocated(fn func()) uint64 {
	var before, after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)
	fn()
	runtime.ReadMemStats(&after)
	return after.TotalAlloc - before.TotalAlloc
}

func TestLines_LargeFileScatteredEdits(t *testing.T) {
	const n = 20000
	base := numbered("line", n)

	left := append([]string{}, base...)
	left[100] = "left edit\n"
	left = append(left[:5000], append([]string{"left insert\n"}, left[5000:]...)...)

	right := append([]string{}, base...)
	right[15000] = "right edit\n"
	right = append(right[:19000], right[19001:]...)

	want := append([]string{}, base...)
	want[100] = "left edit\n"
	want[15000] = "right edit\n"
	want = append(want[:19000], want[19001:]...)
	want = append(want[:5000], append([]string{"left insert\n"}, want[5000:]...)...)

	var got Result
	bytes := allocated(func() {
		got = Lines([]byte(strings.Join(base, "")), []byte(strings.Join(left, "")), []byte(strings.Join(right, "")), Labels{})
	})
	require.False(t, got.Conflict)
	assert.Equal(t, strings.Join(want, ""), string(got.Content))
	assert.Less(t, bytes, uint64(64<<20))
}

func TestLines_LargeFileRewrittenOnBothSides(t *testing.T) {
	const n = 4000
	base := strings.Join(numbered("base", n), "")
	left := strings.Join(numbered("left", n), "")
	right := strings.Join(numbered("right", n), "")

	var got Result
	bytes := allocated(func() {
		got = Lines([]byte(base), []byte(left), []byte(right), Labels{})
	})
	assert.True(t, got.Conflict)
	assert.Equal(t, 1, got.Conflicts)
	assert.Equal(t, "<<<<<<< left\n"+left+"||||||| base\n"+base+"=======\n"+right+">>>>>>> right\n", string(got.Content))
	assert.Less(t, bytes, uint64(32<<20))
}
