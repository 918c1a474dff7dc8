package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func lines(start, end int) *Range { return &Range{Start: start, End: end} }

func TestRegion_Overlaps(t *testing.T) {
	tests := []struct {
		a, b *Region
		name string
		want bool
	}{
		{
			name: "disjoint line ranges",
			a:    &Region{Lines: lines(1, 10)},
			b:    &Region{Lines: lines(11, 20)},
			want: false,
		},
		{
			name: "touching line ranges overlap",
			a:    &Region{Lines: lines(1, 10)},
			b:    &Region{Lines: lines(10, 20)},
			want: true,
		},
		{
			name: "lines take precedence over sections",
			a:    &Region{Lines: lines(1, 5), Section: "intro"},
			b:    &Region{Lines: lines(6, 9), Section: "intro"},
			want: false,
		},
		{
			name: "char ranges when lines absent",
			a:    &Region{Chars: lines(0, 99)},
			b:    &Region{Chars: lines(100, 200)},
			want: false,
		},
		{
			name: "intersecting char ranges",
			a:    &Region{Chars: lines(0, 150)},
			b:    &Region{Chars: lines(100, 200)},
			want: true,
		},
		{
			name: "same section",
			a:    &Region{Section: "intro"},
			b:    &Region{Section: "intro"},
			want: true,
		},
		{
			name: "different sections",
			a:    &Region{Section: "intro"},
			b:    &Region{Section: "summary"},
			want: false,
		},
		{
			name: "incomparable regions fail safe",
			a:    &Region{Lines: lines(1, 2)},
			b:    &Region{Section: "summary"},
			want: true,
		},
		{
			name: "nil region overlaps everything",
			a:    nil,
			b:    &Region{Section: "summary"},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Overlaps(tt.b))
			assert.Equal(t, tt.want, tt.b.Overlaps(tt.a), "overlap must be symmetric")
		})
	}
}

func TestRegion_Validate(t *testing.T) {
	tests := []struct {
		region  *Region
		name    string
		wantErr bool
	}{
		{name: "nil", region: nil, wantErr: true},
		{name: "empty", region: &Region{}, wantErr: true},
		{name: "section only", region: &Region{Section: "body"}},
		{name: "valid lines", region: &Region{Lines: lines(3, 7)}},
		{name: "inverted lines", region: &Region{Lines: lines(7, 3)}, wantErr: true},
		{name: "negative chars", region: &Region{Chars: lines(-1, 3)}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.region.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRegion_Covers(t *testing.T) {
	offset := 42

	assert.True(t, (&Region{Lines: lines(10, 20)}).Covers(Position{Line: 15}))
	assert.False(t, (&Region{Lines: lines(10, 20)}).Covers(Position{Line: 21}))
	assert.True(t, (&Region{Chars: lines(40, 50)}).Covers(Position{Offset: &offset}))
	assert.False(t, (&Region{Chars: lines(40, 50)}).Covers(Position{Line: 45}))
	assert.False(t, (&Region{Section: "intro"}).Covers(Position{Line: 1}))
}

func TestRegion_Clone(t *testing.T) {
	orig := &Region{Lines: lines(1, 2), Chars: lines(3, 4), Section: "s"}
	clone := orig.Clone()

	assert.Equal(t, orig, clone)
	clone.Lines.Start = 99
	assert.Equal(t, 1, orig.Lines.Start)
	assert.Nil(t, (*Region)(nil).Clone())
}
