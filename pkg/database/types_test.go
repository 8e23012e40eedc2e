package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringArrayScan(t *testing.T) {
	cases := []struct {
		name string
		in   interface{}
		want StringArray
	}{
		{"nil", nil, nil},
		{"json", []byte(`["u1","u2"]`), StringArray{"u1", "u2"}},
		{"postgres", "{u1,u2}", StringArray{"u1", "u2"}},
		{"postgres quoted", `{"a,b",c}`, StringArray{"a,b", "c"}},
		{"postgres empty", "{}", StringArray{}},
		{"single", "solo", StringArray{"solo"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got StringArray
			require.NoError(t, got.Scan(tc.in))
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestStringArrayScanRejectsUnknownType(t *testing.T) {
	var got StringArray
	assert.Error(t, got.Scan(42))
}

func TestStringArrayValue(t *testing.T) {
	v, err := StringArray{"u1"}.Value()
	require.NoError(t, err)
	assert.Equal(t, `["u1"]`, v)

	v, err = StringArray(nil).Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	assert.True(t, StringArray{"a", "b"}.Contains("b"))
	assert.False(t, StringArray{"a"}.Contains("z"))
}
