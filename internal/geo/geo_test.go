package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectAuthority(t *testing.T) {
	tests := []struct {
		name string
		wkt  string
		want string
		ok   bool
	}{
		{
			name: "wkt1 projected",
			wkt:  `PROJCS["NAD83 / UTM zone 17N",GEOGCS["NAD83",AUTHORITY["EPSG","4269"]],AUTHORITY["EPSG","26917"]]`,
			want: "EPSG:26917",
			ok:   true,
		},
		{
			name: "wkt2 id tag",
			wkt:  `PROJCRS["NAD83 / UTM zone 16N",ID["EPSG",26916]]`,
			want: "EPSG:26916",
			ok:   true,
		},
		{
			name: "geographic only",
			wkt:  `GEOGCS["WGS 84",AUTHORITY["EPSG","4326"]]`,
			want: "EPSG:4326",
			ok:   true,
		},
		{
			name: "compound returns horizontal not vertical datum",
			wkt:  `COMPD_CS["NAD83(2011) + NAVD88",PROJCS["NAD83(2011) / UTM zone 17N",GEOGCS["NAD83(2011)",AUTHORITY["EPSG","6318"]],AUTHORITY["EPSG","6346"]],VERT_CS["NAVD88 height",VERT_DATUM["North American Vertical Datum 1988",2005],AUTHORITY["EPSG","5703"]]]`,
			want: "EPSG:6346",
			ok:   true,
		},
		{
			name: "wkt2 compound",
			wkt:  `COMPOUNDCRS["NAD83 + NAVD88",PROJCRS["NAD83 / UTM zone 16N",ID["EPSG",26916]],VERTCRS["NAVD88 height",ID["EPSG",5703]]]`,
			want: "EPSG:26916",
			ok:   true,
		},
		{
			name: "vertical authority alone is not horizontal",
			wkt:  `COMPD_CS["local + NAVD88",LOCAL_CS["arbitrary"],VERT_CS["NAVD88 height",AUTHORITY["EPSG","5703"]]]`,
			ok:   false,
		},
		{
			name: "no authority",
			wkt:  `LOCAL_CS["arbitrary"]`,
			ok:   false,
		},
		{
			name: "empty",
			wkt:  "",
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DetectAuthority(tt.wkt)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBoundsValid(t *testing.T) {
	assert.True(t, Bounds{MinX: -84, MinY: 39, MaxX: -83, MaxY: 40}.Valid())
	assert.False(t, Bounds{MinX: -83, MinY: 39, MaxX: -84, MaxY: 40}.Valid())
	assert.False(t, Bounds{MinX: -84, MinY: 40, MaxX: -83, MaxY: 40}.Valid())
	assert.False(t, Bounds{}.Valid())
}

func TestParseAuthority(t *testing.T) {
	code, err := ParseAuthority("EPSG:26917")
	require.NoError(t, err)
	assert.Equal(t, 26917, code)

	_, err = ParseAuthority("ESRI:102003")
	assert.Error(t, err)

	_, err = ParseAuthority("EPSG:zone17")
	assert.Error(t, err)
}
