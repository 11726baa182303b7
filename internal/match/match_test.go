package match

import (
	"reflect"
	"testing"

	"github.com/NLion74/arch-manwarn/internal/cache"
)

func newsEntries() []cache.NewsEntry {
	return []cache.NewsEntry{
		{
			Title:   "linux-firmware >= 20250613.12fe085f-5 upgrade requires manual intervention",
			Summary: "With 20250613.12fe085f-5, we split our firmware into several vendor-focused packages.",
		},
		{
			Title:   "Plasma 6.4.0 will need manual intervention if you are on X11",
			Summary: "On Plasma 6.4 the wayland session will be the only one installed.",
		},
		{
			Title:   "Manual intervention for pacman 7.0.0 and local repositories required",
			Summary: "With the release of version 7.0.0 pacman has added support for downloading packages as a separate user.",
		},
		{
			Title:   "zabbix >= 7.4.1-2 may require manual intervention",
			Summary: "However, **manual intervention may be required** if you created custom files.",
		},
	}
}

func selectEntries(keep ...bool) []cache.NewsEntry {
	var out []cache.NewsEntry
	for i, e := range newsEntries() {
		if keep[i] {
			out = append(out, e)
		}
	}
	return out
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want []cache.NewsEntry
	}{
		{
			name: "case insensitive",
			opts: Options{Keywords: []string{"manual intervention"}},
			want: selectEntries(true, true, true, true),
		},
		{
			name: "case sensitive",
			opts: Options{Keywords: []string{"manual intervention"}, CaseSensitive: true},
			want: selectEntries(true, true, false, true),
		},
		{
			name: "uppercase keyword folded",
			opts: Options{Keywords: []string{"MANUAL INTERVENTION"}},
			want: selectEntries(true, true, true, true),
		},
		{
			name: "summary only match needs include summary",
			opts: Options{Keywords: []string{"wayland"}},
			want: nil,
		},
		{
			name: "summary match",
			opts: Options{Keywords: []string{"wayland"}, IncludeSummaryInQuery: true},
			want: selectEntries(false, true, false, false),
		},
		{
			name: "ignored beats keywords",
			opts: Options{Keywords: []string{"manual intervention"}, IgnoredKeywords: []string{"plasma", "ZABBIX"}},
			want: selectEntries(true, false, true, false),
		},
		{
			name: "ignored in summary",
			opts: Options{
				Keywords:              []string{"manual intervention"},
				IgnoredKeywords:       []string{"separate user"},
				IncludeSummaryInQuery: true,
			},
			want: selectEntries(true, true, false, true),
		},
		{
			name: "ignored summary skipped without include summary",
			opts: Options{Keywords: []string{"manual intervention"}, IgnoredKeywords: []string{"separate user"}},
			want: selectEntries(true, true, true, true),
		},
		{
			name: "match all",
			opts: Options{MatchAllEntries: true},
			want: selectEntries(true, true, true, true),
		},
		{
			name: "match all still honours ignored",
			opts: Options{MatchAllEntries: true, IgnoredKeywords: []string{"pacman"}},
			want: selectEntries(true, true, false, true),
		},
		{
			name: "empty keywords match nothing",
			opts: Options{Keywords: []string{""}},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New(tt.opts).Filter(newsEntries())
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Filter() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
