package pagecheck

import (
	"testing"

	"github.com/ptt/forumsync/dom"
)

func parse(t *testing.T, s string) dom.Node {
	t.Helper()
	doc, err := dom.ParseString(s)
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestDetectorCheck(t *testing.T) {
	for _, test := range []struct {
		desc    string
		page    string
		wantMsg string
		wantOk  bool
	}{
		{
			desc:    "standard error with inner",
			page:    `<div class="standarderror"><div class="inner">Sorry, this thread was deleted.</div><a href="#">back</a></div>`,
			wantMsg: "Sorry, this thread was deleted.",
			wantOk:  true,
		},
		{
			desc:    "standard error without inner",
			page:    `<div class="standarderror">Access denied</div>`,
			wantMsg: "Access denied",
			wantOk:  true,
		},
		{
			desc:    "login wall",
			page:    `<div id="notregistered">Register now</div>`,
			wantMsg: MsgNotLoggedIn,
			wantOk:  true,
		},
		{
			desc:    "database error",
			page:    `<html><head><title>The Forums - Database Error</title></head><body></body></html>`,
			wantMsg: MsgDatabaseError,
			wantOk:  true,
		},
		{
			desc: "normal page",
			page: `<html><head><title>Thread</title></head><body><div class="pages">1</div></body></html>`,
		},
	} {
		t.Run(test.desc, func(t *testing.T) {
			msg, ok := Detector{}.Check(parse(t, test.page))
			if msg != test.wantMsg || ok != test.wantOk {
				t.Errorf("Check() = (%q, %t); want (%q, %t)", msg, ok, test.wantMsg, test.wantOk)
			}
		})
	}
}

func TestParseLastPage(t *testing.T) {
	for _, test := range []struct {
		desc    string
		page    string
		want    int
		wantErr error
	}{
		{
			desc: "select control",
			page: `<div class="pages top"><select><option value="1">1</option><option value="2">2</option><option value="17" selected>17</option></select></div>`,
			want: 17,
		},
		{
			desc: "links",
			page: `<div class="pages">Pages (9): <a href="showthread.php?threadid=1&amp;pagenumber=1">1</a> <a href="showthread.php?threadid=1&amp;pagenumber=9" title="Last page">Last »</a></div>`,
			want: 9,
		},
		{
			desc: "count only",
			page: `<div class="pages">Pages (4):</div>`,
			want: 4,
		},
		{
			desc: "single page",
			page: `<div class="pages"></div>`,
			want: 1,
		},
		{
			desc: "first control wins",
			page: `<div class="pages"><option value="3"></option></div><div class="pages"><option value="8"></option></div>`,
			want: 3,
		},
		{
			desc:    "no control",
			page:    `<div class="breadcrumbs"></div>`,
			wantErr: ErrNoPageControl,
		},
	} {
		t.Run(test.desc, func(t *testing.T) {
			got, err := ParseLastPage(parse(t, test.page))
			if got != test.want || err != test.wantErr {
				t.Errorf("ParseLastPage() = %v, %v; want %v, %v", got, err, test.want, test.wantErr)
			}
		})
	}
}
