package models

import (
	"reflect"
	"testing"
)

func TestActionResultingStatus(t *testing.T) {
	cases := map[Action]Status{
		ActionApprove: StatusApproved,
		ActionReject:  StatusRejected,
		ActionDefer:   StatusDeferred,
	}
	for action, want := range cases {
		if got := action.ResultingStatus(); got != want {
			t.Fatalf("%s: expected %s, got %s", action, want, got)
		}
	}
}

func TestCloneIsDeep(t *testing.T) {
	a := Article{
		ID:             "a1",
		RelevanceScore: IntPtr(8),
		Hashtags:       []string{"#one", "#two"},
	}
	b := a.Clone()

	*b.RelevanceScore = 3
	b.Hashtags[0] = "#mutated"

	if *a.RelevanceScore != 8 || a.Hashtags[0] != "#one" {
		t.Fatalf("clone shares memory with original: %+v", a)
	}
}

func TestCloneArticlesPreservesNil(t *testing.T) {
	if CloneArticles(nil) != nil {
		t.Fatalf("nil input must stay nil, it means never-fetched")
	}

	empty := CloneArticles([]Article{})
	if empty == nil || len(empty) != 0 {
		t.Fatalf("empty input must stay empty and non-nil")
	}

	in := []Article{{ID: "a"}, {ID: "b"}}
	out := CloneArticles(in)
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("clone must be equal to input")
	}
}
