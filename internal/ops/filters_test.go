package ops

import (
	"testing"

	"github.com/hpungsan/herd/internal/errors"
	"github.com/hpungsan/herd/internal/remote"
)

func TestSetFilter_SingleToken(t *testing.T) {
	env := setup(t)
	a := env.addToken(t, "alice", "good-a")
	b := env.addToken(t, "alice", "good-b")

	out, err := SetFilter(env.ctx, env.database, SetFilterInput{
		Owner:   "alice",
		TokenID: b.ID,
		Filter:  remote.Filter{BirthYearFrom: 1990, BirthYearTo: 2000, NationalityCode: " kr "},
	})
	if err != nil {
		t.Fatalf("SetFilter failed: %v", err)
	}
	if len(out.Updated) != 1 || out.Filter.NationalityCode != "KR" {
		t.Errorf("out = %+v", out)
	}

	got, err := GetFilter(env.ctx, env.database, "alice", b.ID)
	if err != nil {
		t.Fatalf("GetFilter failed: %v", err)
	}
	if got.Filter == nil || got.Filter.BirthYearTo != 2000 {
		t.Errorf("Filter = %+v", got.Filter)
	}

	// Empty id reads the current account, which has no filter
	got, err = GetFilter(env.ctx, env.database, "alice", "")
	if err != nil {
		t.Fatalf("GetFilter(current) failed: %v", err)
	}
	if got.TokenID != a.ID || got.Filter != nil {
		t.Errorf("got = %+v, want empty filter of %s", got, a.ID)
	}
}

func TestSetFilter_AllTokens(t *testing.T) {
	env := setup(t)
	env.addToken(t, "alice", "good-a")
	env.addToken(t, "alice", "good-b")

	out, err := SetFilter(env.ctx, env.database, SetFilterInput{Owner: "alice", Filter: remote.Filter{GenderType: 2}})
	if err != nil {
		t.Fatalf("SetFilter failed: %v", err)
	}
	if len(out.Updated) != 2 {
		t.Errorf("len(Updated) = %d, want 2", len(out.Updated))
	}

	_, err = SetFilter(env.ctx, env.database, SetFilterInput{Owner: "nobody"})
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("owner without tokens: got %v, want ErrNotFound", err)
	}
}

func TestValidateFilter(t *testing.T) {
	tests := []struct {
		name    string
		filter  remote.Filter
		wantErr bool
	}{
		{"empty", remote.Filter{}, false},
		{"full", remote.Filter{GenderType: 1, BirthYearFrom: 1990, BirthYearTo: 1999, Distance: 50, NationalityCode: "jp"}, false},
		{"bad gender", remote.Filter{GenderType: 5}, true},
		{"reversed years", remote.Filter{BirthYearFrom: 2000, BirthYearTo: 1990}, true},
		{"ancient", remote.Filter{BirthYearFrom: 1800}, true},
		{"negative distance", remote.Filter{Distance: -1}, true},
		{"long code", remote.Filter{NationalityCode: "USA"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := tt.filter
			err := validateFilter(&f)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateFilter() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetFilter_NoCurrentAccount(t *testing.T) {
	env := setup(t)

	_, err := GetFilter(env.ctx, env.database, "alice", "")
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("got %v, want ErrInvalidRequest", err)
	}
}
