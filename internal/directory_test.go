package internal

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

type stubDirectory struct {
	name string
	err  error
}

func (stub stubDirectory) DisplayName(context.Context, string) (string, error) {
	return stub.name, stub.err
}

func TestResolveDisplayName(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.Nop()
	cases := []struct {
		label     string
		directory UserDirectory
		want      string
	}{
		{"found", stubDirectory{name: "ann"}, "ann"},
		{"error", stubDirectory{err: errors.New("down")}, unknownDisplayName},
		{"empty", stubDirectory{}, unknownDisplayName},
		{"nil directory", nil, unknownDisplayName},
	}
	for _, tc := range cases {
		if got := resolveDisplayName(ctx, tc.directory, "u1", logger); got != tc.want {
			t.Errorf("%s: expected %q, got %q", tc.label, tc.want, got)
		}
	}
}

func TestStatusFor(t *testing.T) {
	if statusFor(badInput("x")) != 400 {
		t.Fatal("bad input should map to 400")
	}
	if statusFor(upstreamFailure("lookup", errors.New("x"))) != 502 {
		t.Fatal("upstream should map to 502")
	}
	if statusFor(ioFailure("write", errors.New("x"))) != 500 {
		t.Fatal("io should map to 500")
	}
}
