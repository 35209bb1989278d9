package credential

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/timmy/vidledger/internal/domain"
)

type fakeProber struct {
	err   error
	calls int
	seen  []string
}

func (f *fakeProber) Probe(ctx context.Context, token string) error {
	f.calls++
	f.seen = append(f.seen, token)
	return f.err
}

var longToken = strings.Repeat("a", 60)

func noEnv(string) (string, bool) { return "", false }

func TestAcquirePrecedence(t *testing.T) {
	envToken := strings.Repeat("e", 60)
	env := func(key string) (string, bool) {
		if key == "TIKTOK_MS_TOKEN" {
			return envToken, true
		}
		return "", false
	}

	tests := []struct {
		name       string
		explicit   string
		env        func(string) (string, bool)
		input      string
		wantValue  string
		wantSource domain.TokenSource
		wantErr    error
	}{
		{"argument wins", "arg-token", env, "", "arg-token", domain.TokenFromArgument, nil},
		{"environment next", "", env, "", envToken, domain.TokenFromEnvironment, nil},
		{"prompt last", "", noEnv, longToken + "\n", longToken, domain.TokenFromPrompt, nil},
		{"skip", "", noEnv, "skip\n", "", "", domain.ErrNoToken},
		{"empty line", "", noEnv, "\n", "", "", domain.ErrNoToken},
		{"eof", "", noEnv, "", "", "", domain.ErrNoToken},
		{"short then valid", "", noEnv, "short\n" + longToken + "\n", longToken, domain.TokenFromPrompt, nil},
		{"too many short", "", noEnv, "a\nb\nc\n" + longToken + "\n", "", "", domain.ErrNoToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			m := New(&fakeProber{}, Config{}, WithEnvLookup(tt.env), WithPrompt(strings.NewReader(tt.input), &out))
			tok, err := m.Acquire(context.Background(), tt.explicit)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Acquire() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				if tok != nil || m.State() != domain.TokenUnset {
					t.Fatalf("expected no token and unset state")
				}
				return
			}
			if tok.Value != tt.wantValue || tok.Source != tt.wantSource {
				t.Fatalf("token = %q/%s, want %q/%s", tok.Value, tok.Source, tt.wantValue, tt.wantSource)
			}
		})
	}
}

func TestAcquireNonInteractive(t *testing.T) {
	m := New(&fakeProber{}, Config{}, WithEnvLookup(noEnv), NonInteractive())
	if _, err := m.Acquire(context.Background(), ""); !errors.Is(err, domain.ErrNoToken) {
		t.Fatalf("Acquire() error = %v, want ErrNoToken", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name       string
		probeErr   error
		want       Validity
		wantActive bool
	}{
		{"accepted", nil, Valid, true},
		{"rejected", &domain.EnrichmentAuthError{StatusCode: 403, Err: errors.New("no")}, Invalid, false},
		{"network blip keeps token", errors.New("dial tcp: timeout"), Valid, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(&fakeProber{err: tt.probeErr}, Config{}, WithEnvLookup(noEnv), NonInteractive())
			tok, err := m.Acquire(context.Background(), longToken)
			if err != nil {
				t.Fatalf("Acquire() error: %v", err)
			}
			if got := m.Validate(context.Background(), tok); got != tt.want {
				t.Fatalf("Validate() = %s, want %s", got, tt.want)
			}
			if (m.Current() != nil) != tt.wantActive {
				t.Fatalf("Current() active = %v, want %v", m.Current() != nil, tt.wantActive)
			}
		})
	}
}

func TestRefresh(t *testing.T) {
	newToken := strings.Repeat("n", 60)
	tests := []struct {
		name     string
		input    string
		probeErr error
		want     string
	}{
		{"accepts new token", "y\n" + newToken + "\n", nil, newToken},
		{"declines", "n\n", nil, ""},
		{"new token rejected", "y\n" + newToken + "\n", &domain.EnrichmentAuthError{Err: errors.New("no")}, ""},
		{"eof", "", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prober := &fakeProber{}
			m := New(prober, Config{}, WithEnvLookup(noEnv), WithPrompt(strings.NewReader(tt.input), &bytes.Buffer{}))
			tok, _ := m.Acquire(context.Background(), longToken)
			m.Validate(context.Background(), tok)
			m.MarkExpired()
			if m.Current() != nil || m.State() != domain.TokenExpired {
				t.Fatal("expired token must not be current")
			}

			prober.err = tt.probeErr
			got, err := m.Refresh(context.Background())
			if tt.want == "" {
				if got != nil || !errors.Is(err, domain.ErrNoToken) {
					t.Fatalf("Refresh() = %v, %v; want nil, ErrNoToken", got, err)
				}
				if m.Current() != nil {
					t.Fatal("no token should be current after failed refresh")
				}
				return
			}
			if err != nil || got == nil || got.Value != tt.want || got.State != domain.TokenActive {
				t.Fatalf("Refresh() = %+v, %v", got, err)
			}
		})
	}
}

func TestRefreshNonInteractive(t *testing.T) {
	m := New(&fakeProber{}, Config{}, WithEnvLookup(noEnv), NonInteractive())
	if tok, err := m.Refresh(context.Background()); tok != nil || !errors.Is(err, domain.ErrNoToken) {
		t.Fatalf("Refresh() = %v, %v", tok, err)
	}
}

func TestReadLineHonoursContext(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	m := New(&fakeProber{}, Config{}, WithEnvLookup(noEnv), WithPrompt(r, &bytes.Buffer{}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.Acquire(ctx, ""); !errors.Is(err, context.Canceled) {
		t.Fatalf("Acquire() error = %v, want context.Canceled", err)
	}

	// The next prompt still receives the line typed after the cancellation.
	go func() {
		_, _ = io.WriteString(w, longToken+"\n")
	}()
	tok, err := m.Acquire(context.Background(), "")
	if err != nil || tok == nil || tok.Value != longToken {
		t.Fatalf("Acquire() = %+v, %v", tok, err)
	}
}
