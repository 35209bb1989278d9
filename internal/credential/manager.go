// Package credential acquires, validates and refreshes the enrichment token.
package credential

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/timmy/vidledger/internal/domain"
	"github.com/timmy/vidledger/internal/logger"
)

// Validity is the outcome of a token probe.
type Validity int

const (
	Valid Validity = iota
	Invalid
	Expired
)

func (v Validity) String() string {
	switch v {
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// Prober checks a token against the enrichment endpoint.
type Prober interface {
	Probe(ctx context.Context, token string) error
}

// Config controls acquisition.
type Config struct {
	EnvVar     string
	MinLength  int
	MaxPrompts int
}

// Manager owns the token lifecycle for one run. The token is only ever held
// in memory and is logged in masked form.
type Manager struct {
	cfg         Config
	prober      Prober
	lookupEnv   func(string) (string, bool)
	in          *bufio.Reader
	out         io.Writer
	interactive bool

	// One goroutine owns in; lines survive a cancelled prompt.
	readerOnce sync.Once
	lines      chan lineResult

	mu    sync.Mutex
	token *domain.Token
	state domain.TokenState
}

// Option configures a Manager.
type Option func(*Manager)

// WithPrompt sets the interactive streams and enables prompting regardless of TTY.
func WithPrompt(in io.Reader, out io.Writer) Option {
	return func(m *Manager) {
		m.in = bufio.NewReader(in)
		m.out = out
		m.interactive = true
	}
}

// WithEnvLookup replaces os.LookupEnv.
func WithEnvLookup(fn func(string) (string, bool)) Option {
	return func(m *Manager) { m.lookupEnv = fn }
}

// NonInteractive disables prompting.
func NonInteractive() Option {
	return func(m *Manager) { m.interactive = false }
}

// New creates a Manager. Prompting is enabled when stdin is a terminal.
func New(prober Prober, cfg Config, opts ...Option) *Manager {
	if cfg.EnvVar == "" {
		cfg.EnvVar = "TIKTOK_MS_TOKEN"
	}
	if cfg.MinLength <= 0 {
		cfg.MinLength = 50
	}
	if cfg.MaxPrompts <= 0 {
		cfg.MaxPrompts = 3
	}
	m := &Manager{
		cfg:         cfg,
		prober:      prober,
		lookupEnv:   os.LookupEnv,
		in:          bufio.NewReader(os.Stdin),
		out:         os.Stderr,
		interactive: isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()),
		state:       domain.TokenUnset,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() domain.TokenState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Current returns the active token, or nil in video-only mode.
func (m *Manager) Current() *domain.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == nil || m.state != domain.TokenActive {
		return nil
	}
	tok := *m.token
	return &tok
}

// Acquire obtains a token by precedence: explicit argument, environment, prompt.
// It returns domain.ErrNoToken when the user skips or no source yields one.
func (m *Manager) Acquire(ctx context.Context, explicit string) (*domain.Token, error) {
	m.setState(domain.TokenAcquiring)

	if v := strings.TrimSpace(explicit); v != "" {
		return m.hold(&domain.Token{Value: v, Source: domain.TokenFromArgument, State: domain.TokenAcquiring}), nil
	}
	if v, ok := m.lookupEnv(m.cfg.EnvVar); ok && strings.TrimSpace(v) != "" {
		return m.hold(&domain.Token{Value: strings.TrimSpace(v), Source: domain.TokenFromEnvironment, State: domain.TokenAcquiring}), nil
	}
	if !m.interactive {
		m.reset()
		return nil, domain.ErrNoToken
	}

	v, err := m.promptToken(ctx, "Enter your msToken (or 'skip' to continue without comments): ")
	if err != nil {
		m.reset()
		return nil, err
	}
	return m.hold(&domain.Token{Value: v, Source: domain.TokenFromPrompt, State: domain.TokenAcquiring}), nil
}

// Validate probes tok. A valid token becomes the active credential. An
// invalid one is discarded and the run continues in video-only mode.
// A probe that fails for non-authorization reasons keeps the token; expiry
// is then detected reactively.
func (m *Manager) Validate(ctx context.Context, tok *domain.Token) Validity {
	if tok == nil || tok.Value == "" {
		return Invalid
	}
	err := m.prober.Probe(ctx, tok.Value)
	switch {
	case err == nil:
		tok.State = domain.TokenValidated
		m.setState(domain.TokenValidated)
	case domain.IsAuth(err):
		m.mu.Lock()
		wasActive := m.state == domain.TokenActive || m.state == domain.TokenExpired
		m.mu.Unlock()
		m.reset()
		logger.CtxWarn(ctx, "Token rejected by enrichment endpoint: token=%s, error=%v; continuing without comments", tok.Masked(), err)
		if wasActive {
			return Expired
		}
		return Invalid
	default:
		logger.CtxWarn(ctx, "Token probe inconclusive, keeping token: token=%s, error=%v", tok.Masked(), err)
	}

	m.mu.Lock()
	tok.State = domain.TokenActive
	m.token = tok
	m.state = domain.TokenActive
	m.mu.Unlock()
	logger.CtxInfo(ctx, "Token active: source=%s, token=%s", tok.Source, tok.Masked())
	return Valid
}

// MarkExpired records that the enrichment endpoint rejected the active token.
func (m *Manager) MarkExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token != nil {
		m.token.State = domain.TokenExpired
	}
	m.state = domain.TokenExpired
}

// Refresh asks the operator for a replacement token and validates it.
// It returns nil with domain.ErrNoToken when prompting is unavailable, the
// operator declines, or the new token fails validation.
func (m *Manager) Refresh(ctx context.Context) (*domain.Token, error) {
	if !m.interactive {
		m.reset()
		return nil, domain.ErrNoToken
	}
	m.setState(domain.TokenReacquiring)

	answer, err := m.readLine(ctx, "Token appears to have expired. Enter a new token? (y/n): ")
	if err != nil || !strings.HasPrefix(strings.ToLower(answer), "y") {
		m.reset()
		if err != nil && !errors.Is(err, domain.ErrNoToken) {
			return nil, err
		}
		return nil, domain.ErrNoToken
	}

	v, err := m.promptToken(ctx, "Enter new msToken (or 'skip'): ")
	if err != nil {
		m.reset()
		return nil, err
	}
	tok := &domain.Token{Value: v, Source: domain.TokenFromPrompt, State: domain.TokenReacquiring}
	if m.Validate(ctx, tok) != Valid {
		return nil, domain.ErrNoToken
	}
	return m.Current(), nil
}

func (m *Manager) promptToken(ctx context.Context, prompt string) (string, error) {
	for attempt := 0; attempt < m.cfg.MaxPrompts; attempt++ {
		line, err := m.readLine(ctx, prompt)
		if err != nil {
			return "", err
		}
		if line == "" || strings.EqualFold(line, "skip") {
			return "", domain.ErrNoToken
		}
		if len(line) >= m.cfg.MinLength {
			return line, nil
		}
		fmt.Fprintf(m.out, "Token looks too short (%d chars, need at least %d). Try again.\n", len(line), m.cfg.MinLength)
	}
	return "", domain.ErrNoToken
}

type lineResult struct {
	line string
	err  error
}

// startReader feeds m.lines from m.in until the first read error, which is
// then repeated for every later request.
func (m *Manager) startReader() {
	m.lines = make(chan lineResult)
	go func() {
		for {
			line, err := m.in.ReadString('\n')
			m.lines <- lineResult{strings.TrimSpace(line), err}
			if err != nil {
				for {
					m.lines <- lineResult{err: err}
				}
			}
		}
	}()
}

// readLine prints prompt and reads one line. EOF means the operator skipped.
// A line typed after ctx is done is kept for the next call.
func (m *Manager) readLine(ctx context.Context, prompt string) (string, error) {
	fmt.Fprint(m.out, prompt)
	m.readerOnce.Do(m.startReader)

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-m.lines:
		if r.err != nil {
			if errors.Is(r.err, io.EOF) {
				if r.line != "" {
					return r.line, nil
				}
				return "", domain.ErrNoToken
			}
			return "", fmt.Errorf("read prompt: %w", r.err)
		}
		return r.line, nil
	}
}

func (m *Manager) hold(tok *domain.Token) *domain.Token {
	m.mu.Lock()
	m.token = tok
	m.mu.Unlock()
	return tok
}

func (m *Manager) reset() {
	m.mu.Lock()
	m.token = nil
	m.state = domain.TokenUnset
	m.mu.Unlock()
}

func (m *Manager) setState(s domain.TokenState) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}
