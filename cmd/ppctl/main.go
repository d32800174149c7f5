// Command ppctl talks to a Perfect Pic server from the terminal: it inspects
// the captcha setup, probes provider widgets, and signs in.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/text/language"

	sdk "github.com/perfectpic/perfectpic/sdk/go"
	"github.com/perfectpic/perfectpic/sdk/go/telemetry"
)

const usage = `usage: ppctl [flags] <command> [args]

commands:
  captcha   show the active captcha provider and field state
  probe     load the provider widget and wait for a token
  login     sign in, answering the captcha
  logout    forget the stored token
  whoami    show the signed-in user
  site      show public site settings

flags:
`

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ppctl: %v\n", err)
		os.Exit(2)
	}
	if err := run(context.Background(), os.Args[1:], cfg, os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "ppctl: %v\n", err)
		os.Exit(1)
	}
}

type app struct {
	cfg        Config
	client     *sdk.Client
	httpClient *http.Client
	tokens     sdk.TokenStore
	hooks      telemetry.Hooks
	lang       language.Tag
	in         *bufio.Reader
	out        io.Writer
}

func run(ctx context.Context, args []string, cfg Config, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("ppctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	fs.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "Perfect Pic site URL")
	fs.StringVar(&cfg.Locale, "locale", cfg.Locale, "message language (BCP 47)")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "overall command timeout")
	fs.StringVar(&cfg.TokenFile, "token-file", cfg.TokenFile, "where the session token is kept")
	verbose := fs.Bool("v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *verbose {
		cfg.LogLevel = zerolog.LevelDebugValue
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return flag.ErrHelp
	}

	a, err := newApp(cfg, stdin, stdout, stderr)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "captcha":
		return a.captchaCmd(ctx, rest)
	case "probe":
		return a.probeCmd(ctx, rest)
	case "login":
		return a.loginCmd(ctx, rest)
	case "logout":
		return a.logoutCmd()
	case "whoami":
		return a.whoamiCmd(ctx)
	case "site":
		return a.siteCmd(ctx)
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func newApp(cfg Config, stdin io.Reader, stdout, stderr io.Writer) (*app, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("base URL required (PERFECTPIC_BASE_URL or -base-url)")
	}
	lang, err := language.Parse(cfg.Locale)
	if err != nil {
		lang = language.SimplifiedChinese
	}
	logger := newLogger(stderr, cfg.LogLevel, cfg.LogJSON)
	hooks := telemetryHooks(logger)

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	httpClient := &http.Client{Jar: jar, Timeout: cfg.Timeout}

	// An explicit token is used as is and never written to disk.
	var tokens sdk.TokenStore = sdk.NewMemoryTokenStore("")
	path := cfg.TokenFile
	if path == "" {
		path = defaultTokenFile()
	}
	if cfg.Token == "" && path != "" {
		store, err := openFileTokenStore(path)
		if err != nil {
			return nil, fmt.Errorf("token file: %w", err)
		}
		tokens = store
	}

	client, err := sdk.NewClient(sdk.Config{
		BaseURL:        cfg.BaseURL,
		AccessToken:    cfg.Token,
		TokenStore:     tokens,
		HTTPClient:     httpClient,
		Telemetry:      hooks,
		AcceptLanguage: lang.String(),
	})
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:        cfg,
		client:     client,
		httpClient: httpClient,
		tokens:     tokens,
		hooks:      hooks,
		lang:       lang,
		in:         bufio.NewReader(stdin),
		out:        stdout,
	}, nil
}

// persistErr surfaces a failed token file write.
func (a *app) persistErr() error {
	if fs, ok := a.tokens.(*fileTokenStore); ok {
		if err := fs.Err(); err != nil {
			return fmt.Errorf("save token: %w", err)
		}
	}
	return nil
}

func (a *app) prompt(label string) (string, error) {
	fmt.Fprint(a.out, label)
	line, err := a.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read %s: %w", strings.TrimSuffix(strings.TrimSpace(label), ":"), err)
	}
	return strings.TrimSpace(line), nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format(time.RFC3339)
}
