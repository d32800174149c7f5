package main

import (
	"context"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	sdk "github.com/perfectpic/perfectpic/sdk/go"
	"github.com/perfectpic/perfectpic/sdk/go/captcha"
	"github.com/perfectpic/perfectpic/sdk/go/captcha/jsruntime"
)

// startSession loads the captcha config and returns the settled session.
func (a *app) startSession(ctx context.Context) (*captcha.Session, error) {
	s := a.client.Captcha.NewSession()
	s.Start(ctx)
	if err := s.Wait(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (a *app) captchaCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("captcha", flag.ContinueOnError)
	imageOut := fs.String("image-out", "", "write the image challenge to this file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := a.startSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	st := s.State()
	field := captcha.NewField(s, nil, captcha.FieldOptions{Language: a.lang})
	status := field.Status()
	fmt.Fprintf(a.out, "provider:  %s\n", displayProvider(st.Provider))
	fmt.Fprintf(a.out, "view:      %s\n", status.View)
	if st.SiteKey != "" {
		fmt.Fprintf(a.out, "site key:  %s\n", st.SiteKey)
	}
	if status.Message != "" {
		fmt.Fprintf(a.out, "message:   %s\n", status.Message)
	}
	if status.View != captcha.ViewImage {
		return nil
	}
	img := s.Image()
	fmt.Fprintf(a.out, "captcha id: %s\n", img.CaptchaID)
	if *imageOut != "" {
		if err := writeDataURL(*imageOut, img.Image); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "image:     %s\n", *imageOut)
	}
	return nil
}

func (a *app) probeCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("probe", flag.ContinueOnError)
	wait := fs.Duration("wait", 10*time.Second, "how long to wait for a token after the widget is ready")
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := a.startSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	page, err := jsruntime.New(
		jsruntime.WithHTTPClient(a.httpClient),
		jsruntime.WithNavigatorLanguage(a.lang.String()),
		jsruntime.WithTelemetry(a.hooks),
	)
	if err != nil {
		return err
	}
	defer page.Close()
	renderer := captcha.NewRenderer(page,
		captcha.WithRendererTelemetry(a.hooks),
		captcha.WithLanguage(a.lang),
	)
	field := captcha.NewField(s, renderer, captcha.FieldOptions{Language: a.lang, ContainerID: "ppctl-captcha"})
	defer field.Close()

	m := field.Sync(ctx)
	if m == nil {
		status := field.Status()
		fmt.Fprintf(a.out, "provider: %s\nview:     %s\n", displayProvider(status.Provider), status.View)
		if status.Message != "" {
			fmt.Fprintf(a.out, "message:  %s\n", status.Message)
		}
		return nil
	}
	if err := m.Wait(ctx); err != nil {
		return err
	}
	status := field.Status()
	fmt.Fprintf(a.out, "provider: %s\nphase:    %s\n", status.Provider, m.Phase())
	if status.WidgetFailed {
		fmt.Fprintf(a.out, "message:  %s\n", status.Message)
		return m.Err()
	}
	fmt.Fprintf(a.out, "scripts:  %s\n", strings.Join(page.Scripts(), ", "))

	deadline := time.NewTimer(*wait)
	defer deadline.Stop()
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		if tok := s.Token(); tok != "" {
			fmt.Fprintf(a.out, "token:    %s\n", tok)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			fmt.Fprintln(a.out, "token:    none (the challenge needs a person)")
			return nil
		case <-tick.C:
		}
	}
}

func (a *app) loginCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	username := fs.String("u", "", "username")
	password := fs.String("p", "", "password (prompted when empty)")
	answer := fs.String("answer", "", "image captcha answer (prompted when empty)")
	token := fs.String("captcha-token", "", "token from a solved provider widget")
	imageOut := fs.String("image-out", "", "where to write the image challenge (default: temp file)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var err error
	if *username == "" {
		if *username, err = a.prompt("username: "); err != nil {
			return err
		}
	}
	if *password == "" {
		if *password, err = a.prompt("password: "); err != nil {
			return err
		}
	}

	s, err := a.startSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	st := s.State()
	switch {
	case st.Provider == captcha.ProviderImage:
		img := s.Image()
		if *answer == "" {
			path := *imageOut
			if path == "" {
				f, err := os.CreateTemp("", "ppctl-captcha-*.png")
				if err != nil {
					return err
				}
				path = f.Name()
				_ = f.Close()
			}
			if err := writeDataURL(path, img.Image); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "captcha image written to %s\n", path)
			if *answer, err = a.prompt("captcha: "); err != nil {
				return err
			}
		}
		s.SetAnswer(*answer)
	case st.Enabled:
		if *token == "" {
			return fmt.Errorf("%s captcha is active: solve it in a browser and pass -captcha-token", st.Provider)
		}
		s.SetToken(s.Epoch(), *token)
	}

	var result sdk.LoginResult
	err = captcha.Submit(ctx, s, func(ctx context.Context, payload captcha.Payload) error {
		var err error
		result, err = a.client.Auth.Login(ctx, sdk.LoginRequest{
			Username: *username,
			Password: *password,
			Captcha:  payload,
		})
		return err
	})
	if err != nil {
		return err
	}
	if err := a.persistErr(); err != nil {
		return err
	}
	if c := result.Claims; c != nil {
		fmt.Fprintf(a.out, "logged in as %s (expires %s)\n", c.Username, formatTime(c.ExpiresAtTime()))
		return nil
	}
	fmt.Fprintf(a.out, "logged in as %s\n", *username)
	return nil
}

func (a *app) logoutCmd() error {
	a.client.Auth.Logout()
	if err := a.persistErr(); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "logged out")
	return nil
}

func (a *app) whoamiCmd(ctx context.Context) error {
	if a.tokens.Token() == "" {
		return errors.New("not logged in")
	}
	if a.client.SessionExpired(time.Now()) {
		return errors.New("session expired, log in again")
	}
	user, err := a.client.User.Profile(ctx)
	if err != nil {
		if sdk.IsUnauthorized(err) {
			return errors.New("session expired, log in again")
		}
		return err
	}
	role := "user"
	if user.Admin {
		role = "admin"
	}
	fmt.Fprintf(a.out, "%s (#%d, %s)\n", user.Username, user.ID, role)
	if user.Email != "" {
		verified := "unverified"
		if user.EmailVerified {
			verified = "verified"
		}
		fmt.Fprintf(a.out, "email:   %s (%s)\n", user.Email, verified)
	}
	quota := "unlimited"
	if user.StorageQuota != nil {
		quota = fmt.Sprintf("%d", *user.StorageQuota)
	}
	fmt.Fprintf(a.out, "storage: %d / %s bytes\n", user.StorageUsed, quota)
	return nil
}

func (a *app) siteCmd(ctx context.Context) error {
	info, err := a.client.Site.Info(ctx)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(info))
	for k := range info {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(a.out, "%s=%s\n", k, info[k])
	}
	return nil
}

func displayProvider(p captcha.Provider) string {
	if p == captcha.ProviderNone {
		return "none"
	}
	return string(p)
}

// writeDataURL decodes a data: URL and writes its payload to path.
func writeDataURL(path, dataURL string) error {
	data, err := decodeDataURL(dataURL)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func decodeDataURL(dataURL string) ([]byte, error) {
	rest, ok := strings.CutPrefix(dataURL, "data:")
	if !ok {
		return nil, errors.New("captcha image is not a data URL")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, errors.New("captcha image data URL has no payload")
	}
	if strings.HasSuffix(meta, ";base64") {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("decode captcha image: %w", err)
		}
		return data, nil
	}
	text, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("decode captcha image: %w", err)
	}
	return []byte(text), nil
}
