package dida

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/cr8z/taskvoice/config"
)

// Authorizer obtains a fresh access token through an interactive flow.
type Authorizer interface {
	Authorize(ctx context.Context) (string, error)
}

// loopbackWait bounds how long the browser flow may take before falling
// back to manual code entry.
const loopbackWait = 2 * time.Minute

// OAuthFlow implements Authorizer with the authorization-code exchange.
// It starts a loopback HTTP listener to capture the redirect; if the
// listener cannot start or no redirect arrives in time, the user is asked
// to paste the code from the redirect URL instead.
type OAuthFlow struct {
	cfg config.DidaConfig
	in  io.Reader
	out io.Writer
}

// NewOAuthFlow builds an OAuthFlow that prompts on stdin/stdout.
func NewOAuthFlow(cfg config.DidaConfig) *OAuthFlow {
	return &OAuthFlow{cfg: cfg, in: os.Stdin, out: os.Stdout}
}

// Authorize runs the interactive authorization-code flow and returns the
// exchanged access token.
func (f *OAuthFlow) Authorize(ctx context.Context) (string, error) {
	conf := &oauth2.Config{
		ClientID:     f.cfg.ClientID,
		ClientSecret: f.cfg.ClientSecret,
		RedirectURL:  f.cfg.RedirectURI,
		Scopes:       []string{"tasks:write", "tasks:read"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  f.cfg.AuthURL,
			TokenURL: f.cfg.TokenURL,
		},
	}
	authURL := conf.AuthCodeURL("state")

	fmt.Fprintf(f.out, "请在浏览器中打开以下链接完成授权：\n%s\n", authURL)

	code, err := f.waitForCode(ctx)
	if err != nil || code == "" {
		code, err = f.promptForCode()
		if err != nil {
			return "", err
		}
	}
	if code == "" {
		return "", fmt.Errorf("no authorization code obtained")
	}

	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("exchange authorization code: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("token response contained no access_token")
	}
	fmt.Fprintln(f.out, "授权成功！")
	return tok.AccessToken, nil
}

// waitForCode serves the loopback redirect endpoint until a code arrives
// or the wait expires. An empty code with nil error means fall back to
// manual entry.
func (f *OAuthFlow) waitForCode(ctx context.Context) (string, error) {
	addr, path, err := loopbackAddr(f.cfg.RedirectURI)
	if err != nil {
		return "", err
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("start loopback listener on %s: %w", addr, err)
	}
	defer listener.Close()

	codeCh := make(chan string, 1)
	srv := &http.Server{
		ReadHeaderTimeout: 10 * time.Second,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if path != "" && r.URL.Path != path {
				http.NotFound(w, r)
				return
			}
			code := r.URL.Query().Get("code")
			if code == "" {
				http.Error(w, "Authorization failed! Please try again.", http.StatusBadRequest)
				return
			}
			fmt.Fprint(w, "Authorization successful! You can close this window.")
			select {
			case codeCh <- code:
			default:
			}
		}),
	}
	go func() { _ = srv.Serve(listener) }()
	defer func() { _ = srv.Shutdown(context.Background()) }()

	fmt.Fprintln(f.out, "等待浏览器授权回调...")
	select {
	case code := <-codeCh:
		return code, nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(loopbackWait):
		fmt.Fprintln(f.out, "自动授权超时，切换到手动模式。")
		return "", nil
	}
}

// promptForCode asks the user to paste the code parameter from the
// redirect URL.
func (f *OAuthFlow) promptForCode() (string, error) {
	fmt.Fprintln(f.out, "完成授权后，从重定向地址中复制 code 参数的值。")
	fmt.Fprint(f.out, "请输入 code: ")
	scanner := bufio.NewScanner(f.in)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("read authorization code: %w", err)
		}
		return "", fmt.Errorf("no authorization code entered")
	}
	return strings.TrimSpace(scanner.Text()), nil
}

// loopbackAddr derives the listen address and callback path from the
// configured redirect URI.
func loopbackAddr(redirectURI string) (addr, path string, err error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", "", fmt.Errorf("parse redirect uri %s: %w", redirectURI, err)
	}
	port := u.Port()
	if port == "" {
		port = "8080"
	}
	return "localhost:" + port, u.Path, nil
}
