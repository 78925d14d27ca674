// Package main provides the Spotify authorization tool that mints the
// refresh token the player server runs with.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/osa030/tunedeck/internal/infra/logger"
	"github.com/osa030/tunedeck/internal/infra/spotify"
)

var (
	app          = kingpin.New("tunedeck-auth", "Spotify authorization tool for tunedeck")
	clientID     = app.Flag("client-id", "Spotify Client ID").Envar("SPOTIFY_CLIENT_ID").Required().String()
	clientSecret = app.Flag("client-secret", "Spotify Client Secret").Envar("SPOTIFY_CLIENT_SECRET").Required().String()
	port         = app.Flag("port", "Callback server port").Default("8888").Int()
	envFile      = app.Flag("env-file", "Write SPOTIFY_REFRESH_TOKEN into this dotenv file").String()
	timeout      = app.Flag("timeout", "Give up waiting for the browser after this long").Default("5m").Duration()
)

// callback completes the authorization code flow for one state value.
type callback struct {
	auth   *spotifyauth.Authenticator
	state  string
	tokens chan *oauth2.Token
}

func (c *callback) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if st := r.FormValue("state"); st != c.state {
		http.Error(w, "State mismatch", http.StatusForbidden)
		zlog.Warn().Msgf("State mismatch: got %q", st)
		return
	}

	token, err := c.auth.Token(r.Context(), c.state, r)
	if err != nil {
		http.Error(w, "Failed to get token", http.StatusForbidden)
		zlog.Error().Msgf("Failed to get token: %v", err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, completePage)

	select {
	case c.tokens <- token:
	default:
	}
}

func main() {
	_ = godotenv.Load()
	kingpin.MustParse(app.Parse(os.Args[1:]))

	if _, err := logger.Init(logger.Config{Output: "stderr", Level: "info"}); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	if err := run(); err != nil {
		zlog.Fatal().Msgf("Authorization failed: %v", err)
	}
}

func run() error {
	cb := &callback{
		auth: spotifyauth.New(
			spotifyauth.WithRedirectURL(fmt.Sprintf("http://127.0.0.1:%d/callback", *port)),
			spotifyauth.WithClientID(*clientID),
			spotifyauth.WithClientSecret(*clientSecret),
			spotifyauth.WithScopes(spotify.Scopes...),
		),
		state:  uuid.NewString(),
		tokens: make(chan *oauth2.Token, 1),
	}

	mux := http.NewServeMux()
	mux.Handle("/callback", cb)
	server := &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", *port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			zlog.Warn().Msgf("Failed to shutdown callback server: %v", err)
		}
	}()

	fmt.Println("Please visit the following URL to authorize tunedeck:")
	fmt.Println("")
	fmt.Println(cb.auth.AuthURL(cb.state))
	fmt.Println("")
	fmt.Println("Waiting for authorization...")

	var token *oauth2.Token
	select {
	case token = <-cb.tokens:
	case err := <-serverErrCh:
		return errors.Wrap(err, "callback server failed")
	case <-time.After(*timeout):
		return errors.Newf("no authorization received within %v", *timeout)
	}

	if *envFile != "" {
		if err := writeEnv(*envFile, token.RefreshToken); err != nil {
			return err
		}
		fmt.Printf("\nRefresh token written to %s\n", *envFile)
		return nil
	}

	fmt.Println("")
	fmt.Println("=== Authorization Successful ===")
	fmt.Println("")
	fmt.Println("Refresh Token:")
	fmt.Println(token.RefreshToken)
	fmt.Println("")
	fmt.Println("Add this to config/server.yaml:")
	fmt.Println("")
	fmt.Println("spotify:")
	fmt.Printf("  refresh_token: \"%s\"\n", token.RefreshToken)
	fmt.Println("")
	fmt.Println("Or set as environment variable:")
	fmt.Printf("export SPOTIFY_REFRESH_TOKEN=\"%s\"\n", token.RefreshToken)
	return nil
}

// writeEnv merges the refresh token into a dotenv file, keeping other keys.
func writeEnv(path, refreshToken string) error {
	env, err := godotenv.Read(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrapf(err, "failed to read %s", path)
	}
	if env == nil {
		env = make(map[string]string)
	}
	env["SPOTIFY_REFRESH_TOKEN"] = refreshToken
	if err := godotenv.Write(env, path); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}

const completePage = `<!DOCTYPE html>
<html>
<head>
    <title>tunedeck - Authorization Complete</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            display: flex;
            justify-content: center;
            align-items: center;
            height: 100vh;
            margin: 0;
            background: #191414;
            color: white;
        }
    </style>
</head>
<body>
    <div>
        <h1>Authorization Complete</h1>
        <p>You can close this window and return to the terminal.</p>
    </div>
</body>
</html>
`
