package remoteapi

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/oauth2"

	"github.com/opensync/syncd/internal/tokenfile"
)

// ErrNotLoggedIn is returned by TokenSourceFromPath when no token file
// exists at the configured path.
var ErrNotLoggedIn = errors.New("remoteapi: not logged in (no token file)")

// TokenSourceFromPath loads a saved token from path and returns an
// oauth2.TokenSource with auto-refresh and auto-persistence on refresh,
// grounded on the teacher's internal/graph/auth.go TokenSourceFromPath /
// oauthConfig pair. tokenURL is the project's token refresh endpoint,
// taken from config.Network.Endpoint.
func TokenSourceFromPath(tokenURL, path string, logger *slog.Logger) (oauth2.TokenSource, error) {
	tok, meta, err := tokenfile.Load(path)
	if err != nil {
		return nil, err
	}

	if tok == nil {
		return nil, ErrNotLoggedIn
	}

	expired := !tok.Expiry.IsZero() && tok.Expiry.Before(time.Now())
	logger.Info("remoteapi: loaded saved token",
		slog.String("path", path),
		slog.Time("expiry", tok.Expiry),
		slog.Bool("expired", expired),
	)

	cfg := &oauth2.Config{Endpoint: oauth2.Endpoint{TokenURL: tokenURL}}

	onRefresh := func(newTok *oauth2.Token) {
		logger.Info("remoteapi: token refreshed by oauth2 library", slog.Time("new_expiry", newTok.Expiry))

		if err := tokenfile.Save(path, newTok, meta); err != nil {
			logger.Warn("remoteapi: failed to persist refreshed token", slog.String("error", err.Error()))
		}
	}

	return &persistingTokenSource{src: cfg.TokenSource(context.Background(), tok), onRefresh: onRefresh, last: tok}, nil
}

// persistingTokenSource wraps an oauth2.TokenSource and persists the token
// to disk whenever a call returns a different one than last observed —
// oauth2.Config has no OnTokenChange hook outside its reuse source, so this
// reimplements that behavior explicitly at the call site.
type persistingTokenSource struct {
	src       oauth2.TokenSource
	onRefresh func(*oauth2.Token)
	last      *oauth2.Token
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := p.src.Token()
	if err != nil {
		return nil, err
	}

	if p.last == nil || tok.AccessToken != p.last.AccessToken {
		p.last = tok
		p.onRefresh(tok)
	}

	return tok, nil
}
