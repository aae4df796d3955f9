// Package firebase implements auth.Verifier on top of Firebase
// Authentication ID tokens.
package firebase

import (
	"context"
	"fmt"

	fb "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/HowDiggy/signconnect/internal/auth"
)

// Verifier validates Firebase ID tokens issued for a single project.
type Verifier struct {
	client *fbauth.Client
}

// Compile-time interface assertion.
var _ auth.Verifier = (*Verifier)(nil)

// Option is a functional option for configuring the Verifier.
type Option func(*settings)

type settings struct {
	projectID       string
	credentialsFile string
}

// WithProjectID pins token verification to the given Firebase project.
// Without it the project is taken from the credentials.
func WithProjectID(id string) Option {
	return func(s *settings) {
		s.projectID = id
	}
}

// WithCredentialsFile authenticates the Admin SDK with the given
// service-account JSON file instead of Application Default Credentials.
func WithCredentialsFile(path string) Option {
	return func(s *settings) {
		s.credentialsFile = path
	}
}

// New initialises the Firebase Admin SDK and returns a Verifier.
func New(ctx context.Context, opts ...Option) (*Verifier, error) {
	s := &settings{}
	for _, o := range opts {
		o(s)
	}

	cfg := &fb.Config{ProjectID: s.projectID}
	var clientOpts []option.ClientOption
	if s.credentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(s.credentialsFile))
	}

	app, err := fb.NewApp(ctx, cfg, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("firebase: initialize app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase: create auth client: %w", err)
	}
	return &Verifier{client: client}, nil
}

// Verify implements auth.Verifier. Expired, revoked, and malformed tokens all
// map to auth.ErrInvalidToken.
func (v *Verifier) Verify(ctx context.Context, token string) (auth.Identity, error) {
	if token == "" {
		return auth.Identity{}, fmt.Errorf("%w: empty token", auth.ErrInvalidToken)
	}

	decoded, err := v.client.VerifyIDToken(ctx, token)
	if err != nil {
		return auth.Identity{}, fmt.Errorf("%w: %v", auth.ErrInvalidToken, err)
	}

	id := auth.Identity{UID: decoded.UID}
	if email, ok := decoded.Claims["email"].(string); ok {
		id.Email = email
	}
	if name, ok := decoded.Claims["name"].(string); ok {
		id.Name = name
	}
	return id, nil
}
