package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"cms-service/internal/bootstrap"
	"cms-service/internal/config"
	"cms-service/internal/infrastructure/authclient"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// app carries what every command needs; the client is built on first use.
type app struct {
	out      io.Writer
	cfg      config.Config
	log      *zap.Logger
	format   string
	username string
	password string
	session  string

	cache   authclient.SessionCache
	closeFn func()
	client  *bootstrap.Client
}

func newApp(out io.Writer) *app {
	return &app{
		out: out,
		cfg: config.Load(),
		log: zap.NewNop(),
	}
}

func (a *app) connect() (*bootstrap.Client, error) {
	if a.client != nil {
		return a.client, nil
	}
	if a.cache == nil {
		a.cache, a.closeFn = bootstrap.ProvideSessionCache(a.cfg, a.session)
	}
	c, err := bootstrap.BuildClient(a.cfg, a.log, a.cache, nil)
	if err != nil {
		return nil, err
	}
	a.client = c
	return c, nil
}

// ensureSession logs in with the configured credentials when no session is
// cached yet. Without credentials the request goes out unauthenticated.
func (a *app) ensureSession(ctx context.Context) (*bootstrap.Client, error) {
	c, err := a.connect()
	if err != nil {
		return nil, err
	}
	s, err := c.Auth.GetSession(ctx)
	if err != nil && !errors.Is(err, authclient.ErrNoSession) {
		return nil, err
	}
	if s == nil && a.username != "" && a.password != "" {
		if _, err := c.Auth.Login(ctx, a.username, a.password); err != nil {
			return nil, fmt.Errorf("login: %w", err)
		}
	}
	return c, nil
}

func (a *app) close() {
	if a.closeFn != nil {
		a.closeFn()
		a.closeFn = nil
	}
}

// print writes v as indented JSON or as YAML keyed by the JSON field names.
func (a *app) print(v any) error {
	switch a.format {
	case "", "json":
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var generic any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(a.out)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q (want json or yaml)", a.format)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
