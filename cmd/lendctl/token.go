package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"lendboard/cmd/internal/secret"
)

type tokenOptions struct {
	Subject  string
	Scope    string
	Issuer   string
	Audience string
	TTL      time.Duration
}

func runToken(args []string, stdout io.Writer) error {
	fs := newFlagSet(tokenCommand, os.Stderr)
	secretEnv := fs.String("secret-env", defaultTokenEnv, "Environment variable holding the HMAC secret")
	var opts tokenOptions
	fs.StringVar(&opts.Subject, "subject", "lendctl", "Token subject")
	fs.StringVar(&opts.Scope, "scope", "snapshots:write", "Space separated scopes")
	fs.StringVar(&opts.Issuer, "issuer", "", "Token issuer")
	fs.StringVar(&opts.Audience, "audience", "", "Token audience")
	fs.DurationVar(&opts.TTL, "ttl", time.Hour, "Token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	key, err := secret.NewSource(*secretEnv, "signing secret").Get()
	if err != nil {
		return err
	}
	token, err := signToken(key, opts, time.Now())
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, token)
	return err
}

func signToken(key string, opts tokenOptions, now time.Time) (string, error) {
	if opts.TTL <= 0 {
		return "", errors.New("ttl must be positive")
	}
	claims := jwt.MapClaims{
		"sub":   opts.Subject,
		"scope": opts.Scope,
		"iat":   now.Unix(),
		"exp":   now.Add(opts.TTL).Unix(),
	}
	if opts.Issuer != "" {
		claims["iss"] = opts.Issuer
	}
	if opts.Audience != "" {
		claims["aud"] = opts.Audience
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
}
