package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// savedSession is what survives between runs.
type savedSession struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func defaultSessionPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".termchat-session.json"
	}
	return filepath.Join(home, ".termchat", "session.json")
}

func loadSession(path string) (*savedSession, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s savedSession
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &s, nil
}

func storeSession(path string, s *savedSession) error {
	if s == nil {
		err := os.Remove(path)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

// refresh trades the refresh token for a new pair over the REST API.
func refresh(httpc *http.Client, server string, s *savedSession) (*savedSession, error) {
	body, _ := json.Marshal(map[string]string{"refresh_token": s.RefreshToken})
	resp, err := httpc.Post(strings.TrimRight(server, "/")+"/api/v1/auth/refresh", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("refresh: %s", resp.Status)
	}
	var out savedSession
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// usable returns a token to open the terminal with, refreshing it when it
// is about to expire. An empty token starts signed out.
func usable(httpc *http.Client, server, path string, now time.Time) string {
	s, err := loadSession(path)
	if err != nil || s == nil {
		return ""
	}
	if now.Add(time.Minute).Before(s.ExpiresAt) {
		return s.AccessToken
	}
	if s.RefreshToken == "" {
		return ""
	}
	next, err := refresh(httpc, server, s)
	if err != nil {
		_ = storeSession(path, nil)
		return ""
	}
	_ = storeSession(path, next)
	return next.AccessToken
}
