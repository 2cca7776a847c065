// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bureau-foundation/roomchat/lib/secret"
)

func TestAuthenticate(t *testing.T) {
	var gotUser, gotType string
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		var body map[string]string
		json.NewDecoder(request.Body).Decode(&body)
		gotUser, gotType = body["user"], body["type"]
		writer.Header().Set("Content-Type", "application/json")
		if body["password"] != "hunter2" {
			writer.WriteHeader(http.StatusForbidden)
			json.NewEncoder(writer).Encode(map[string]string{"errcode": "M_FORBIDDEN", "error": "Invalid password"})
			return
		}
		json.NewEncoder(writer).Encode(map[string]string{
			"user_id":      "@alice:localhost",
			"access_token": "syt_alice",
			"device_id":    "DEV1",
		})
	}))
	defer server.Close()

	options := AuthOptions{Logger: slog.New(slog.DiscardHandler)}
	good, _ := secret.NewFromString("hunter2")
	defer good.Close()
	bad, _ := secret.NewFromString("nope")
	defer bad.Close()

	t.Run("success", func(t *testing.T) {
		credentials, err := Authenticate(context.Background(), server.URL, "alice", good, options)
		if err != nil {
			t.Fatalf("Authenticate: %v", err)
		}
		defer credentials.Close()
		if gotUser != "@alice:127.0.0.1" {
			t.Errorf("login user = %q, want the username qualified with the server host", gotUser)
		}
		if gotType != "m.login.password" {
			t.Errorf("login type = %q", gotType)
		}
		if credentials.UserID.String() != "@alice:localhost" || credentials.DeviceID != "DEV1" {
			t.Errorf("credentials = %+v", credentials)
		}
		if credentials.AccessToken.String() != "syt_alice" {
			t.Errorf("access token = %q", credentials.AccessToken.String())
		}
		if good.Closed() {
			t.Error("Authenticate closed the caller's password buffer")
		}
	})

	t.Run("qualified username is sent unchanged", func(t *testing.T) {
		credentials, err := Authenticate(context.Background(), server.URL, "@alice:elsewhere.org", good, options)
		if err != nil {
			t.Fatalf("Authenticate: %v", err)
		}
		credentials.Close()
		if gotUser != "@alice:elsewhere.org" {
			t.Errorf("login user = %q", gotUser)
		}
	})

	failures := map[string]struct {
		server   string
		password *secret.Buffer
	}{
		"wrong password":   {server: server.URL, password: bad},
		"malformed server": {server: "::not a url", password: good},
		"no hostname":      {server: "https://", password: good},
		"unreachable":      {server: "http://127.0.0.1:1", password: good},
	}
	for name, failure := range failures {
		t.Run(name, func(t *testing.T) {
			_, err := Authenticate(context.Background(), failure.server, "alice", failure.password, options)
			if !errors.Is(err, ErrLoginFailed) {
				t.Fatalf("error = %v, want ErrLoginFailed", err)
			}
			if err.Error() != "Login failed: Invalid credentials or server unavailable" {
				t.Errorf("message = %q", err.Error())
			}
		})
	}
}

func TestFormatAccountIDErrors(t *testing.T) {
	if _, err := FormatAccountID("alice", "https://"); !errors.Is(err, ErrInvalidServerURL) {
		t.Errorf("error = %v, want ErrInvalidServerURL", err)
	}
	got, err := FormatAccountID("alice", "https://example.org:8448")
	if err != nil || got != "@alice:example.org" {
		t.Errorf("FormatAccountID = %q, %v", got, err)
	}
}
