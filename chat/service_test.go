// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chat_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bureau-foundation/roomchat/chat"
	"github.com/bureau-foundation/roomchat/chat/chattest"
	"github.com/bureau-foundation/roomchat/lib/secret"
	"github.com/bureau-foundation/roomchat/lib/testutil"
)

func newService(t *testing.T, protocol *chattest.Protocol) *chat.Service {
	t.Helper()
	service := chat.NewService(chat.ServiceConfig{
		Server:      "https://example.org",
		Logger:      quietLogger(),
		NewProtocol: protocol.Factory(),
	})
	t.Cleanup(service.Disconnect)
	return service
}

func connect(t *testing.T, service *chat.Service) *chat.Credentials {
	t.Helper()
	credentials := newCredentials(t)
	if err := service.Connect(context.Background(), credentials); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return credentials
}

func readyProtocol() *chattest.Protocol {
	protocol := chattest.NewProtocol(alice)
	protocol.AutoPrepare = true
	return protocol
}

// loginServer answers /login for alice with password "hunter2".
func loginServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		var body struct {
			User     string `json:"user"`
			Password string `json:"password"`
		}
		json.NewDecoder(request.Body).Decode(&body)
		writer.Header().Set("Content-Type", "application/json")
		if body.Password != "hunter2" {
			writer.WriteHeader(http.StatusForbidden)
			json.NewEncoder(writer).Encode(map[string]string{"errcode": "M_FORBIDDEN", "error": "Invalid password"})
			return
		}
		json.NewEncoder(writer).Encode(map[string]string{
			"user_id":      "@alice:example.org",
			"access_token": "syt_login",
			"device_id":    "LOGINDEVICE",
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func password(t *testing.T, value string) *secret.Buffer {
	t.Helper()
	buffer, err := secret.NewFromString(value)
	if err != nil {
		t.Fatalf("secret.NewFromString: %v", err)
	}
	t.Cleanup(func() { buffer.Close() })
	return buffer
}

func TestServiceLogin(t *testing.T) {
	server := loginServer(t)
	protocol := readyProtocol()
	service := chat.NewService(chat.ServiceConfig{
		Server:      server.URL,
		Logger:      quietLogger(),
		NewProtocol: protocol.Factory(),
	})
	defer service.Disconnect()

	err := service.Login(context.Background(), "", "alice", password(t, "wrong"))
	if !errors.Is(err, chat.ErrLoginFailed) {
		t.Fatalf("wrong password: error = %v, want ErrLoginFailed", err)
	}
	if service.LoggedIn() {
		t.Fatal("logged in after failed login")
	}

	if err := service.Login(context.Background(), "", "alice", password(t, "hunter2")); err != nil {
		t.Fatalf("Login: %v", err)
	}
	userID, err := service.UserID()
	if err != nil || userID != alice {
		t.Errorf("UserID = %s, %v", userID, err)
	}
	credentials := protocol.Credentials()
	if credentials == nil || credentials.DeviceID != "LOGINDEVICE" || credentials.AccessToken.String() != "syt_login" {
		t.Errorf("credentials handed to the protocol = %+v", credentials)
	}
	if credentials.Server != server.URL {
		t.Errorf("credentials server = %q, want %q", credentials.Server, server.URL)
	}
}

func TestServiceRequiresLogin(t *testing.T) {
	service := newService(t, readyProtocol())
	ctx := context.Background()

	checks := map[string]error{}
	_, checks["SendMessage"] = service.SendMessage(ctx, general, "hi")
	_, checks["SendVoiceMessage"] = service.SendVoiceMessage(ctx, general, chat.AudioClip{Data: []byte("x")})
	_, checks["HistoricalMessages"] = service.HistoricalMessages(ctx, general, 0)
	_, checks["Rooms"] = service.Rooms()
	_, checks["UserID"] = service.UserID()
	_, checks["FetchProfile"] = service.FetchProfile(ctx, bob)
	checks["Logout"] = service.Logout(ctx)
	for name, err := range checks {
		if !errors.Is(err, chat.ErrNotLoggedIn) {
			t.Errorf("%s: error = %v, want ErrNotLoggedIn", name, err)
		}
		if err != nil && err.Error() != "Not logged in" {
			t.Errorf("%s: message = %q", name, err.Error())
		}
	}
}

func TestServiceRelaysThroughOneHandler(t *testing.T) {
	protocol := readyProtocol()
	service := newService(t, protocol)
	connect(t, service)

	received := make(chan string, 8)
	for round := range 3 {
		first := service.Subscribe(func(message chat.Message) { received <- "first:" + message.Content })
		second := service.Subscribe(func(message chat.Message) { received <- "second:" + message.Content })

		protocol.Emit(chattest.TextEvent(general, testutil.UniqueEventID(), "@bob:example.org", "hi"))
		if got := testutil.RequireReceive(t, received, time.Second, "round %d", round); got != "first:hi" {
			t.Errorf("round %d: got %q first", round, got)
		}
		testutil.RequireReceive(t, received, time.Second, "round %d second", round)

		service.Unsubscribe(first)
		if protocol.ListenerCount() != 1 {
			t.Fatalf("round %d: listener detached while subscribed", round)
		}
		service.Unsubscribe(second)
		if protocol.ListenerCount() != 0 {
			t.Fatalf("round %d: listener still attached with no subscribers", round)
		}
	}

	if session := service.Session(); session.SubscriberCount() != 0 {
		t.Errorf("session has %d subscribers, want 0", session.SubscriberCount())
	}
}

func TestServiceSubscriptionFollowsLogin(t *testing.T) {
	protocol := readyProtocol()
	service := newService(t, protocol)

	received := make(chan chat.Message, 1)
	service.Subscribe(func(message chat.Message) { received <- message })
	if protocol.ListenerCount() != 0 {
		t.Fatal("listener attached before login")
	}

	connect(t, service)
	if protocol.ListenerCount() != 1 {
		t.Fatalf("listener count after login = %d, want 1", protocol.ListenerCount())
	}
	protocol.Emit(chattest.TextEvent(general, "$1", "@bob:example.org", "hello"))
	if message := testutil.RequireReceive(t, received, time.Second, "live message"); message.Content != "hello" {
		t.Errorf("content = %q", message.Content)
	}
}

func TestServiceReloginReplacesSession(t *testing.T) {
	firstProtocol := readyProtocol()
	secondProtocol := readyProtocol()
	protocols := []*chattest.Protocol{firstProtocol, secondProtocol}
	service := chat.NewService(chat.ServiceConfig{
		Logger: quietLogger(),
		NewProtocol: func(credentials *chat.Credentials) (chat.Protocol, error) {
			next := protocols[0]
			protocols = protocols[1:]
			return next.Factory()(credentials)
		},
	})
	defer service.Disconnect()

	received := make(chan chat.Message, 2)
	service.Subscribe(func(message chat.Message) { received <- message })

	firstCredentials := connect(t, service)
	firstProfiles := service.Profiles()
	connect(t, service)

	if !firstProtocol.Closed() || firstProtocol.Running() {
		t.Error("previous protocol client not closed")
	}
	if !firstCredentials.AccessToken.Closed() {
		t.Error("previous credentials not released")
	}
	if service.Profiles() == firstProfiles {
		t.Error("profile directory not reset on login")
	}

	firstProtocol.Emit(chattest.TextEvent(general, "$old", "@bob:example.org", "stale"))
	secondProtocol.Emit(chattest.TextEvent(general, "$new", "@bob:example.org", "fresh"))
	if message := testutil.RequireReceive(t, received, time.Second, "message from new session"); message.Content != "fresh" {
		t.Errorf("received %q, want only the new session's message", message.Content)
	}
}

func TestServiceConnectFailureKeepsPreviousSession(t *testing.T) {
	protocol := readyProtocol()
	service := newService(t, protocol)
	connect(t, service)

	failing := chat.NewService(chat.ServiceConfig{
		Logger: quietLogger(),
		NewProtocol: func(*chat.Credentials) (chat.Protocol, error) {
			return nil, chattest.ErrTransport
		},
	})
	credentials := newCredentials(t)
	if err := failing.Connect(context.Background(), credentials); !errors.Is(err, chat.ErrNotInitialized) {
		t.Errorf("Connect error = %v, want ErrNotInitialized", err)
	}
	if !credentials.AccessToken.Closed() {
		t.Error("credentials not released after failed connect")
	}
	if !service.LoggedIn() {
		t.Error("unrelated service affected")
	}
}

func TestServiceResume(t *testing.T) {
	t.Run("valid-token", func(t *testing.T) {
		protocol := readyProtocol()
		service := newService(t, protocol)
		if err := service.Resume(context.Background(), newCredentials(t)); err != nil {
			t.Fatalf("Resume: %v", err)
		}
		if !service.LoggedIn() || protocol.WhoAmICalls() != 1 {
			t.Errorf("logged in = %v, whoami calls = %d", service.LoggedIn(), protocol.WhoAmICalls())
		}
	})

	t.Run("token-for-another-user", func(t *testing.T) {
		protocol := chattest.NewProtocol(bob)
		protocol.AutoPrepare = true
		service := newService(t, protocol)
		credentials := newCredentials(t)
		if err := service.Resume(context.Background(), credentials); !errors.Is(err, chat.ErrSessionExpired) {
			t.Fatalf("Resume error = %v, want ErrSessionExpired", err)
		}
		if !credentials.AccessToken.Closed() {
			t.Error("credentials not released")
		}
		if starts, _ := protocol.Counts(); starts != 0 {
			t.Errorf("sync loop started %d times", starts)
		}
	})

	t.Run("check-unavailable", func(t *testing.T) {
		protocol := readyProtocol()
		protocol.WhoAmIError = chattest.ErrTransport
		service := newService(t, protocol)
		if err := service.Resume(context.Background(), newCredentials(t)); err != nil {
			t.Fatalf("Resume with whoami unreachable: %v", err)
		}
		if !service.LoggedIn() {
			t.Error("not logged in")
		}
	})
}

func TestServiceConnectSkipsTokenCheck(t *testing.T) {
	protocol := readyProtocol()
	service := newService(t, protocol)
	connect(t, service)
	if calls := protocol.WhoAmICalls(); calls != 0 {
		t.Errorf("whoami calls = %d after Connect with fresh credentials", calls)
	}
}

func TestServiceDisconnectAndLogout(t *testing.T) {
	protocol := readyProtocol()
	service := newService(t, protocol)
	credentials := connect(t, service)
	service.Subscribe(func(chat.Message) {})

	if err := service.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if !protocol.LoggedOut() {
		t.Error("access token not invalidated on the server")
	}
	if service.LoggedIn() {
		t.Error("still logged in")
	}
	if !credentials.AccessToken.Closed() || !protocol.Closed() {
		t.Error("session resources not released")
	}
	if protocol.ListenerCount() != 0 {
		t.Error("listener left attached")
	}

	// Disconnect when logged out is harmless.
	service.Disconnect()
}

func TestServiceLogoutSurvivesServerFailure(t *testing.T) {
	protocol := readyProtocol()
	protocol.LogoutError = chattest.ErrTransport
	service := newService(t, protocol)
	connect(t, service)

	if err := service.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if service.LoggedIn() {
		t.Error("local session kept after failed server logout")
	}
}
