// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/bureau-foundation/roomchat/lib/netutil"
	"github.com/bureau-foundation/roomchat/lib/ref"
	"github.com/bureau-foundation/roomchat/lib/secret"
)

// MaxMediaDownloadSize bounds DownloadMedia: 50 MB.
const MaxMediaDownloadSize int64 = 50 << 20

// Session is an authenticated Matrix session. The access token lives
// in a secret.Buffer; call Close when the session ends.
type Session struct {
	client      *Client
	accessToken *secret.Buffer
	userID      ref.UserID
	deviceID    string
}

// UserID returns the session's fully qualified user ID.
func (s *Session) UserID() ref.UserID { return s.userID }

// DeviceID returns the device ID assigned at login.
func (s *Session) DeviceID() string { return s.deviceID }

// AccessToken returns the protected token buffer. The Session owns it.
func (s *Session) AccessToken() *secret.Buffer { return s.accessToken }

// Homeserver returns the base URL of the homeserver.
func (s *Session) Homeserver() string { return s.client.baseURL }

// CloseIdleConnections drops pooled connections of the underlying
// Client.
func (s *Session) CloseIdleConnections() { s.client.CloseIdleConnections() }

// Close zeroes the access token. Idempotent.
func (s *Session) Close() error {
	return s.accessToken.Close()
}

// WhoAmI validates the access token and returns the user it belongs to.
func (s *Session) WhoAmI(ctx context.Context) (ref.UserID, error) {
	body, err := s.client.doRequest(ctx, http.MethodGet, "/_matrix/client/v3/account/whoami", s.accessToken, nil)
	if err != nil {
		return ref.UserID{}, fmt.Errorf("messaging: whoami failed: %w", err)
	}
	var response WhoAmIResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return ref.UserID{}, fmt.Errorf("messaging: failed to parse whoami response: %w", err)
	}
	return response.UserID, nil
}

// SendEvent sends a timeline event with an idempotent transaction ID
// and returns the new event's ID.
func (s *Session) SendEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, content any) (ref.EventID, error) {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/send/%s/%s",
		url.PathEscape(roomID.String()),
		url.PathEscape(eventType.String()),
		url.PathEscape(newTransactionID()),
	)
	body, err := s.client.doRequest(ctx, http.MethodPut, path, s.accessToken, content)
	if err != nil {
		return ref.EventID{}, fmt.Errorf("messaging: send event to %q failed: %w", roomID, err)
	}
	var response SendEventResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return ref.EventID{}, fmt.Errorf("messaging: failed to parse send response: %w", err)
	}
	return response.EventID, nil
}

// SendMessage sends an m.room.message event.
func (s *Session) SendMessage(ctx context.Context, roomID ref.RoomID, content MessageContent) (ref.EventID, error) {
	return s.SendEvent(ctx, roomID, ref.EventTypeRoomMessage, content)
}

// GetStateEvent fetches the content of one state event. A missing
// event is a *MatrixError with M_NOT_FOUND.
func (s *Session) GetStateEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string) (json.RawMessage, error) {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/state/%s/%s",
		url.PathEscape(roomID.String()),
		url.PathEscape(eventType.String()),
		url.PathEscape(stateKey),
	)
	body, err := s.client.doRequest(ctx, http.MethodGet, path, s.accessToken, nil)
	if err != nil {
		return nil, fmt.Errorf("messaging: get state event %s/%s in %q failed: %w", eventType, stateKey, roomID, err)
	}
	return json.RawMessage(body), nil
}

// RoomMessages pages through a room's history.
func (s *Session) RoomMessages(ctx context.Context, roomID ref.RoomID, options RoomMessagesOptions) (*RoomMessagesResponse, error) {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/messages", url.PathEscape(roomID.String()))

	query := url.Values{}
	if options.From != "" {
		query.Set("from", options.From)
	}
	direction := options.Direction
	if direction == "" {
		direction = "b"
	}
	query.Set("dir", direction)
	if options.Limit > 0 {
		query.Set("limit", strconv.Itoa(options.Limit))
	}
	if options.Filter != "" {
		query.Set("filter", options.Filter)
	}

	body, err := s.client.doRequest(ctx, http.MethodGet, path, s.accessToken, nil, query)
	if err != nil {
		return nil, fmt.Errorf("messaging: room messages for %q failed: %w", roomID, err)
	}
	var response RoomMessagesResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse messages response: %w", err)
	}
	for index := range response.Chunk {
		if response.Chunk[index].RoomID.IsZero() {
			response.Chunk[index].RoomID = roomID
		}
	}
	return &response, nil
}

// Sync performs one /sync request.
func (s *Session) Sync(ctx context.Context, options SyncOptions) (*SyncResponse, error) {
	query := url.Values{}
	if options.Since != "" {
		query.Set("since", options.Since)
	}
	if options.SetTimeout {
		query.Set("timeout", strconv.Itoa(options.Timeout))
	}
	if options.Filter != "" {
		query.Set("filter", options.Filter)
	}

	body, err := s.client.doRequest(ctx, http.MethodGet, "/_matrix/client/v3/sync", s.accessToken, nil, query)
	if err != nil {
		return nil, fmt.Errorf("messaging: sync failed: %w", err)
	}
	var response SyncResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse sync response: %w", err)
	}
	return &response, nil
}

// MediaUpload describes content for UploadMedia.
type MediaUpload struct {
	ContentType string
	// Filename is sent as the filename query parameter; optional.
	Filename string
	Body     io.Reader
	// Size is the exact body length, or -1 if unknown.
	Size int64
}

// UploadMedia stores content in the homeserver's media repository and
// returns its content URI ("mxc://server/mediaID").
func (s *Session) UploadMedia(ctx context.Context, upload MediaUpload) (string, error) {
	query := url.Values{}
	if upload.Filename != "" {
		query.Set("filename", upload.Filename)
	}
	response, err := s.client.send(ctx, http.MethodPost, "/_matrix/media/v3/upload", s.accessToken,
		upload.ContentType, upload.Body, upload.Size, query)
	if err != nil {
		return "", fmt.Errorf("messaging: media upload failed: %w", err)
	}
	defer response.Body.Close()

	body, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return "", fmt.Errorf("messaging: failed to read upload response: %w", err)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return "", fmt.Errorf("messaging: media upload failed: %w",
			parseError(http.MethodPost, "/_matrix/media/v3/upload", response.StatusCode, body))
	}
	var uploaded UploadResponse
	if err := json.Unmarshal(body, &uploaded); err != nil {
		return "", fmt.Errorf("messaging: failed to parse upload response: %w", err)
	}
	if !strings.HasPrefix(uploaded.ContentURI, "mxc://") {
		return "", fmt.Errorf("messaging: upload returned malformed content URI %q", uploaded.ContentURI)
	}
	return uploaded.ContentURI, nil
}

// DownloadMedia fetches the bytes behind a content URI through the
// authenticated media endpoint. Returns the body and its content type.
func (s *Session) DownloadMedia(ctx context.Context, contentURI string) ([]byte, string, error) {
	server, mediaID, err := SplitContentURI(contentURI)
	if err != nil {
		return nil, "", err
	}
	path := "/_matrix/client/v1/media/download/" + url.PathEscape(server) + "/" + url.PathEscape(mediaID)
	response, err := s.client.send(ctx, http.MethodGet, path, s.accessToken, "", nil, -1, nil)
	if err != nil {
		return nil, "", fmt.Errorf("messaging: media download failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		body := netutil.ErrorBody(response.Body)
		return nil, "", fmt.Errorf("messaging: media download failed: %w",
			parseError(http.MethodGet, path, response.StatusCode, []byte(body)))
	}
	data, err := netutil.ReadLimited(response.Body, MaxMediaDownloadSize)
	if err != nil {
		return nil, "", fmt.Errorf("messaging: reading media %s: %w", contentURI, err)
	}
	return data, response.Header.Get("Content-Type"), nil
}

// SplitContentURI splits "mxc://server/mediaID" into its parts.
func SplitContentURI(contentURI string) (server, mediaID string, err error) {
	rest, ok := strings.CutPrefix(contentURI, "mxc://")
	if !ok {
		return "", "", fmt.Errorf("messaging: %q is not an mxc:// URI", contentURI)
	}
	server, mediaID, ok = strings.Cut(rest, "/")
	if !ok || server == "" || mediaID == "" || strings.Contains(mediaID, "/") {
		return "", "", fmt.Errorf("messaging: malformed content URI %q", contentURI)
	}
	return server, mediaID, nil
}

// GetProfile fetches a user's display name and avatar URL. Either may
// be empty.
func (s *Session) GetProfile(ctx context.Context, userID ref.UserID) (*ProfileResponse, error) {
	path := "/_matrix/client/v3/profile/" + url.PathEscape(userID.String())
	body, err := s.client.doRequest(ctx, http.MethodGet, path, s.accessToken, nil)
	if err != nil {
		return nil, fmt.Errorf("messaging: get profile for %q failed: %w", userID, err)
	}
	var response ProfileResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse profile response: %w", err)
	}
	return &response, nil
}

// Logout invalidates this session's access token on the server. The
// local token is not zeroed; call Close for that.
func (s *Session) Logout(ctx context.Context) error {
	_, err := s.client.doRequest(ctx, http.MethodPost, "/_matrix/client/v3/logout", s.accessToken, map[string]any{})
	if err != nil {
		return fmt.Errorf("messaging: logout failed: %w", err)
	}
	s.client.logger.Info("logged out of matrix", "user_id", s.userID, "device_id", s.deviceID)
	return nil
}

// newTransactionID returns a transaction ID unique across restarts and
// devices.
func newTransactionID() string {
	return "roomchat-" + uuid.NewString()
}
