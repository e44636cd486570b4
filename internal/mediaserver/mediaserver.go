// Package mediaserver implements the two media-server adapter kinds of
// spec.md §6: Type A (header-token auth, JSON listing, 204 refresh) and
// Type B (query-string token auth, XML listing, 200 refresh). Grounded on
// the teacher's dispatch-by-type WebhookSender in
// internal/notifications/webhook.go, and on the adapter semantics in
// original_source/tubesync/sync/mediaservers.py's JellyfinMediaServer
// (Type A) and PlexMediaServer (Type B).
package mediaserver

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tubevault/tubevault/internal/models"
	"github.com/tubevault/tubevault/internal/store"
)

// Adapter is the behavior every configured MediaServer exposes, mirroring
// the Python MediaServer base class's validate()/update() contract.
type Adapter interface {
	Validate(ctx context.Context) error
	Update(ctx context.Context) error
}

// New returns the Adapter for a configured server's Kind.
func New(client *http.Client, server *models.MediaServer) (Adapter, error) {
	libraries := splitLibraries(server.LibraryIDs)
	switch server.Kind {
	case models.MediaServerTypeA:
		return &typeAAdapter{client: client, server: server, libraries: libraries}, nil
	case models.MediaServerTypeB:
		return &typeBAdapter{client: client, server: server, libraries: libraries}, nil
	default:
		return nil, fmt.Errorf("mediaserver: unknown kind %q", server.Kind)
	}
}

func splitLibraries(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}

// Notifier asks every configured media server to rescan after a
// successful download (spec.md §4.8 notify_media_servers). It calls each
// server's Update inline, one after another; no per-server task is
// enqueued.
type Notifier struct {
	Servers *store.MediaServerRepository
	Client  *http.Client
}

// NewNotifier builds a Notifier with a sensible request timeout.
func NewNotifier(servers *store.MediaServerRepository) *Notifier {
	return &Notifier{Servers: servers, Client: &http.Client{Timeout: 10 * time.Second}}
}

// NotifyAll calls Update on every configured media server, continuing past
// individual failures and returning the first error encountered (if any)
// after all servers have been attempted.
func (n *Notifier) NotifyAll(ctx context.Context) error {
	servers, err := n.Servers.ListAll()
	if err != nil {
		return fmt.Errorf("mediaserver: list servers: %w", err)
	}
	var firstErr error
	for _, server := range servers {
		adapter, err := New(n.Client, server)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := adapter.Update(ctx); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("mediaserver: update %s (%s): %w", server.URL, server.Kind, err)
			}
		}
	}
	return firstErr
}

func doRequest(ctx context.Context, client *http.Client, method, rawURL string, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return client.Do(req)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

// typeAAdapter is the header-token/JSON/204-refresh kind (spec.md §6 Type
// A), modeled on JellyfinMediaServer.
type typeAAdapter struct {
	client    *http.Client
	server    *models.MediaServer
	libraries []string
}

type typeAItem struct {
	ID   string `json:"Id"`
	Name string `json:"Name"`
}

type typeAListing struct {
	Items []typeAItem `json:"Items"`
}

func (a *typeAAdapter) headers() map[string]string {
	return map[string]string{
		"X-Emby-Token":  a.server.Token,
		"Content-Type":  "application/json",
		"Authorization": fmt.Sprintf("MediaBrowser Token=%q", a.server.Token),
	}
}

// Validate confirms the server is reachable and every configured library
// id exists in its listing.
func (a *typeAAdapter) Validate(ctx context.Context) error {
	if len(a.libraries) == 0 {
		return fmt.Errorf("mediaserver: type A server requires at least one library id")
	}
	listURL := strings.TrimRight(a.server.URL, "/") + "/Library/MediaFolders?Recursive=true&IncludeItemTypes=CollectionFolder"
	resp, err := doRequest(ctx, a.client, http.MethodGet, listURL, a.headers())
	if err != nil {
		return fmt.Errorf("mediaserver: connect: %w", err)
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mediaserver: expected 200 listing libraries, got %d", resp.StatusCode)
	}
	var listing typeAListing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return fmt.Errorf("mediaserver: decode library listing: %w", err)
	}
	known := make(map[string]bool, len(listing.Items))
	for _, item := range listing.Items {
		known[item.ID] = true
	}
	for _, id := range a.libraries {
		if !known[id] {
			return fmt.Errorf("mediaserver: library id %q does not exist on this server", id)
		}
	}
	return nil
}

// Update refreshes every configured library, expecting 204 on success.
func (a *typeAAdapter) Update(ctx context.Context) error {
	for _, id := range a.libraries {
		refreshURL := strings.TrimRight(a.server.URL, "/") + "/Items/" + url.PathEscape(id) + "/Refresh"
		resp, err := doRequest(ctx, a.client, http.MethodPost, refreshURL, a.headers())
		if err != nil {
			return fmt.Errorf("mediaserver: refresh library %q: %w", id, err)
		}
		drain(resp)
		if resp.StatusCode != http.StatusNoContent {
			return fmt.Errorf("mediaserver: refresh library %q: expected 204, got %d", id, resp.StatusCode)
		}
	}
	return nil
}

// typeBAdapter is the query-token/XML/200-refresh kind (spec.md §6 Type
// B), modeled on PlexMediaServer.
type typeBAdapter struct {
	client    *http.Client
	server    *models.MediaServer
	libraries []string
}

type typeBDirectory struct {
	Key   string `xml:"key,attr"`
	Title string `xml:"title,attr"`
}

type typeBContainer struct {
	XMLName     xml.Name         `xml:"MediaContainer"`
	Directories []typeBDirectory `xml:"Directory"`
}

func (b *typeBAdapter) withToken(rawURL string) string {
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + "X-Plex-Token=" + url.QueryEscape(b.server.Token)
}

// Validate confirms the server is reachable and every configured library
// id exists in its listing.
func (b *typeBAdapter) Validate(ctx context.Context) error {
	if len(b.libraries) == 0 {
		return fmt.Errorf("mediaserver: type B server requires at least one library id")
	}
	listURL := b.withToken(strings.TrimRight(b.server.URL, "/") + "/library/sections")
	resp, err := doRequest(ctx, b.client, http.MethodGet, listURL, nil)
	if err != nil {
		return fmt.Errorf("mediaserver: connect: %w", err)
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mediaserver: expected 200 listing libraries, got %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("mediaserver: read library listing: %w", err)
	}
	var container typeBContainer
	if err := xml.Unmarshal(bytes.TrimSpace(body), &container); err != nil {
		return fmt.Errorf("mediaserver: decode library listing: %w", err)
	}
	known := make(map[string]bool, len(container.Directories))
	for _, dir := range container.Directories {
		known[dir.Key] = true
	}
	for _, id := range b.libraries {
		if !known[id] {
			return fmt.Errorf("mediaserver: library id %q does not exist on this server", id)
		}
	}
	return nil
}

// Update refreshes every configured library section, expecting 200 on
// success.
func (b *typeBAdapter) Update(ctx context.Context) error {
	for _, id := range b.libraries {
		refreshURL := b.withToken(strings.TrimRight(b.server.URL, "/") + "/library/sections/" + url.PathEscape(id) + "/refresh")
		resp, err := doRequest(ctx, b.client, http.MethodGet, refreshURL, nil)
		if err != nil {
			return fmt.Errorf("mediaserver: refresh library %q: %w", id, err)
		}
		drain(resp)
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("mediaserver: refresh library %q: expected 200, got %d", id, resp.StatusCode)
		}
	}
	return nil
}
