// Command smoke drives the signup, login, meetings and logout flow against a
// running server and fails loudly on the first unexpected response.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"
	"time"

	"meetbook.org/internal/ids"
)

type client struct {
	base string
	http *http.Client
}

type result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type meeting struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func main() {
	log.SetFlags(0)
	base := flag.String("base", envOr("MEETBOOK_BASE_URL", "http://localhost:8080"), "server base URL")
	timeout := flag.Duration("timeout", 10*time.Second, "overall timeout")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	suffix := strings.ToLower(ids.New())
	alice, bob := newClient(*base), newClient(*base)
	aliceName, bobName := "alice-"+suffix, "bob-"+suffix

	must(alice.expectResult(ctx, "/signup", aliceName, "pw-a", true, ""))
	must(alice.expectResult(ctx, "/signup", aliceName, "pw-x", false, "Username already exists"))
	must(alice.expectResult(ctx, "/login", aliceName, "nope", false, "Invalid credentials"))
	must(alice.expectResult(ctx, "/login", aliceName, "pw-a", true, ""))
	must(bob.expectResult(ctx, "/signup", bobName, "pw-b", true, ""))
	must(bob.expectResult(ctx, "/login", bobName, "pw-b", true, ""))

	must(alice.expectRedirect(ctx, "/meetings/create", url.Values{"name": {"smoke"}, "description": {"created by smoke"}}, "/meetings"))
	items, err := alice.meetings(ctx)
	must(err)
	if len(items) != 1 || items[0].Name != "smoke" {
		log.Fatalf("unexpected meetings for alice: %+v", items)
	}

	bobItems, err := bob.meetings(ctx)
	must(err)
	if len(bobItems) != 0 {
		log.Fatalf("bob can see alice's meetings: %+v", bobItems)
	}
	must(bob.expectRedirect(ctx, "/meetings/delete/"+items[0].ID, nil, "/meetings"))
	if items, err = alice.meetings(ctx); err != nil || len(items) != 1 {
		log.Fatalf("foreign delete removed alice's meeting: %+v %v", items, err)
	}

	must(alice.expectRedirect(ctx, "/meetings/delete/"+items[0].ID, nil, "/meetings"))
	must(alice.expectRedirect(ctx, "/logout", nil, "/"))
	if _, err := alice.meetings(ctx); err == nil {
		log.Fatal("meetings still reachable after logout")
	}

	fmt.Printf("meetbook smoke test passed: users=%s,%s\n", aliceName, bobName)
}

func newClient(base string) *client {
	jar, err := cookiejar.New(nil)
	must(err)
	return &client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (c *client) expectResult(ctx context.Context, path, username, password string, success bool, message string) error {
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	var res result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return fmt.Errorf("POST %s: decode: %w", path, err)
	}
	if res.Success != success || (message != "" && res.Message != message) {
		return fmt.Errorf("POST %s: got %+v (status %d), want success=%v message=%q", path, res, resp.StatusCode, success, message)
	}
	return nil
}

func (c *client) expectRedirect(ctx context.Context, path string, form url.Values, location string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != location {
		return fmt.Errorf("POST %s: got %d -> %q, want 303 -> %q", path, resp.StatusCode, resp.Header.Get("Location"), location)
	}
	return nil
}

func (c *client) meetings(ctx context.Context) ([]meeting, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/meetings", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET /meetings: status %d", resp.StatusCode)
	}
	var payload struct {
		Meetings []meeting `json:"meetings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	return payload.Meetings, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
