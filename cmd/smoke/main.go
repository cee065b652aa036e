// Command smoke walks the happy path against a running instance: register a
// fresh account, log in with the same credentials and read the own profile.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"time"
)

type tokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type authResponse struct {
	User struct {
		ID   string `json:"uid"`
		Role string `json:"role"`
	} `json:"user"`
	Tokens tokenPair `json:"tokens"`
}

func main() {
	base := os.Getenv("MEDIDESK_API_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	client := &http.Client{Timeout: 10 * time.Second}

	email := fmt.Sprintf("smoke-%d@example.com", rand.New(rand.NewSource(time.Now().UnixNano())).Int())
	password := "Smoke-test-1"

	reg := postJSON(client, base+"/api/auth/register", map[string]any{
		"email":       email,
		"password":    password,
		"fullName":    "Smoke Test",
		"phoneNumber": "+10000000000",
		"role":        "patient",
	}, http.StatusCreated)
	var created authResponse
	decode(reg, &created)
	if created.Tokens.AccessToken == "" {
		log.Fatal("register returned no access token")
	}

	login := postJSON(client, base+"/api/auth/login", map[string]any{
		"email":    email,
		"password": password,
	}, http.StatusOK)
	var session authResponse
	decode(login, &session)
	if session.User.ID != created.User.ID {
		log.Fatalf("login subject %s does not match registration %s", session.User.ID, created.User.ID)
	}

	req, err := http.NewRequest(http.MethodGet, base+"/api/users/"+session.User.ID, nil)
	if err != nil {
		log.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+session.Tokens.AccessToken)
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("get profile: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("get profile status %d", resp.StatusCode)
	}

	fmt.Printf("✅ smoke test passed: user=%s role=%s\n", session.User.ID, session.User.Role)
}

func postJSON(client *http.Client, url string, body map[string]any, wantStatus int) []byte {
	payload, err := json.Marshal(body)
	if err != nil {
		log.Fatalf("marshal: %v", err)
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		log.Fatalf("post %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		log.Fatalf("post %s status %d, want %d", url, resp.StatusCode, wantStatus)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		log.Fatalf("read body: %v", err)
	}
	return buf.Bytes()
}

func decode(data []byte, v any) {
	if err := json.Unmarshal(data, v); err != nil {
		log.Fatalf("decode: %v", err)
	}
}
