package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	baseURL   = flag.String("base", "http://localhost:8080", "server base URL")
	wsURL     = flag.String("ws", "ws://localhost:8080/ws", "websocket URL")
	pairCount = flag.Int("pairs", 50, "number of chatting pairs")
	msgCount  = flag.Int("messages", 20, "messages per user")
)

type authResponse struct {
	AccessToken string `json:"accessToken"`
	ID          string `json:"id"`
	Username    string `json:"username"`
}

type conversationResponse struct {
	ID string `json:"id"`
}

type envelope struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Timestamp uint64      `json:"timestamp"`
	Data      interface{} `json:"data"`
}

func main() {
	flag.Parse()
	log.Printf("starting load test: %d pairs, %d messages each", *pairCount, *msgCount)

	var wg sync.WaitGroup
	for i := 0; i < *pairCount; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(pairID)
		}(i)
	}
	wg.Wait()

	log.Println("load test complete")
}

func runPair(pairID int) {
	suffix := uuid.NewString()[:8]
	nameA := fmt.Sprintf("lt_%d_a_%s", pairID, suffix)
	nameB := fmt.Sprintf("lt_%d_b_%s", pairID, suffix)
	pass := "loadtest-password"

	a := signup(nameA, pass)
	b := signup(nameB, pass)
	if a == nil || b == nil {
		return
	}

	convID := createConversation(a.AccessToken, b.ID)
	if convID == "" {
		return
	}

	var wsWg sync.WaitGroup
	wsWg.Add(2)
	go chatSession(&wsWg, a, b.ID, convID)
	go chatSession(&wsWg, b, a.ID, convID)
	wsWg.Wait()
}

func signup(username, password string) *authResponse {
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	resp, err := http.Post(*baseURL+"/auth/signup", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("signup failed [%s]: %v", username, err)
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		log.Printf("signup failed [%s]: status %d", username, resp.StatusCode)
		return nil
	}

	var data authResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		log.Printf("signup decode failed [%s]: %v", username, err)
		return nil
	}
	return &data
}

func createConversation(token, partnerID string) string {
	body, _ := json.Marshal(map[string]string{"userId": partnerID})
	req, _ := http.NewRequest(http.MethodPost, *baseURL+"/api/conversations", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Printf("create conversation failed: %v", err)
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Printf("create conversation failed: status %d", resp.StatusCode)
		return ""
	}

	var data conversationResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return ""
	}
	return data.ID
}

// chatSession connects one user and sends the message burst while draining
// inbound frames so the server's send buffers never fill up.
func chatSession(wg *sync.WaitGroup, me *authResponse, partnerID, convID string) {
	defer wg.Done()

	conn, _, err := websocket.DefaultDialer.Dial(*wsURL+"?token="+url.QueryEscape(me.AccessToken), nil)
	if err != nil {
		log.Printf("ws connect failed [%s]: %v", me.Username, err)
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for i := 0; i < *msgCount; i++ {
		env := envelope{
			ID:        uuid.NewString(),
			Type:      "message",
			Timestamp: uint64(time.Now().UnixMilli()),
			Data: map[string]string{
				"recipientId":    partnerID,
				"conversationId": convID,
				"content":        fmt.Sprintf("load test message %d from %s", i, me.Username),
			},
		}
		if err := conn.WriteJSON(env); err != nil {
			log.Printf("send failed [%s]: %v", me.Username, err)
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
	log.Printf("%s finished", me.Username)
}
