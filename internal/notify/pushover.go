package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/config"
	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/httpkit"
)

const pushoverEndpoint = "https://api.pushover.net/1/messages.json"

// Pushover sends notifications through the Pushover message API.
type Pushover struct {
	token      string
	user       string
	endpoint   string
	httpClient *http.Client
}

// NewPushover creates a Pushover channel.
func NewPushover(cfg config.PushoverConfig) *Pushover {
	return &Pushover{
		token:      cfg.Token,
		user:       cfg.User,
		endpoint:   pushoverEndpoint,
		httpClient: httpkit.NewClient(httpkit.WithTimeout(15 * time.Second)),
	}
}

func (p *Pushover) Name() string { return "pushover" }

type pushoverResponse struct {
	Status  int      `json:"status"`
	Request string   `json:"request"`
	Errors  []string `json:"errors"`
}

// Send posts msg. Pushover answers with a JSON status even on 4xx.
func (p *Pushover) Send(ctx context.Context, msg Message) error {
	form := url.Values{
		"token":   {p.token},
		"user":    {p.user},
		"message": {msg.Body},
	}
	if msg.Title != "" {
		form.Set("title", msg.Title)
	}
	if msg.URL != "" {
		form.Set("url", msg.URL)
	}
	if msg.Priority != 0 {
		form.Set("priority", strconv.Itoa(msg.Priority))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("pushover request: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	var pr pushoverResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&pr)
	if resp.StatusCode != http.StatusOK || pr.Status != 1 {
		if decodeErr == nil && len(pr.Errors) > 0 {
			return fmt.Errorf("pushover: HTTP %d: %s", resp.StatusCode, strings.Join(pr.Errors, "; "))
		}
		return fmt.Errorf("pushover: HTTP %d", resp.StatusCode)
	}
	return nil
}
