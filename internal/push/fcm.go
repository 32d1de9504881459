package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/hugh/chimeo/internal/apperr"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	fcmScope    = "https://www.googleapis.com/auth/firebase.messaging"
	fcmEndpoint = "https://fcm.googleapis.com"
)

// FCM sends through the Firebase Cloud Messaging HTTP v1 API.
type FCM struct {
	client   *http.Client
	endpoint string
	project  string
}

// NewFCM authenticates with a service-account JSON file. An empty path uses
// application default credentials.
func NewFCM(ctx context.Context, projectID, credentialsFile string) (*FCM, error) {
	var creds *google.Credentials
	var err error
	if credentialsFile != "" {
		data, readErr := os.ReadFile(credentialsFile)
		if readErr != nil {
			return nil, fmt.Errorf("reading fcm credentials: %w", readErr)
		}
		creds, err = google.CredentialsFromJSON(ctx, data, fcmScope)
	} else {
		creds, err = google.FindDefaultCredentials(ctx, fcmScope)
	}
	if err != nil {
		return nil, fmt.Errorf("loading fcm credentials: %w", err)
	}
	if projectID == "" {
		projectID = creds.ProjectID
	}
	return NewFCMWithTokenSource(ctx, projectID, creds.TokenSource, fcmEndpoint), nil
}

// NewFCMWithTokenSource is used when the caller already holds a token source.
func NewFCMWithTokenSource(ctx context.Context, projectID string, ts oauth2.TokenSource, endpoint string) *FCM {
	return &FCM{
		client:   oauth2.NewClient(ctx, ts),
		endpoint: strings.TrimRight(endpoint, "/"),
		project:  projectID,
	}
}

type fcmRequest struct {
	Message fcmMessage `json:"message"`
}

type fcmMessage struct {
	Token        string            `json:"token"`
	Notification fcmNotification   `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
	Android      fcmAndroid        `json:"android"`
	APNS         fcmAPNS           `json:"apns"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type fcmAndroid struct {
	Priority     string `json:"priority"`
	Notification struct {
		Sound string `json:"sound,omitempty"`
	} `json:"notification"`
}

type fcmAPNS struct {
	Headers map[string]string `json:"headers"`
	Payload struct {
		APS struct {
			Sound             string `json:"sound,omitempty"`
			InterruptionLevel string `json:"interruption-level,omitempty"`
		} `json:"aps"`
	} `json:"payload"`
}

func buildFCMRequest(token string, msg Message) fcmRequest {
	m := fcmMessage{
		Token:        token,
		Notification: fcmNotification{Title: msg.Title, Body: msg.Body},
		Data:         msg.Data,
	}

	m.Android.Priority = "NORMAL"
	apnsPriority := "5"
	if msg.Priority == PriorityHigh {
		m.Android.Priority = "HIGH"
		apnsPriority = "10"
	}
	m.Android.Notification.Sound = msg.Sound

	m.APNS.Headers = map[string]string{"apns-priority": apnsPriority}
	m.APNS.Payload.APS.Sound = msg.Sound
	m.APNS.Payload.APS.InterruptionLevel = string(msg.Interruption)

	return fcmRequest{Message: m}
}

func (f *FCM) Send(ctx context.Context, token string, msg Message) error {
	body, err := json.Marshal(buildFCMRequest(token, msg))
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/v1/projects/%s/messages:send", f.endpoint, f.project)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return apperr.External("fcm", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}

	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode == http.StatusNotFound || bytes.Contains(detail, []byte("UNREGISTERED")) {
		return ErrUnregistered
	}
	return apperr.External("fcm", fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(detail)))
}
