package messaging

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"confdesk/src-server/model"
)

type TwilioProvider struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	client     *http.Client
}

func NewTwilioProvider(accountSID, authToken, from string) (*TwilioProvider, error) {
	if accountSID == "" || authToken == "" || from == "" {
		return nil, fmt.Errorf("NewTwilioProvider: TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM are required")
	}
	return &TwilioProvider{
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		baseURL:    "https://api.twilio.com",
	}, nil
}

func (p *TwilioProvider) Name() string           { return "twilio" }
func (p *TwilioProvider) Channel() model.Channel { return model.CHANNEL_SMS }

func (p *TwilioProvider) Send(ctx context.Context, msg Message) (Result, error) {
	var resp struct {
		SID string `json:"sid"`
	}
	header := http.Header{}
	header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(p.accountSID+":"+p.authToken)))

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", p.baseURL, url.PathEscape(p.accountSID))
	if err := postForm(ctx, p.client, "twilio", endpoint, header, url.Values{
		"To":   {msg.To},
		"From": {p.from},
		"Body": {msg.Body},
	}, &resp); err != nil {
		return Result{}, err
	}
	return Result{ProviderMessageID: resp.SID}, nil
}

type MSG91Provider struct {
	authKey  string
	senderID string
	baseURL  string
	client   *http.Client
}

func NewMSG91Provider(authKey, senderID string) (*MSG91Provider, error) {
	if authKey == "" || senderID == "" {
		return nil, fmt.Errorf("NewMSG91Provider: MSG91_AUTH_KEY and MSG91_SENDER_ID are required")
	}
	return &MSG91Provider{authKey: authKey, senderID: senderID, baseURL: "https://api.msg91.com"}, nil
}

func (p *MSG91Provider) Name() string           { return "msg91" }
func (p *MSG91Provider) Channel() model.Channel { return model.CHANNEL_SMS }

func (p *MSG91Provider) Send(ctx context.Context, msg Message) (Result, error) {
	var resp struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	header := http.Header{}
	header.Set("authkey", p.authKey)
	if err := postJSON(ctx, p.client, "msg91", p.baseURL+"/api/v2/sendsms", header, map[string]interface{}{
		"sender": p.senderID,
		"route":  "4",
		"sms": []map[string]interface{}{{
			"message": msg.Body,
			"to":      []string{strings.TrimPrefix(msg.To, "+")},
		}},
	}, &resp); err != nil {
		return Result{}, err
	}
	if resp.Type != "success" {
		return Result{}, fmt.Errorf("msg91: %s", resp.Message)
	}
	return Result{ProviderMessageID: resp.Message}, nil
}
