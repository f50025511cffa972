package messaging

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"confdesk/src-server/model"
)

// MetaWhatsAppProvider sends free-form text through the WhatsApp Cloud API.
type MetaWhatsAppProvider struct {
	token   string
	phoneID string
	baseURL string
	client  *http.Client
}

func NewMetaWhatsAppProvider(token, phoneID string) (*MetaWhatsAppProvider, error) {
	if token == "" || phoneID == "" {
		return nil, fmt.Errorf("NewMetaWhatsAppProvider: WHATSAPP_TOKEN and WHATSAPP_PHONE_NUMBER_ID are required")
	}
	return &MetaWhatsAppProvider{token: token, phoneID: phoneID, baseURL: "https://graph.facebook.com/v19.0"}, nil
}

func (p *MetaWhatsAppProvider) Name() string           { return "meta" }
func (p *MetaWhatsAppProvider) Channel() model.Channel { return model.CHANNEL_WHATSAPP }

func (p *MetaWhatsAppProvider) Send(ctx context.Context, msg Message) (Result, error) {
	var resp struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+p.token)
	if err := postJSON(ctx, p.client, "meta", p.baseURL+"/"+p.phoneID+"/messages", header, map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                strings.TrimPrefix(msg.To, "+"),
		"type":              "text",
		"text":              map[string]string{"body": msg.Body},
	}, &resp); err != nil {
		return Result{}, err
	}
	if len(resp.Messages) == 0 {
		return Result{}, nil
	}
	return Result{ProviderMessageID: resp.Messages[0].ID}, nil
}

type InteraktProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewInteraktProvider(apiKey string) (*InteraktProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("NewInteraktProvider: INTERAKT_API_KEY is required")
	}
	return &InteraktProvider{apiKey: apiKey, baseURL: "https://api.interakt.ai"}, nil
}

func (p *InteraktProvider) Name() string           { return "interakt" }
func (p *InteraktProvider) Channel() model.Channel { return model.CHANNEL_WHATSAPP }

func (p *InteraktProvider) Send(ctx context.Context, msg Message) (Result, error) {
	countryCode, number := splitPhone(msg.To)
	var resp struct {
		Result  bool   `json:"result"`
		Message string `json:"message"`
		ID      string `json:"id"`
	}
	header := http.Header{}
	header.Set("Authorization", "Basic "+p.apiKey)
	if err := postJSON(ctx, p.client, "interakt", p.baseURL+"/v1/public/message/", header, map[string]interface{}{
		"countryCode": countryCode,
		"phoneNumber": number,
		"type":        "Text",
		"data":        map[string]string{"message": msg.Body},
	}, &resp); err != nil {
		return Result{}, err
	}
	if !resp.Result {
		return Result{}, fmt.Errorf("interakt: %s", resp.Message)
	}
	return Result{ProviderMessageID: resp.ID}, nil
}

// splitPhone splits an E.164 number into country code and subscriber
// number. Numbers without a leading + are assumed to be Indian.
func splitPhone(phone string) (string, string) {
	phone = strings.ReplaceAll(strings.TrimSpace(phone), " ", "")
	if !strings.HasPrefix(phone, "+") {
		return "+91", phone
	}
	digits := phone[1:]
	// +1 (NANP) and +7 are the only single-digit codes in use
	switch {
	case strings.HasPrefix(digits, "1"), strings.HasPrefix(digits, "7"):
		return "+" + digits[:1], digits[1:]
	case len(digits) > 10:
		cut := len(digits) - 10
		return "+" + digits[:cut], digits[cut:]
	}
	return "+91", digits
}
