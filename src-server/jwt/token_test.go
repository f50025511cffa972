package jwt_test

import (
	"errors"
	"testing"
	"time"

	"confdesk/src-server/jwt"
)

func TestEncodeDecode(t *testing.T) {
	token, err := jwt.Encode(jwt.Payload{MemberID: "m-1", Name: "Asha", Role: "admin"}, "secret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	payload, err := jwt.Decode(token, "secret")
	if err != nil {
		t.Fatal(err)
	}
	if payload.MemberID != "m-1" || payload.Role != "admin" || payload.Name != "Asha" {
		t.Errorf("unexpected payload: %+v", payload)
	}

	if _, err := jwt.Decode(token, "other-secret"); !errors.Is(err, jwt.ErrInvalidToken) {
		t.Errorf("wrong secret: got %v", err)
	}
	if _, err := jwt.Decode("not.a.token", "secret"); !errors.Is(err, jwt.ErrInvalidToken) {
		t.Errorf("garbage: got %v", err)
	}
}

func TestDecodeExpired(t *testing.T) {
	token, err := jwt.Encode(jwt.Payload{
		MemberID: "m-1",
		Role:     "viewer",
		IssuedAt: time.Now().Add(-2 * time.Hour).Unix(),
	}, "secret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := jwt.Decode(token, "secret"); !errors.Is(err, jwt.ErrInvalidToken) {
		t.Errorf("expired token accepted: %v", err)
	}
}
