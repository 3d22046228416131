package websocket

import (
	"errors"
	"testing"

	socketio "github.com/zishang520/socket.io/v2/socket"
)

func TestExtractAck(t *testing.T) {
	var gotErr error
	var gotPayload map[string]any
	callback := func(err error, payload map[string]any) {
		gotErr = err
		gotPayload = payload
	}

	ack, args := extractAck([]any{"design-1", callback})
	if ack == nil {
		t.Fatal("Expected an ack callback")
	}
	if len(args) != 1 || args[0] != "design-1" {
		t.Fatalf("Expected args [design-1], got %v", args)
	}

	ack(nil, map[string]any{"status": "ok"})
	if gotErr != nil || gotPayload["status"] != "ok" {
		t.Errorf("Ack not invoked with payload: err=%v payload=%v", gotErr, gotPayload)
	}
}

func TestExtractAck_NoCallback(t *testing.T) {
	ack, args := extractAck([]any{"design-1", map[string]any{}})
	if ack != nil {
		t.Error("Expected no ack callback")
	}
	if len(args) != 2 {
		t.Errorf("Expected 2 args, got %d", len(args))
	}
}

func TestWrapAck_SingleArgument(t *testing.T) {
	var got any
	ack := wrapAck(func(v any) { got = v })

	ack(errors.New("boom"), map[string]any{"status": "error"})
	if err, ok := got.(error); !ok || err.Error() != "boom" {
		t.Errorf("Expected the error to be passed, got %v", got)
	}

	ack(nil, map[string]any{"status": "ok"})
	if payload, ok := got.(map[string]any); !ok || payload["status"] != "ok" {
		t.Errorf("Expected the payload to be passed, got %v", got)
	}
}

func TestDecodePreview(t *testing.T) {
	raw := map[string]any{
		"items": []any{
			map[string]any{
				"id": "a", "type": "image", "src": "photo.png",
				"filter": map[string]any{"brightness": 120, "contrast": 100, "saturation": 100, "blur": 0, "grayscale": 0},
			},
		},
		"background": map[string]any{"color": "#ffffff"},
	}

	preview, err := decodePreview("design-1", raw)
	if err != nil {
		t.Fatalf("decodePreview: %v", err)
	}
	if preview.DesignID != "design-1" || len(preview.Items) != 1 {
		t.Fatalf("Unexpected preview: %+v", preview)
	}
	want := "brightness(120%) contrast(100%) saturate(100%) blur(0px) grayscale(0%)"
	if preview.Filters["a"] != want {
		t.Errorf("Expected filter %q, got %q", want, preview.Filters["a"])
	}
}

func TestDecodePreview_Invalid(t *testing.T) {
	if _, err := decodePreview("", map[string]any{}); err == nil {
		t.Error("Expected error for missing design id")
	}
	if _, err := decodePreview("design-1", map[string]any{"items": "nope"}); err == nil {
		t.Error("Expected error for malformed items")
	}
	if _, err := decodePreview("design-1", map[string]any{"items": []any{map[string]any{"type": "text"}}}); err == nil {
		t.Error("Expected error for item without id")
	}
}

func TestJoined(t *testing.T) {
	rooms := []socketio.Room{"socket-id", "design-a"}

	if !joined(rooms, "design-a") {
		t.Error("Expected a joined room to be accepted")
	}
	if joined(rooms, "design-b") {
		t.Error("Expected an update for a room the socket never joined to be rejected")
	}
	if joined(rooms, "") {
		t.Error("Expected an empty room id to be rejected")
	}
	if joined(nil, "design-a") {
		t.Error("Expected a socket without rooms to be rejected")
	}
}

func TestActiveRooms(t *testing.T) {
	setRoomCount("design-a", 2)
	setRoomCount("design-b", 1)
	setRoomCount("design-b", 0)

	rooms := GetActiveRooms()
	if rooms["design-a"] != 2 {
		t.Errorf("Expected 2 viewers, got %d", rooms["design-a"])
	}
	if _, ok := rooms["design-b"]; ok {
		t.Error("Expected empty room to be removed")
	}

	rooms["design-a"] = 99
	if GetActiveRooms()["design-a"] != 2 {
		t.Error("GetActiveRooms must return a copy")
	}
	setRoomCount("design-a", 0)
}

func TestMakeAckPayload(t *testing.T) {
	payload := makeAckPayload(map[string]any{"messageId": "m-1"}, errors.New("bad"))
	if payload["status"] != "error" || payload["error"] != "bad" || payload["messageId"] != "m-1" {
		t.Errorf("Unexpected payload: %v", payload)
	}
}

func TestCorsOrigin(t *testing.T) {
	if got := corsOrigin([]string{"*"}); got != "*" {
		t.Errorf("Expected wildcard, got %v", got)
	}
	if got := corsOrigin(nil); got != "*" {
		t.Errorf("Expected wildcard for empty list, got %v", got)
	}
	got, ok := corsOrigin([]string{"https://cartes.example", "http://localhost:5173"}).([]any)
	if !ok || len(got) != 2 || got[0] != "https://cartes.example" {
		t.Errorf("Expected origin list, got %v", got)
	}
}
