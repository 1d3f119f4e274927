package normalize

import (
	"testing"
	"time"
)

func TestResolveAttachmentURLPriority(t *testing.T) {
	tests := []struct {
		name string
		raw  RawAttachment
		want string
	}{
		{"url wins over content_url", RawAttachment{URL: "https://a/u", ContentURL: "https://a/c"}, "https://a/u"},
		{"content_url when url absent", RawAttachment{ContentURL: "https://a/c"}, "https://a/c"},
		{"download_url third", RawAttachment{DownloadURL: "https://a/d", MediaURL: "https://a/m"}, "https://a/d"},
		{"media_url fourth", RawAttachment{MediaURL: "https://a/m", Src: "https://a/s"}, "https://a/m"},
		{"src fifth", RawAttachment{Src: "https://a/s", Href: "https://a/h"}, "https://a/s"},
		{"href last", RawAttachment{Href: "https://a/h"}, "https://a/h"},
		{"nothing set", RawAttachment{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveAttachmentURL(tt.raw); got != tt.want {
				t.Errorf("ResolveAttachmentURL = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSynthesizeAttachmentIDDeterministic(t *testing.T) {
	a := SynthesizeAttachmentID("msg-1", 0)
	b := SynthesizeAttachmentID("msg-1", 0)
	if a != b {
		t.Errorf("same inputs produced %q and %q", a, b)
	}
	if SynthesizeAttachmentID("msg-1", 1) == a {
		t.Error("different index produced the same id")
	}
	if SynthesizeAttachmentID("msg-2", 0) == a {
		t.Error("different message produced the same id")
	}
}

func TestNormalizeAttachmentSynthesizesMissingID(t *testing.T) {
	att := NormalizeAttachment("msg-9", 2, RawAttachment{ContentURL: "https://a/c"})
	if att.ExternalID != SynthesizeAttachmentID("msg-9", 2) {
		t.Errorf("got id %q", att.ExternalID)
	}
	// Repeated delivery of the same webhook yields the same id.
	again := NormalizeAttachment("msg-9", 2, RawAttachment{ContentURL: "https://a/c"})
	if att.ExternalID != again.ExternalID {
		t.Error("synthesized ids differ across deliveries")
	}
}

func TestInferMessageType(t *testing.T) {
	img := Attachment{MediaKind: "image"}
	vid := Attachment{MediaKind: "video"}
	aud := Attachment{MediaKind: "audio"}
	file := Attachment{MediaKind: "file"}

	tests := []struct {
		name        string
		content     string
		attachments []Attachment
		want        string
	}{
		{"text with content", "hello", nil, "text"},
		{"text with content and attachment", "hello", []Attachment{img}, "text"},
		{"no content no attachments", "", nil, "text"},
		{"whitespace content counts as empty", "  ", []Attachment{img}, "image"},
		{"first attachment image", "", []Attachment{img, vid}, "image"},
		{"first attachment video", "", []Attachment{vid}, "video"},
		{"first attachment audio", "", []Attachment{aud}, "audio"},
		{"other media kind", "", []Attachment{file}, "attachment"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InferMessageType(tt.content, tt.attachments); got != tt.want {
				t.Errorf("InferMessageType = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMediaKind(t *testing.T) {
	if got := MediaKind(RawAttachment{Type: "Image"}); got != "image" {
		t.Errorf("type hint: got %q", got)
	}
	if got := MediaKind(RawAttachment{MimeType: "video/mp4"}); got != "video" {
		t.Errorf("mime fallback: got %q", got)
	}
	if got := MediaKind(RawAttachment{Mimetype: "audio/ogg"}); got != "audio" {
		t.Errorf("alternate mime field: got %q", got)
	}
	if got := MediaKind(RawAttachment{MimeType: "application/pdf"}); got != "file" {
		t.Errorf("default: got %q", got)
	}
}

func TestNormalizeChatAlternateFields(t *testing.T) {
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	chat := NormalizeChat(RawChat{ChatID: "c-1", Kind: "group", Subject: "Team", Timestamp: &ts, Unread: 3})
	if chat.ExternalID != "c-1" || chat.Type != "group" || chat.Name != "Team" || chat.UnreadCount != 3 {
		t.Errorf("unexpected chat: %+v", chat)
	}
	if chat.LastMessageAt == nil || !chat.LastMessageAt.Equal(ts) {
		t.Errorf("timestamp not resolved: %+v", chat.LastMessageAt)
	}
}

func TestNormalizeMessageInfersTypeFromFirstAttachment(t *testing.T) {
	raw := RawMessage{
		MessageID: "m-1",
		Attachments: []RawAttachment{
			{Type: "image", ContentURL: "https://cdn/p.jpg"},
		},
	}
	msg, attachments := NormalizeMessage(raw)
	if msg.ExternalID != "m-1" {
		t.Errorf("alternate message id: got %q", msg.ExternalID)
	}
	if msg.Type != "image" {
		t.Errorf("message type: got %q", msg.Type)
	}
	if len(attachments) != 1 || attachments[0].URL != "https://cdn/p.jpg" {
		t.Errorf("attachments: %+v", attachments)
	}
}

func TestNormalizeEventUnknownKind(t *testing.T) {
	if _, err := NormalizeEvent(RawEvent{Type: "something.else"}); err == nil {
		t.Error("expected error for unknown event kind")
	}
}

func TestNormalizeEventBatchInheritsAccount(t *testing.T) {
	ev, err := NormalizeEvent(RawEvent{
		Type:      EventSyncBatch,
		Provider:  "linkedin",
		AccountID: "acc-1",
		Items: []RawEvent{
			{Type: EventMessageRead, MessageID: "m-1"},
		},
	})
	if err != nil {
		t.Fatalf("NormalizeEvent: %v", err)
	}
	if len(ev.Batch) != 1 {
		t.Fatalf("batch size %d", len(ev.Batch))
	}
	item := ev.Batch[0]
	if item.AccountExternalID != "acc-1" || item.Provider != "linkedin" {
		t.Errorf("batch item did not inherit envelope: %+v", item)
	}
}

func TestNormalizeEventMessageReceived(t *testing.T) {
	ev, err := NormalizeEvent(RawEvent{
		Type:      EventMessageReceived,
		Provider:  "linkedin",
		AccountID: "acc-1",
		Sender:    &RawAttendee{ID: "s-1", Name: "Sam Doe"},
		Chat:      &RawChat{ID: "c-1"},
		Message: &RawMessage{
			ID:   "m-1",
			Text: "hi there",
		},
	})
	if err != nil {
		t.Fatalf("NormalizeEvent: %v", err)
	}
	if ev.Message == nil {
		t.Fatal("no message event produced")
	}
	if ev.Message.Chat.ExternalID != "c-1" {
		t.Errorf("chat id %q", ev.Message.Chat.ExternalID)
	}
	if ev.Message.Message.SenderExternalID != "s-1" {
		t.Errorf("sender id %q", ev.Message.Message.SenderExternalID)
	}
	if ev.Message.Message.Type != "text" {
		t.Errorf("type %q", ev.Message.Message.Type)
	}
}

func TestNormalizeEventMissingChatID(t *testing.T) {
	_, err := NormalizeEvent(RawEvent{
		Type:      EventMessageReceived,
		AccountID: "acc-1",
		Message:   &RawMessage{ID: "m-1", Text: "hi"},
	})
	if err == nil {
		t.Error("expected error when no chat id is present anywhere")
	}
}
