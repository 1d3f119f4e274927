// Package normalize converts heterogeneous provider payloads (webhook
// push, bulk-sync batches, backfill page items) into one canonical record
// shape per entity kind. The provider uses alternate field names
// inconsistently across surfaces; each canonical field is filled by an
// explicit, ordered resolution over the known alternates.
package normalize

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Event kinds the engine understands.
const (
	EventMessageReceived     = "message.received"
	EventMessageRead         = "message.read"
	EventMessageEdited       = "message.edited"
	EventMessageDeleted      = "message.deleted"
	EventAccountConnected    = "account.connected"
	EventAccountDisconnected = "account.disconnected"
	EventAccountError        = "account.error"
	EventProfileView         = "profile.view"
	EventSyncBatch           = "sync.batch"
)

// ===== Raw wire shapes =====

// RawEvent is the union shape of an inbound provider event. Alternate
// field names are declared explicitly and resolved in fixed order instead
// of probing dynamic payloads.
type RawEvent struct {
	Type      string `json:"type"`
	Event     string `json:"event"` // alternate for Type
	Provider  string `json:"provider"`
	AccountID string `json:"account_id"`
	Account   string `json:"account"` // alternate for AccountID

	Chat      *RawChat      `json:"chat,omitempty"`
	ChatID    string        `json:"chat_id,omitempty"`
	Message   *RawMessage   `json:"message,omitempty"`
	MessageID string        `json:"message_id,omitempty"`
	Sender    *RawAttendee  `json:"sender,omitempty"`
	Attendees []RawAttendee `json:"attendees,omitempty"`
	Content   string        `json:"content,omitempty"` // edited-message body

	Viewer   *RawAttendee `json:"viewer,omitempty"`
	ViewedAt *time.Time   `json:"viewed_at,omitempty"`

	Items []RawEvent `json:"items,omitempty"` // bulk-sync batch
}

// RawChat is a chat as the provider sends it.
type RawChat struct {
	ID          string     `json:"id"`
	ChatID      string     `json:"chat_id"` // alternate for ID
	Type        string     `json:"type"`
	Kind        string     `json:"kind"` // alternate for Type
	Name        string     `json:"name"`
	Subject     string     `json:"subject"` // alternate for Name
	LastMessage *time.Time `json:"last_message_at"`
	Timestamp   *time.Time `json:"timestamp"` // alternate for LastMessage
	UnreadCount int        `json:"unread_count"`
	Unread      int        `json:"unread"` // alternate for UnreadCount
	Archived    bool       `json:"archived"`
	ReadOnly    bool       `json:"read_only"`
	ContentType string     `json:"content_type"`
}

// RawAttendee is a chat participant or profile as the provider sends it.
type RawAttendee struct {
	ID              string `json:"id"`
	AttendeeID      string `json:"attendee_id"` // alternate for ID
	ProviderID      string `json:"provider_id"` // alternate for ID
	Name            string `json:"name"`
	DisplayName     string `json:"display_name"` // alternate for Name
	FullName        string `json:"full_name"`    // alternate for Name
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Headline        string `json:"headline"`
	PictureURL      string `json:"picture_url"`
	ProfileImage    string `json:"profile_image_url"` // alternate for PictureURL
	ProfileURL      string `json:"profile_url"`
	IsSelf          bool   `json:"is_self"`
	Self            bool   `json:"self"` // alternate for IsSelf
	Hidden          bool   `json:"hidden"`
	IsConnection    bool   `json:"is_connection"`
	NetworkDistance string `json:"network_distance"`
}

// RawMessage is a message as the provider sends it.
type RawMessage struct {
	ID         string          `json:"id"`
	MessageID  string          `json:"message_id"` // alternate for ID
	ChatID     string          `json:"chat_id"`
	Sender     *RawAttendee    `json:"sender,omitempty"`
	SenderID   string          `json:"sender_id"`
	Text       string          `json:"text"`
	Body       string          `json:"body"`    // alternate for Text
	Content    string          `json:"content"` // alternate for Text
	IsRead     bool            `json:"is_read"`
	Seen       bool            `json:"seen"` // alternate for IsRead
	IsOutgoing bool            `json:"is_outgoing"`
	FromMe     bool            `json:"from_me"` // alternate for IsOutgoing
	SentAt     *time.Time      `json:"sent_at"`
	Timestamp  *time.Time      `json:"timestamp"` // alternate for SentAt
	Deleted    bool            `json:"deleted"`
	Edited     bool            `json:"edited"`
	Attachments []RawAttachment `json:"attachments,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
}

// RawAttachment is an attachment as the provider sends it. The download
// URL in particular arrives under six different names.
type RawAttachment struct {
	ID           string     `json:"id"`
	AttachmentID string     `json:"attachment_id"` // alternate for ID
	Filename     string     `json:"filename"`
	FileName     string     `json:"file_name"` // alternate for Filename
	Name         string     `json:"name"`      // alternate for Filename
	MimeType     string     `json:"mime_type"`
	Mimetype     string     `json:"mimetype"` // alternate for MimeType
	FileSize     int64      `json:"file_size"`
	Size         int64      `json:"size"` // alternate for FileSize
	Type         string     `json:"type"` // media kind hint: image|video|audio|...
	ExpiresAt    *time.Time `json:"expires_at"`

	URL         string `json:"url"`
	ContentURL  string `json:"content_url"`
	DownloadURL string `json:"download_url"`
	MediaURL    string `json:"media_url"`
	Src         string `json:"src"`
	Href        string `json:"href"`
}

// ===== Canonical shapes =====

// Chat is the canonical chat record.
type Chat struct {
	ExternalID    string
	Type          string
	Name          string
	ContentType   string
	LastMessageAt *time.Time
	UnreadCount   int
	Archived      bool
	ReadOnly      bool
}

// Attendee is the canonical participant record, carrying the contact
// fields the provider embeds in participant payloads.
type Attendee struct {
	ExternalID      string
	DisplayName     string
	FirstName       string
	LastName        string
	Headline        string
	ProfileImageURL string
	ProfileURL      string
	NetworkDistance string
	IsSelf          bool
	Hidden          bool
	IsConnection    bool
}

// Message is the canonical message record.
type Message struct {
	ExternalID       string
	SenderExternalID string
	Type             string
	Content          string
	IsRead           bool
	IsOutgoing       bool
	SentAt           time.Time
	Metadata         string // JSON blob, passed through
}

// Attachment is the canonical attachment record with the download URL
// already resolved.
type Attachment struct {
	ExternalID   string
	Filename     string
	MimeType     string
	MediaKind    string
	FileSize     int64
	URL          string
	URLExpiresAt *time.Time
}

// ProfileView is the canonical profile-view record.
type ProfileView struct {
	ViewerExternalID string
	ViewerName       string
	ViewedAt         time.Time
}

// MessageEvent is the fully-normalized message event the engine applies.
type MessageEvent struct {
	Provider          string
	AccountExternalID string
	Chat              Chat
	Sender            Attendee
	Attendees         []Attendee
	Message           Message
	Attachments       []Attachment
}

// Event is the normalized envelope for all inbound event kinds.
type Event struct {
	Kind              string
	Provider          string
	AccountExternalID string

	Message           *MessageEvent // EventMessageReceived
	MessageExternalID string        // read/edited/deleted events
	Content           string        // EventMessageEdited
	ProfileView       *ProfileView  // EventProfileView
	Batch             []Event       // EventSyncBatch
}

// ===== Ordered field resolution =====

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// ResolveAttachmentURL picks the download URL in fixed priority order:
// url, content_url, download_url, media_url, src, href.
func ResolveAttachmentURL(raw RawAttachment) string {
	return firstNonEmpty(raw.URL, raw.ContentURL, raw.DownloadURL, raw.MediaURL, raw.Src, raw.Href)
}

// SynthesizeAttachmentID derives a stable id for attachments the provider
// delivers without one, so repeated deliveries of the same webhook
// produce the same synthesized id.
func SynthesizeAttachmentID(messageExternalID string, index int) string {
	return fmt.Sprintf("%s#att-%d", messageExternalID, index)
}

// MediaKind classifies an attachment as image, video, audio or file from
// its explicit type hint, falling back to the MIME type prefix.
func MediaKind(raw RawAttachment) string {
	switch strings.ToLower(raw.Type) {
	case "image", "video", "audio":
		return strings.ToLower(raw.Type)
	}
	mime := firstNonEmpty(raw.MimeType, raw.Mimetype)
	switch {
	case strings.HasPrefix(mime, "image/"):
		return "image"
	case strings.HasPrefix(mime, "video/"):
		return "video"
	case strings.HasPrefix(mime, "audio/"):
		return "audio"
	}
	return "file"
}

// InferMessageType classifies a message: when textual content is absent
// and at least one attachment is present, the first attachment's media
// kind decides; otherwise the message is text.
func InferMessageType(content string, attachments []Attachment) string {
	if strings.TrimSpace(content) != "" || len(attachments) == 0 {
		return "text"
	}
	switch attachments[0].MediaKind {
	case "image":
		return "image"
	case "video":
		return "video"
	case "audio":
		return "audio"
	default:
		return "attachment"
	}
}

// ===== Normalizers =====

// NormalizeChat converts a raw chat into the canonical shape.
func NormalizeChat(raw RawChat) Chat {
	last := raw.LastMessage
	if last == nil {
		last = raw.Timestamp
	}
	unread := raw.UnreadCount
	if unread == 0 {
		unread = raw.Unread
	}
	chatType := firstNonEmpty(raw.Type, raw.Kind)
	if chatType == "" {
		chatType = "direct"
	}
	return Chat{
		ExternalID:    firstNonEmpty(raw.ID, raw.ChatID),
		Type:          chatType,
		Name:          firstNonEmpty(raw.Name, raw.Subject),
		ContentType:   raw.ContentType,
		LastMessageAt: last,
		UnreadCount:   unread,
		Archived:      raw.Archived,
		ReadOnly:      raw.ReadOnly,
	}
}

// NormalizeAttendee converts a raw attendee into the canonical shape.
func NormalizeAttendee(raw RawAttendee) Attendee {
	return Attendee{
		ExternalID:      firstNonEmpty(raw.ID, raw.AttendeeID, raw.ProviderID),
		DisplayName:     firstNonEmpty(raw.Name, raw.DisplayName, raw.FullName),
		FirstName:       raw.FirstName,
		LastName:        raw.LastName,
		Headline:        raw.Headline,
		ProfileImageURL: firstNonEmpty(raw.PictureURL, raw.ProfileImage),
		ProfileURL:      raw.ProfileURL,
		NetworkDistance: raw.NetworkDistance,
		IsSelf:          raw.IsSelf || raw.Self,
		Hidden:          raw.Hidden,
		IsConnection:    raw.IsConnection,
	}
}

// NormalizeAttachment converts a raw attachment into the canonical shape,
// synthesizing a deterministic id when the provider omits one.
func NormalizeAttachment(messageExternalID string, index int, raw RawAttachment) Attachment {
	id := firstNonEmpty(raw.ID, raw.AttachmentID)
	if id == "" {
		id = SynthesizeAttachmentID(messageExternalID, index)
	}
	size := raw.FileSize
	if size == 0 {
		size = raw.Size
	}
	return Attachment{
		ExternalID:   id,
		Filename:     firstNonEmpty(raw.Filename, raw.FileName, raw.Name),
		MimeType:     firstNonEmpty(raw.MimeType, raw.Mimetype),
		MediaKind:    MediaKind(raw),
		FileSize:     size,
		URL:          ResolveAttachmentURL(raw),
		URLExpiresAt: raw.ExpiresAt,
	}
}

// NormalizeMessage converts a raw message into the canonical message plus
// its attachments, inferring the message type.
func NormalizeMessage(raw RawMessage) (Message, []Attachment) {
	externalID := firstNonEmpty(raw.ID, raw.MessageID)
	content := firstNonEmpty(raw.Text, raw.Body, raw.Content)

	attachments := make([]Attachment, 0, len(raw.Attachments))
	for i, rawAtt := range raw.Attachments {
		attachments = append(attachments, NormalizeAttachment(externalID, i, rawAtt))
	}

	sentAt := time.Time{}
	if raw.SentAt != nil {
		sentAt = *raw.SentAt
	} else if raw.Timestamp != nil {
		sentAt = *raw.Timestamp
	}

	senderID := raw.SenderID
	if senderID == "" && raw.Sender != nil {
		senderID = NormalizeAttendee(*raw.Sender).ExternalID
	}

	metadata := ""
	if len(raw.Metadata) > 0 {
		metadata = string(raw.Metadata)
	}

	return Message{
		ExternalID:       externalID,
		SenderExternalID: senderID,
		Type:             InferMessageType(content, attachments),
		Content:          content,
		IsRead:           raw.IsRead || raw.Seen,
		IsOutgoing:       raw.IsOutgoing || raw.FromMe,
		SentAt:           sentAt,
		Metadata:         metadata,
	}, attachments
}

// NormalizeEvent converts a raw inbound event into the canonical envelope.
// Unknown event kinds are an error; bulk-sync batches are normalized
// recursively, inheriting the envelope's account when items omit it.
func NormalizeEvent(raw RawEvent) (*Event, error) {
	kind := firstNonEmpty(raw.Type, raw.Event)
	account := firstNonEmpty(raw.AccountID, raw.Account)

	ev := &Event{
		Kind:              kind,
		Provider:          raw.Provider,
		AccountExternalID: account,
	}

	switch kind {
	case EventMessageReceived:
		if raw.Message == nil {
			return nil, fmt.Errorf("%s event carries no message", kind)
		}
		msg, attachments := NormalizeMessage(*raw.Message)

		chat := Chat{ExternalID: firstNonEmpty(raw.ChatID, raw.Message.ChatID)}
		if raw.Chat != nil {
			chat = NormalizeChat(*raw.Chat)
		}
		if chat.ExternalID == "" {
			return nil, fmt.Errorf("%s event carries no chat id", kind)
		}

		var sender Attendee
		if raw.Sender != nil {
			sender = NormalizeAttendee(*raw.Sender)
		} else if raw.Message.Sender != nil {
			sender = NormalizeAttendee(*raw.Message.Sender)
		}
		if msg.SenderExternalID == "" {
			msg.SenderExternalID = sender.ExternalID
		}

		attendees := make([]Attendee, 0, len(raw.Attendees))
		for _, rawAtt := range raw.Attendees {
			attendees = append(attendees, NormalizeAttendee(rawAtt))
		}

		ev.Message = &MessageEvent{
			Provider:          raw.Provider,
			AccountExternalID: account,
			Chat:              chat,
			Sender:            sender,
			Attendees:         attendees,
			Message:           msg,
			Attachments:       attachments,
		}

	case EventMessageRead, EventMessageDeleted:
		ev.MessageExternalID = resolveMessageID(raw)
		if ev.MessageExternalID == "" {
			return nil, fmt.Errorf("%s event carries no message id", kind)
		}

	case EventMessageEdited:
		ev.MessageExternalID = resolveMessageID(raw)
		if ev.MessageExternalID == "" {
			return nil, fmt.Errorf("%s event carries no message id", kind)
		}
		ev.Content = raw.Content
		if ev.Content == "" && raw.Message != nil {
			ev.Content = firstNonEmpty(raw.Message.Text, raw.Message.Body, raw.Message.Content)
		}

	case EventAccountConnected, EventAccountDisconnected, EventAccountError:
		// Envelope fields are enough.

	case EventProfileView:
		view := ProfileView{ViewedAt: time.Now().UTC()}
		if raw.ViewedAt != nil {
			view.ViewedAt = *raw.ViewedAt
		}
		if raw.Viewer != nil {
			viewer := NormalizeAttendee(*raw.Viewer)
			view.ViewerExternalID = viewer.ExternalID
			view.ViewerName = viewer.DisplayName
		}
		ev.ProfileView = &view

	case EventSyncBatch:
		ev.Batch = make([]Event, 0, len(raw.Items))
		for i, item := range raw.Items {
			if item.AccountID == "" && item.Account == "" {
				item.AccountID = account
			}
			if item.Provider == "" {
				item.Provider = raw.Provider
			}
			normalized, err := NormalizeEvent(item)
			if err != nil {
				return nil, fmt.Errorf("batch item %d: %w", i, err)
			}
			ev.Batch = append(ev.Batch, *normalized)
		}

	default:
		return nil, fmt.Errorf("unknown event kind %q", kind)
	}

	return ev, nil
}

func resolveMessageID(raw RawEvent) string {
	if raw.MessageID != "" {
		return raw.MessageID
	}
	if raw.Message != nil {
		return firstNonEmpty(raw.Message.ID, raw.Message.MessageID)
	}
	return ""
}
