package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/avilenka/devmatch/internal/domain/enums"
	authsvc "github.com/avilenka/devmatch/internal/services/auth"
	chatsvc "github.com/avilenka/devmatch/internal/services/chat"
	"github.com/avilenka/devmatch/internal/transport/http/dto"
	httperrors "github.com/avilenka/devmatch/internal/transport/http/errors"
)

type ChatHandler struct {
	service            *chatsvc.Service
	attachmentMaxBytes int64
	pageLimit          int
}

func NewChatHandler(service *chatsvc.Service, attachmentMaxBytes int64, pageLimit int) *ChatHandler {
	if attachmentMaxBytes <= 0 {
		attachmentMaxBytes = 10 << 20
	}
	if pageLimit <= 0 {
		pageLimit = 50
	}
	return &ChatHandler{service: service, attachmentMaxBytes: attachmentMaxBytes, pageLimit: pageLimit}
}

func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.service == nil {
		writeInternal(w, "CHAT_SERVICE_UNAVAILABLE", "chat service is unavailable")
		return
	}

	var req dto.SendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}
	if req.ReceiverID <= 0 {
		writeBadRequest(w, "VALIDATION_ERROR", "receiver_id is required")
		return
	}

	kind := enums.MessageKind(strings.ToLower(strings.TrimSpace(req.Kind)))
	if kind != "" && !kind.Valid() {
		writeBadRequest(w, "VALIDATION_ERROR", "kind must be text, image or file")
		return
	}

	msg, err := h.service.SendMessage(r.Context(), identity.UserID, req.ReceiverID, req.Content, kind, req.FileRef, req.FileName)
	if err != nil {
		h.writeChatError(w, err, "failed to send message")
		return
	}

	httperrors.Write(w, http.StatusCreated, dto.NewMessageView(msg))
}

// Conversation returns one page of the dialog with another user in ascending
// creation order. Opening a page marks the counterpart's messages as read.
func (h *ChatHandler) Conversation(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.service == nil {
		writeInternal(w, "CHAT_SERVICE_UNAVAILABLE", "chat service is unavailable")
		return
	}

	otherID, ok := pathInt64(r, "user_id")
	if !ok {
		writeBadRequest(w, "VALIDATION_ERROR", "user_id must be a positive integer")
		return
	}

	limit, offset := pageParams(r, h.pageLimit)

	page, err := h.service.GetConversation(r.Context(), identity.UserID, otherID, limit, offset)
	if err != nil {
		h.writeChatError(w, err, "failed to load conversation")
		return
	}

	messages := make([]dto.MessageView, 0, len(page.Messages))
	for _, msg := range page.Messages {
		messages = append(messages, dto.NewMessageView(msg))
	}

	httperrors.Write(w, http.StatusOK, dto.ConversationResponse{
		Messages: messages,
		Total:    page.Total,
	})
}

func (h *ChatHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.service == nil {
		writeInternal(w, "CHAT_SERVICE_UNAVAILABLE", "chat service is unavailable")
		return
	}

	messageID, ok := pathInt64(r, "message_id")
	if !ok {
		writeBadRequest(w, "VALIDATION_ERROR", "message_id must be a positive integer")
		return
	}

	msg, err := h.service.MarkRead(r.Context(), messageID, identity.UserID)
	if err != nil {
		h.writeChatError(w, err, "failed to mark message read")
		return
	}

	httperrors.Write(w, http.StatusOK, dto.NewMessageView(msg))
}

func (h *ChatHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.service == nil {
		writeInternal(w, "CHAT_SERVICE_UNAVAILABLE", "chat service is unavailable")
		return
	}

	messageID, ok := pathInt64(r, "message_id")
	if !ok {
		writeBadRequest(w, "VALIDATION_ERROR", "message_id must be a positive integer")
		return
	}

	if err := h.service.DeleteMessage(r.Context(), messageID, identity.UserID); err != nil {
		h.writeChatError(w, err, "failed to delete message")
		return
	}

	httperrors.Write(w, http.StatusOK, dto.OKResponse{OK: true})
}

func (h *ChatHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.service == nil {
		writeInternal(w, "CHAT_SERVICE_UNAVAILABLE", "chat service is unavailable")
		return
	}

	count, err := h.service.UnreadCount(r.Context(), identity.UserID)
	if err != nil {
		h.writeChatError(w, err, "failed to count unread messages")
		return
	}

	httperrors.Write(w, http.StatusOK, dto.UnreadCountResponse{UnreadCount: count})
}

// UploadAttachment accepts a multipart form with a single "file" part and
// returns the storage ref to pass along in a later send call.
func (h *ChatHandler) UploadAttachment(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.service == nil {
		writeInternal(w, "CHAT_SERVICE_UNAVAILABLE", "chat service is unavailable")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.attachmentMaxBytes+1<<20)
	if err := r.ParseMultipartForm(h.attachmentMaxBytes); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "file part is required")
		return
	}
	defer file.Close()

	attachment, err := h.service.UploadAttachment(
		r.Context(),
		identity.UserID,
		header.Filename,
		header.Header.Get("Content-Type"),
		file,
		header.Size,
	)
	if err != nil {
		h.writeChatError(w, err, "failed to upload attachment")
		return
	}

	httperrors.Write(w, http.StatusCreated, dto.AttachmentResponse{
		FileRef:  attachment.Ref,
		FileName: attachment.Name,
		URL:      attachment.URL,
	})
}

// AttachmentURL refreshes the short-lived download link for a stored
// attachment, identified by the ref carried on the message.
func (h *ChatHandler) AttachmentURL(w http.ResponseWriter, r *http.Request) {
	if _, ok := authsvc.IdentityFromContext(r.Context()); !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.service == nil {
		writeInternal(w, "CHAT_SERVICE_UNAVAILABLE", "chat service is unavailable")
		return
	}

	ref := strings.TrimSpace(r.URL.Query().Get("ref"))
	if ref == "" {
		writeBadRequest(w, "VALIDATION_ERROR", "ref is required")
		return
	}

	url, err := h.service.AttachmentURL(r.Context(), ref)
	if err != nil {
		h.writeChatError(w, err, "failed to build attachment url")
		return
	}

	httperrors.Write(w, http.StatusOK, dto.AttachmentResponse{FileRef: ref, URL: url})
}

func (h *ChatHandler) writeChatError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, chatsvc.ErrValidation):
		writeBadRequest(w, "VALIDATION_ERROR", "invalid chat request")
	case errors.Is(err, chatsvc.ErrMessageTooLong):
		writeBadRequest(w, "MESSAGE_TOO_LONG", "message content exceeds the allowed length")
	case errors.Is(err, chatsvc.ErrAttachmentSize):
		httperrors.Write(w, http.StatusRequestEntityTooLarge, httperrors.APIError{
			Code:    "ATTACHMENT_TOO_LARGE",
			Message: "attachment exceeds the allowed size",
		})
	case errors.Is(err, chatsvc.ErrReceiverNotFound):
		writeNotFound(w, "RECEIVER_NOT_FOUND", "receiver not found or deactivated")
	case errors.Is(err, chatsvc.ErrNotMatched):
		writeForbidden(w, "NOT_MATCHED", "users are not matched")
	case errors.Is(err, chatsvc.ErrForbidden):
		writeForbidden(w, "FORBIDDEN", "operation not allowed for this user")
	case errors.Is(err, chatsvc.ErrMessageNotFound):
		writeNotFound(w, "MESSAGE_NOT_FOUND", "message not found")
	default:
		writeInternal(w, "INTERNAL_ERROR", fallback)
	}
}
