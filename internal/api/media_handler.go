package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/dutchcoders/go-clamd"
	"github.com/gin-gonic/gin"
	"github.com/minio/minio-go/v7"
	"gorm.io/gorm"

	"infrasite/internal/api/middleware"
	"infrasite/internal/database"
	"infrasite/internal/storage"
)

const (
	defaultMediaMaxBytes = 10 << 20
	mediaURLTTL          = 15 * time.Minute
	sniffLen             = 512
)

var errInfectedFile = errors.New("malicious file detected")

// mediaTypes maps accepted sniffed content types to the stored extension.
var mediaTypes = map[string]string{
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"application/pdf": ".pdf",
}

type mediaStorage interface {
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (*minio.UploadInfo, error)
	GeneratePresignedURL(ctx context.Context, objectKey string, duration time.Duration) (string, error)
	DeleteObject(ctx context.Context, objectKey string) error
}

// virusScanner inspects an upload before it is stored.
type virusScanner interface {
	Scan(r io.Reader) error
}

// clamdScanner streams the file to clamd over INSTREAM.
type clamdScanner struct {
	client *clamd.Clamd
}

func newClamdScanner(addr string) virusScanner {
	if strings.TrimSpace(addr) == "" {
		return nil
	}
	return &clamdScanner{client: clamd.NewClamd(addr)}
}

func (s *clamdScanner) Scan(r io.Reader) error {
	abort := make(chan bool)
	defer close(abort)

	results, err := s.client.ScanStream(r, abort)
	if err != nil {
		return fmt.Errorf("clamd scan: %w", err)
	}
	for result := range results {
		switch result.Status {
		case clamd.RES_OK:
		case clamd.RES_FOUND:
			return errInfectedFile
		default:
			return fmt.Errorf("clamd scan: %s %s", result.Status, result.Description)
		}
	}
	return nil
}

// MediaHandler uploads CMS media to object storage and keeps a row per file.
type MediaHandler struct {
	db       *gorm.DB
	storage  mediaStorage
	scanner  virusScanner
	maxBytes int64
	now      func() time.Time
}

// NewMediaHandler builds the handler; scanning is skipped when clamdAddr is empty.
func NewMediaHandler(db *gorm.DB, storageClient mediaStorage, clamdAddr string) *MediaHandler {
	return &MediaHandler{
		db:       db,
		storage:  storageClient,
		scanner:  newClamdScanner(clamdAddr),
		maxBytes: defaultMediaMaxBytes,
		now:      time.Now,
	}
}

type mediaResponse struct {
	database.Media
	URL string `json:"url,omitempty"`
}

// Upload handles POST /v1/admin/media (multipart field "file", optional "title" and "alt").
func (h *MediaHandler) Upload(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	ctx := c.Request.Context()
	log := middleware.LoggerFromContext(c).With(slog.Uint64("user_id", uint64(userID)))

	file, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "missing file")
		return
	}
	if file.Size <= 0 {
		BadRequest(c, "empty file")
		return
	}
	if file.Size > h.maxBytes {
		Error(c, http.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds %d bytes", h.maxBytes))
		return
	}

	contentType, err := sniffContentType(file)
	if err != nil {
		log.Error("read upload failed", slog.Any("error", err))
		Internal(c, "failed to read file")
		return
	}
	ext, allowed := mediaTypes[contentType]
	if !allowed {
		Error(c, http.StatusUnsupportedMediaType, "unsupported file type "+contentType)
		return
	}

	if h.scanner != nil {
		if err := h.scan(file); err != nil {
			if errors.Is(err, errInfectedFile) {
				log.Warn("infected upload rejected", slog.String("file_name", file.Filename))
				BadRequest(c, errInfectedFile.Error())
				return
			}
			log.Error("scan file failed", slog.Any("error", err))
			Internal(c, "failed to scan file")
			return
		}
	}

	reader, err := file.Open()
	if err != nil {
		Internal(c, "failed to reopen file")
		return
	}
	defer reader.Close()

	objectKey := storage.MediaObjectKey(h.now(), ext)
	if _, err := h.storage.UploadFile(ctx, objectKey, reader, file.Size, contentType); err != nil {
		log.Error("upload media failed", slog.Any("error", err))
		Internal(c, "failed to upload file")
		return
	}

	media := database.Media{
		FileName:    truncate(file.Filename, 255),
		ObjectKey:   objectKey,
		ContentType: contentType,
		Size:        file.Size,
		Title:       truncate(strings.TrimSpace(c.PostForm("title")), 255),
		Alt:         truncate(strings.TrimSpace(c.PostForm("alt")), 255),
		UploadedBy:  userID,
	}
	if err := h.db.WithContext(ctx).Create(&media).Error; err != nil {
		log.Error("create media row failed", slog.Any("error", err))
		if delErr := h.storage.DeleteObject(ctx, objectKey); delErr != nil {
			log.Error("cleanup uploaded object failed", slog.String("object_key", objectKey), slog.Any("error", delErr))
		}
		Internal(c, "failed to save media")
		return
	}

	log.Info("media uploaded", slog.Uint64("media_id", uint64(media.ID)), slog.String("object_key", objectKey))
	c.JSON(http.StatusCreated, h.withURL(ctx, log, media))
}

// List returns every media row, newest first, with short-lived download URLs.
func (h *MediaHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	log := middleware.LoggerFromContext(c)

	var rows []database.Media
	if err := h.db.WithContext(ctx).Order("id DESC").Find(&rows).Error; err != nil {
		log.Error("list media failed", slog.Any("error", err))
		Internal(c, "failed to list media")
		return
	}
	items := make([]mediaResponse, 0, len(rows))
	for _, m := range rows {
		items = append(items, h.withURL(ctx, log, m))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// Get returns one media row with its download URL.
func (h *MediaHandler) Get(c *gin.Context) {
	media, ok := h.load(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.withURL(c.Request.Context(), middleware.LoggerFromContext(c), *media))
}

type updateMediaRequest struct {
	Title *string `json:"title" binding:"omitempty,max=255"`
	Alt   *string `json:"alt" binding:"omitempty,max=255"`
}

// Update edits the title and alt text.
func (h *MediaHandler) Update(c *gin.Context) {
	media, ok := h.load(c)
	if !ok {
		return
	}
	var req updateMediaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err, &req)
		return
	}
	if req.Title != nil {
		media.Title = strings.TrimSpace(*req.Title)
	}
	if req.Alt != nil {
		media.Alt = strings.TrimSpace(*req.Alt)
	}
	if err := h.db.WithContext(c.Request.Context()).Save(media).Error; err != nil {
		middleware.LoggerFromContext(c).Error("update media failed", slog.Any("error", err))
		Internal(c, "failed to update media")
		return
	}
	c.JSON(http.StatusOK, h.withURL(c.Request.Context(), middleware.LoggerFromContext(c), *media))
}

// Delete removes the stored object and then the row.
func (h *MediaHandler) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	log := middleware.LoggerFromContext(c)

	media, ok := h.load(c)
	if !ok {
		return
	}
	if storage.ValidMediaObjectKey(media.ObjectKey) {
		if err := h.storage.DeleteObject(ctx, media.ObjectKey); err != nil {
			log.Error("delete media object failed", slog.String("object_key", media.ObjectKey), slog.Any("error", err))
			Internal(c, "failed to delete file")
			return
		}
	} else {
		log.Warn("media row has an unexpected object key, leaving storage untouched", slog.String("object_key", media.ObjectKey))
	}
	if err := h.db.WithContext(ctx).Delete(media).Error; err != nil {
		log.Error("delete media row failed", slog.Any("error", err))
		Internal(c, "failed to delete media")
		return
	}
	log.Info("media deleted", slog.Uint64("media_id", uint64(media.ID)))
	c.Status(http.StatusNoContent)
}

func (h *MediaHandler) load(c *gin.Context) (*database.Media, bool) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		BadRequest(c, "invalid id")
		return nil, false
	}
	var media database.Media
	if err := h.db.WithContext(c.Request.Context()).First(&media, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "media not found")
			return nil, false
		}
		Internal(c, "failed to load media")
		return nil, false
	}
	return &media, true
}

func (h *MediaHandler) withURL(ctx context.Context, log *slog.Logger, m database.Media) mediaResponse {
	resp := mediaResponse{Media: m}
	url, err := h.storage.GeneratePresignedURL(ctx, m.ObjectKey, mediaURLTTL)
	if err != nil {
		log.Error("generate media url failed", slog.String("object_key", m.ObjectKey), slog.Any("error", err))
		return resp
	}
	resp.URL = url
	return resp
}

func (h *MediaHandler) scan(file *multipart.FileHeader) error {
	reader, err := file.Open()
	if err != nil {
		return err
	}
	defer reader.Close()
	return h.scanner.Scan(reader)
}

func sniffContentType(file *multipart.FileHeader) (string, error) {
	reader, err := file.Open()
	if err != nil {
		return "", err
	}
	defer reader.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(reader, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	contentType := http.DetectContentType(head[:n])
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return contentType, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
